package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Filesystem saves artifacts into a directory. A file appears under its
// final name only after it was fully written and verified.
type Filesystem struct {
	dir string
}

// NewFilesystem creates dir if needed.
func NewFilesystem(dir string) (*Filesystem, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create delivery dir: %w", err)
	}
	return &Filesystem{dir: dir}, nil
}

func (f *Filesystem) Name() string { return "filesystem" }

// Dir is the target directory.
func (f *Filesystem) Dir() string { return f.dir }

// Scope returns an adapter writing into the subdirectory id of f, so
// artifacts of different jobs with the same name never replace each other.
// The subdirectory is created on first delivery.
func (f *Filesystem) Scope(id string) Adapter {
	return &Filesystem{dir: filepath.Join(f.dir, safeName(id))}
}

func (f *Filesystem) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	name := safeName(a.Name)
	fail := func(err error) (Receipt, error) {
		return Receipt{}, &DeliveryError{Adapter: f.Name(), Name: name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fail(err)
	}
	tmp, err := os.CreateTemp(f.dir, ".partial-*")
	if err != nil {
		return fail(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(a.Data); err != nil {
		tmp.Close()
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}

	want := a.Digest()
	written, err := os.ReadFile(tmpName)
	if err != nil {
		return fail(err)
	}
	if got := digest(written); got != want {
		return fail(fmt.Errorf("verify: digest mismatch"))
	}

	dst := filepath.Join(f.dir, name)
	if err := os.Rename(tmpName, dst); err != nil {
		return fail(err)
	}
	return Receipt{Adapter: f.Name(), Name: name, Size: len(a.Data), Digest: want, Location: dst}, nil
}
