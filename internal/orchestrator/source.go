package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docsuite/internal/document"
	"github.com/local/docsuite/internal/filetype"
	"github.com/local/docsuite/internal/storage"
	"github.com/local/docsuite/internal/tools"
)

var (
	errMissingFile = errors.New("missing file")
	errBadRef      = errors.New("unsupported file reference")
	errFetch       = errors.New("fetch failed")
)

// ObjectGetter reads keys from the service's own bucket.
type ObjectGetter interface {
	Bucket() string
	Download(ctx context.Context, key string, limit int64) ([]byte, string, error)
}

// Fetcher resolves a remote file reference into its bytes.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (tools.Input, error)
}

// FetchConfig configures NewFetcher.
type FetchConfig struct {
	// Objects serves keys of the configured bucket. Optional.
	Objects ObjectGetter
	// FileRoot enables file:// references below this directory.
	FileRoot string
	// MaxBytes caps every fetched file the same way uploads are capped.
	MaxBytes int64
}

type refFetcher struct {
	objects  ObjectGetter
	root     string
	maxBytes int64
	client   *http.Client
}

// NewFetcher accepts s3://bucket/key, http(s):// and, with a FileRoot,
// file:// references. Keys in the configured bucket go through Objects;
// other buckets use the default AWS credential chain.
func NewFetcher(cfg FetchConfig) Fetcher {
	return &refFetcher{
		objects:  cfg.Objects,
		root:     cfg.FileRoot,
		maxBytes: cfg.MaxBytes,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

func (f *refFetcher) Fetch(ctx context.Context, ref string) (tools.Input, error) {
	// Strip optional #page fragment if present
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	switch {
	case strings.HasPrefix(ref, "s3://"):
		return f.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return f.fetchHTTP(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		return f.fetchFile(ref)
	default:
		return tools.Input{}, fmt.Errorf("%w: %s", errBadRef, ref)
	}
}

func (f *refFetcher) fetchS3(ctx context.Context, ref string) (tools.Input, error) {
	rest := strings.TrimPrefix(ref, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return tools.Input{}, fmt.Errorf("%w: %s", errBadRef, ref)
	}
	var (
		data []byte
		err  error
	)
	if f.objects != nil && f.objects.Bucket() == bucket {
		data, _, err = f.objects.Download(ctx, key, f.maxBytes)
	} else {
		data, _, err = storage.FetchURL(ctx, ref, f.maxBytes)
	}
	if err != nil {
		return tools.Input{}, fetchFailed(ref, err)
	}
	log.Info().Str("bucket", bucket).Str("key", key).Int("bytes", len(data)).Msg("fetched s3 input")
	return tools.Input{Name: path.Base(key), Data: data}, nil
}

func (f *refFetcher) fetchHTTP(ctx context.Context, url string) (tools.Input, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return tools.Input{}, fmt.Errorf("%w: %s", errBadRef, url)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return tools.Input{}, fetchFailed(url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return tools.Input{}, fetchFailed(url, fmt.Errorf("http %d", resp.StatusCode))
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return tools.Input{}, &http.MaxBytesError{Limit: f.maxBytes}
	}
	data, err := f.readCapped(resp.Body)
	if err != nil {
		return tools.Input{}, fetchFailed(url, err)
	}
	name := path.Base(req.URL.Path)
	if name == "/" || name == "." {
		name = "download"
	}
	return tools.Input{Name: name, Data: data}, nil
}

// fetchFile reads file://path relative to the configured root. Paths are
// cleaned as if rooted, and symlinks may not lead outside the root.
func (f *refFetcher) fetchFile(ref string) (tools.Input, error) {
	if f.root == "" {
		return tools.Input{}, fmt.Errorf("%w: file references are disabled", errBadRef)
	}
	rel := filepath.Clean("/" + strings.TrimPrefix(ref, "file://"))
	root, err := filepath.EvalSymlinks(f.root)
	if err != nil {
		return tools.Input{}, fetchFailed(ref, err)
	}
	full, err := filepath.EvalSymlinks(filepath.Join(root, rel))
	if err != nil {
		return tools.Input{}, fetchFailed(ref, err)
	}
	if r, err := filepath.Rel(root, full); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return tools.Input{}, fmt.Errorf("%w: %s is outside the input root", errBadRef, ref)
	}
	fh, err := os.Open(full)
	if err != nil {
		return tools.Input{}, fetchFailed(ref, err)
	}
	defer fh.Close()
	data, err := f.readCapped(fh)
	if err != nil {
		return tools.Input{}, fetchFailed(ref, err)
	}
	return tools.Input{Name: filepath.Base(full), Data: data}, nil
}

// readCapped reads r completely, failing with *http.MaxBytesError once it
// yields more than maxBytes.
func (f *refFetcher) readCapped(r io.Reader) ([]byte, error) {
	if f.maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &http.MaxBytesError{Limit: f.maxBytes}
	}
	return data, nil
}

// fetchFailed tags err as a fetch failure unless it already says the file
// was too large.
func fetchFailed(ref string, err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", errFetch, ref, err)
}

// inputs returns the uploads of field followed by the references listed
// in field+"_url", in form order.
func (o *Orchestrator) inputs(r *http.Request, field string) ([]tools.Input, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return nil, err
		}
	}
	var out []tools.Input
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File[field] {
			in, err := readPart(fh)
			if err != nil {
				return nil, err
			}
			out = append(out, in)
		}
	}
	for _, ref := range r.Form[field+"_url"] {
		if ref = strings.TrimSpace(ref); ref == "" {
			continue
		}
		in, err := o.deps.Fetch.Fetch(r.Context(), ref)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func readPart(fh *multipart.FileHeader) (tools.Input, error) {
	f, err := fh.Open()
	if err != nil {
		return tools.Input{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return tools.Input{}, err
	}
	return tools.Input{Name: fh.Filename, Data: data}, nil
}

// oneInput is inputs for a single required file.
func (o *Orchestrator) oneInput(r *http.Request, field string) (tools.Input, error) {
	ins, err := o.inputs(r, field)
	if err != nil {
		return tools.Input{}, err
	}
	if len(ins) == 0 {
		return tools.Input{}, fmt.Errorf("%w: %s", errMissingFile, field)
	}
	return ins[0], nil
}

// pdfs checks every input is a PDF by content and loads it.
func (o *Orchestrator) pdfs(ins []tools.Input) ([]*document.Document, error) {
	for _, in := range ins {
		if err := filetype.Require(o.detector.Detect(in.Name, in.Data), filetype.KindPDF); err != nil {
			return nil, err
		}
	}
	return tools.Load(ins)
}

func (o *Orchestrator) onePDF(r *http.Request, field string) (*document.Document, error) {
	in, err := o.oneInput(r, field)
	if err != nil {
		return nil, err
	}
	docs, err := o.pdfs([]tools.Input{in})
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}
