// Package document loads PDF bytes into an immutable Document that knows
// its page count and per-page geometry.
package document

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"
)

// LoadError means the bytes could not be parsed as a PDF.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Name, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Page is the intrinsic geometry of one page, in points. Width and Height
// already account for a 90 or 270 degree /Rotate.
type Page struct {
	Number int
	Width  float64
	Height float64
	Rotate int
}

// Document is an immutable parsed PDF. Every transformation produces a new
// Document; nothing ever writes into the buffer a Document was loaded from.
type Document struct {
	name  string
	data  []byte
	pages []Page
}

var configOnce sync.Once

// Configuration returns a fresh pdfcpu configuration with relaxed
// validation, which is what real-world uploads need.
func Configuration() *model.Configuration {
	configOnce.Do(func() {
		// keep pdfcpu from creating a config dir under $HOME
		api.DisableConfigDir()
	})
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Load parses data and records per-page geometry. data is copied.
func Load(name string, data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, &LoadError{Name: name, Err: io.ErrUnexpectedEOF}
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(buf), Configuration())
	if err != nil {
		return nil, &LoadError{Name: name, Err: err}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &LoadError{Name: name, Err: err}
	}

	pages := make([]Page, 0, ctx.PageCount)
	for n := 1; n <= ctx.PageCount; n++ {
		p, err := pageGeometry(ctx, n)
		if err != nil {
			return nil, &LoadError{Name: name, Err: err}
		}
		pages = append(pages, p)
	}

	log.Debug().Str("document", name).Int("pages", len(pages)).Int("bytes", len(buf)).Msg("document loaded")
	return &Document{name: name, data: buf, pages: pages}, nil
}

func pageGeometry(ctx *model.Context, n int) (Page, error) {
	_, _, inh, err := ctx.PageDict(n, false)
	if err != nil {
		return Page{}, fmt.Errorf("page %d: %w", n, err)
	}
	if inh == nil {
		return Page{}, fmt.Errorf("page %d: missing page attributes", n)
	}
	box := visibleBox(inh.CropBox, inh.MediaBox)
	if box == nil {
		return Page{}, fmt.Errorf("page %d: no media box", n)
	}
	w, h := box.Width(), box.Height()
	rot := normalizeRotation(inh.Rotate)
	if rot == 90 || rot == 270 {
		w, h = h, w
	}
	return Page{Number: n, Width: w, Height: h, Rotate: rot}, nil
}

func visibleBox(crop, media *types.Rectangle) *types.Rectangle {
	if crop != nil && crop.Width() > 0 && crop.Height() > 0 {
		return crop
	}
	return media
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r
}

// Name is the file name the document was loaded under.
func (d *Document) Name() string { return d.name }

// PageCount is the number of pages.
func (d *Document) PageCount() int { return len(d.pages) }

// Page returns the geometry of the zero-based page index.
func (d *Document) Page(index int) (Page, bool) {
	if index < 0 || index >= len(d.pages) {
		return Page{}, false
	}
	return d.pages[index], true
}

// Pages returns a copy of every page's geometry.
func (d *Document) Pages() []Page {
	out := make([]Page, len(d.pages))
	copy(out, d.pages)
	return out
}

// Bytes serializes the document. The returned slice is a copy and may be
// handed to a delivery adapter freely.
func (d *Document) Bytes() []byte {
	out := make([]byte, len(d.data))
	copy(out, d.data)
	return out
}

// Size is the serialized length in bytes.
func (d *Document) Size() int { return len(d.data) }

// Reader returns a fresh reader over the document bytes.
func (d *Document) Reader() io.ReadSeeker { return bytes.NewReader(d.data) }

// Context parses a fresh pdfcpu context from the document bytes. Callers
// may modify the returned context without affecting d.
func (d *Document) Context() (*model.Context, error) {
	ctx, err := api.ReadValidateAndOptimize(d.Reader(), Configuration())
	if err != nil {
		return nil, &LoadError{Name: d.name, Err: err}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &LoadError{Name: d.name, Err: err}
	}
	return ctx, nil
}

// WithName returns a view of d under another name. The bytes are shared,
// which is safe because neither document can change them.
func (d *Document) WithName(name string) *Document {
	return &Document{name: name, data: d.data, pages: d.pages}
}
