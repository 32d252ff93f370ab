package mupdf

import (
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// Document is a MuPDF handle over an in-memory PDF. MuPDF contexts are not
// safe for concurrent use, so every call is serialized.
type Document struct {
	mu  sync.Mutex
	doc *fitz.Document
}

// Open parses data with MuPDF. The caller must Close the document.
func Open(data []byte) (*Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &Document{doc: doc}, nil
}

// NumPage returns the number of pages MuPDF sees.
func (d *Document) NumPage() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.NumPage()
}

// RenderDPI rasterizes the zero-based page index at dpi.
func (d *Document) RenderDPI(index int, dpi float64) (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if index < 0 || index >= d.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", index+1, d.doc.NumPage())
	}
	img, err := d.doc.ImageDPI(index, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", index+1, err)
	}

	b := img.Bounds()
	log.Debug().
		Int("page", index+1).
		Float64("dpi", dpi).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Msg("page rasterized with go-fitz")
	return img, nil
}

// Close releases the MuPDF handle.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}

// PageCount opens data only to count its pages.
func PageCount(data []byte) (int, error) {
	doc, err := Open(data)
	if err != nil {
		return 0, err
	}
	defer doc.Close()
	return doc.NumPage(), nil
}
