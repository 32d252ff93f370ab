package imagerender

import (
	"image"

	"github.com/local/docsuite/internal/mupdf"
)

// Source is an opened document a backend can rasterize.
type Source interface {
	NumPage() int
	// RenderDPI rasterizes the zero-based page at dpi.
	RenderDPI(index int, dpi float64) (image.Image, error)
	Close() error
}

// Opener abstracts opening PDF bytes into a Source.
type Opener interface {
	Open(data []byte) (Source, error)
}

// --- go-fitz adapter ---

type fitzOpener struct{}

func (fitzOpener) Open(data []byte) (Source, error) {
	doc, err := mupdf.Open(data)
	if err != nil {
		return nil, err
	}
	return fitzSource{doc}, nil
}

type fitzSource struct{ *mupdf.Document }

func (s fitzSource) RenderDPI(index int, dpi float64) (image.Image, error) {
	img, err := s.Document.RenderDPI(index, dpi)
	if err != nil {
		return nil, err
	}
	return img, nil
}
