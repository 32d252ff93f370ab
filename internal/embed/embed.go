// Package embed places a raster image on a new single-page PDF.
package embed

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/docsuite/internal/document"
	"github.com/local/docsuite/internal/imaging"
)

// Fit selects how an image is sized onto its page.
type Fit struct {
	native        bool
	width, height float64
}

// Native makes the page exactly the image's pixel size, one pixel per point.
func Native() Fit { return Fit{native: true} }

// FitTo makes a w×h point page and scales the image to fit inside it,
// keeping its aspect ratio, centered.
func FitTo(w, h float64) Fit { return Fit{width: w, height: h} }

// A4 is the page size used for scans.
var A4 = FitTo(595.28, 841.89)

// IsNative reports whether f is Native().
func (f Fit) IsNative() bool { return f.native }

// PageSize returns the page size f produces for an imgW×imgH image.
func (f Fit) PageSize(imgW, imgH int) (float64, float64) {
	if f.native {
		return float64(imgW), float64(imgH)
	}
	return f.width, f.height
}

func (f Fit) String() string {
	if f.native {
		return "native"
	}
	return fmt.Sprintf("fit %gx%g", f.width, f.height)
}

// Rect is a placement in page space, origin bottom-left, in points.
type Rect struct {
	X, Y, W, H float64
}

// Placement computes where an imgW×imgH image lands on its page.
func Placement(imgW, imgH int, f Fit) Rect {
	pw, ph := f.PageSize(imgW, imgH)
	if f.native {
		return Rect{W: pw, H: ph}
	}
	iw, ih := float64(imgW), float64(imgH)
	s := math.Min(pw/iw, ph/ih)
	w, h := iw*s, ih*s
	return Rect{X: (pw - w) / 2, Y: (ph - h) / 2, W: w, H: h}
}

// Page is the one-page document produced for an image.
type Page struct {
	Document  *document.Document
	Placement Rect
}

// Embedder wraps images into PDF pages. It has no state and can be shared.
type Embedder struct{}

// New returns an Embedder.
func New() *Embedder { return &Embedder{} }

// Embed creates a one-page document holding img according to fit.
func (e *Embedder) Embed(img *imaging.RasterImage, fit Fit) (*Page, error) {
	if img.Empty() {
		return nil, imaging.ErrEmptyImage
	}
	if img.Encoding != imaging.JPEG && img.Encoding != imaging.PNG {
		return nil, &imaging.UnsupportedFormatError{MIME: img.Encoding.MIMEType()}
	}
	if !fit.native && (fit.width <= 0 || fit.height <= 0) {
		return nil, fmt.Errorf("invalid page size %gx%g", fit.width, fit.height)
	}

	data, err := img.Bytes()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, []io.Reader{bytes.NewReader(data)}, importConfig(fit), document.Configuration()); err != nil {
		return nil, fmt.Errorf("embed %s image: %w", img.Encoding, err)
	}
	doc, err := document.Load("image.pdf", buf.Bytes())
	if err != nil {
		return nil, err
	}

	p := Placement(img.Width(), img.Height(), fit)
	log.Debug().
		Str("fit", fit.String()).
		Int("img_w", img.Width()).
		Int("img_h", img.Height()).
		Float64("x", p.X).
		Float64("y", p.Y).
		Float64("w", p.W).
		Float64("h", p.H).
		Msg("image embedded")
	return &Page{Document: doc, Placement: p}, nil
}

func importConfig(fit Fit) *pdfcpu.Import {
	imp := pdfcpu.DefaultImportConfig()
	imp.InpUnit = types.POINTS
	if fit.native {
		imp.Pos = types.Full
		return imp
	}
	imp.PageDim = &types.Dim{Width: fit.width, Height: fit.height}
	imp.UserDim = true
	imp.Pos = types.Center
	imp.Scale = 1.0
	imp.ScaleAbs = false
	return imp
}
