package imagerender

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	"github.com/local/docsuite/internal/document"
	"github.com/local/docsuite/internal/imaging"
)

var (
	ErrPageOutOfRange = errors.New("page index out of range")
	ErrCanvasTooLarge = errors.New("canvas exceeds pixel limit")
)

// RenderError reports a page that could not be rasterized. Page is 1-based;
// zero means the document as a whole could not be opened.
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	if e.Page == 0 {
		return fmt.Sprintf("render: %v", e.Err)
	}
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Format is the encoding a rendered page is tagged with.
type Format struct {
	Encoding imaging.Encoding
	Quality  float64
}

// JPEG returns a JPEG format with quality q in (0,1].
func JPEG(q float64) Format { return Format{Encoding: imaging.JPEG, Quality: q} }

// PNG is lossless output.
var PNG = Format{Encoding: imaging.PNG}

// Preset pairs a scale with an output format.
type Preset struct {
	Scale  float64
	Format Format
}

var (
	// ExportFormat is used when pages are exported as standalone images.
	ExportFormat = Preset{Scale: 2.0, Format: JPEG(0.9)}
	// FlattenFormat is used for the lossy rasterize-and-re-embed path.
	FlattenFormat = Preset{Scale: 1.0, Format: JPEG(0.5)}
)

// DefaultMaxPixels bounds a single canvas (about 16k x 16k).
const DefaultMaxPixels = 268_435_456

// Config is passed to New. A zero Config renders with MuPDF and the
// default pixel limit.
type Config struct {
	Opener    Opener
	MaxPixels int
}

// Renderer turns document pages into raster images. A Renderer holds only
// its configuration and can be shared between goroutines.
type Renderer struct {
	opener    Opener
	maxPixels int
}

// New creates a Renderer.
func New(cfg Config) *Renderer {
	r := &Renderer{opener: cfg.Opener, maxPixels: cfg.MaxPixels}
	if r.opener == nil {
		r.opener = fitzOpener{}
	}
	if r.maxPixels <= 0 {
		r.maxPixels = DefaultMaxPixels
	}
	return r
}

// CanvasSize is the exact output size for a page of w×h points at scale.
func CanvasSize(w, h, scale float64) (int, int) {
	return int(math.Round(w * scale)), int(math.Round(h * scale))
}

// Render rasterizes the zero-based page index of doc at scale. The result
// is exactly CanvasSize(page.Width, page.Height, scale) pixels.
func (r *Renderer) Render(ctx context.Context, doc *document.Document, index int, scale float64, f Format) (*imaging.RasterImage, error) {
	if _, ok := doc.Page(index); !ok {
		return nil, &RenderError{Page: index + 1, Err: ErrPageOutOfRange}
	}
	src, err := r.opener.Open(doc.Bytes())
	if err != nil {
		return nil, &RenderError{Err: err}
	}
	defer src.Close()
	return r.renderPage(ctx, src, doc, index, scale, f)
}

// RenderEach renders every page in order and hands each result to fn
// before rendering the next, so only one bitmap is alive at a time. A page
// that fails is passed to fn with a *RenderError; if fn returns an error
// the walk stops with it. ctx is checked between pages.
func (r *Renderer) RenderEach(ctx context.Context, doc *document.Document, scale float64, f Format, fn func(index int, img *imaging.RasterImage, err error) error) error {
	src, err := r.opener.Open(doc.Bytes())
	if err != nil {
		return &RenderError{Err: err}
	}
	defer src.Close()

	for i := 0; i < doc.PageCount(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, rerr := r.renderPage(ctx, src, doc, i, scale, f)
		if err := fn(i, img, rerr); err != nil {
			return err
		}
	}
	return nil
}

// Result is one slot of RenderAll.
type Result struct {
	Image *imaging.RasterImage
	Err   error
}

// RenderAll renders every page into its own indexed slot. Page failures are
// recorded in the slot; only cancellation or a failure to open the
// document fails the call.
func (r *Renderer) RenderAll(ctx context.Context, doc *document.Document, scale float64, f Format) ([]Result, error) {
	out := make([]Result, doc.PageCount())
	err := r.RenderEach(ctx, doc, scale, f, func(i int, img *imaging.RasterImage, err error) error {
		out[i] = Result{Image: img, Err: err}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Renderer) renderPage(ctx context.Context, src Source, doc *document.Document, index int, scale float64, f Format) (*imaging.RasterImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, ok := doc.Page(index)
	if !ok {
		return nil, &RenderError{Page: index + 1, Err: ErrPageOutOfRange}
	}
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, &RenderError{Page: page.Number, Err: fmt.Errorf("invalid scale %v", scale)}
	}
	w, h := CanvasSize(page.Width, page.Height, scale)
	if w < 1 || h < 1 {
		return nil, &RenderError{Page: page.Number, Err: imaging.ErrEmptyImage}
	}
	if int64(w)*int64(h) > int64(r.maxPixels) {
		return nil, &RenderError{Page: page.Number, Err: fmt.Errorf("%w: %dx%d", ErrCanvasTooLarge, w, h)}
	}

	raw, err := src.RenderDPI(index, 72*scale)
	if err != nil {
		return nil, &RenderError{Page: page.Number, Err: err}
	}

	px := toCanvas(raw, w, h)
	log.Debug().
		Int("page", page.Number).
		Float64("scale", scale).
		Int("width", w).
		Int("height", h).
		Str("format", f.Encoding.String()).
		Msg("rendered page")

	return imaging.New(px, f.Encoding, f.Quality), nil
}

// toCanvas composites img over an opaque white w×h canvas, resampling when
// the backend's rounding produced a different size.
func toCanvas(img image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Rect, image.NewUniform(color.White), image.Point{}, draw.Src)

	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(dst, dst.Rect, img, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Rect, img, b, draw.Over, nil)
	return dst
}
