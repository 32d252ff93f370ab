// Package imaging holds the decoded raster type shared by the rasterizer,
// the embedder and the scanner, plus the pixel filters applied to it.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	imgx "github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

// Encoding is the closed set of raster encodings the suite produces and accepts.
type Encoding int

const (
	JPEG Encoding = iota + 1
	PNG
)

func (e Encoding) String() string {
	switch e {
	case JPEG:
		return "jpeg"
	case PNG:
		return "png"
	default:
		return "unknown"
	}
}

// MIMEType returns the media type used for artifacts of this encoding.
func (e Encoding) MIMEType() string {
	switch e {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension without the dot.
func (e Encoding) Extension() string {
	if e == JPEG {
		return "jpg"
	}
	return e.String()
}

// DefaultJPEGQuality is what a canvas uses when no quality is given.
const DefaultJPEGQuality = 0.92

var (
	ErrEmptyImage = errors.New("image has no pixels")
	// ErrUnsupportedFormat is matched by every *UnsupportedFormatError.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// UnsupportedFormatError reports an input that is neither JPEG nor PNG.
type UnsupportedFormatError struct {
	Name string
	MIME string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("unsupported image format %s", e.MIME)
	}
	return fmt.Sprintf("%s: unsupported image format %s", e.Name, e.MIME)
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedFormat }

// RasterImage is a decoded bitmap tagged with the encoding it will be
// written in. While the pixels are untouched it remembers the bytes it was
// decoded from, so embedding a freshly uploaded image does not re-encode it.
type RasterImage struct {
	Pixels   *image.NRGBA
	Encoding Encoding
	// Quality is the JPEG quality in (0,1]; ignored for PNG.
	Quality float64

	source []byte
}

// New wraps pixels that were produced in memory.
func New(px *image.NRGBA, enc Encoding, quality float64) *RasterImage {
	return &RasterImage{Pixels: px, Encoding: enc, Quality: quality}
}

// Width in pixels.
func (r *RasterImage) Width() int { return r.Pixels.Rect.Dx() }

// Height in pixels.
func (r *RasterImage) Height() int { return r.Pixels.Rect.Dy() }

// Empty reports whether the image has zero area.
func (r *RasterImage) Empty() bool {
	return r == nil || r.Pixels == nil || r.Pixels.Rect.Empty()
}

// Decode sniffs data, accepting only JPEG and PNG, and decodes it into an
// NRGBA buffer. The original bytes are retained for pass-through.
func Decode(name string, data []byte) (*RasterImage, error) {
	mt := mimetype.Detect(data)
	var enc Encoding
	switch {
	case mt.Is("image/jpeg"):
		enc = JPEG
	case mt.Is("image/png"):
		enc = PNG
	default:
		return nil, &UnsupportedFormatError{Name: name, MIME: mt.String()}
	}

	img, err := imgx.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	src := make([]byte, len(data))
	copy(src, data)
	q := 0.0
	if enc == JPEG {
		q = DefaultJPEGQuality
	}
	return &RasterImage{Pixels: ToNRGBA(img), Encoding: enc, Quality: q, source: src}, nil
}

// ToNRGBA copies img into a fresh NRGBA buffer anchored at the origin.
func ToNRGBA(img image.Image) *image.NRGBA {
	return imgx.Clone(img)
}

// Clone returns a deep copy. The pass-through bytes are carried over since
// the pixels are identical.
func (r *RasterImage) Clone() *RasterImage {
	c := &RasterImage{Pixels: imgx.Clone(r.Pixels), Encoding: r.Encoding, Quality: r.Quality}
	if r.source != nil {
		c.source = append([]byte(nil), r.source...)
	}
	return c
}

// Bytes returns the encoded form of the image: the original upload when the
// pixels were never modified, otherwise a fresh encoding.
func (r *RasterImage) Bytes() ([]byte, error) {
	if r.source != nil {
		return r.source, nil
	}
	return Encode(r.Pixels, r.Encoding, r.Quality)
}

// Encode writes px as enc. quality is mapped from (0,1] onto the 1..100
// JPEG scale.
func Encode(px image.Image, enc Encoding, quality float64) ([]byte, error) {
	if px.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	var buf bytes.Buffer
	switch enc {
	case JPEG:
		if err := imgx.Encode(&buf, px, imgx.JPEG, imgx.JPEGQuality(JPEGQuality(quality))); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case PNG:
		if err := imgx.Encode(&buf, px, imgx.PNG); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		return nil, &UnsupportedFormatError{MIME: enc.String()}
	}
	return buf.Bytes(), nil
}

// JPEGQuality converts a (0,1] quality into the integer JPEG scale.
func JPEGQuality(q float64) int {
	if q <= 0 || math.IsNaN(q) {
		q = DefaultJPEGQuality
	}
	n := int(math.Round(q * 100))
	if n < 1 {
		n = 1
	}
	if n > 100 {
		n = 100
	}
	return n
}
