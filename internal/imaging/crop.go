package imaging

import (
	"image"
	"math"

	imgx "github.com/disintegration/imaging"
)

// DefaultCrop is the initial crop frame offered for a new scan, in percent
// of the image: a 5% margin on every side.
var DefaultCrop = PercentFrame{X: 5, Y: 5, Width: 90, Height: 90}

// PercentFrame is a crop rectangle expressed in percent of the image size.
type PercentFrame struct {
	X, Y, Width, Height float64
}

// PercentRect converts a percent frame into pixel coordinates for a w×h image.
func PercentRect(w, h int, f PercentFrame) image.Rectangle {
	x0 := int(math.Round(f.X / 100 * float64(w)))
	y0 := int(math.Round(f.Y / 100 * float64(h)))
	x1 := int(math.Round((f.X + f.Width) / 100 * float64(w)))
	y1 := int(math.Round((f.Y + f.Height) / 100 * float64(h)))
	return image.Rect(x0, y0, x1, y1)
}

// Crop copies the part of img inside r into a new JPEG-tagged image, the
// way a canvas snapshot of the crop would be stored. r is clipped to the
// image bounds; an empty intersection is ErrEmptyImage.
func Crop(img *RasterImage, r image.Rectangle) (*RasterImage, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}
	if r.Intersect(img.Pixels.Rect).Empty() {
		return nil, ErrEmptyImage
	}
	return New(imgx.Crop(img.Pixels, r), JPEG, DefaultJPEGQuality), nil
}
