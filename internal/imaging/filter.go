package imaging

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strings"

	imgx "github.com/disintegration/imaging"
)

// Filter names one of the fixed document-scan filters.
type Filter string

const (
	FilterOriginal  Filter = "original"
	FilterGrayscale Filter = "grayscale"
	FilterBW        Filter = "bw"
	FilterMagic     Filter = "magic"
)

var ErrUnknownFilter = errors.New("unknown filter")

// ParseFilter accepts a filter name case-insensitively. An empty name is
// FilterOriginal.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FilterOriginal:
		return FilterOriginal, nil
	case FilterGrayscale, FilterBW, FilterMagic:
		return f, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownFilter, s)
	}
}

const (
	bwThreshold = 128

	magicOffset = 50
	magicGain   = 1.5
	magicLift   = 30
)

// ApplyFilter returns a new image with f applied to every pixel of img.
// img is never modified and alpha is copied as is.
//
// Gray is 0.3R + 0.59G + 0.11B. bw thresholds the unrounded gray at 128,
// magic is the linear stretch (gray-50)*1.5+30. Channel values are rounded
// half to even and clamped to 0..255.
func ApplyFilter(img *RasterImage, f Filter) (*RasterImage, error) {
	if img.Empty() {
		return nil, ErrEmptyImage
	}
	if f == FilterOriginal || f == "" {
		return img.Clone(), nil
	}

	var mapGray func(float64) uint8
	switch f {
	case FilterGrayscale:
		mapGray = channel
	case FilterBW:
		mapGray = func(g float64) uint8 {
			if g > bwThreshold {
				return 255
			}
			return 0
		}
	case FilterMagic:
		mapGray = func(g float64) uint8 {
			return channel((g-magicOffset)*magicGain + magicLift)
		}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFilter, f)
	}

	dst := imgx.AdjustFunc(img.Pixels, func(c color.NRGBA) color.NRGBA {
		v := mapGray(0.3*float64(c.R) + 0.59*float64(c.G) + 0.11*float64(c.B))
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})

	return &RasterImage{Pixels: dst, Encoding: img.Encoding, Quality: img.Quality}, nil
}

func channel(v float64) uint8 {
	v = math.RoundToEven(v)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
