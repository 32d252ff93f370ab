package pdftest

import (
	"image"
	"image/color"
)

// DiffBounds returns the smallest rectangle covering every pixel where a and
// b differ by more than tol in any 8-bit channel. a and b must share bounds.
func DiffBounds(a, b image.Image, tol uint8) image.Rectangle {
	var out image.Rectangle
	r := a.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if differs(a.At(x, y), b.At(x, y), tol) {
				out = out.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return out
}

// InkBounds is DiffBounds against a white page.
func InkBounds(img image.Image, tol uint8) image.Rectangle {
	return DiffBounds(img, image.NewUniform(color.White), tol)
}

func differs(a, b color.Color, tol uint8) bool {
	ar, ag, ab, _ := a.RGBA()
	br, bg, bb, _ := b.RGBA()
	return absDiff(ar>>8, br>>8) > uint32(tol) ||
		absDiff(ag>>8, bg>>8) > uint32(tol) ||
		absDiff(ab>>8, bb>>8) > uint32(tol)
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// Near reports whether every edge of got is within tol pixels of want.
func Near(got, want image.Rectangle, tol int) bool {
	return abs(got.Min.X-want.Min.X) <= tol && abs(got.Min.Y-want.Min.Y) <= tol &&
		abs(got.Max.X-want.Max.X) <= tol && abs(got.Max.Y-want.Max.Y) <= tol
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
