package pdftest

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// Gradient returns a w×h image whose red channel ramps left to right,
// green ramps top to bottom and blue is fixed. Alpha is alpha everywhere.
func Gradient(w, h int, alpha uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: 96,
				A: alpha,
			})
		}
	}
	return img
}

// PNG encodes a w×h gradient as PNG.
func PNG(w, h int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Gradient(w, h, 255)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG encodes a w×h gradient as JPEG at quality 90.
func JPEG(w, h int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Gradient(w, h, 255), &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// GIF returns the bytes of a 1×1 GIF, an image format the suite rejects.
func GIF() []byte {
	return []byte{
		'G', 'I', 'F', '8', '9', 'a', 1, 0, 1, 0, 0x80, 0, 0,
		0, 0, 0, 0xff, 0xff, 0xff,
		0x21, 0xf9, 4, 1, 0, 0, 0, 0,
		0x2c, 0, 0, 0, 0, 1, 0, 1, 0, 0,
		2, 2, 0x44, 1, 0,
		0x3b,
	}
}
