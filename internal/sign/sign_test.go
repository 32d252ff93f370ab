package sign

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/local/docsuite/internal/document"
	"github.com/local/docsuite/internal/embed"
	"github.com/local/docsuite/internal/imaging"
	"github.com/local/docsuite/internal/mupdf"
	"github.com/local/docsuite/internal/pdftest"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want Placement
	}{
		{Placement{Page: 1, X: -5, Y: 120, Scale: 0}, Placement{Page: 1, X: 0, Y: 90, Scale: 1}},
		{Placement{Page: 2, X: 50, Y: 50, Scale: 1.5}, Placement{Page: 2, X: 50, Y: 50, Scale: 1.5}},
		{Placement{Page: 3, X: 90.1, Y: 0, Scale: -2}, Placement{Page: 3, X: 90, Y: 0, Scale: 1}},
	}
	for _, tt := range tests {
		if got := tt.in.Normalize(); got != tt.want {
			t.Errorf("Normalize(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestGeometry(t *testing.T) {
	page := document.Page{Number: 1, Width: 600, Height: 800}
	// 300x100 signature at scale 2: 300pt wide, 100pt tall.
	got := Geometry(page, 300, 100, Placement{Page: 1, X: 10, Y: 25, Scale: 2})
	want := embed.Rect{X: 60, Y: 800 - 200 - 100, W: 300, H: 100}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("Geometry mismatch (-want +got):\n%s", d)
	}

	def := Geometry(page, 150, 50, DefaultPlacement(1))
	if def.W != 150 || math.Abs(def.H-50) > 1e-9 || def.X != 300 || def.Y != 350 {
		t.Errorf("default placement geometry = %+v", def)
	}
}

func signature(t *testing.T) *imaging.RasterImage {
	t.Helper()
	img, err := imaging.Decode("sig.png", pdftest.PNG(60, 20))
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestSign(t *testing.T) {
	doc, err := document.Load("contract.pdf", pdftest.PDF(pdftest.Letter, pdftest.A4, pdftest.Letter))
	if err != nil {
		t.Fatal(err)
	}
	placements := []Placement{
		{Page: 3, X: 10, Y: 80, Scale: 1},
		{Page: 7, X: 10, Y: 10, Scale: 1},
		DefaultPlacement(1),
	}
	out, res, err := New().Sign(context.Background(), doc, signature(t), placements)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(Result{Signed: []int{1, 3}, Skipped: []int{7}}, res); d != "" {
		t.Errorf("result mismatch (-want +got):\n%s", d)
	}
	if out.PageCount() != 3 {
		t.Errorf("signed document has %d pages", out.PageCount())
	}
	if d := cmp.Diff(doc.Pages(), out.Pages()); d != "" {
		t.Errorf("signing changed page geometry (-want +got):\n%s", d)
	}
	if out.Size() <= doc.Size() {
		t.Errorf("signed document is not larger than the original (%d <= %d)", out.Size(), doc.Size())
	}
}

func TestSignErrors(t *testing.T) {
	doc, err := document.Load("a.pdf", pdftest.PDFPages(1))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := New().Sign(context.Background(), doc, signature(t), nil); !errors.Is(err, ErrNoPlacements) {
		t.Errorf("no placements: got %v", err)
	}

	jpg, err := imaging.Decode("sig.jpg", pdftest.JPEG(10, 10))
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = New().Sign(context.Background(), doc, jpg, []Placement{DefaultPlacement(1)})
	if !errors.Is(err, imaging.ErrUnsupportedFormat) {
		t.Errorf("jpeg signature: got %v, want ErrUnsupportedFormat", err)
	}
}

func renderAll(t *testing.T, data []byte) []image.Image {
	t.Helper()
	doc, err := mupdf.Open(data)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()
	var out []image.Image
	for i := 0; i < doc.NumPage(); i++ {
		img, err := doc.RenderDPI(i, 72)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, img)
	}
	return out
}

func TestSignRendersAtGeometry(t *testing.T) {
	cropped := pdftest.Letter
	cropped.CropBox = &[4]float64{50, 50, 562, 742}
	rotated := pdftest.Letter
	rotated.Rotate = 90

	doc, err := document.Load("contract.pdf", pdftest.PDF(pdftest.Letter, rotated, cropped))
	if err != nil {
		t.Fatal(err)
	}
	sig := signature(t)
	var placements []Placement
	for i := range doc.PageCount() {
		placements = append(placements, Placement{Page: i + 1, X: 60, Y: 10, Scale: 1})
	}
	out, _, err := New().Sign(context.Background(), doc, sig, placements)
	if err != nil {
		t.Fatal(err)
	}

	before, after := renderAll(t, doc.Bytes()), renderAll(t, out.Bytes())
	for i, p := range placements {
		page, _ := doc.Page(i)
		g := Geometry(page, sig.Width(), sig.Height(), p)
		want := image.Rect(
			int(math.Round(g.X)),
			int(math.Round(page.Height-g.Y-g.H)),
			int(math.Round(g.X+g.W)),
			int(math.Round(page.Height-g.Y)),
		)
		if got := pdftest.DiffBounds(before[i], after[i], 48); !pdftest.Near(got, want, 2) {
			t.Errorf("page %d: signature drawn at %v, geometry says %v", i+1, got, want)
		}
	}
}
