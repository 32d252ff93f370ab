package scan

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/local/docsuite/internal/compose"
	"github.com/local/docsuite/internal/embed"
	"github.com/local/docsuite/internal/imaging"
	"github.com/local/docsuite/internal/pdftest"
)

func newSession() *Session {
	return NewSession(Config{}, embed.New(), compose.New())
}

func TestSessionLifecycle(t *testing.T) {
	s := newSession()
	a, err := s.Add("a.png", pdftest.PNG(40, 60))
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Add("b.jpg", pdftest.JPEG(80, 40))
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.Add("c.png", pdftest.PNG(20, 20))
	if err != nil {
		t.Fatal(err)
	}
	if s.Active() != c.ID {
		t.Errorf("newest page should be active")
	}

	if err := s.Select(a.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(a.ID); err != nil {
		t.Fatal(err)
	}
	if s.Active() != c.ID {
		t.Errorf("after deleting the active page, want last page active, got %q", s.Active())
	}
	if d := cmp.Diff([]string{b.ID, c.ID}, s.Pages()); d != "" {
		t.Errorf("pages mismatch (-want +got):\n%s", d)
	}

	if err := s.Delete(b.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(c.ID); err != nil {
		t.Fatal(err)
	}
	if s.Active() != "" {
		t.Errorf("empty session has active page %q", s.Active())
	}
	if err := s.Delete("nope"); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("got %v, want ErrPageNotFound", err)
	}
}

func TestCropSwitchesToMagic(t *testing.T) {
	s := newSession()
	p, err := s.Add("a.png", pdftest.PNG(200, 100))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Crop(p.ID, imaging.DefaultCrop); err != nil {
		t.Fatal(err)
	}
	if p.Filter != imaging.FilterMagic {
		t.Errorf("filter after crop = %q, want magic", p.Filter)
	}
	if p.Base().Width() != 180 || p.Base().Height() != 90 {
		t.Errorf("base is %dx%d, want 180x90", p.Base().Width(), p.Base().Height())
	}
	if err := s.ResetCrop(p.ID); err != nil {
		t.Fatal(err)
	}
	if p.Base() != p.Original {
		t.Error("ResetCrop did not restore the original as base")
	}
}

func TestPreviewRefiltersFromBase(t *testing.T) {
	s := newSession()
	p, err := s.Add("a.png", pdftest.PNG(16, 16))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range []imaging.Filter{imaging.FilterBW, imaging.FilterMagic, imaging.FilterGrayscale} {
		if err := s.SetFilter(p.ID, f); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Preview(p.ID); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetFilter(p.ID, imaging.FilterOriginal); err != nil {
		t.Fatal(err)
	}
	out, err := s.Preview(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(p.Original.Pixels.Pix, out.Pixels.Pix); d != "" {
		t.Errorf("original preview differs from capture (-want +got):\n%s", d)
	}
	if err := s.SetFilter(p.ID, imaging.Filter("sepia")); err == nil {
		t.Error("unknown filter accepted")
	}
}

func TestAssemble(t *testing.T) {
	s := newSession()
	if _, err := s.Assemble(context.Background()); !errors.Is(err, ErrNoPages) {
		t.Errorf("empty assemble: got %v, want ErrNoPages", err)
	}

	p1, _ := s.Add("a.png", pdftest.PNG(300, 200))
	if _, err := s.Add("b.jpg", pdftest.JPEG(100, 400)); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFilter(p1.ID, imaging.FilterBW); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Assemble(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if doc.Name() != DocumentName {
		t.Errorf("Name() = %q", doc.Name())
	}
	if doc.PageCount() != 2 {
		t.Fatalf("got %d pages, want 2", doc.PageCount())
	}
	for _, pg := range doc.Pages() {
		if math.Abs(pg.Width-595.28) > 0.01 || math.Abs(pg.Height-841.89) > 0.01 {
			t.Errorf("page %d is %gx%g, want A4", pg.Number, pg.Width, pg.Height)
		}
	}
}

func TestAssembleCustomPageSize(t *testing.T) {
	s := NewSession(Config{PageWidth: 612, PageHeight: 792}, embed.New(), compose.New())
	if _, err := s.Add("a.png", pdftest.PNG(10, 10)); err != nil {
		t.Fatal(err)
	}
	doc, err := s.Assemble(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	pg, _ := doc.Page(0)
	if math.Abs(pg.Width-612) > 0.01 || math.Abs(pg.Height-792) > 0.01 {
		t.Errorf("page is %gx%g, want 612x792", pg.Width, pg.Height)
	}
}

func TestAddRejectsUnsupported(t *testing.T) {
	s := newSession()
	if _, err := s.Add("a.gif", pdftest.GIF()); !errors.Is(err, imaging.ErrUnsupportedFormat) {
		t.Errorf("got %v, want ErrUnsupportedFormat", err)
	}
	if len(s.Pages()) != 0 {
		t.Error("rejected image was added")
	}
}
