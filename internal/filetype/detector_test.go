package filetype

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/local/docsuite/internal/pdftest"
)

func TestDetect(t *testing.T) {
	d := New()
	cases := []struct {
		name string
		data []byte
		want Kind
	}{
		{"a.pdf", pdftest.PDFPages(1), KindPDF},
		{"photo.jpg", pdftest.JPEG(8, 8), KindJPEG},
		{"photo.jpeg", pdftest.JPEG(8, 8), KindJPEG},
		{"shot.png", pdftest.PNG(8, 8), KindPNG},
		{"anim.gif", pdftest.GIF(), KindOther},
		{"fake.pdf", []byte("hello world"), KindOther},
		// content wins over the name
		{"mislabeled.jpg", pdftest.PNG(4, 4), KindPNG},
	}
	for _, c := range cases {
		if got := d.Detect(c.name, c.data).Kind; got != c.want {
			t.Errorf("Detect(%s) = %s, want %s", c.name, got, c.want)
		}
	}
}

func TestDetectFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "doc.bin")
	if err := os.WriteFile(p, pdftest.PDFPages(2), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := New().DetectFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if info.Kind != KindPDF || info.Name != "doc.bin" {
		t.Errorf("info = %+v", info)
	}
	if _, err := New().DetectFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing file: expected error")
	}
}

func TestRequire(t *testing.T) {
	info := New().Detect("x.gif", pdftest.GIF())
	err := Require(info, KindJPEG, KindPNG)
	var me *MismatchError
	if !errors.As(err, &me) || me.Name != "x.gif" {
		t.Fatalf("got %v", err)
	}
	if err.Error() != "x.gif: image/gif is not jpeg or png" {
		t.Errorf("message = %q", err.Error())
	}
	if err := Require(New().Detect("a.pdf", pdftest.PDFPages(1)), KindPDF); err != nil {
		t.Errorf("pdf rejected: %v", err)
	}
}
