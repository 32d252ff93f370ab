package statuscheck

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/local/docsuite/internal/pdftest"
)

func TestSummary(t *testing.T) {
	c := New(Options{
		Redis:       PingFunc(func(context.Context) error { return nil }),
		S3:          PingFunc(func(context.Context) error { return errors.New("AccessDenied") }),
		DeliveryDir: t.TempDir(),
		Sample:      pdftest.PDFPages(1),
	})
	s := c.Summary(context.Background())
	if !s.Redis.OK || s.Redis.Message != "Connected" {
		t.Errorf("redis = %+v", s.Redis)
	}
	if s.S3.OK || s.S3.Message != "AccessDenied" {
		t.Errorf("s3 = %+v", s.S3)
	}
	if !s.Delivery.OK {
		t.Errorf("delivery = %+v", s.Delivery)
	}
	if !s.MuPDF.OK {
		t.Errorf("mupdf = %+v", s.MuPDF)
	}
	if s.Healthy() {
		t.Error("Healthy with failing S3")
	}
}

func TestSummaryDisabled(t *testing.T) {
	s := New(Options{}).Summary(context.Background())
	if !s.Healthy() {
		t.Errorf("unconfigured checker unhealthy: %+v", s)
	}
}

func TestDeliveryDirMissing(t *testing.T) {
	c := New(Options{DeliveryDir: filepath.Join(t.TempDir(), "nope")})
	if s := c.Summary(context.Background()); s.Delivery.OK {
		t.Errorf("delivery = %+v", s.Delivery)
	}
}

func TestSamplePDF(t *testing.T) {
	s := New(Options{Sample: SamplePDF()}).Summary(context.Background())
	if !s.MuPDF.OK || s.MuPDF.Message != "Available" {
		t.Errorf("mupdf = %+v", s.MuPDF)
	}
}
