package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/local/docsuite/internal/mupdf"
)

// Pinger models the minimal capability we need from Redis and S3.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Checker aggregates readiness checks for the dependencies the service
// was configured with.
type Checker struct {
	redis       Pinger
	s3          Pinger
	deliveryDir string
	sample      []byte
}

// Options configures the Checker. Nil dependencies are reported as
// disabled rather than failing.
type Options struct {
	Redis       Pinger
	S3          Pinger
	DeliveryDir string
	// Sample is a small PDF opened to prove the renderer links and runs.
	Sample []byte
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis    Status `json:"redis"`
	S3       Status `json:"s3"`
	Delivery Status `json:"delivery"`
	MuPDF    Status `json:"mupdf"`
}

// Healthy reports whether every check passed.
func (s Summary) Healthy() bool {
	return s.Redis.OK && s.S3.OK && s.Delivery.OK && s.MuPDF.OK
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{redis: opts.Redis, s3: opts.S3, deliveryDir: opts.DeliveryDir, sample: opts.Sample}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:    c.ping(ctx, c.redis, 2*time.Second),
		S3:       c.ping(ctx, c.s3, 5*time.Second),
		Delivery: c.checkDeliveryDir(),
		MuPDF:    c.checkMuPDF(),
	}
}

func (c *Checker) ping(ctx context.Context, p Pinger, timeout time.Duration) Status {
	if p == nil {
		return Status{OK: true, Message: "Disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkDeliveryDir() Status {
	if c.deliveryDir == "" {
		return Status{OK: true, Message: "Disabled"}
	}
	f, err := os.CreateTemp(c.deliveryDir, ".statuscheck-*")
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	name := f.Name()
	f.Close()
	_ = os.Remove(name)
	return Status{OK: true, Message: "Writable: " + filepath.Clean(c.deliveryDir)}
}

func (c *Checker) checkMuPDF() Status {
	if len(c.sample) == 0 {
		return Status{OK: true, Message: "Not checked"}
	}
	if _, err := mupdf.PageCount(c.sample); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Available"}
}

// SamplePDF builds a blank one-page document for the renderer check.
func SamplePDF() []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 72 72] >>",
	}
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return []byte(b.String())
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
