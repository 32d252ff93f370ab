package delivery

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strconv"
)

// Download writes the artifact as an HTTP attachment response.
type Download struct {
	w http.ResponseWriter
}

// NewDownload returns an adapter bound to one response.
func NewDownload(w http.ResponseWriter) *Download { return &Download{w: w} }

func (d *Download) Name() string { return "download" }

// Deliver writes headers and body in one call. Extra headers already set on
// the response (for example skipped-item reports) are kept.
func (d *Download) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, &DeliveryError{Adapter: d.Name(), Name: a.Name, Err: err}
	}
	name := safeName(a.Name)
	sum := a.Digest()

	h := d.w.Header()
	h.Set("Content-Type", a.ContentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	h.Set("Content-Length", strconv.Itoa(len(a.Data)))
	h.Set("X-Content-Digest", "blake2b-256="+sum)
	d.w.WriteHeader(http.StatusOK)

	n, err := d.w.Write(a.Data)
	if err != nil {
		return Receipt{}, &DeliveryError{Adapter: d.Name(), Name: name, Err: err}
	}
	if n != len(a.Data) {
		return Receipt{}, &DeliveryError{Adapter: d.Name(), Name: name, Err: fmt.Errorf("short write %d of %d", n, len(a.Data))}
	}
	return Receipt{Adapter: d.Name(), Name: name, Size: n, Digest: sum}, nil
}
