package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/local/docsuite/internal/delivery"
	"github.com/local/docsuite/internal/document"
	"github.com/local/docsuite/internal/imagerender"
	"github.com/local/docsuite/internal/jobs"
	"github.com/local/docsuite/internal/limiter"
	"github.com/local/docsuite/internal/pdftest"
	"github.com/local/docsuite/internal/store"
	"github.com/local/docsuite/internal/tools"
)

type grayOpener struct{}

func (grayOpener) Open(data []byte) (imagerender.Source, error) {
	doc, err := document.Load("render.pdf", data)
	if err != nil {
		return nil, err
	}
	return graySource{doc}, nil
}

type graySource struct{ doc *document.Document }

func (s graySource) NumPage() int { return s.doc.PageCount() }

func (s graySource) RenderDPI(i int, dpi float64) (image.Image, error) {
	p, _ := s.doc.Page(i)
	w, h := imagerender.CanvasSize(p.Width, p.Height, dpi/72)
	return image.NewGray(image.Rect(0, 0, w, h)), nil
}

func (graySource) Close() error { return nil }

type fixture struct {
	srv  *httptest.Server
	out  string
	root string
	lim  *limiter.Slots
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	out := t.TempDir()
	fs, err := delivery.NewFilesystem(out)
	if err != nil {
		t.Fatal(err)
	}
	lim, err := limiter.New(limiter.Options{MaxInflight: 2})
	if err != nil {
		t.Fatal(err)
	}
	runner := jobs.NewRunner(store.NewMemory(time.Hour), fs, lim)
	t.Cleanup(func() { _ = runner.Shutdown(context.Background()) })

	root := t.TempDir()
	suite := tools.New(tools.DefaultConfig(), imagerender.New(imagerender.Config{Opener: grayOpener{}}))
	o := New(Dependencies{
		Tools:          suite,
		Jobs:           runner,
		Fetch:          NewFetcher(FetchConfig{FileRoot: root, MaxBytes: 4 << 20}),
		Slots:          lim,
		MaxUploadBytes: 4 << 20,
	})
	mux := http.NewServeMux()
	o.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, out: out, root: root, lim: lim}
}

type part struct {
	field, name string
	data        []byte
}

func (f *fixture) post(t *testing.T, path string, parts []part, values map[string][]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(p.data)
	}
	for k, vs := range values {
		for _, v := range vs {
			_ = mw.WriteField(k, v)
		}
	}
	_ = mw.Close()
	resp, err := http.Post(f.srv.URL+path, mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func pdfBody(t *testing.T, resp *http.Response) *document.Document {
	t.Helper()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, b)
	}
	data, _ := io.ReadAll(resp.Body)
	doc, err := document.Load("resp.pdf", data)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestMergeRoute(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/merge_pdf", []part{
		{"files", "a.pdf", pdftest.PDFPages(2)},
		{"files", "b.pdf", pdftest.PDFPages(3)},
	}, nil)
	doc := pdfBody(t, resp)
	if doc.PageCount() != 5 {
		t.Errorf("PageCount = %d", doc.PageCount())
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "merged.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestSplitRoute(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/split_pdf", []part{{"file", "r.pdf", pdftest.PDFPages(4)}}, map[string][]string{"range": {"2-3"}})
	if doc := pdfBody(t, resp); doc.PageCount() != 2 {
		t.Errorf("PageCount = %d", doc.PageCount())
	}

	resp = f.post(t, "/split_pdf", []part{{"file", "r.pdf", pdftest.PDFPages(4)}}, map[string][]string{"range": {"9"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty range: status %d", resp.StatusCode)
	}
}

func TestRouteErrors(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		path  string
		parts []part
		want  int
	}{
		{"one file merge", "/merge_pdf", []part{{"files", "a.pdf", pdftest.PDFPages(1)}}, http.StatusBadRequest},
		{"image as pdf", "/split_pdf", []part{{"file", "a.pdf", pdftest.PNG(4, 4)}}, http.StatusUnsupportedMediaType},
		{"missing file", "/compress_pdf", nil, http.StatusBadRequest},
		{"only gifs", "/jpg_to_pdf", []part{{"files", "a.gif", pdftest.GIF()}}, http.StatusBadRequest},
	}
	for _, c := range cases {
		resp := f.post(t, c.path, c.parts, nil)
		if resp.StatusCode != c.want {
			b, _ := io.ReadAll(resp.Body)
			t.Errorf("%s: status %d, want %d (%s)", c.name, resp.StatusCode, c.want, b)
		}
	}
}

func TestImagesToPDFRoute(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/jpg_to_pdf", []part{
		{"files", "a.jpg", pdftest.JPEG(30, 20)},
		{"files", "b.gif", pdftest.GIF()},
	}, nil)
	if doc := pdfBody(t, resp); doc.PageCount() != 1 {
		t.Errorf("PageCount = %d", doc.PageCount())
	}
	if got := resp.Header.Get("X-Skipped-Items"); got != "b.gif" {
		t.Errorf("X-Skipped-Items = %q", got)
	}
}

func TestScanRoute(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/scanner", []part{
		{"images", "p1.jpg", pdftest.JPEG(40, 60)},
		{"images", "p2.png", pdftest.PNG(60, 40)},
	}, map[string][]string{
		"filter": {"bw", ""},
		"crop":   {"", `{"x":10,"y":10,"width":80,"height":80}`},
	})
	if doc := pdfBody(t, resp); doc.PageCount() != 2 {
		t.Errorf("PageCount = %d", doc.PageCount())
	}

	resp = f.post(t, "/scanner", []part{{"images", "p.jpg", pdftest.JPEG(4, 4)}}, map[string][]string{"crop": {"{"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad crop: status %d", resp.StatusCode)
	}
}

func TestSignRoute(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/sign_pdf", []part{
		{"file", "c.pdf", pdftest.PDFPages(2)},
		{"signature", "s.png", pdftest.PNG(60, 20)},
	}, map[string][]string{"placements": {`[{"page":2,"x":10,"y":80,"scale":0.5},{"page":4}]`}})
	if doc := pdfBody(t, resp); doc.PageCount() != 2 {
		t.Errorf("PageCount = %d", doc.PageCount())
	}
	if got := resp.Header.Get("X-Skipped-Items"); got != "page 4" {
		t.Errorf("X-Skipped-Items = %q", got)
	}
}

func progress(t *testing.T, f *fixture, id string) map[string]any {
	t.Helper()
	resp, err := http.Get(f.srv.URL + "/progress/" + id)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestPDFToJPGJob(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/pdf_to_jpg", []part{{"file", "deck.pdf", pdftest.PDFPages(3)}}, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var jr jobResp
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		t.Fatal(err)
	}

	var m map[string]any
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		m = progress(t, f, jr.JobID)
		if m["status"] == store.StateDone || m["status"] == store.StateFailed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if m["status"] != store.StateDone {
		t.Fatalf("job = %v", m)
	}
	if arts, _ := m["artifacts"].([]any); len(arts) != 3 {
		t.Errorf("artifacts = %v", m["artifacts"])
	}
	for i := 1; i <= 3; i++ {
		name := filepath.Join(f.out, jr.JobID, fmt.Sprintf("deck-page-%d.jpg", i))
		if _, err := os.Stat(name); err != nil {
			t.Errorf("missing %s", name)
		}
	}
}

func TestProgressUnknownAndCancel(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/progress/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job: status %d", resp.StatusCode)
	}

	resp, err = http.Post(f.srv.URL+"/jobs/cancel", "application/json", strings.NewReader(`{"job_id":"nope"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("cancel unknown: status %d", resp.StatusCode)
	}
}

func errorBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	var m struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m.Success {
		t.Error("success = true on an error response")
	}
	return m.Error
}

func TestErrorMessages(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		path  string
		parts []part
		code  int
		msg   string
	}{
		{"broken pdf", "/split_pdf", []part{{"file", "broken.pdf", []byte("%PDF-1.4\nnot really a pdf")}}, http.StatusUnprocessableEntity, "broken.pdf is not a readable PDF."},
		{"image as pdf", "/compress_pdf", []part{{"file", "a.pdf", pdftest.PNG(4, 4)}}, http.StatusUnsupportedMediaType, "a.pdf is not a PDF file."},
		{"one file merge", "/merge_pdf", []part{{"files", "a.pdf", pdftest.PDFPages(1)}}, http.StatusBadRequest, "Select at least two PDF files to merge."},
	}
	for _, c := range cases {
		resp := f.post(t, c.path, c.parts, map[string][]string{"range": {"1"}})
		if resp.StatusCode != c.code {
			t.Errorf("%s: status %d, want %d", c.name, resp.StatusCode, c.code)
			continue
		}
		if got := errorBody(t, resp); got != c.msg {
			t.Errorf("%s: error %q, want %q", c.name, got, c.msg)
		}
	}
}

func TestBusyToolAnswers429(t *testing.T) {
	f := newFixture(t)
	var releases []func()
	for i := 0; i < 2; i++ {
		release, ok := f.lim.Allow(context.Background(), string(tools.ToolMerge))
		if !ok {
			t.Fatal("could not take merge slot")
		}
		releases = append(releases, release)
	}
	files := []part{{"files", "a.pdf", pdftest.PDFPages(1)}, {"files", "b.pdf", pdftest.PDFPages(1)}}

	resp := f.post(t, "/merge_pdf", files, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("merge with no free slot: status %d", resp.StatusCode)
	}
	if got := errorBody(t, resp); !strings.Contains(got, "busy") {
		t.Errorf("error = %q", got)
	}

	// other tools are unaffected
	resp = f.post(t, "/split_pdf", []part{{"file", "r.pdf", pdftest.PDFPages(2)}}, map[string][]string{"range": {"1"}})
	pdfBody(t, resp)

	for _, release := range releases {
		release()
	}
	resp = f.post(t, "/merge_pdf", files, nil)
	if doc := pdfBody(t, resp); doc.PageCount() != 2 {
		t.Errorf("PageCount = %d", doc.PageCount())
	}
	if n := f.lim.InUse(string(tools.ToolMerge)); n != 0 {
		t.Errorf("merge slots in use after response = %d", n)
	}
}

func TestRemoteInputIsCapped(t *testing.T) {
	small := pdftest.PDFPages(3)
	big := bytes.Repeat([]byte("x"), 5<<20)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/small.pdf":
			_, _ = w.Write(small)
		case "/big.pdf":
			_, _ = w.Write(big)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(remote.Close)
	f := newFixture(t)

	resp := f.post(t, "/split_pdf", nil, map[string][]string{"file_url": {remote.URL + "/small.pdf"}, "range": {"2-3"}})
	if doc := pdfBody(t, resp); doc.PageCount() != 2 {
		t.Errorf("PageCount = %d", doc.PageCount())
	}

	resp = f.post(t, "/split_pdf", nil, map[string][]string{"file_url": {remote.URL + "/big.pdf"}, "range": {"1"}})
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized remote file: status %d", resp.StatusCode)
	}
	if got := errorBody(t, resp); got != "The file is larger than the 4 MB limit." {
		t.Errorf("error = %q", got)
	}

	resp = f.post(t, "/split_pdf", nil, map[string][]string{"file_url": {remote.URL + "/gone.pdf"}, "range": {"1"}})
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("missing remote file: status %d", resp.StatusCode)
	}
}

func TestFileReferences(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(filepath.Join(f.root, "in.pdf"), pdftest.PDFPages(3), 0o644); err != nil {
		t.Fatal(err)
	}
	outside := filepath.Join(t.TempDir(), "secret.pdf")
	if err := os.WriteFile(outside, pdftest.PDFPages(1), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := f.post(t, "/split_pdf", nil, map[string][]string{"file_url": {"file:///in.pdf"}, "range": {"3"}})
	if doc := pdfBody(t, resp); doc.PageCount() != 1 {
		t.Errorf("PageCount = %d", doc.PageCount())
	}

	// ".." is cleaned away, so this names a missing file inside the root
	resp = f.post(t, "/split_pdf", nil, map[string][]string{"file_url": {"file://../../" + outside}, "range": {"1"}})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("dot-dot reference: status %d", resp.StatusCode)
	}

	if err := os.Symlink(outside, filepath.Join(f.root, "link.pdf")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	resp = f.post(t, "/split_pdf", nil, map[string][]string{"file_url": {"file:///link.pdf"}, "range": {"1"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("symlink out of root: status %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("plain error = %d", got)
	}
	if got := statusFor(&delivery.DeliveryError{Adapter: "s3", Err: errors.New("denied")}); got != http.StatusBadGateway {
		t.Errorf("delivery error = %d", got)
	}
	if got := statusFor(jobs.ErrBusy); got != http.StatusTooManyRequests {
		t.Errorf("busy = %d", got)
	}
}
