package orchestrator

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/local/docsuite/internal/filetype"
	"github.com/local/docsuite/internal/jobs"
	"github.com/local/docsuite/internal/metrics"
	"github.com/local/docsuite/internal/statuscheck"
	"github.com/local/docsuite/internal/tools"
)

type Dependencies struct {
	Tools  *tools.Suite
	Jobs   *jobs.Runner
	Health *statuscheck.Checker
	Fetch  Fetcher
	// Slots bounds the synchronous tool routes per tool, like the job
	// runner does for background jobs. Nil leaves them unbounded.
	Slots jobs.Limiter
	// MaxUploadBytes caps every request body and every fetched file.
	MaxUploadBytes int64
}

type Orchestrator struct {
	deps     Dependencies
	detector *filetype.Detector
}

func New(deps Dependencies) *Orchestrator {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 100 << 20
	}
	if deps.Fetch == nil {
		deps.Fetch = NewFetcher(FetchConfig{MaxBytes: deps.MaxUploadBytes})
	}
	return &Orchestrator{deps: deps, detector: filetype.New()}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", o.handleStatus)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /merge_pdf", o.slotted(tools.ToolMerge, o.handleMerge))
	mux.HandleFunc("POST /split_pdf", o.slotted(tools.ToolSplit, o.handleSplit))
	mux.HandleFunc("POST /compress_pdf", o.slotted(tools.ToolFlatten, o.handleCompress))
	mux.HandleFunc("POST /jpg_to_pdf", o.slotted(tools.ToolJPGToPDF, o.handleImagesToPDF))
	mux.HandleFunc("POST /scanner", o.slotted(tools.ToolScan, o.handleScan))
	mux.HandleFunc("POST /sign_pdf", o.slotted(tools.ToolSign, o.handleSign))

	// the runner takes the slot for background jobs
	mux.HandleFunc("POST /pdf_to_jpg", o.capped(o.handlePDFToJPG))
	mux.HandleFunc("POST /jobs/compress_pdf", o.capped(o.handleCompressJob))
	mux.HandleFunc("GET /progress/{id}", o.handleProgress)
	mux.HandleFunc("POST /jobs/cancel", o.handleCancelJob)
}

// capped caps the request body before the handler parses it.
func (o *Orchestrator) capped(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, o.deps.MaxUploadBytes)
		h(w, r)
	}
}

// slotted is capped plus a concurrency slot for tool, held until the
// response is written. A full tool answers 429 without reading the body.
func (o *Orchestrator) slotted(tool tools.Tool, h http.HandlerFunc) http.HandlerFunc {
	h = o.capped(h)
	if o.deps.Slots == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		release, ok := o.deps.Slots.Allow(r.Context(), string(tool))
		if !ok {
			writeError(w, r, jobs.ErrBusy)
			return
		}
		defer release()
		h(w, r)
	}
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	if o.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	sum := o.deps.Health.Summary(r.Context())
	code := http.StatusOK
	if !sum.Healthy() {
		code = http.StatusServiceUnavailable
		log.Warn().Interface("status", sum).Msg("status check failed")
	}
	writeJSON(w, code, sum)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
