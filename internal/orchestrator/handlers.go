package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/local/docsuite/internal/delivery"
	"github.com/local/docsuite/internal/imaging"
	"github.com/local/docsuite/internal/jobs"
	"github.com/local/docsuite/internal/sign"
	"github.com/local/docsuite/internal/tools"
)

var errBadForm = errors.New("invalid form field")

// respond delivers a as an attachment. Skipped items travel in a header
// because the body is the document itself.
func respond(w http.ResponseWriter, r *http.Request, a delivery.Artifact, sum tools.Summary) {
	if len(sum.Skipped) > 0 {
		names := make([]string, len(sum.Skipped))
		for i, s := range sum.Skipped {
			names[i] = s.Name
		}
		w.Header().Set("X-Skipped-Items", strings.Join(names, ", "))
	}
	// A failed write means the client is gone; Send already logged it.
	_, _ = delivery.Send(r.Context(), delivery.NewDownload(w), a)
}

func (o *Orchestrator) handleMerge(w http.ResponseWriter, r *http.Request) {
	ins, err := o.inputs(r, "files")
	if err != nil {
		writeError(w, r, err)
		return
	}
	docs, err := o.pdfs(ins)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := o.deps.Tools.Merge(r.Context(), docs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, out, tools.Summary{})
}

func (o *Orchestrator) handleSplit(w http.ResponseWriter, r *http.Request) {
	doc, err := o.onePDF(r, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := o.deps.Tools.Split(r.Context(), doc, r.FormValue("range"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, out, tools.Summary{})
}

func (o *Orchestrator) handleCompress(w http.ResponseWriter, r *http.Request) {
	doc, err := o.onePDF(r, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := tools.ParseProfile(r.FormValue("level"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, sum, err := o.deps.Tools.Flatten(r.Context(), doc, profile)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, out, sum)
}

func (o *Orchestrator) handleImagesToPDF(w http.ResponseWriter, r *http.Request) {
	ins, err := o.inputs(r, "files")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, sum, err := o.deps.Tools.ImagesToPDF(r.Context(), ins)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, out, sum)
}

// handleScan reads parallel lists: one "images" part per page, and for the
// same position an optional "filter" value and "crop" JSON frame.
func (o *Orchestrator) handleScan(w http.ResponseWriter, r *http.Request) {
	ins, err := o.inputs(r, "images")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(ins) == 0 {
		writeError(w, r, fmt.Errorf("%w: images", errMissingFile))
		return
	}

	filters, crops := r.Form["filter"], r.Form["crop"]
	pages := make([]tools.ScanPage, len(ins))
	for i, in := range ins {
		pages[i].Input = in
		if i < len(filters) && filters[i] != "" {
			f, err := imaging.ParseFilter(filters[i])
			if err != nil {
				writeError(w, r, err)
				return
			}
			pages[i].Filter = f
		}
		if i < len(crops) && strings.TrimSpace(crops[i]) != "" {
			var frame imaging.PercentFrame
			if err := json.Unmarshal([]byte(crops[i]), &frame); err != nil {
				writeError(w, r, fmt.Errorf("%w: crop %d: %v", errBadForm, i+1, err)); return
			}
			pages[i].Crop = &frame
		}
	}
	out, err := o.deps.Tools.Scan(r.Context(), pages)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, out, tools.Summary{})
}

func (o *Orchestrator) handleSign(w http.ResponseWriter, r *http.Request) {
	doc, err := o.onePDF(r, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sig, err := o.oneInput(r, "signature")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var placements []sign.Placement
	if raw := strings.TrimSpace(r.FormValue("placements")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &placements); err != nil {
			writeError(w, r, fmt.Errorf("%w: placements: %v", errBadForm, err)); return
		}
	} else {
		// no placements: one signature at the default spot on the first page
		placements = []sign.Placement{sign.DefaultPlacement(1)}
	}
	out, sum, err := o.deps.Tools.Sign(r.Context(), doc, sig, placements)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, out, sum)
}

type jobResp struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
}

func (o *Orchestrator) handlePDFToJPG(w http.ResponseWriter, r *http.Request) {
	doc, err := o.onePDF(r, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	suite := o.deps.Tools
	id, err := o.deps.Jobs.Submit(r.Context(), string(tools.ToolPDFToJPG), doc.Name(), func(ctx context.Context, p *jobs.Progress) error {
		p.SetTotal(doc.PageCount())
		sum, err := suite.PDFToImages(ctx, doc, func(a delivery.Artifact) error { return p.Deliver(ctx, a) })
		for _, s := range sum.Skipped {
			p.Skip(s.Name, s.Reason)
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResp{Success: true, JobID: id, Status: "queued"})
}

func (o *Orchestrator) handleCompressJob(w http.ResponseWriter, r *http.Request) {
	doc, err := o.onePDF(r, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := tools.ParseProfile(r.FormValue("level"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	suite := o.deps.Tools
	id, err := o.deps.Jobs.Submit(r.Context(), string(tools.ToolFlatten), doc.Name(), func(ctx context.Context, p *jobs.Progress) error {
		p.SetTotal(1)
		out, sum, err := suite.Flatten(ctx, doc, profile)
		for _, s := range sum.Skipped {
			p.Skip(s.Name, s.Reason)
		}
		if err != nil {
			return err
		}
		return p.Deliver(ctx, out)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResp{Success: true, JobID: id, Status: "queued"})
}

func (o *Orchestrator) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, receipts, err := o.deps.Jobs.Status(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    st.Status == "done",
		"job_id":     id,
		"tool":       st.Tool,
		"status":     st.Status,
		"progress":   st.Progress,
		"done":       st.Done,
		"total":      st.Total,
		"message":    st.Message,
		"start_time": st.Start,
		"end_time":   st.End,
		"metadata":   st.Metadata,
		"artifacts":  receipts,
	})
}

type cancelReq struct {
	JobID string `json:"job_id"`
}

func (o *Orchestrator) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadForm, err))
		return
	}
	if req.JobID == "" {
		writeError(w, r, fmt.Errorf("%w: job_id", errBadForm))
		return
	}
	if err := o.deps.Jobs.Cancel(req.JobID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "job_id": req.JobID, "status": "cancelling"})
}
