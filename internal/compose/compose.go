// Package compose builds new documents out of ordered page selections
// taken from one or more source documents.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/rs/zerolog/log"

	"github.com/local/docsuite/internal/document"
	"github.com/local/docsuite/internal/pagerange"
)

// CopyError reports a page index that does not exist in its source. A
// validated pagerange.Set never produces one; it guards hand-built input.
type CopyError struct {
	Source    string
	Index     int
	PageCount int
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copy page: index %d out of range for %s (%d pages)", e.Index, e.Source, e.PageCount)
}

// Selection picks Pages, in set order, from Doc.
type Selection struct {
	Doc   *document.Document
	Pages pagerange.Set
}

// Compositor concatenates page selections into a fresh document. It keeps
// no state between calls and is safe for concurrent use.
type Compositor struct{}

// New returns a Compositor.
func New() *Compositor { return &Compositor{} }

// Compose creates a document named name whose pages are the concatenation
// of every selection, in order. Source documents are only read.
func (c *Compositor) Compose(ctx context.Context, name string, sels []Selection) (*document.Document, error) {
	if len(sels) == 0 {
		return nil, pagerange.ErrEmptyRange
	}

	var segments [][]byte
	total := 0
	for i, sel := range sels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if sel.Doc == nil {
			return nil, fmt.Errorf("selection %d: nil document", i)
		}
		if sel.Pages.Len() == 0 {
			return nil, &pagerange.ParseError{Expr: "", Total: sel.Doc.PageCount(), Err: pagerange.ErrEmptyRange}
		}
		for _, idx := range sel.Pages.Indices() {
			if idx < 0 || idx >= sel.Doc.PageCount() {
				return nil, &CopyError{Source: sel.Doc.Name(), Index: idx, PageCount: sel.Doc.PageCount()}
			}
		}

		segs, err := extract(sel.Doc, sel.Pages.Indices())
		if err != nil {
			return nil, err
		}
		segments = append(segments, segs...)
		total += sel.Pages.Len()

		log.Debug().
			Str("source", sel.Doc.Name()).
			Str("pages", sel.Pages.String()).
			Int("segments", len(segs)).
			Msg("pages extracted")
	}

	out, err := concat(segments)
	if err != nil {
		return nil, fmt.Errorf("compose %s: %w", name, err)
	}
	doc, err := document.Load(name, out)
	if err != nil {
		return nil, err
	}
	if doc.PageCount() != total {
		return nil, fmt.Errorf("compose %s: got %d pages, expected %d", name, doc.PageCount(), total)
	}
	return doc, nil
}

// ComposeDocuments concatenates whole documents in order.
func (c *Compositor) ComposeDocuments(ctx context.Context, name string, docs []*document.Document) (*document.Document, error) {
	sels := make([]Selection, 0, len(docs))
	for _, d := range docs {
		all, err := pagerange.All(d.PageCount())
		if err != nil {
			return nil, err
		}
		sels = append(sels, Selection{Doc: d, Pages: all})
	}
	return c.Compose(ctx, name, sels)
}

// extract copies the given zero-based indices out of doc. The indices are
// split into ascending runs, each extracted into its own segment, so the
// order of the selection is kept exactly. doc is parsed once per call;
// ExtractPages copies into a new context and leaves the source intact.
func extract(doc *document.Document, indices []int) ([][]byte, error) {
	src, err := doc.Context()
	if err != nil {
		return nil, err
	}
	var out [][]byte
	for _, run := range ascendingRuns(indices) {
		nrs := make([]int, len(run))
		for i, idx := range run {
			nrs[i] = idx + 1
		}
		part, err := pdfcpu.ExtractPages(src, nrs, false)
		if err != nil {
			return nil, fmt.Errorf("extract pages %v from %s: %w", nrs, doc.Name(), err)
		}
		var buf bytes.Buffer
		if err := api.WriteContext(part, &buf); err != nil {
			return nil, fmt.Errorf("write pages %v from %s: %w", nrs, doc.Name(), err)
		}
		out = append(out, buf.Bytes())
	}
	return out, nil
}

func ascendingRuns(indices []int) [][]int {
	var runs [][]int
	start := 0
	for i := 1; i <= len(indices); i++ {
		if i == len(indices) || indices[i] <= indices[i-1] {
			runs = append(runs, indices[start:i])
			start = i
		}
	}
	return runs
}

func concat(segments [][]byte) ([]byte, error) {
	if len(segments) == 1 {
		return segments[0], nil
	}
	readers := make([]io.ReadSeeker, len(segments))
	for i, s := range segments {
		readers[i] = bytes.NewReader(s)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, document.Configuration()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
