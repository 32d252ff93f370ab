// Package tools implements the user-facing pipelines (merge, split,
// compress, image conversion, scan, sign) on top of one shared compositor,
// renderer and embedder.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/docsuite/internal/compose"
	"github.com/local/docsuite/internal/delivery"
	"github.com/local/docsuite/internal/document"
	"github.com/local/docsuite/internal/embed"
	"github.com/local/docsuite/internal/imagerender"
	"github.com/local/docsuite/internal/imaging"
	"github.com/local/docsuite/internal/metrics"
	"github.com/local/docsuite/internal/pagerange"
	"github.com/local/docsuite/internal/scan"
	"github.com/local/docsuite/internal/sign"
)

var (
	ErrTooFewFiles      = errors.New("merge needs at least two files")
	ErrNothingToConvert = errors.New("no supported images to convert")
	ErrUnknownProfile   = errors.New("unknown compression level")
	ErrAllPagesFailed   = errors.New("no page could be rendered")
	errPageMissing      = errors.New("page not in document")
)

// FlattenProfile is the compression level a user picks.
type FlattenProfile string

const (
	// ProfileExtreme rasterizes every page and re-embeds it as a JPEG.
	ProfileExtreme FlattenProfile = "extreme"
	// ProfileRecommended and ProfileLess both resave the document
	// structurally and currently produce identical output.
	ProfileRecommended FlattenProfile = "recommended"
	ProfileLess        FlattenProfile = "less"
)

// ParseProfile maps a level name to a profile; empty means recommended.
func ParseProfile(s string) (FlattenProfile, error) {
	switch p := FlattenProfile(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProfileRecommended, nil
	case ProfileExtreme, ProfileRecommended, ProfileLess:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProfile, s)
	}
}

// Input is one uploaded file.
type Input struct {
	Name string
	Data []byte
}

// Skipped is an input or page left out of the output, with the reason.
type Skipped struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Summary reports what a run left out.
type Summary struct {
	Skipped []Skipped `json:"skipped,omitempty"`
}

func (s *Summary) skip(tool Tool, name string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, imaging.ErrUnsupportedFormat):
		reason = "unsupported_format"
	case errors.Is(err, imagerender.ErrCanvasTooLarge):
		reason = "canvas_too_large"
	case errors.Is(err, errPageMissing):
		reason = "page_missing"
	case errors.As(err, new(*imagerender.RenderError)):
		reason = "render_failed"
	}
	s.Skipped = append(s.Skipped, Skipped{Name: name, Reason: err.Error()})
	metrics.IncSkipped(string(tool), reason)
	log.Warn().Err(err).Str("tool", string(tool)).Str("item", name).Msg("item skipped")
}

// Config holds the render presets and the scan page size.
type Config struct {
	Export  imagerender.Preset
	Flatten imagerender.Preset
	Scan    scan.Config
}

// DefaultConfig uses the standard presets and A4 scans.
func DefaultConfig() Config {
	return Config{Export: imagerender.ExportFormat, Flatten: imagerender.FlattenFormat}
}

// Suite runs every tool. It holds no per-call state and is shared by all
// requests.
type Suite struct {
	cfg        Config
	compositor *compose.Compositor
	renderer   *imagerender.Renderer
	embedder   *embed.Embedder
	stamper    *sign.Stamper
}

// New wires a Suite around renderer.
func New(cfg Config, renderer *imagerender.Renderer) *Suite {
	if cfg.Export.Scale <= 0 {
		cfg.Export = imagerender.ExportFormat
	}
	if cfg.Flatten.Scale <= 0 {
		cfg.Flatten = imagerender.FlattenFormat
	}
	return &Suite{
		cfg:        cfg,
		compositor: compose.New(),
		renderer:   renderer,
		embedder:   embed.New(),
		stamper:    sign.New(),
	}
}

func pdfArtifact(name string, doc *document.Document) delivery.Artifact {
	return delivery.Artifact{Name: name, ContentType: delivery.ContentTypePDF, Data: doc.Bytes()}
}

func observe(tool Tool, start time.Time, err error) {
	metrics.ObserveTool(string(tool), err, time.Since(start))
}

// Load parses every input as a PDF, failing on the first bad one.
func Load(inputs []Input) ([]*document.Document, error) {
	docs := make([]*document.Document, 0, len(inputs))
	for _, in := range inputs {
		d, err := document.Load(in.Name, in.Data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// Merge concatenates docs in list order into merged.pdf.
func (s *Suite) Merge(ctx context.Context, docs []*document.Document) (_ delivery.Artifact, err error) {
	start := time.Now()
	defer func() { observe(ToolMerge, start, err) }()

	if len(docs) < 2 {
		return delivery.Artifact{}, ErrTooFewFiles
	}
	out, err := s.compositor.ComposeDocuments(ctx, MergedName, docs)
	if err != nil {
		return delivery.Artifact{}, err
	}
	log.Info().Str("tool", string(ToolMerge)).Int("files", len(docs)).Int("pages", out.PageCount()).Msg("documents merged")
	return pdfArtifact(MergedName, out), nil
}

// Split extracts the pages named by expr, in the order given.
func (s *Suite) Split(ctx context.Context, doc *document.Document, expr string) (_ delivery.Artifact, err error) {
	start := time.Now()
	defer func() { observe(ToolSplit, start, err) }()

	set, err := pagerange.Parse(expr, doc.PageCount())
	if err != nil {
		return delivery.Artifact{}, err
	}
	name := OutputName(ToolSplit, doc.Name(), 0)
	out, err := s.compositor.Compose(ctx, name, []compose.Selection{{Doc: doc, Pages: set}})
	if err != nil {
		return delivery.Artifact{}, err
	}
	log.Info().Str("tool", string(ToolSplit)).Str("range", expr).Str("pages", set.String()).Msg("document split")
	return pdfArtifact(name, out), nil
}

// Flatten produces compressed-<name>. The extreme profile rasterizes every
// page; a page that fails to render is skipped and reported.
func (s *Suite) Flatten(ctx context.Context, doc *document.Document, profile FlattenProfile) (_ delivery.Artifact, sum Summary, err error) {
	start := time.Now()
	defer func() { observe(ToolFlatten, start, err) }()

	name := OutputName(ToolFlatten, doc.Name(), 0)
	switch profile {
	case ProfileExtreme:
		out, sum, err := s.rasterize(ctx, doc, name)
		if err != nil {
			return delivery.Artifact{}, sum, err
		}
		return pdfArtifact(name, out), sum, nil
	case ProfileRecommended, ProfileLess:
		data, err := resave(doc)
		if err != nil {
			return delivery.Artifact{}, sum, err
		}
		return delivery.Artifact{Name: name, ContentType: delivery.ContentTypePDF, Data: data}, sum, nil
	default:
		return delivery.Artifact{}, sum, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
	}
}

func (s *Suite) rasterize(ctx context.Context, doc *document.Document, name string) (*document.Document, Summary, error) {
	var sum Summary
	preset := s.cfg.Flatten
	pages := make([]*document.Document, 0, doc.PageCount())

	err := s.renderer.RenderEach(ctx, doc, preset.Scale, preset.Format, func(i int, img *imaging.RasterImage, rerr error) error {
		metrics.IncRendered(rerr == nil)
		if rerr != nil {
			sum.skip(ToolFlatten, fmt.Sprintf("page %d", i+1), rerr)
			return nil
		}
		p, err := s.embedder.Embed(img, embed.Native())
		if err != nil {
			return err
		}
		pages = append(pages, p.Document)
		return nil
	})
	if err != nil {
		return nil, sum, err
	}
	if len(pages) == 0 {
		return nil, sum, ErrAllPagesFailed
	}
	out, err := s.compositor.ComposeDocuments(ctx, name, pages)
	if err != nil {
		return nil, sum, err
	}
	log.Info().
		Str("tool", string(ToolFlatten)).
		Int("pages", out.PageCount()).
		Int("skipped", len(sum.Skipped)).
		Int("in_bytes", doc.Size()).
		Int("out_bytes", out.Size()).
		Msg("document flattened")
	return out, sum, nil
}

// resave rewrites the document through pdfcpu without touching content.
func resave(doc *document.Document) ([]byte, error) {
	ctx, err := doc.Context()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("resave %s: %w", doc.Name(), err)
	}
	log.Info().Str("tool", string(ToolFlatten)).Int("in_bytes", doc.Size()).Int("out_bytes", buf.Len()).Msg("document resaved")
	return buf.Bytes(), nil
}

// PDFToImages renders every page with the export preset and hands each
// image to emit as soon as it is encoded. Pages that fail are skipped.
func (s *Suite) PDFToImages(ctx context.Context, doc *document.Document, emit func(delivery.Artifact) error) (sum Summary, err error) {
	start := time.Now()
	defer func() { observe(ToolPDFToJPG, start, err) }()

	preset := s.cfg.Export
	emitted := 0
	err = s.renderer.RenderEach(ctx, doc, preset.Scale, preset.Format, func(i int, img *imaging.RasterImage, rerr error) error {
		metrics.IncRendered(rerr == nil)
		name := OutputName(ToolPDFToJPG, doc.Name(), i+1)
		if rerr != nil {
			sum.skip(ToolPDFToJPG, name, rerr)
			return nil
		}
		data, err := img.Bytes()
		if err != nil {
			sum.skip(ToolPDFToJPG, name, err)
			return nil
		}
		emitted++
		return emit(delivery.Artifact{Name: name, ContentType: img.Encoding.MIMEType(), Data: data})
	})
	if err != nil {
		return sum, err
	}
	if emitted == 0 {
		return sum, ErrAllPagesFailed
	}
	return sum, nil
}

// ImagesToPDF puts each JPEG or PNG input on its own page sized to the
// image. Other inputs are skipped; the call fails only if none is left.
func (s *Suite) ImagesToPDF(ctx context.Context, inputs []Input) (_ delivery.Artifact, sum Summary, err error) {
	start := time.Now()
	defer func() { observe(ToolJPGToPDF, start, err) }()

	pages := make([]*document.Document, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return delivery.Artifact{}, sum, err
		}
		img, err := imaging.Decode(in.Name, in.Data)
		if err != nil {
			sum.skip(ToolJPGToPDF, in.Name, err)
			continue
		}
		p, err := s.embedder.Embed(img, embed.Native())
		if err != nil {
			sum.skip(ToolJPGToPDF, in.Name, err)
			continue
		}
		pages = append(pages, p.Document)
	}
	if len(pages) == 0 {
		return delivery.Artifact{}, sum, ErrNothingToConvert
	}
	out, err := s.compositor.ComposeDocuments(ctx, ImagesName, pages)
	if err != nil {
		return delivery.Artifact{}, sum, err
	}
	return pdfArtifact(ImagesName, out), sum, nil
}

// ScanPage is one captured image with its edits.
type ScanPage struct {
	Input
	Filter imaging.Filter
	// Crop, when set, is confirmed before the filter is applied.
	Crop *imaging.PercentFrame
}

// Scan runs a whole scanning session in one call and returns the
// assembled scanned-document.pdf.
func (s *Suite) Scan(ctx context.Context, pages []ScanPage) (_ delivery.Artifact, err error) {
	start := time.Now()
	defer func() { observe(ToolScan, start, err) }()

	sess := s.NewScanSession()
	for _, p := range pages {
		added, err := sess.Add(p.Name, p.Data)
		if err != nil {
			return delivery.Artifact{}, err
		}
		if p.Crop != nil {
			if err := sess.Crop(added.ID, *p.Crop); err != nil {
				return delivery.Artifact{}, fmt.Errorf("%s: %w", p.Name, err)
			}
		}
		// An explicit filter overrides the magic filter a crop selects.
		if p.Filter != "" {
			if err := sess.SetFilter(added.ID, p.Filter); err != nil {
				return delivery.Artifact{}, fmt.Errorf("%s: %w", p.Name, err)
			}
		}
	}
	doc, err := sess.Assemble(ctx)
	if err != nil {
		return delivery.Artifact{}, err
	}
	return pdfArtifact(scan.DocumentName, doc), nil
}

// NewScanSession starts an interactive scan using the suite's page size.
func (s *Suite) NewScanSession() *scan.Session {
	return scan.NewSession(s.cfg.Scan, s.embedder, s.compositor)
}

// Sign stamps the PNG signature onto the placed pages of doc.
func (s *Suite) Sign(ctx context.Context, doc *document.Document, signature Input, placements []sign.Placement) (_ delivery.Artifact, sum Summary, err error) {
	start := time.Now()
	defer func() { observe(ToolSign, start, err) }()

	sig, err := imaging.Decode(signature.Name, signature.Data)
	if err != nil {
		return delivery.Artifact{}, sum, err
	}
	out, res, err := s.stamper.Sign(ctx, doc, sig, placements)
	if err != nil {
		return delivery.Artifact{}, sum, err
	}
	for _, n := range res.Skipped {
		sum.skip(ToolSign, fmt.Sprintf("page %d", n), fmt.Errorf("%w: %d of %d", errPageMissing, n, doc.PageCount()))
	}
	name := OutputName(ToolSign, doc.Name(), 0)
	return pdfArtifact(name, out), sum, nil
}
