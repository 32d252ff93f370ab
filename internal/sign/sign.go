// Package sign stamps a signature image onto document pages.
package sign

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/docsuite/internal/document"
	"github.com/local/docsuite/internal/embed"
	"github.com/local/docsuite/internal/imaging"
)

// ErrNoPlacements is returned when there is nothing to stamp.
var ErrNoPlacements = errors.New("no signature placements")

// BaseWidth is the signature width in points at scale 1.
const BaseWidth = 150.0

const maxOffset = 90.0

// Placement positions a signature on one page. X and Y are the top-left
// corner in percent of the page, measured from the top-left.
type Placement struct {
	Page  int     `json:"page"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
}

// DefaultPlacement is where a new signature starts: halfway across and down
// the page, at scale 1.
func DefaultPlacement(page int) Placement {
	return Placement{Page: page, X: 50, Y: 50, Scale: 1}
}

// Normalize clamps X and Y to [0,90] and replaces a non-positive scale with 1.
func (p Placement) Normalize() Placement {
	p.X = clamp(p.X, 0, maxOffset)
	p.Y = clamp(p.Y, 0, maxOffset)
	if p.Scale <= 0 {
		p.Scale = 1
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Geometry returns the signature rectangle in page space (origin bottom-left)
// for a sigW×sigH pixel signature on page.
func Geometry(page document.Page, sigW, sigH int, p Placement) embed.Rect {
	p = p.Normalize()
	w := BaseWidth * p.Scale
	h := float64(sigH) / float64(sigW) * w
	return embed.Rect{
		X: p.X / 100 * page.Width,
		Y: page.Height - p.Y/100*page.Height - h,
		W: w,
		H: h,
	}
}

// Result lists the pages that got a signature and the requested pages that
// do not exist.
type Result struct {
	Signed  []int
	Skipped []int
}

// Stamper applies signatures. It has no state.
type Stamper struct{}

// New returns a Stamper.
func New() *Stamper { return &Stamper{} }

// Sign stamps sig onto doc for every placement and returns a new document.
// At most one signature is kept per page; a later placement for the same
// page replaces an earlier one. Placements for pages that do not exist are
// skipped and reported.
func (s *Stamper) Sign(ctx context.Context, doc *document.Document, sig *imaging.RasterImage, placements []Placement) (*document.Document, Result, error) {
	var res Result
	if len(placements) == 0 {
		return nil, res, ErrNoPlacements
	}
	if sig.Empty() {
		return nil, res, imaging.ErrEmptyImage
	}
	if sig.Encoding != imaging.PNG {
		return nil, res, &imaging.UnsupportedFormatError{Name: "signature", MIME: sig.Encoding.MIMEType()}
	}
	sigBytes, err := sig.Bytes()
	if err != nil {
		return nil, res, err
	}

	byPage := make(map[int]Placement, len(placements))
	for _, p := range placements {
		byPage[p.Page] = p.Normalize()
	}
	pages := make([]int, 0, len(byPage))
	for n := range byPage {
		pages = append(pages, n)
	}
	sort.Ints(pages)

	cur := doc.Bytes()
	conf := document.Configuration()
	for _, n := range pages {
		if err := ctx.Err(); err != nil {
			return nil, res, err
		}
		page, ok := doc.Page(n - 1)
		if !ok {
			log.Warn().Int("page", n).Int("pages", doc.PageCount()).Msg("signature page does not exist, skipping")
			res.Skipped = append(res.Skipped, n)
			continue
		}

		p := byPage[n]
		g := Geometry(page, sig.Width(), sig.Height(), p)
		desc := fmt.Sprintf("pos:bl, scale:%.6f abs, rot:0, op:1", g.W/float64(sig.Width()))
		wm, err := api.ImageWatermarkForReader(bytes.NewReader(sigBytes), desc, true, false, types.POINTS)
		if err != nil {
			return nil, res, fmt.Errorf("signature watermark: %w", err)
		}
		wm.Dx = g.X
		wm.Dy = g.Y

		var out bytes.Buffer
		if err := api.AddWatermarks(bytes.NewReader(cur), &out, []string{strconv.Itoa(n)}, wm, conf); err != nil {
			return nil, res, fmt.Errorf("stamp page %d: %w", n, err)
		}
		cur = out.Bytes()
		res.Signed = append(res.Signed, n)

		log.Debug().
			Int("page", n).
			Float64("x", g.X).
			Float64("y", g.Y).
			Float64("w", g.W).
			Float64("h", g.H).
			Msg("signature stamped")
	}

	signed, err := document.Load(doc.Name(), cur)
	if err != nil {
		return nil, res, err
	}
	return signed, res, nil
}
