// Package scan keeps an in-progress multi-page scan: captured images, their
// crops and filters, assembled into one document on demand.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/docsuite/internal/compose"
	"github.com/local/docsuite/internal/document"
	"github.com/local/docsuite/internal/embed"
	"github.com/local/docsuite/internal/imaging"
)

var (
	ErrNoPages      = errors.New("scan has no pages")
	ErrPageNotFound = errors.New("scanned page not found")
)

// DocumentName is the file name of an assembled scan.
const DocumentName = "scanned-document.pdf"

// Page is one captured image. Cropped is nil until a crop is confirmed.
type Page struct {
	ID       string
	Original *imaging.RasterImage
	Cropped  *imaging.RasterImage
	Filter   imaging.Filter
	Frame    imaging.PercentFrame
}

// Base is the image filters are applied to: the crop when there is one,
// otherwise the original.
func (p *Page) Base() *imaging.RasterImage {
	if p.Cropped != nil {
		return p.Cropped
	}
	return p.Original
}

// Config sets the output page size in points.
type Config struct {
	PageWidth  float64
	PageHeight float64
}

// Session is safe for concurrent use.
type Session struct {
	mu     sync.Mutex
	pages  []*Page
	active string

	fit        embed.Fit
	embedder   *embed.Embedder
	compositor *compose.Compositor
}

// NewSession starts an empty scan. A zero Config assembles onto A4.
func NewSession(cfg Config, e *embed.Embedder, c *compose.Compositor) *Session {
	fit := embed.A4
	if cfg.PageWidth > 0 && cfg.PageHeight > 0 {
		fit = embed.FitTo(cfg.PageWidth, cfg.PageHeight)
	}
	return &Session{fit: fit, embedder: e, compositor: c}
}

// Add decodes a captured image and appends it as the active page.
func (s *Session) Add(name string, data []byte) (*Page, error) {
	img, err := imaging.Decode(name, data)
	if err != nil {
		return nil, err
	}
	p := &Page{
		ID:       uuid.NewString(),
		Original: img,
		Filter:   imaging.FilterOriginal,
		Frame:    imaging.DefaultCrop,
	}

	s.mu.Lock()
	s.pages = append(s.pages, p)
	s.active = p.ID
	s.mu.Unlock()

	log.Debug().Str("scan_page", p.ID).Int("width", img.Width()).Int("height", img.Height()).Msg("scan page added")
	return p, nil
}

func (s *Session) find(id string) (*Page, int, error) {
	for i, p := range s.pages {
		if p.ID == id {
			return p, i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: %s", ErrPageNotFound, id)
}

// Crop confirms a crop frame for the page. Like the capture UI this also
// switches the page to the magic filter.
func (s *Session) Crop(id string, frame imaging.PercentFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, _, err := s.find(id)
	if err != nil {
		return err
	}
	r := imaging.PercentRect(p.Original.Width(), p.Original.Height(), frame)
	cropped, err := imaging.Crop(p.Original, r)
	if err != nil {
		return err
	}
	p.Cropped = cropped
	p.Frame = frame
	p.Filter = imaging.FilterMagic
	return nil
}

// ResetCrop drops the crop so the page can be cropped again.
func (s *Session) ResetCrop(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, _, err := s.find(id)
	if err != nil {
		return err
	}
	p.Cropped = nil
	p.Frame = imaging.DefaultCrop
	return nil
}

// SetFilter selects the filter applied on preview and assembly.
func (s *Session) SetFilter(id string, f imaging.Filter) error {
	if _, err := imaging.ParseFilter(string(f)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, _, err := s.find(id)
	if err != nil {
		return err
	}
	p.Filter = f
	return nil
}

// Delete removes a page. If it was active, the last remaining page becomes
// active.
func (s *Session) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, i, err := s.find(id)
	if err != nil {
		return err
	}
	s.pages = append(s.pages[:i], s.pages[i+1:]...)
	if s.active == id {
		s.active = ""
		if n := len(s.pages); n > 0 {
			s.active = s.pages[n-1].ID
		}
	}
	return nil
}

// Select makes id the active page.
func (s *Session) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, err := s.find(id); err != nil {
		return err
	}
	s.active = id
	return nil
}

// Active returns the active page id, or "" when the session is empty.
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Pages returns the page ids in order.
func (s *Session) Pages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.pages))
	for i, p := range s.pages {
		ids[i] = p.ID
	}
	return ids
}

// Preview renders the page as it will be assembled.
func (s *Session) Preview(id string) (*imaging.RasterImage, error) {
	s.mu.Lock()
	p, _, err := s.find(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	base, f := p.Base(), p.Filter
	s.mu.Unlock()
	return process(base, f)
}

// process always filters from the base buffer, never from a previous
// filter result. Filtered output is stored as JPEG.
func process(base *imaging.RasterImage, f imaging.Filter) (*imaging.RasterImage, error) {
	out, err := imaging.ApplyFilter(base, f)
	if err != nil {
		return nil, err
	}
	if f != imaging.FilterOriginal {
		out.Encoding = imaging.JPEG
		out.Quality = imaging.DefaultJPEGQuality
	}
	return out, nil
}

// Assemble builds the scanned document: every page filtered from its base
// image, fitted onto the configured page size and centered, in page order.
func (s *Session) Assemble(ctx context.Context) (*document.Document, error) {
	s.mu.Lock()
	type item struct {
		id     string
		base   *imaging.RasterImage
		filter imaging.Filter
	}
	items := make([]item, len(s.pages))
	for i, p := range s.pages {
		items[i] = item{p.ID, p.Base(), p.Filter}
	}
	s.mu.Unlock()

	if len(items) == 0 {
		return nil, ErrNoPages
	}

	docs := make([]*document.Document, 0, len(items))
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := process(it.base, it.filter)
		if err != nil {
			return nil, fmt.Errorf("scan page %s: %w", it.id, err)
		}
		page, err := s.embedder.Embed(img, s.fit)
		if err != nil {
			return nil, fmt.Errorf("scan page %s: %w", it.id, err)
		}
		docs = append(docs, page.Document)
	}

	doc, err := s.compositor.ComposeDocuments(ctx, DocumentName, docs)
	if err != nil {
		return nil, err
	}
	log.Info().Int("pages", doc.PageCount()).Str("fit", s.fit.String()).Msg("scan assembled")
	return doc, nil
}
