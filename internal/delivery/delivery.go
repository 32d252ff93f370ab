// Package delivery hands finished artifacts to their destination: an HTTP
// download, a directory on disk, or a shared S3 link.
package delivery

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"

	"github.com/local/docsuite/internal/metrics"
)

// Content types of the artifacts the tools produce.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
)

// Artifact is a named output buffer. Adapters never modify Data.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// Digest is the hex blake2b-256 of the artifact bytes.
func (a Artifact) Digest() string { return digest(a.Data) }

func digest(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Receipt describes a completed delivery.
type Receipt struct {
	Adapter   string    `json:"adapter"`
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	Digest    string    `json:"digest"`
	Location  string    `json:"location,omitempty"`
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Adapter delivers an artifact all-or-nothing: either the whole buffer
// reaches the destination or an error is returned and nothing is left there.
type Adapter interface {
	Name() string
	Deliver(ctx context.Context, a Artifact) (Receipt, error)
}

// Scoper is implemented by adapters that can keep one caller's artifacts
// apart from everybody else's.
type Scoper interface {
	Scope(id string) Adapter
}

// Scoped returns adapter narrowed to id when it supports scoping, and
// adapter itself otherwise.
func Scoped(adapter Adapter, id string) Adapter {
	if s, ok := adapter.(Scoper); ok {
		return s.Scope(id)
	}
	return adapter
}

// DeliveryError wraps any adapter failure. The artifact itself is intact
// and can be retried.
type DeliveryError struct {
	Adapter string
	Name    string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s via %s: %v", e.Name, e.Adapter, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Send delivers a through adapter with logging and metrics.
func Send(ctx context.Context, adapter Adapter, a Artifact) (Receipt, error) {
	start := time.Now()
	r, err := adapter.Deliver(ctx, a)
	metrics.ObserveDelivery(adapter.Name(), err)
	if err != nil {
		log.Error().Err(err).Str("adapter", adapter.Name()).Str("artifact", a.Name).Msg("delivery failed")
		return Receipt{}, err
	}
	log.Info().
		Str("adapter", adapter.Name()).
		Str("artifact", a.Name).
		Int("size", r.Size).
		Dur("took", time.Since(start)).
		Msg("artifact delivered")
	return r, nil
}

// safeName reduces a user-supplied name to a plain file name.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "download"
	}
	return name
}
