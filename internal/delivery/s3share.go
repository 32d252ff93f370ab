package delivery

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/local/docsuite/internal/storage"
)

// ObjectStore is the part of storage.S3Client the share adapter needs.
type ObjectStore interface {
	Upload(ctx context.Context, key, name, contentType string, data []byte) (*storage.ObjectInfo, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error)
}

// S3Share uploads an artifact and returns a presigned download link, the
// server-side counterpart of a share sheet.
type S3Share struct {
	store  ObjectStore
	prefix string
	ttl    time.Duration
}

// NewS3Share creates the adapter. Keys are prefix/<uuid>/<name>.
func NewS3Share(store ObjectStore, prefix string, ttl time.Duration) *S3Share {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &S3Share{store: store, prefix: strings.Trim(prefix, "/"), ttl: ttl}
}

func (s *S3Share) Name() string { return "s3" }

func (s *S3Share) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	name := safeName(a.Name)
	key := path.Join(s.prefix, uuid.NewString(), name)

	info, err := s.store.Upload(ctx, key, name, a.ContentType, a.Data)
	if err != nil {
		return Receipt{}, &DeliveryError{Adapter: s.Name(), Name: name, Err: err}
	}
	url, exp, err := s.store.PresignGet(ctx, key, s.ttl)
	if err != nil {
		return Receipt{}, &DeliveryError{Adapter: s.Name(), Name: name, Err: err}
	}
	return Receipt{
		Adapter:   s.Name(),
		Name:      name,
		Size:      len(a.Data),
		Digest:    a.Digest(),
		Location:  info.Key,
		URL:       url,
		ExpiresAt: exp,
	}, nil
}
