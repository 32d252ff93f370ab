package store

import (
	"context"
	"sync"
	"time"

	"github.com/local/docsuite/internal/delivery"
)

// Memory is the in-process store used when no Redis is configured.
// Entries older than ttl are dropped lazily on access.
type Memory struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	status   map[string]memEntry
	receipts map[string][]delivery.Receipt
}

type memEntry struct {
	st      Status
	touched time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:      ttl,
		now:      time.Now,
		status:   map[string]memEntry{},
		receipts: map[string][]delivery.Receipt{},
	}
}

func (m *Memory) Set(_ context.Context, jobID string, st Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[jobID] = memEntry{st: st, touched: m.now()}
	m.expireLocked()
	return nil
}

func (m *Memory) Get(_ context.Context, jobID string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	e, ok := m.status[jobID]
	if !ok {
		return Status{}, ErrNotFound
	}
	return e.st, nil
}

func (m *Memory) AddReceipt(_ context.Context, jobID string, r delivery.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[jobID] = append(m.receipts[jobID], r)
	return nil
}

func (m *Memory) Receipts(_ context.Context, jobID string) ([]delivery.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]delivery.Receipt(nil), m.receipts[jobID]...), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (m *Memory) expireLocked() {
	if m.ttl <= 0 {
		return
	}
	cutoff := m.now().Add(-m.ttl)
	for id, e := range m.status {
		if e.touched.Before(cutoff) {
			delete(m.status, id)
			delete(m.receipts, id)
		}
	}
}
