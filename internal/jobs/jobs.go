// Package jobs runs long tool invocations in the background and tracks
// their progress, delivered artifacts and cancellation.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/local/docsuite/internal/delivery"
	"github.com/local/docsuite/internal/logger"
	"github.com/local/docsuite/internal/metrics"
	"github.com/local/docsuite/internal/store"
)

var (
	ErrBusy       = errors.New("too many jobs of this kind are running")
	ErrNotRunning = errors.New("job is not running")
	ErrClosed     = errors.New("job runner is shutting down")
)

// Store persists job status and receipts.
type Store interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	Get(ctx context.Context, jobID string) (store.Status, error)
	AddReceipt(ctx context.Context, jobID string, r delivery.Receipt) error
	Receipts(ctx context.Context, jobID string) ([]delivery.Receipt, error)
}

// Limiter reserves a concurrency slot for a tool.
type Limiter interface {
	Allow(ctx context.Context, tool string) (func(), bool)
}

// Task is the body of a job. It reports through p and must honour ctx.
type Task func(ctx context.Context, p *Progress) error

// Runner owns every background job of this process.
type Runner struct {
	store   Store
	adapter delivery.Adapter
	limiter Limiter

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewRunner creates a Runner delivering artifacts through adapter.
func NewRunner(st Store, adapter delivery.Adapter, lim Limiter) *Runner {
	return &Runner{store: st, adapter: adapter, limiter: lim, cancels: map[string]context.CancelFunc{}}
}

// Submit starts task in the background and returns its id. The job gets a
// context detached from the caller's request.
func (r *Runner) Submit(ctx context.Context, tool, source string, task Task) (string, error) {
	release, ok := r.limiter.Allow(ctx, tool)
	if !ok {
		return "", ErrBusy
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		release()
		return "", ErrClosed
	}
	id := uuid.NewString()
	jctx, cancel := context.WithCancel(context.Background())
	r.cancels[id] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	now := time.Now()
	p := &Progress{
		runner:  r,
		id:      id,
		log:     logger.ForJob(id, tool),
		adapter: delivery.Scoped(r.adapter, id),
		st: store.Status{
			Status:   store.StateQueued,
			Tool:     tool,
			Start:    &now,
			Metadata: map[string]string{"source": source},
		},
	}
	if err := r.store.Set(ctx, id, p.st); err != nil {
		r.finish(id)
		release()
		return "", fmt.Errorf("record job: %w", err)
	}

	go func() {
		defer release()
		defer r.finish(id)
		r.run(jctx, p, task)
	}()
	return id, nil
}

func (r *Runner) run(ctx context.Context, p *Progress, task Task) {
	tool := p.st.Tool
	metrics.JobStarted(tool)
	defer metrics.JobFinished(tool)

	p.update(func(st *store.Status) { st.Status = store.StateRunning })
	p.log.Info().Msg("job started")

	err := task(ctx, p)

	end := time.Now()
	var delivered int
	p.update(func(st *store.Status) {
		st.End = &end
		delivered = st.Done
		switch {
		case err == nil:
			st.Status = store.StateDone
			st.Progress = 100
			st.Message = ""
		case errors.Is(err, context.Canceled):
			st.Status = store.StateCancelled
			st.Message = "cancelled"
		default:
			st.Status = store.StateFailed
			st.Message = err.Error()
		}
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("job ended")
		return
	}
	p.log.Info().Int("delivered", delivered).Msg("job finished")
}

func (r *Runner) finish(id string) {
	r.mu.Lock()
	if cancel, ok := r.cancels[id]; ok {
		cancel()
		delete(r.cancels, id)
	}
	r.mu.Unlock()
	r.wg.Done()
}

// Cancel stops a running job. The job records itself as cancelled once
// its task returns.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	cancel()
	return nil
}

// Status returns a job's status together with what it delivered so far.
func (r *Runner) Status(ctx context.Context, id string) (store.Status, []delivery.Receipt, error) {
	st, err := r.store.Get(ctx, id)
	if err != nil {
		return store.Status{}, nil, err
	}
	rs, err := r.store.Receipts(ctx, id)
	if err != nil {
		return st, nil, err
	}
	return st, rs, nil
}

// Shutdown refuses new jobs, cancels running ones and waits for them
// until ctx expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Progress is the handle a Task reports through.
type Progress struct {
	runner  *Runner
	id      string
	log     zerolog.Logger
	adapter delivery.Adapter

	mu sync.Mutex
	st store.Status
}

// ID is the job id.
func (p *Progress) ID() string { return p.id }

// SetTotal announces how many items the job will deliver.
func (p *Progress) SetTotal(n int) {
	p.update(func(st *store.Status) { st.Total = n })
}

// Deliver hands a finished artifact to the runner's adapter, scoped to this
// job where the adapter supports it, and records its receipt.
func (p *Progress) Deliver(ctx context.Context, a delivery.Artifact) error {
	rec, err := delivery.Send(ctx, p.adapter, a)
	if err != nil {
		return err
	}
	if err := p.runner.store.AddReceipt(ctx, p.id, rec); err != nil {
		p.log.Warn().Err(err).Str("artifact", a.Name).Msg("receipt not stored")
	}
	p.update(func(st *store.Status) {
		st.Done++
		st.Message = a.Name
		if st.Total > 0 {
			st.Progress = min(99, st.Done*100/st.Total)
		}
	})
	return nil
}

// Skip records an item the job left out.
func (p *Progress) Skip(name, reason string) {
	p.update(func(st *store.Status) {
		if st.Metadata == nil {
			st.Metadata = map[string]string{}
		}
		st.Metadata["skipped:"+name] = reason
	})
}

func (p *Progress) update(fn func(*store.Status)) {
	p.mu.Lock()
	fn(&p.st)
	st := p.st
	st.Metadata = make(map[string]string, len(p.st.Metadata))
	for k, v := range p.st.Metadata {
		st.Metadata[k] = v
	}
	p.mu.Unlock()

	if err := p.runner.store.Set(context.Background(), p.id, st); err != nil {
		p.log.Warn().Err(err).Msg("status not stored")
	}
}
