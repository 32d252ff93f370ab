package limiter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Slots caps concurrent heavy jobs per tool. Every process enforces
// MaxInflight locally; with Redis configured the same cap also holds
// across all replicas sharing that Redis.
type Slots struct {
	rdb         *redis.Client
	maxInflight int
	lease       time.Duration
	mu          sync.Mutex
	sem         map[string]chan struct{}
}

type Options struct {
	// RedisURL enables the cluster-wide counter. Empty means local only.
	RedisURL    string
	MaxInflight int
	// Lease bounds how long a crashed holder can keep a cluster slot.
	Lease time.Duration
}

func New(opts Options) (*Slots, error) {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 2
	}
	if opts.Lease <= 0 {
		opts.Lease = 30 * time.Minute
	}
	s := &Slots{maxInflight: opts.MaxInflight, lease: opts.Lease, sem: map[string]chan struct{}{}}
	if opts.RedisURL == "" {
		return s, nil
	}
	ro, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(ro)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	s.rdb = c
	return s, nil
}

func (s *Slots) key(tool string) string {
	return fmt.Sprintf("docsuite:inflight:%s", strings.ToLower(tool))
}

// Allow tries to reserve a slot for tool. It returns a release function and
// true when allowed; otherwise a no-op release and false.
func (s *Slots) Allow(ctx context.Context, tool string) (func(), bool) {
	k := strings.ToLower(tool)
	s.mu.Lock()
	ch, ok := s.sem[k]
	if !ok {
		ch = make(chan struct{}, s.maxInflight)
		s.sem[k] = ch
	}
	s.mu.Unlock()

	select {
	case ch <- struct{}{}:
	default:
		return func() {}, false
	}
	local := func() { <-ch }
	if s.rdb == nil {
		return local, true
	}

	rk := s.key(tool)
	n, err := s.rdb.Incr(ctx, rk).Result()
	if err != nil {
		// Redis trouble degrades to the local cap.
		return local, true
	}
	_ = s.rdb.Expire(ctx, rk, s.lease).Err()
	if n > int64(s.maxInflight) {
		_ = s.rdb.Decr(ctx, rk).Err()
		local()
		return func() {}, false
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = s.rdb.Decr(context.Background(), rk).Err()
			local()
		})
	}, true
}

// InUse reports the local number of held slots for tool.
func (s *Slots) InUse(tool string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.sem[strings.ToLower(tool)]; ok {
		return len(ch)
	}
	return 0
}

func (s *Slots) Close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
