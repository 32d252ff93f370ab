package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Job states.
const (
	StateQueued    = "queued"
	StateRunning   = "running"
	StateDone      = "done"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// Status is the externally visible state of one background job.
type Status struct {
	Status   string            `json:"status"`
	Tool     string            `json:"tool"`
	Progress int               `json:"progress"`
	Done     int               `json:"done"`
	Total    int               `json:"total"`
	Message  string            `json:"message"`
	Start    *time.Time        `json:"start_time,omitempty"`
	End      *time.Time        `json:"end_time,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Terminal reports whether the job can no longer change.
func (s Status) Terminal() bool {
	return s.Status == StateDone || s.Status == StateFailed || s.Status == StateCancelled
}

// ErrNotFound is returned for unknown job ids.
var ErrNotFound = errors.New("job not found")

// RedisStatus keeps job status and delivery receipts in Redis hashes that
// expire after ttl.
type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

// NewRedisStatus connects and pings. ttl <= 0 keeps keys forever.
func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisStatus{client: c, keyNS: "docsuite:job", ttl: ttl}, nil
}

func (s *RedisStatus) key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
	m := map[string]interface{}{
		"status":   st.Status,
		"tool":     st.Tool,
		"progress": st.Progress,
		"done":     st.Done,
		"total":    st.Total,
		"message":  st.Message,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, _ := json.Marshal(st.Metadata)
		m["metadata"] = string(b)
	}
	k := s.key(jobID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, m)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, error) {
	res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return Status{}, err
	}
	if len(res) == 0 {
		return Status{}, ErrNotFound
	}
	st := Status{Status: res["status"], Tool: res["tool"], Message: res["message"]}
	st.Progress, _ = strconv.Atoi(res["progress"])
	st.Done, _ = strconv.Atoi(res["done"])
	st.Total, _ = strconv.Atoi(res["total"])
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st, nil
}

func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }
