package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/local/docsuite/internal/delivery"
)

func (s *RedisStatus) receiptsKey(jobID string) string {
	return fmt.Sprintf("%s:%s:receipts", s.keyNS, jobID)
}

// AddReceipt appends the receipt of one delivered artifact.
func (s *RedisStatus) AddReceipt(ctx context.Context, jobID string, r delivery.Receipt) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	k := s.receiptsKey(jobID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, k, b)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Receipts lists a job's receipts in delivery order.
func (s *RedisStatus) Receipts(ctx context.Context, jobID string) ([]delivery.Receipt, error) {
	raw, err := s.client.LRange(ctx, s.receiptsKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]delivery.Receipt, 0, len(raw))
	for _, v := range raw {
		var r delivery.Receipt
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return out, fmt.Errorf("decode receipt: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
