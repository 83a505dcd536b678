package cache

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/shiftforge/escrow-payout-service/internal/ports"
)

// RedisWorkerStatsStore keeps per-worker cumulative counters in Redis hashes.
type RedisWorkerStatsStore struct {
	client *redis.Client
}

// NewRedisWorkerStatsStore creates a worker stats store backed by Redis.
func NewRedisWorkerStatsStore(client *redis.Client) *RedisWorkerStatsStore {
	return &RedisWorkerStatsStore{client: client}
}

func statsKey(workerID string) string {
	return "escrow:worker_stats:" + workerID
}

func (s *RedisWorkerStatsStore) AddEarnings(ctx context.Context, workerID string, amountMinor int64) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, statsKey(workerID), "lifetime_earned_minor", amountMinor)
		p.HIncrBy(ctx, statsKey(workerID), "payout_count", 1)
		return nil
	})
	return err
}

func (s *RedisWorkerStatsStore) PenalizeReliability(ctx context.Context, workerID string, points int64) error {
	return s.client.HIncrBy(ctx, statsKey(workerID), "reliability_penalty", points).Err()
}

func (s *RedisWorkerStatsStore) Get(ctx context.Context, workerID string) (ports.WorkerStats, error) {
	data, err := s.client.HGetAll(ctx, statsKey(workerID)).Result()
	if err != nil {
		return ports.WorkerStats{}, err
	}

	stats := ports.WorkerStats{WorkerID: workerID}
	if raw, ok := data["lifetime_earned_minor"]; ok {
		if n, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
			stats.LifetimeEarnedMinor = n
		}
	}
	if raw, ok := data["payout_count"]; ok {
		if n, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
			stats.PayoutCount = n
		}
	}
	if raw, ok := data["reliability_penalty"]; ok {
		if n, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
			stats.ReliabilityPenalty = n
		}
	}
	return stats, nil
}
