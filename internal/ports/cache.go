package ports

import (
	"context"
	"time"
)

// SweepLockStore is a best-effort leader lock so that replicated workers do
// not run the same sweep concurrently. Losing the lock is harmless because
// the status compare-and-swap absorbs duplicate sweeps; it only saves work.
type SweepLockStore interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

type WorkerStats struct {
	WorkerID            string `json:"worker_id"`
	LifetimeEarnedMinor int64  `json:"lifetime_earned_minor"`
	PayoutCount         int64  `json:"payout_count"`
	ReliabilityPenalty  int64  `json:"reliability_penalty"`
}

// WorkerStatsStore keeps the cumulative counters that payout completion and
// acknowledgment penalties increment. Counter failures never block a
// financial transition.
type WorkerStatsStore interface {
	AddEarnings(ctx context.Context, workerID string, amountMinor int64) error
	PenalizeReliability(ctx context.Context, workerID string, points int64) error
	Get(ctx context.Context, workerID string) (WorkerStats, error)
}
