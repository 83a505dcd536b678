package events

import (
	"context"
	"log/slog"
	"time"
)

// OutboxFlusher is the application surface the outbox worker drives.
type OutboxFlusher interface {
	FlushOutbox(ctx context.Context) error
}

// OutboxWorker drains pending outbox records on a fixed interval.
// Transactional writes stay decoupled from broker delivery this way.
type OutboxWorker struct {
	logger   *slog.Logger
	flusher  OutboxFlusher
	interval time.Duration
}

func NewOutboxWorker(logger *slog.Logger, flusher OutboxFlusher, interval time.Duration) *OutboxWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &OutboxWorker{logger: logger, flusher: flusher, interval: interval}
}

// Run executes the periodic outbox flush loop until context cancellation.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.flusher.FlushOutbox(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox flush failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "flush_outbox",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
