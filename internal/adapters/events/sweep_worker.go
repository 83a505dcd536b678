package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/shiftforge/escrow-payout-service/internal/application"
)

// Sweeper is the application surface the sweep worker drives.
type Sweeper interface {
	RunAcknowledgmentSweep(ctx context.Context) (application.AckSweepReport, error)
	RunPayoutSweep(ctx context.Context) (application.PayoutSweepReport, error)
}

// SweepWorker runs the wall-clock sweeps: acknowledgment reminders and
// auto-cancels on one cadence, cooling-off payouts on a tighter one.
type SweepWorker struct {
	logger         *slog.Logger
	sweeper        Sweeper
	ackInterval    time.Duration
	payoutInterval time.Duration
}

func NewSweepWorker(logger *slog.Logger, sweeper Sweeper, ackInterval, payoutInterval time.Duration) *SweepWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if ackInterval <= 0 {
		ackInterval = 15 * time.Minute
	}
	if payoutInterval <= 0 {
		payoutInterval = time.Minute
	}
	return &SweepWorker{
		logger:         logger,
		sweeper:        sweeper,
		ackInterval:    ackInterval,
		payoutInterval: payoutInterval,
	}
}

// Run executes both sweep loops until context cancellation.
func (w *SweepWorker) Run(ctx context.Context) error {
	ackTicker := time.NewTicker(w.ackInterval)
	defer ackTicker.Stop()
	payoutTicker := time.NewTicker(w.payoutInterval)
	defer payoutTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ackTicker.C:
			if _, err := w.sweeper.RunAcknowledgmentSweep(ctx); err != nil {
				w.logger.ErrorContext(ctx, "acknowledgment sweep failed",
					"module", "events.sweep_worker",
					"layer", "adapter",
					"operation", "acknowledgment_sweep",
					"outcome", "failure",
					"error", err,
				)
			}
		case <-payoutTicker.C:
			if _, err := w.sweeper.RunPayoutSweep(ctx); err != nil {
				w.logger.ErrorContext(ctx, "payout sweep failed",
					"module", "events.sweep_worker",
					"layer", "adapter",
					"operation", "payout_sweep",
					"outcome", "failure",
					"error", err,
				)
			}
		}
	}
}
