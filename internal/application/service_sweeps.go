package application

import (
	"context"
	"errors"
	"time"

	"github.com/shiftforge/escrow-payout-service/internal/domain"
)

const (
	ackSweepLock    = "sweep:acknowledgments"
	payoutSweepLock = "sweep:payouts"
)

// RunAcknowledgmentSweep walks every open acknowledgment and applies the
// wall-clock deadlines: one reminder after the reminder window, cancellation
// with full escrow reversal after the cancel window. Deadlines are evaluated
// at sweep time, so the sweep is restart-safe. A concurrent worker
// acknowledgment can win any individual row; the sweep then just skips it.
func (s *Service) RunAcknowledgmentSweep(ctx context.Context) (AckSweepReport, error) {
	report := AckSweepReport{}
	release, acquired := s.acquireSweepLock(ctx, ackSweepLock)
	if !acquired {
		return report, nil
	}
	defer release()

	now := s.nowFn()
	open, err := s.acks.ListOpen(ctx, now.Add(-s.cfg.AckReminderAfter), s.cfg.SweepBatchSize)
	if err != nil {
		return report, err
	}
	report.Scanned = len(open)
	for _, ack := range open {
		age := now.Sub(ack.AssignedAt)
		switch {
		case age >= s.cfg.AckCancelAfter:
			if s.autoCancel(ctx, ack, now) {
				report.Cancelled++
			} else {
				report.Skipped++
			}
		case age >= s.cfg.AckReminderAfter && ack.ReminderSentAt == nil:
			if err := s.acks.MarkReminderSent(ctx, ack.AssignmentID, now); err != nil {
				// Someone else stamped or closed the row first.
				report.Skipped++
				continue
			}
			ack.ReminderSentAt = &now
			s.enqueueAckReminder(ctx, ack)
			report.Reminded++
		default:
			report.Skipped++
		}
	}
	return report, nil
}

func (s *Service) autoCancel(ctx context.Context, ack domain.AssignmentAcknowledgment, now time.Time) bool {
	if err := s.acks.MarkAutoCancelled(ctx, ack.AssignmentID, now); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			s.logger.ErrorContext(ctx, "auto-cancel mark failed",
				"module", "application", "operation", "acknowledgment_sweep", "outcome", "failure",
				"assignment_id", ack.AssignmentID, "error", err)
		}
		return false
	}

	record, err := s.records.GetByID(ctx, ack.RecordID)
	if err == nil {
		cancelled, cancelErr := s.cancel(ctx, record)
		if cancelErr != nil {
			if errors.Is(cancelErr, domain.ErrInvalidTransition) || errors.Is(cancelErr, domain.ErrStatusConflict) {
				// Already terminal; the acknowledgment row is still closed.
				s.logger.InfoContext(ctx, "escrow already settled at auto-cancel",
					"module", "application", "operation", "acknowledgment_sweep", "outcome", "noop",
					"record_id", ack.RecordID)
			} else {
				s.logger.ErrorContext(ctx, "escrow reversal failed during auto-cancel",
					"module", "application", "operation", "acknowledgment_sweep", "outcome", "failure",
					"record_id", ack.RecordID, "error", cancelErr)
			}
		} else {
			record = cancelled
		}
	}

	if s.staffing != nil {
		if err := s.staffing.ReleaseShiftSlot(ctx, ack.ShiftID, ack.AssignmentID); err != nil {
			s.logger.WarnContext(ctx, "shift slot release failed",
				"module", "application", "operation", "acknowledgment_sweep", "outcome", "degraded",
				"shift_id", ack.ShiftID, "error", err)
		}
	}
	if s.workerStats != nil {
		_ = s.workerStats.PenalizeReliability(ctx, ack.WorkerID, s.cfg.AutoCancelPenaltyPoints)
	}
	ack.AutoCancelledAt = &now
	ack.LateFlag = true
	s.enqueueAutoCancelled(ctx, ack, record)
	return true
}

// RunPayoutSweep pays out every released record whose cooling-off window has
// elapsed and that is not frozen by a dispute. Gateway failures are recorded
// on the record and retried on the next sweep until the attempt budget is
// spent; the sweep never loops synchronously on a failing payee.
func (s *Service) RunPayoutSweep(ctx context.Context) (PayoutSweepReport, error) {
	report := PayoutSweepReport{}
	release, acquired := s.acquireSweepLock(ctx, payoutSweepLock)
	if !acquired {
		return report, nil
	}
	defer release()

	now := s.nowFn()
	due, err := s.records.ListPayoutDue(ctx, now.Add(-s.cfg.CoolingOffWindow), s.cfg.MaxPayoutAttempts, s.cfg.SweepBatchSize)
	if err != nil {
		return report, err
	}
	report.Scanned = len(due)
	for _, record := range due {
		if record.Disputed || record.Status != domain.EscrowStatusReleased {
			report.Skipped++
			continue
		}
		report.Attempted++
		if _, err := s.payout(ctx, record); err != nil {
			switch {
			case errors.Is(err, domain.ErrStatusConflict), errors.Is(err, domain.ErrCoolingOffActive):
				// Lost a race with an interactive payout or a fresh dispute.
				report.Skipped++
				report.Attempted--
			default:
				report.Failed++
				s.logger.WarnContext(ctx, "payout attempt failed",
					"module", "application", "operation", "payout_sweep", "outcome", "failure",
					"record_id", record.RecordID, "attempts", record.PayoutAttempts+1, "error", err)
			}
			continue
		}
		report.Succeeded++
	}

	// Compensation pass: paid_out records whose buffer return failed at
	// payout time still owe the business the residual.
	owing, err := s.records.ListResidualReturnDue(ctx, s.cfg.SweepBatchSize)
	if err != nil {
		return report, err
	}
	for _, record := range owing {
		if _, err := s.returnBufferResidual(ctx, record); err != nil {
			s.logger.WarnContext(ctx, "buffer return retry failed",
				"module", "application", "operation", "payout_sweep", "outcome", "failure",
				"record_id", record.RecordID, "error", err)
			continue
		}
		report.ResidualReturned++
	}

	if report.Scanned > 0 || report.ResidualReturned > 0 {
		s.logger.InfoContext(ctx, "payout sweep completed",
			"module", "application", "operation", "payout_sweep", "outcome", "success",
			"scanned", report.Scanned, "succeeded", report.Succeeded,
			"failed", report.Failed, "skipped", report.Skipped,
			"residual_returned", report.ResidualReturned)
	}
	return report, nil
}

// acquireSweepLock takes the best-effort leader lock. When no lock store is
// wired the sweep always runs; correctness rests on the status CAS either way.
func (s *Service) acquireSweepLock(ctx context.Context, name string) (func(), bool) {
	if s.sweepLocks == nil {
		return func() {}, true
	}
	ttl := 2 * s.cfg.GatewayTimeout * time.Duration(s.cfg.SweepBatchSize)
	if ttl <= 0 || ttl > 10*time.Minute {
		ttl = 10 * time.Minute
	}
	ok, err := s.sweepLocks.Acquire(ctx, name, ttl)
	if err != nil {
		s.logger.WarnContext(ctx, "sweep lock unavailable, proceeding unlocked",
			"module", "application", "operation", "sweep_lock", "outcome", "degraded",
			"lock", name, "error", err)
		return func() {}, true
	}
	if !ok {
		return func() {}, false
	}
	return func() { _ = s.sweepLocks.Release(ctx, name) }, true
}
