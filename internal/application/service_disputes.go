package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shiftforge/escrow-payout-service/internal/domain"
)

// OpenDispute freezes the record: Release and Payout refuse to run until an
// admin resolves the case. Valid only while funds are still under platform
// control (in_escrow or released).
func (s *Service) OpenDispute(ctx context.Context, actor Actor, recordID, reason string) (domain.EscrowRecord, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowRecord{}, domain.ErrUnauthorized
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.EscrowRecord{}, domain.ErrInvalidInput
	}
	record, err := s.records.GetByID(ctx, strings.TrimSpace(recordID))
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	if actor.Role != "admin" && actor.Role != "system" &&
		actor.SubjectID != record.WorkerID && actor.SubjectID != record.BusinessID {
		return domain.EscrowRecord{}, domain.ErrForbidden
	}
	if record.Disputed {
		return domain.EscrowRecord{}, domain.ErrConflict
	}
	if record.Status != domain.EscrowStatusInEscrow && record.Status != domain.EscrowStatusReleased {
		return domain.EscrowRecord{}, domain.ErrInvalidTransition
	}

	now := s.nowFn()
	updated := record
	updated.Disputed = true
	updated.Dispute = domain.DisputeCase{OpenedAt: &now, Reason: reason}
	updated.UpdatedAt = now
	if err := s.records.UpdateIf(ctx, updated, record.Status, false); err != nil {
		return domain.EscrowRecord{}, err
	}
	s.enqueueDisputeOpened(ctx, updated)
	return updated, nil
}

// ResolveDispute applies an admin decision. Any gateway failure leaves the
// record disputed for a manual re-attempt; resolutions never flow through
// the scheduler and never auto-retry.
func (s *Service) ResolveDispute(ctx context.Context, actor Actor, input ResolveDisputeInput) (domain.EscrowRecord, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowRecord{}, domain.ErrUnauthorized
	}
	if actor.Role != "admin" {
		return domain.EscrowRecord{}, domain.ErrForbidden
	}
	if !domain.ValidResolution(input.Resolution) {
		return domain.EscrowRecord{}, domain.ErrInvalidInput
	}
	record, err := s.records.GetByID(ctx, strings.TrimSpace(input.RecordID))
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	if !record.Disputed {
		return domain.EscrowRecord{}, domain.ErrNoOpenDispute
	}
	// An attempt that reached the gateway pinned its parameters on the case.
	// The gateway keys are stable per record, so a re-attempt must carry the
	// same resolution and amounts or the processor would replay the original
	// movement while the record stores the new numbers.
	if record.Dispute.Resolution != "" && record.Dispute.ResolvedAt == nil {
		if input.Resolution != record.Dispute.Resolution {
			return domain.EscrowRecord{}, domain.ErrResolutionPinned
		}
		if input.Resolution == domain.ResolutionSplit &&
			(input.WorkerAmountMinor != record.Dispute.SplitWorkerAmountMinor ||
				input.BusinessRefundMinor != record.Dispute.SplitBusinessRefundMinor) {
			return domain.EscrowRecord{}, domain.ErrResolutionPinned
		}
	}

	switch input.Resolution {
	case domain.ResolutionReleaseToWorker:
		return s.resolveReleaseToWorker(ctx, record)
	case domain.ResolutionRefundToBusiness:
		return s.resolveRefundToBusiness(ctx, record)
	default:
		return s.resolveSplit(ctx, record, input.WorkerAmountMinor, input.BusinessRefundMinor)
	}
}

// resolveReleaseToWorker behaves as Release→Payout with no estimate refund:
// the worker receives the full net, the unused buffer goes back to the
// business, and the record closes paid_out.
func (s *Service) resolveReleaseToWorker(ctx context.Context, record domain.EscrowRecord) (domain.EscrowRecord, error) {
	payeeRef, err := s.profiles.WorkerPayeeRef(ctx, record.WorkerID)
	if err != nil {
		return domain.EscrowRecord{}, fmt.Errorf("worker payment profile: %w", err)
	}
	record, err = s.pinResolution(ctx, record, domain.ResolutionReleaseToWorker, record.NetMinor, record.BufferResidualMinor())
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	transferRef, err := s.transfer(ctx, payeeRef, record.NetMinor, gatewayKey(record.RecordID, "dispute_transfer"))
	if err != nil {
		s.recordGatewayFailure(ctx, record, err)
		return domain.EscrowRecord{}, fmt.Errorf("dispute transfer: %w", err)
	}
	residual := record.BufferResidualMinor()
	var residualRef string
	if residual > 0 {
		residualRef, err = s.refund(ctx, record.GatewayHoldRef, residual, gatewayKey(record.RecordID, "dispute_residual_refund"))
		if err != nil {
			s.recordGatewayFailure(ctx, record, err)
			return domain.EscrowRecord{}, fmt.Errorf("dispute residual refund: %w", err)
		}
	}

	now := s.nowFn()
	updated := s.closeDispute(record, domain.ResolutionReleaseToWorker, record.NetMinor, residual, now)
	updated.Status = domain.EscrowStatusPaidOut
	updated.GatewayPayoutRef = transferRef
	updated.PayoutInitiatedAt = &now
	updated.PayoutCompletedAt = &now
	if record.ReleasedAt == nil {
		updated.ReleasedAt = &now
	}
	updated.RefundedMinor = record.RefundedMinor + residual
	if err := s.records.UpdateIf(ctx, updated, record.Status, true); err != nil {
		return domain.EscrowRecord{}, err
	}
	if err := s.appendLedger(ctx, updated, domain.LedgerEntryWorkerPayout, domain.LedgerDirectionCredit,
		updated.NetMinor, updated.WorkerID, transferRef, "dispute resolution: release to worker"); err != nil {
		return domain.EscrowRecord{}, err
	}
	if residual > 0 {
		if err := s.appendLedger(ctx, updated, domain.LedgerEntryBusinessRefund, domain.LedgerDirectionCredit,
			residual, updated.BusinessID, residualRef, "dispute resolution: buffer returned"); err != nil {
			return domain.EscrowRecord{}, err
		}
	}
	if s.workerStats != nil {
		_ = s.workerStats.AddEarnings(ctx, updated.WorkerID, updated.NetMinor)
	}
	s.enqueueDisputeResolved(ctx, updated)
	return updated, nil
}

func (s *Service) resolveRefundToBusiness(ctx context.Context, record domain.EscrowRecord) (domain.EscrowRecord, error) {
	remaining := record.RemainingEscrowMinor()
	record, err := s.pinResolution(ctx, record, domain.ResolutionRefundToBusiness, 0, remaining)
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	var refundRef string
	if remaining > 0 {
		refundRef, err = s.refund(ctx, record.GatewayHoldRef, remaining, gatewayKey(record.RecordID, "dispute_refund"))
		if err != nil {
			s.recordGatewayFailure(ctx, record, err)
			return domain.EscrowRecord{}, fmt.Errorf("dispute refund: %w", err)
		}
	}

	now := s.nowFn()
	updated := s.closeDispute(record, domain.ResolutionRefundToBusiness, 0, remaining, now)
	updated.Status = domain.EscrowStatusRefunded
	updated.RefundedMinor = record.RefundedMinor + remaining
	if err := s.records.UpdateIf(ctx, updated, record.Status, true); err != nil {
		return domain.EscrowRecord{}, err
	}
	if remaining > 0 {
		if err := s.appendLedger(ctx, updated, domain.LedgerEntryBusinessRefund, domain.LedgerDirectionCredit,
			remaining, updated.BusinessID, refundRef, "dispute resolution: full refund"); err != nil {
			return domain.EscrowRecord{}, err
		}
	}
	s.enqueueDisputeResolved(ctx, updated)
	return updated, nil
}

func (s *Service) resolveSplit(ctx context.Context, record domain.EscrowRecord, workerMinor, businessMinor int64) (domain.EscrowRecord, error) {
	if workerMinor < 0 || businessMinor < 0 {
		return domain.EscrowRecord{}, domain.ErrInvalidAmount
	}
	total, err := domain.AddMinor(workerMinor, businessMinor)
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	// Split portions must reconcile exactly against the payable gross; the
	// buffer residual still goes back to the business on top.
	if total != record.GrossMinor {
		return domain.EscrowRecord{}, domain.ErrSplitMismatch
	}
	record, err = s.pinResolution(ctx, record, domain.ResolutionSplit, workerMinor, businessMinor)
	if err != nil {
		return domain.EscrowRecord{}, err
	}

	var transferRef string
	if workerMinor > 0 {
		payeeRef, err := s.profiles.WorkerPayeeRef(ctx, record.WorkerID)
		if err != nil {
			return domain.EscrowRecord{}, fmt.Errorf("worker payment profile: %w", err)
		}
		transferRef, err = s.transfer(ctx, payeeRef, workerMinor, gatewayKey(record.RecordID, "dispute_transfer"))
		if err != nil {
			s.recordGatewayFailure(ctx, record, err)
			return domain.EscrowRecord{}, fmt.Errorf("dispute transfer: %w", err)
		}
	}
	businessTotal := businessMinor + record.BufferResidualMinor()
	var refundRef string
	if businessTotal > 0 {
		refundRef, err = s.refund(ctx, record.GatewayHoldRef, businessTotal, gatewayKey(record.RecordID, "dispute_refund"))
		if err != nil {
			s.recordGatewayFailure(ctx, record, err)
			return domain.EscrowRecord{}, fmt.Errorf("dispute refund: %w", err)
		}
	}

	now := s.nowFn()
	updated := s.closeDispute(record, domain.ResolutionSplit, workerMinor, businessMinor, now)
	updated.Status = domain.EscrowStatusPaidOut
	updated.GatewayPayoutRef = transferRef
	updated.PayoutInitiatedAt = &now
	updated.PayoutCompletedAt = &now
	updated.RefundedMinor = record.RefundedMinor + businessTotal
	if err := s.records.UpdateIf(ctx, updated, record.Status, true); err != nil {
		return domain.EscrowRecord{}, err
	}
	if workerMinor > 0 {
		if err := s.appendLedger(ctx, updated, domain.LedgerEntryWorkerPayout, domain.LedgerDirectionCredit,
			workerMinor, updated.WorkerID, transferRef, "dispute resolution: split worker portion"); err != nil {
			return domain.EscrowRecord{}, err
		}
	}
	if businessTotal > 0 {
		if err := s.appendLedger(ctx, updated, domain.LedgerEntryBusinessRefund, domain.LedgerDirectionCredit,
			businessTotal, updated.BusinessID, refundRef, "dispute resolution: split business portion"); err != nil {
			return domain.EscrowRecord{}, err
		}
	}
	if s.workerStats != nil && workerMinor > 0 {
		_ = s.workerStats.AddEarnings(ctx, updated.WorkerID, workerMinor)
	}
	s.enqueueDisputeResolved(ctx, updated)
	return updated, nil
}

// pinResolution persists the chosen resolution and amounts on the open case
// before any money moves, so an interrupted attempt can only ever be replayed
// with the same parameters.
func (s *Service) pinResolution(ctx context.Context, record domain.EscrowRecord, resolution string, workerMinor, businessMinor int64) (domain.EscrowRecord, error) {
	if record.Dispute.Resolution == resolution &&
		record.Dispute.SplitWorkerAmountMinor == workerMinor &&
		record.Dispute.SplitBusinessRefundMinor == businessMinor {
		return record, nil
	}
	updated := record
	updated.Dispute.Resolution = resolution
	updated.Dispute.SplitWorkerAmountMinor = workerMinor
	updated.Dispute.SplitBusinessRefundMinor = businessMinor
	updated.UpdatedAt = s.nowFn()
	if err := s.records.UpdateIf(ctx, updated, record.Status, true); err != nil {
		return domain.EscrowRecord{}, err
	}
	return updated, nil
}

func (s *Service) closeDispute(record domain.EscrowRecord, resolution string, workerMinor, businessMinor int64, now time.Time) domain.EscrowRecord {
	updated := record
	updated.Disputed = false
	updated.Dispute.Resolution = resolution
	updated.Dispute.ResolvedAt = &now
	updated.Dispute.SplitWorkerAmountMinor = workerMinor
	updated.Dispute.SplitBusinessRefundMinor = businessMinor
	updated.LastGatewayError = ""
	updated.UpdatedAt = now
	return updated
}
