package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shiftforge/escrow-payout-service/internal/domain"
	"github.com/shiftforge/escrow-payout-service/internal/ports"
)

// Hold captures buffered escrow funds from the business for a fresh
// assignment. On gateway failure the record is persisted in failed status and
// the error surfaces to the caller; nothing retries automatically, a new
// attempt needs a fresh idempotency key from the caller.
func (s *Service) Hold(ctx context.Context, actor Actor, input HoldInput) (domain.EscrowRecord, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowRecord{}, domain.ErrUnauthorized
	}
	if strings.TrimSpace(actor.IdempotencyKey) == "" {
		return domain.EscrowRecord{}, domain.ErrIdempotencyRequired
	}
	input.AssignmentID = strings.TrimSpace(input.AssignmentID)
	if input.AssignmentID == "" {
		return domain.EscrowRecord{}, domain.ErrInvalidInput
	}

	requestHash := hashPayload(input)
	if cached, ok, err := s.getIdempotentRecord(ctx, actor.IdempotencyKey, requestHash); err != nil {
		return domain.EscrowRecord{}, err
	} else if ok {
		return cached, nil
	}
	if err := s.reserveIdempotency(ctx, actor.IdempotencyKey, requestHash); err != nil {
		return domain.EscrowRecord{}, err
	}

	assignment, err := s.assignments.GetAssignment(ctx, input.AssignmentID)
	if err != nil {
		return domain.EscrowRecord{}, fmt.Errorf("assignment lookup: %w", err)
	}
	if assignment.HourlyRateMinor <= 0 || assignment.HoursEstimated <= 0 {
		return domain.EscrowRecord{}, domain.ErrInvalidInput
	}
	if existing, err := s.records.GetByAssignmentID(ctx, input.AssignmentID); err == nil && existing.RecordID != "" {
		return domain.EscrowRecord{}, domain.ErrConflict
	}

	amounts, err := domain.ComputeAmounts(assignment.HourlyRateMinor, assignment.HoursEstimated,
		s.cfg.PlatformFeePct, s.cfg.TaxPct, s.cfg.EscrowBufferPct)
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	payerRef, err := s.profiles.BusinessPayerRef(ctx, assignment.BusinessID)
	if err != nil {
		return domain.EscrowRecord{}, fmt.Errorf("business payment profile: %w", err)
	}

	now := s.nowFn()
	record := domain.EscrowRecord{
		RecordID:         uuid.NewString(),
		AssignmentID:     assignment.AssignmentID,
		ShiftID:          assignment.ShiftID,
		WorkerID:         assignment.WorkerID,
		BusinessID:       assignment.BusinessID,
		HourlyRateMinor:  assignment.HourlyRateMinor,
		HoursEstimated:   assignment.HoursEstimated,
		GrossMinor:       amounts.GrossMinor,
		PlatformFeeMinor: amounts.FeeMinor,
		TaxMinor:         amounts.TaxMinor,
		NetMinor:         amounts.NetMinor,
		EscrowMinor:      amounts.EscrowMinor,
		Status:           domain.EscrowStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	holdRef, gatewayErr := s.captureHold(ctx, payerRef, record)
	now = s.nowFn()
	record.UpdatedAt = now
	if gatewayErr != nil {
		record.Status = domain.EscrowStatusFailed
		record.LastGatewayError = gatewayErr.Error()
		if err := s.records.Create(ctx, record); err != nil {
			return domain.EscrowRecord{}, err
		}
		s.enqueueHoldFailed(ctx, record, gatewayErr)
		_ = s.completeIdempotencyJSON(ctx, actor.IdempotencyKey, 402, record)
		return record, fmt.Errorf("capture hold: %w", gatewayErr)
	}

	record.Status = domain.EscrowStatusInEscrow
	record.GatewayHoldRef = holdRef
	record.HeldAt = &now
	if err := s.records.Create(ctx, record); err != nil {
		return domain.EscrowRecord{}, err
	}
	// The ledger debit is the captured escrow amount, buffer included.
	if err := s.appendLedger(ctx, record, domain.LedgerEntryEscrowHold, domain.LedgerDirectionDebit,
		record.EscrowMinor, record.BusinessID, holdRef, "escrow capture at hold"); err != nil {
		return domain.EscrowRecord{}, err
	}
	if err := s.acks.Create(ctx, domain.AssignmentAcknowledgment{
		AssignmentID: record.AssignmentID,
		ShiftID:      record.ShiftID,
		WorkerID:     record.WorkerID,
		RecordID:     record.RecordID,
		AssignedAt:   now,
	}); err != nil && !errors.Is(err, domain.ErrConflict) {
		return domain.EscrowRecord{}, err
	}
	s.enqueueHoldCompleted(ctx, record)
	_ = s.completeIdempotencyJSON(ctx, actor.IdempotencyKey, 201, record)
	return record, nil
}

// Release reconciles estimated against actual hours. A gross decrease is
// refunded to the business immediately; a gross beyond the captured buffer is
// never re-charged, the overage is a platform loss reconciled out of band.
func (s *Service) Release(ctx context.Context, actor Actor, input ReleaseInput) (domain.EscrowRecord, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowRecord{}, domain.ErrUnauthorized
	}
	input.RecordID = strings.TrimSpace(input.RecordID)
	if input.RecordID == "" {
		return domain.EscrowRecord{}, domain.ErrInvalidInput
	}
	if _, err := domain.MulRateByHours(1, input.HoursActual); err != nil || input.HoursActual <= 0 {
		return domain.EscrowRecord{}, domain.ErrInvalidAmount
	}

	record, err := s.records.GetByID(ctx, input.RecordID)
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	if record.Disputed {
		return domain.EscrowRecord{}, domain.ErrRecordDisputed
	}
	if record.Status != domain.EscrowStatusInEscrow {
		return domain.EscrowRecord{}, domain.ErrInvalidTransition
	}

	amounts, err := domain.ComputeAmounts(record.HourlyRateMinor, input.HoursActual,
		s.cfg.PlatformFeePct, s.cfg.TaxPct, 0)
	if err != nil {
		return domain.EscrowRecord{}, err
	}

	// Claim the record before any money moves: a concurrent Cancel or second
	// Release loses this CAS and never reaches the gateway.
	claimed, err := s.claimRecord(ctx, record, domain.EscrowStatusReleasing)
	if err != nil {
		return domain.EscrowRecord{}, err
	}

	var refundRef string
	refundMinor := int64(0)
	if amounts.GrossMinor < record.GrossMinor {
		refundMinor = record.GrossMinor - amounts.GrossMinor
		refundRef, err = s.refund(ctx, record.GatewayHoldRef, refundMinor, gatewayKey(record.RecordID, "release_refund"))
		if err != nil {
			// The claim reverts to in_escrow; a retried Release reuses the
			// same idempotency key at the gateway, so no double refund.
			s.revertClaim(ctx, claimed, record.Status, err)
			return domain.EscrowRecord{}, fmt.Errorf("release refund: %w", err)
		}
	}

	now := s.nowFn()
	hoursActual := input.HoursActual
	updated := record
	updated.HoursActual = &hoursActual
	updated.GrossMinor = amounts.GrossMinor
	updated.PlatformFeeMinor = amounts.FeeMinor
	updated.TaxMinor = amounts.TaxMinor
	updated.NetMinor = amounts.NetMinor
	updated.RefundedMinor = record.RefundedMinor + refundMinor
	updated.Status = domain.EscrowStatusReleased
	updated.ReleasedAt = &now
	updated.LastGatewayError = ""
	updated.UpdatedAt = now
	if err := s.records.UpdateIf(ctx, updated, domain.EscrowStatusReleasing, false); err != nil {
		return domain.EscrowRecord{}, err
	}
	if refundMinor > 0 {
		if err := s.appendLedger(ctx, updated, domain.LedgerEntryBusinessRefund, domain.LedgerDirectionCredit,
			refundMinor, updated.BusinessID, refundRef, "estimate overage refund at release"); err != nil {
			return domain.EscrowRecord{}, err
		}
	}
	s.enqueueReleaseCompleted(ctx, updated)
	return updated, nil
}

// Payout transfers the net amount to the worker once the cooling-off window
// has elapsed. Failures leave the record released for the next sweep until
// the bounded attempt budget is spent.
func (s *Service) Payout(ctx context.Context, actor Actor, recordID string) (domain.EscrowRecord, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowRecord{}, domain.ErrUnauthorized
	}
	record, err := s.records.GetByID(ctx, strings.TrimSpace(recordID))
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	return s.payout(ctx, record)
}

func (s *Service) payout(ctx context.Context, record domain.EscrowRecord) (domain.EscrowRecord, error) {
	if record.Disputed {
		return domain.EscrowRecord{}, domain.ErrRecordDisputed
	}
	if record.Status != domain.EscrowStatusReleased {
		return domain.EscrowRecord{}, domain.ErrInvalidTransition
	}
	now := s.nowFn()
	if record.ReleasedAt == nil || now.Sub(*record.ReleasedAt) < s.cfg.CoolingOffWindow {
		return domain.EscrowRecord{}, domain.ErrCoolingOffActive
	}
	if record.PayoutAttempts >= s.cfg.MaxPayoutAttempts {
		return domain.EscrowRecord{}, domain.ErrPayoutExhausted
	}

	payeeRef, err := s.profiles.WorkerPayeeRef(ctx, record.WorkerID)
	if err != nil {
		return domain.EscrowRecord{}, fmt.Errorf("worker payment profile: %w", err)
	}

	claimed, err := s.claimRecord(ctx, record, domain.EscrowStatusPayingOut)
	if err != nil {
		return domain.EscrowRecord{}, err
	}

	initiated := s.nowFn()
	transferRef, gatewayErr := s.transfer(ctx, payeeRef, record.NetMinor, gatewayKey(record.RecordID, "worker_transfer"))
	if gatewayErr != nil {
		return s.recordPayoutFailure(ctx, claimed, gatewayErr)
	}

	// The transfer went through, so the payout is committed before anything
	// else can fail: status, payout ref, ledger credit and earnings all land
	// now. The buffer return is a separate compensation below.
	completed := s.nowFn()
	updated := record
	updated.Status = domain.EscrowStatusPaidOut
	updated.GatewayPayoutRef = transferRef
	updated.PayoutInitiatedAt = &initiated
	updated.PayoutCompletedAt = &completed
	updated.LastGatewayError = ""
	updated.UpdatedAt = completed
	if err := s.records.UpdateIf(ctx, updated, domain.EscrowStatusPayingOut, false); err != nil {
		return domain.EscrowRecord{}, err
	}

	if err := s.appendLedger(ctx, updated, domain.LedgerEntryWorkerPayout, domain.LedgerDirectionCredit,
		updated.NetMinor, updated.WorkerID, transferRef, "net payout"); err != nil {
		return domain.EscrowRecord{}, err
	}
	if updated.PlatformFeeMinor > 0 {
		if err := s.appendLedger(ctx, updated, domain.LedgerEntryPlatformFee, domain.LedgerDirectionCredit,
			updated.PlatformFeeMinor, "platform", "", "platform fee"); err != nil {
			return domain.EscrowRecord{}, err
		}
	}
	if updated.TaxMinor > 0 {
		if err := s.appendLedger(ctx, updated, domain.LedgerEntryTaxWithheld, domain.LedgerDirectionCredit,
			updated.TaxMinor, "platform", "", "tax withheld"); err != nil {
			return domain.EscrowRecord{}, err
		}
	}

	if s.workerStats != nil {
		if err := s.workerStats.AddEarnings(ctx, updated.WorkerID, updated.NetMinor); err != nil {
			s.logger.WarnContext(ctx, "earnings counter increment failed",
				"module", "application", "operation", "payout", "outcome", "degraded",
				"record_id", updated.RecordID, "error", err)
		}
	}

	final, residualErr := s.returnBufferResidual(ctx, updated)
	if residualErr != nil {
		// The payout itself stands; the residual stays due on the record and
		// the payout sweep retries the return with the same idempotency key.
		s.logger.WarnContext(ctx, "buffer return pending",
			"module", "application", "operation", "payout", "outcome", "degraded",
			"record_id", updated.RecordID, "residual_minor", updated.BufferResidualMinor(), "error", residualErr)
		final = updated
	}
	s.enqueuePayoutCompleted(ctx, final, final.RefundedMinor-record.RefundedMinor)
	return final, nil
}

// returnBufferResidual refunds whatever remains captured beyond the payable
// gross on a paid_out record. The idempotency key is stable, so replaying
// after an earlier failure cannot refund twice.
func (s *Service) returnBufferResidual(ctx context.Context, record domain.EscrowRecord) (domain.EscrowRecord, error) {
	residual := record.BufferResidualMinor()
	if residual == 0 {
		return record, nil
	}
	residualRef, err := s.refund(ctx, record.GatewayHoldRef, residual, gatewayKey(record.RecordID, "buffer_refund"))
	if err != nil {
		s.recordGatewayFailure(ctx, record, err)
		return record, fmt.Errorf("buffer refund: %w", err)
	}
	updated := record
	updated.RefundedMinor = record.RefundedMinor + residual
	updated.LastGatewayError = ""
	updated.UpdatedAt = s.nowFn()
	if err := s.records.UpdateIf(ctx, updated, record.Status, record.Disputed); err != nil {
		return record, err
	}
	if err := s.appendLedger(ctx, updated, domain.LedgerEntryBusinessRefund, domain.LedgerDirectionCredit,
		residual, updated.BusinessID, residualRef, "unused buffer returned"); err != nil {
		return updated, err
	}
	return updated, nil
}

func (s *Service) recordPayoutFailure(ctx context.Context, claimed domain.EscrowRecord, gatewayErr error) (domain.EscrowRecord, error) {
	now := s.nowFn()
	updated := claimed
	updated.Status = domain.EscrowStatusReleased
	updated.PayoutAttempts = claimed.PayoutAttempts + 1
	updated.LastGatewayError = gatewayErr.Error()
	updated.UpdatedAt = now

	exhausted := updated.PayoutAttempts >= s.cfg.MaxPayoutAttempts
	if exhausted {
		updated.Status = domain.EscrowStatusPayoutFailedPermanent
	}
	if err := s.records.UpdateIf(ctx, updated, domain.EscrowStatusPayingOut, false); err != nil {
		return domain.EscrowRecord{}, err
	}
	s.enqueuePayoutFailed(ctx, updated, gatewayErr)
	if exhausted {
		s.enqueuePayoutEscalated(ctx, updated)
	}
	return updated, fmt.Errorf("payout transfer: %w", gatewayErr)
}

// Cancel reverses a hold in full and closes the record. Invoked by the
// acknowledgment enforcer or manually by an operator.
func (s *Service) Cancel(ctx context.Context, actor Actor, recordID string) (domain.EscrowRecord, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowRecord{}, domain.ErrUnauthorized
	}
	record, err := s.records.GetByID(ctx, strings.TrimSpace(recordID))
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	return s.cancel(ctx, record)
}

func (s *Service) cancel(ctx context.Context, record domain.EscrowRecord) (domain.EscrowRecord, error) {
	if record.Disputed {
		return domain.EscrowRecord{}, domain.ErrRecordDisputed
	}
	if record.Status != domain.EscrowStatusPending && record.Status != domain.EscrowStatusInEscrow {
		return domain.EscrowRecord{}, domain.ErrInvalidTransition
	}

	claimed, err := s.claimRecord(ctx, record, domain.EscrowStatusCancelling)
	if err != nil {
		return domain.EscrowRecord{}, err
	}

	refundMinor := record.RemainingEscrowMinor()
	var refundRef string
	if refundMinor > 0 && record.GatewayHoldRef != "" {
		var err error
		refundRef, err = s.refund(ctx, record.GatewayHoldRef, refundMinor, gatewayKey(record.RecordID, "cancel_refund"))
		if err != nil {
			s.revertClaim(ctx, claimed, record.Status, err)
			return domain.EscrowRecord{}, fmt.Errorf("cancel refund: %w", err)
		}
	}

	now := s.nowFn()
	updated := record
	updated.Status = domain.EscrowStatusCancelled
	updated.RefundedMinor = record.RefundedMinor + refundMinor
	updated.LastGatewayError = ""
	updated.UpdatedAt = now
	if err := s.records.UpdateIf(ctx, updated, domain.EscrowStatusCancelling, false); err != nil {
		return domain.EscrowRecord{}, err
	}
	if refundMinor > 0 {
		if err := s.appendLedger(ctx, updated, domain.LedgerEntryEscrowRefund, domain.LedgerDirectionCredit,
			refundMinor, updated.BusinessID, refundRef, "full escrow reversal on cancel"); err != nil {
			return domain.EscrowRecord{}, err
		}
	}
	s.enqueueEscrowCancelled(ctx, updated)
	return updated, nil
}

// Acknowledge records the worker's acceptance. Late acknowledgments are
// accepted with a penalty as long as auto-cancellation has not fired first;
// the row-level compare-and-swap decides the race.
func (s *Service) Acknowledge(ctx context.Context, actor Actor, assignmentID string) (domain.AssignmentAcknowledgment, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.AssignmentAcknowledgment{}, domain.ErrUnauthorized
	}
	assignmentID = strings.TrimSpace(assignmentID)
	if assignmentID == "" {
		return domain.AssignmentAcknowledgment{}, domain.ErrInvalidInput
	}
	ack, err := s.acks.GetByAssignmentID(ctx, assignmentID)
	if err != nil {
		return domain.AssignmentAcknowledgment{}, err
	}
	if actor.Role != "admin" && actor.Role != "system" && actor.SubjectID != ack.WorkerID {
		return domain.AssignmentAcknowledgment{}, domain.ErrForbidden
	}
	if ack.AcknowledgedAt != nil {
		return ack, nil
	}
	if ack.AutoCancelledAt != nil {
		return domain.AssignmentAcknowledgment{}, domain.ErrAcknowledgmentClosed
	}

	now := s.nowFn()
	late := now.Sub(ack.AssignedAt) > s.cfg.AckReminderAfter
	if err := s.acks.MarkAcknowledged(ctx, assignmentID, now, late); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.AssignmentAcknowledgment{}, domain.ErrAcknowledgmentClosed
		}
		return domain.AssignmentAcknowledgment{}, err
	}
	ack.AcknowledgedAt = &now
	ack.LateFlag = late
	if late {
		if s.workerStats != nil {
			_ = s.workerStats.PenalizeReliability(ctx, ack.WorkerID, s.cfg.LateAckPenaltyPoints)
		}
		s.enqueueAcknowledgedLate(ctx, ack)
	}
	return ack, nil
}

func (s *Service) GetRecord(ctx context.Context, actor Actor, recordID string) (domain.EscrowRecord, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowRecord{}, domain.ErrUnauthorized
	}
	record, err := s.records.GetByID(ctx, strings.TrimSpace(recordID))
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	if actor.Role != "admin" && actor.Role != "system" &&
		actor.SubjectID != record.WorkerID && actor.SubjectID != record.BusinessID {
		return domain.EscrowRecord{}, domain.ErrForbidden
	}
	return record, nil
}

func (s *Service) ListLedger(ctx context.Context, actor Actor, recordID string) ([]domain.LedgerEntry, error) {
	record, err := s.GetRecord(ctx, actor, recordID)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListByRecordID(ctx, record.RecordID)
}

func (s *Service) GetWorkerStats(ctx context.Context, actor Actor, workerID string) (ports.WorkerStats, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return ports.WorkerStats{}, domain.ErrUnauthorized
	}
	workerID = strings.TrimSpace(workerID)
	if actor.Role != "admin" && actor.Role != "system" && actor.SubjectID != workerID {
		return ports.WorkerStats{}, domain.ErrForbidden
	}
	if s.workerStats == nil {
		return ports.WorkerStats{WorkerID: workerID}, nil
	}
	return s.workerStats.Get(ctx, workerID)
}

// --- gateway plumbing ---

func gatewayKey(recordID, operation string) string {
	return recordID + ":" + operation
}

func (s *Service) captureHold(ctx context.Context, payerRef string, record domain.EscrowRecord) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	return s.gateway.CaptureHold(callCtx, payerRef, record.EscrowMinor, gatewayKey(record.RecordID, "capture_hold"))
}

func (s *Service) transfer(ctx context.Context, payeeRef string, amountMinor int64, idemKey string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	return s.gateway.Transfer(callCtx, payeeRef, amountMinor, idemKey)
}

func (s *Service) refund(ctx context.Context, holdRef string, amountMinor int64, idemKey string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	return s.gateway.Refund(callCtx, holdRef, amountMinor, idemKey)
}

// claimRecord CAS-es the record into a transient claim status. The caller
// holds the only permission to move money for the record until it commits
// the transition or reverts the claim.
func (s *Service) claimRecord(ctx context.Context, record domain.EscrowRecord, claim domain.EscrowStatus) (domain.EscrowRecord, error) {
	claimed := record
	claimed.Status = claim
	claimed.UpdatedAt = s.nowFn()
	if err := s.records.UpdateIf(ctx, claimed, record.Status, record.Disputed); err != nil {
		return domain.EscrowRecord{}, err
	}
	return claimed, nil
}

// revertClaim puts a claimed record back into its prior status after a
// gateway failure, carrying the error for operators.
func (s *Service) revertClaim(ctx context.Context, claimed domain.EscrowRecord, prior domain.EscrowStatus, gatewayErr error) {
	reverted := claimed
	reverted.Status = prior
	reverted.LastGatewayError = gatewayErr.Error()
	reverted.UpdatedAt = s.nowFn()
	if err := s.records.UpdateIf(ctx, reverted, claimed.Status, claimed.Disputed); err != nil {
		s.logger.ErrorContext(ctx, "claim revert failed",
			"module", "application", "operation", "revert_claim", "outcome", "failure",
			"record_id", claimed.RecordID, "claim", string(claimed.Status), "error", err)
	}
}

// recordGatewayFailure persists the gateway error on the record without
// changing status, so financial state is reconstructable from storage alone.
func (s *Service) recordGatewayFailure(ctx context.Context, record domain.EscrowRecord, gatewayErr error) {
	updated := record
	updated.LastGatewayError = gatewayErr.Error()
	updated.UpdatedAt = s.nowFn()
	if err := s.records.UpdateIf(ctx, updated, record.Status, record.Disputed); err != nil {
		s.logger.WarnContext(ctx, "gateway failure not persisted",
			"module", "application", "operation", "record_gateway_failure", "outcome", "degraded",
			"record_id", record.RecordID, "error", err)
	}
}

func (s *Service) appendLedger(ctx context.Context, record domain.EscrowRecord, entryType, direction string, amountMinor int64, partyID, gatewayRef, note string) error {
	if err := domain.ValidateMinor(amountMinor); err != nil {
		return err
	}
	return s.ledger.Append(ctx, domain.LedgerEntry{
		EntryID:      uuid.NewString(),
		RecordID:     record.RecordID,
		AssignmentID: record.AssignmentID,
		EntryType:    entryType,
		Direction:    direction,
		AmountMinor:  amountMinor,
		PartyID:      partyID,
		GatewayRef:   gatewayRef,
		Note:         note,
		OccurredAt:   s.nowFn(),
	})
}

// --- idempotency plumbing ---

func (s *Service) getIdempotentRecord(ctx context.Context, key, requestHash string) (domain.EscrowRecord, bool, error) {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return domain.EscrowRecord{}, false, nil
	}
	rec, err := s.idempotency.Get(ctx, key, s.nowFn())
	if err != nil || rec == nil {
		return domain.EscrowRecord{}, false, err
	}
	if rec.RequestHash != requestHash {
		return domain.EscrowRecord{}, false, domain.ErrIdempotencyConflict
	}
	if len(rec.ResponseBody) == 0 {
		return domain.EscrowRecord{}, false, nil
	}
	var out domain.EscrowRecord
	if err := json.Unmarshal(rec.ResponseBody, &out); err != nil {
		return domain.EscrowRecord{}, false, nil
	}
	return out, true, nil
}

func (s *Service) reserveIdempotency(ctx context.Context, key, requestHash string) error {
	if s.idempotency == nil {
		return nil
	}
	err := s.idempotency.Reserve(ctx, key, requestHash, s.nowFn().Add(s.cfg.IdempotencyTTL))
	if errors.Is(err, domain.ErrConflict) {
		return domain.ErrIdempotencyConflict
	}
	return err
}

func (s *Service) completeIdempotencyJSON(ctx context.Context, key string, code int, payload any) error {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	b, _ := json.Marshal(payload)
	return s.idempotency.Complete(ctx, key, code, b, s.nowFn())
}

func hashPayload(v any) string {
	b, _ := json.Marshal(v)
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
