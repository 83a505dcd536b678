package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shiftforge/escrow-payout-service/internal/contracts"
	"github.com/shiftforge/escrow-payout-service/internal/domain"
	"github.com/shiftforge/escrow-payout-service/internal/ports"
)

// HandleDomainEvent applies one consumed marketplace event. assignment.created
// drives Hold, shift.completed drives Release. Processing is deduplicated on
// event_id so at-least-once delivery cannot double-charge.
func (s *Service) HandleDomainEvent(ctx context.Context, event contracts.EventEnvelope) error {
	if !domain.IsCanonicalInputEvent(event.EventType) {
		return domain.ErrUnsupportedEventType
	}
	if event.EventClass != "" && event.EventClass != domain.CanonicalEventClassDomain {
		return domain.ErrUnsupportedEventClass
	}
	if err := validateDomainEventEnvelope(event, domain.CanonicalPartitionKeyPath(event.EventType)); err != nil {
		return err
	}

	now := s.nowFn()
	dup, err := s.eventDedup.IsDuplicate(ctx, event.EventID, now)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}

	actor := Actor{SubjectID: "system", Role: "system", RequestID: event.TraceID, IdempotencyKey: "event:" + event.EventID}
	switch event.EventType {
	case domain.EventAssignmentCreated:
		var payload contracts.AssignmentCreatedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return fmt.Errorf("decode assignment.created payload: %w", err)
		}
		if _, err := s.Hold(ctx, actor, HoldInput{AssignmentID: payload.AssignmentID}); err != nil &&
			!errors.Is(err, domain.ErrConflict) {
			return err
		}
	case domain.EventShiftCompleted:
		var payload contracts.ShiftCompletedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return fmt.Errorf("decode shift.completed payload: %w", err)
		}
		record, err := s.records.GetByAssignmentID(ctx, payload.AssignmentID)
		if err != nil {
			return err
		}
		if _, err := s.Release(ctx, actor, ReleaseInput{RecordID: record.RecordID, HoursActual: payload.HoursActual}); err != nil &&
			!errors.Is(err, domain.ErrInvalidTransition) && !errors.Is(err, domain.ErrRecordDisputed) {
			return err
		}
	}
	return s.eventDedup.MarkProcessed(ctx, event.EventID, event.EventType, now.Add(s.cfg.EventDedupTTL))
}

// FlushOutbox publishes pending domain and ops records. Called by the outbox
// worker and safe to invoke manually.
func (s *Service) FlushOutbox(ctx context.Context) error {
	pending, err := s.outbox.ListPending(ctx, s.cfg.OutboxFlushBatchSize)
	if err != nil {
		return err
	}
	for _, record := range pending {
		switch record.EventClass {
		case domain.CanonicalEventClassDomain, domain.CanonicalEventClassOps:
			if err := s.domainEvents.PublishDomain(ctx, record.Envelope); err != nil {
				return err
			}
		default:
			continue
		}
		if err := s.outbox.MarkSent(ctx, record.RecordID, s.nowFn()); err != nil {
			return err
		}
	}
	return nil
}

// emit routes one fact to the outbox (domain/ops) or straight to the
// analytics publisher. Emission is fire-and-forget: a broker or storage
// failure here is logged and never unwinds the financial transition.
func (s *Service) emit(ctx context.Context, eventType, partitionKey string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "event payload marshal failed",
			"module", "application", "operation", "emit_event", "outcome", "failure",
			"event_type", eventType, "error", err)
		return
	}
	at := s.nowFn()
	class := domain.CanonicalEventClass(eventType)
	envelope := contracts.EventEnvelope{
		EventID:          uuid.NewString(),
		EventType:        eventType,
		EventClass:       class,
		OccurredAt:       at,
		PartitionKeyPath: domain.CanonicalPartitionKeyPath(eventType),
		PartitionKey:     partitionKey,
		SourceService:    s.cfg.ServiceName,
		TraceID:          uuid.NewString(),
		SchemaVersion:    "v1",
		Data:             data,
	}

	switch class {
	case domain.CanonicalEventClassAnalyticsOnly:
		if s.analytics == nil {
			return
		}
		err = s.analytics.PublishAnalytics(ctx, envelope)
	default:
		if s.outbox == nil {
			return
		}
		err = s.outbox.Enqueue(ctx, ports.OutboxRecord{
			RecordID:   uuid.NewString(),
			EventClass: class,
			Envelope:   envelope,
			CreatedAt:  at,
		})
	}
	if err != nil {
		s.logger.WarnContext(ctx, "event emission failed",
			"module", "application", "operation", "emit_event", "outcome", "degraded",
			"event_type", eventType, "partition_key", partitionKey, "error", err)
	}
}

func (s *Service) enqueueHoldCompleted(ctx context.Context, record domain.EscrowRecord) {
	heldAt := s.nowFn()
	if record.HeldAt != nil {
		heldAt = *record.HeldAt
	}
	s.emit(ctx, domain.EventEscrowHoldCompleted, record.RecordID, contracts.HoldCompletedPayload{
		RecordID:      record.RecordID,
		AssignmentID:  record.AssignmentID,
		BusinessID:    record.BusinessID,
		WorkerID:      record.WorkerID,
		EscrowMinor:   record.EscrowMinor,
		GrossMinor:    record.GrossMinor,
		PaymentStatus: "escrowed",
		HeldAt:        heldAt.Format(time.RFC3339),
	})
}

func (s *Service) enqueueHoldFailed(ctx context.Context, record domain.EscrowRecord, cause error) {
	s.emit(ctx, domain.EventEscrowHoldFailed, record.RecordID, contracts.HoldFailedPayload{
		RecordID:     record.RecordID,
		AssignmentID: record.AssignmentID,
		BusinessID:   record.BusinessID,
		EscrowMinor:  record.EscrowMinor,
		Reason:       cause.Error(),
		FailedAt:     s.nowFn().Format(time.RFC3339),
	})
}

func (s *Service) enqueueReleaseCompleted(ctx context.Context, record domain.EscrowRecord) {
	hours := 0.0
	if record.HoursActual != nil {
		hours = *record.HoursActual
	}
	releasedAt := s.nowFn()
	if record.ReleasedAt != nil {
		releasedAt = *record.ReleasedAt
	}
	s.emit(ctx, domain.EventEscrowReleaseCompleted, record.RecordID, contracts.ReleaseCompletedPayload{
		RecordID:      record.RecordID,
		AssignmentID:  record.AssignmentID,
		HoursActual:   hours,
		GrossMinor:    record.GrossMinor,
		NetMinor:      record.NetMinor,
		RefundedMinor: record.RefundedMinor,
		ReleasedAt:    releasedAt.Format(time.RFC3339),
	})
}

func (s *Service) enqueuePayoutCompleted(ctx context.Context, record domain.EscrowRecord, residualMinor int64) {
	completedAt := s.nowFn()
	if record.PayoutCompletedAt != nil {
		completedAt = *record.PayoutCompletedAt
	}
	s.emit(ctx, domain.EventEscrowPayoutCompleted, record.RecordID, contracts.PayoutCompletedPayload{
		RecordID:      record.RecordID,
		AssignmentID:  record.AssignmentID,
		WorkerID:      record.WorkerID,
		NetMinor:      record.NetMinor,
		ResidualMinor: residualMinor,
		CompletedAt:   completedAt.Format(time.RFC3339),
	})
}

func (s *Service) enqueuePayoutFailed(ctx context.Context, record domain.EscrowRecord, cause error) {
	s.emit(ctx, domain.EventEscrowPayoutFailed, record.RecordID, contracts.PayoutFailedPayload{
		RecordID:     record.RecordID,
		AssignmentID: record.AssignmentID,
		WorkerID:     record.WorkerID,
		NetMinor:     record.NetMinor,
		Attempts:     record.PayoutAttempts,
		Reason:       cause.Error(),
		FailedAt:     s.nowFn().Format(time.RFC3339),
	})
}

func (s *Service) enqueuePayoutEscalated(ctx context.Context, record domain.EscrowRecord) {
	s.emit(ctx, domain.EventEscrowPayoutEscalated, record.RecordID, contracts.PayoutEscalatedPayload{
		RecordID:     record.RecordID,
		AssignmentID: record.AssignmentID,
		WorkerID:     record.WorkerID,
		NetMinor:     record.NetMinor,
		Attempts:     record.PayoutAttempts,
		EscalatedAt:  s.nowFn().Format(time.RFC3339),
	})
}

func (s *Service) enqueueEscrowCancelled(ctx context.Context, record domain.EscrowRecord) {
	s.emit(ctx, domain.EventEscrowCancelled, record.RecordID, contracts.EscrowCancelledPayload{
		RecordID:      record.RecordID,
		AssignmentID:  record.AssignmentID,
		BusinessID:    record.BusinessID,
		RefundedMinor: record.RefundedMinor,
		CancelledAt:   s.nowFn().Format(time.RFC3339),
	})
}

func (s *Service) enqueueDisputeOpened(ctx context.Context, record domain.EscrowRecord) {
	openedAt := s.nowFn()
	if record.Dispute.OpenedAt != nil {
		openedAt = *record.Dispute.OpenedAt
	}
	s.emit(ctx, domain.EventDisputeOpened, record.RecordID, contracts.DisputeOpenedPayload{
		RecordID:     record.RecordID,
		AssignmentID: record.AssignmentID,
		Reason:       record.Dispute.Reason,
		OpenedAt:     openedAt.Format(time.RFC3339),
	})
}

func (s *Service) enqueueDisputeResolved(ctx context.Context, record domain.EscrowRecord) {
	resolvedAt := s.nowFn()
	if record.Dispute.ResolvedAt != nil {
		resolvedAt = *record.Dispute.ResolvedAt
	}
	s.emit(ctx, domain.EventDisputeResolved, record.RecordID, contracts.DisputeResolvedPayload{
		RecordID:            record.RecordID,
		AssignmentID:        record.AssignmentID,
		Resolution:          record.Dispute.Resolution,
		WorkerAmountMinor:   record.Dispute.SplitWorkerAmountMinor,
		BusinessRefundMinor: record.Dispute.SplitBusinessRefundMinor,
		ResolvedAt:          resolvedAt.Format(time.RFC3339),
	})
}

func (s *Service) enqueueAckReminder(ctx context.Context, ack domain.AssignmentAcknowledgment) {
	remindedAt := s.nowFn()
	if ack.ReminderSentAt != nil {
		remindedAt = *ack.ReminderSentAt
	}
	s.emit(ctx, domain.EventAckReminder, ack.AssignmentID, contracts.AckReminderPayload{
		AssignmentID: ack.AssignmentID,
		WorkerID:     ack.WorkerID,
		AssignedAt:   ack.AssignedAt.Format(time.RFC3339),
		RemindedAt:   remindedAt.Format(time.RFC3339),
	})
}

func (s *Service) enqueueAutoCancelled(ctx context.Context, ack domain.AssignmentAcknowledgment, record domain.EscrowRecord) {
	cancelledAt := s.nowFn()
	if ack.AutoCancelledAt != nil {
		cancelledAt = *ack.AutoCancelledAt
	}
	s.emit(ctx, domain.EventAutoCancelled, ack.AssignmentID, contracts.AutoCancelledPayload{
		AssignmentID:  ack.AssignmentID,
		ShiftID:       ack.ShiftID,
		WorkerID:      ack.WorkerID,
		RecordID:      ack.RecordID,
		CancelledAt:   cancelledAt.Format(time.RFC3339),
		RefundedMinor: record.RefundedMinor,
	})
}

func (s *Service) enqueueAcknowledgedLate(ctx context.Context, ack domain.AssignmentAcknowledgment) {
	acknowledgedAt := s.nowFn()
	if ack.AcknowledgedAt != nil {
		acknowledgedAt = *ack.AcknowledgedAt
	}
	s.emit(ctx, domain.EventAcknowledgedLate, ack.AssignmentID, contracts.AcknowledgedLatePayload{
		AssignmentID:   ack.AssignmentID,
		WorkerID:       ack.WorkerID,
		AcknowledgedAt: acknowledgedAt.Format(time.RFC3339),
	})
}

func validateDomainEventEnvelope(event contracts.EventEnvelope, expectedPartitionPath string) error {
	if strings.TrimSpace(event.EventID) == "" {
		return fmt.Errorf("%w: missing event_id", domain.ErrInvalidEnvelope)
	}
	if event.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", domain.ErrInvalidEnvelope)
	}
	if strings.TrimSpace(event.SourceService) == "" {
		return fmt.Errorf("%w: missing source_service", domain.ErrInvalidEnvelope)
	}
	if strings.TrimSpace(event.TraceID) == "" {
		return fmt.Errorf("%w: missing trace_id", domain.ErrInvalidEnvelope)
	}
	if strings.TrimSpace(event.SchemaVersion) == "" {
		return fmt.Errorf("%w: missing schema_version", domain.ErrInvalidEnvelope)
	}
	if len(event.Data) == 0 {
		return fmt.Errorf("%w: missing data payload", domain.ErrInvalidEnvelope)
	}
	if event.PartitionKeyPath != expectedPartitionPath {
		return fmt.Errorf("%w: expected partition_key_path %s", domain.ErrInvalidEnvelope, expectedPartitionPath)
	}
	field := strings.TrimPrefix(event.PartitionKeyPath, "data.")
	if strings.TrimSpace(field) == "" {
		return fmt.Errorf("%w: invalid partition_key_path", domain.ErrInvalidEnvelope)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return fmt.Errorf("%w: invalid data payload", domain.ErrInvalidEnvelope)
	}
	value, ok := payload[field]
	if !ok {
		return fmt.Errorf("%w: partition key field %s missing from payload", domain.ErrInvalidEnvelope, field)
	}
	if fmt.Sprint(value) != event.PartitionKey {
		return fmt.Errorf("%w: partition key invariant failed", domain.ErrInvalidEnvelope)
	}
	return nil
}
