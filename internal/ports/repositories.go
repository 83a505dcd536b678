package ports

import (
	"context"
	"time"

	"github.com/shiftforge/escrow-payout-service/internal/contracts"
	"github.com/shiftforge/escrow-payout-service/internal/domain"
)

// EscrowRecordRepository persists the aggregate root. UpdateIf is the only
// mutation path after Create: it commits the full row only when the stored
// status and disputed flag still match the expected pre-condition, and
// returns domain.ErrStatusConflict otherwise. That compare-and-swap is the
// sole coordination between sweeps and interactive requests.
type EscrowRecordRepository interface {
	Create(ctx context.Context, record domain.EscrowRecord) error
	GetByID(ctx context.Context, recordID string) (domain.EscrowRecord, error)
	GetByAssignmentID(ctx context.Context, assignmentID string) (domain.EscrowRecord, error)
	UpdateIf(ctx context.Context, record domain.EscrowRecord, expectedStatus domain.EscrowStatus, expectedDisputed bool) error
	ListPayoutDue(ctx context.Context, releasedBefore time.Time, maxAttempts, limit int) ([]domain.EscrowRecord, error)
	// ListResidualReturnDue selects paid_out records still holding captured
	// funds beyond the payable gross, oldest payout first.
	ListResidualReturnDue(ctx context.Context, limit int) ([]domain.EscrowRecord, error)
}

// AcknowledgmentRepository persists acknowledgment rows. MarkAcknowledged and
// MarkAutoCancelled race for the same row; each commits only while the row is
// still open and returns domain.ErrConflict once the other side has won.
type AcknowledgmentRepository interface {
	Create(ctx context.Context, ack domain.AssignmentAcknowledgment) error
	GetByAssignmentID(ctx context.Context, assignmentID string) (domain.AssignmentAcknowledgment, error)
	MarkReminderSent(ctx context.Context, assignmentID string, at time.Time) error
	MarkAcknowledged(ctx context.Context, assignmentID string, at time.Time, late bool) error
	MarkAutoCancelled(ctx context.Context, assignmentID string, at time.Time) error
	ListOpen(ctx context.Context, assignedBefore time.Time, limit int) ([]domain.AssignmentAcknowledgment, error)
}

type LedgerEntryRepository interface {
	Append(ctx context.Context, entry domain.LedgerEntry) error
	ListByRecordID(ctx context.Context, recordID string) ([]domain.LedgerEntry, error)
}

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
}

type EventDedupRepository interface {
	IsDuplicate(ctx context.Context, eventID string, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string, expiresAt time.Time) error
}

type OutboxRecord struct {
	RecordID   string
	EventClass string
	Envelope   contracts.EventEnvelope
	CreatedAt  time.Time
	SentAt     *time.Time
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, record OutboxRecord) error
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, recordID string, at time.Time) error
}
