package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shiftforge/escrow-payout-service/internal/domain"
	"github.com/shiftforge/escrow-payout-service/internal/ports"
)

// Repositories bundles the in-memory implementations used by tests and by
// the local runtime when no database is configured. Semantics mirror the
// postgres adapter, including the compare-and-swap rules.
type Repositories struct {
	Records     *EscrowRecordRepository
	Acks        *AcknowledgmentRepository
	Ledger      *LedgerEntryRepository
	Idempotency *IdempotencyRepository
	EventDedup  *EventDedupRepository
	Outbox      *OutboxRepository
}

func NewRepositories() *Repositories {
	return &Repositories{
		Records:     &EscrowRecordRepository{records: make(map[string]domain.EscrowRecord), byAssignment: make(map[string]string)},
		Acks:        &AcknowledgmentRepository{acks: make(map[string]domain.AssignmentAcknowledgment)},
		Ledger:      &LedgerEntryRepository{},
		Idempotency: &IdempotencyRepository{records: make(map[string]ports.IdempotencyRecord)},
		EventDedup:  &EventDedupRepository{records: make(map[string]dedupRecord)},
		Outbox:      &OutboxRepository{records: make(map[string]ports.OutboxRecord)},
	}
}

type EscrowRecordRepository struct {
	mu           sync.RWMutex
	records      map[string]domain.EscrowRecord
	byAssignment map[string]string
}

func (r *EscrowRecordRepository) Create(_ context.Context, record domain.EscrowRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.RecordID]; ok {
		return domain.ErrConflict
	}
	if _, ok := r.byAssignment[record.AssignmentID]; ok {
		return domain.ErrConflict
	}
	r.records[record.RecordID] = record
	r.byAssignment[record.AssignmentID] = record.RecordID
	return nil
}

func (r *EscrowRecordRepository) GetByID(_ context.Context, recordID string) (domain.EscrowRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[recordID]
	if !ok {
		return domain.EscrowRecord{}, domain.ErrNotFound
	}
	return record, nil
}

func (r *EscrowRecordRepository) GetByAssignmentID(_ context.Context, assignmentID string) (domain.EscrowRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recordID, ok := r.byAssignment[assignmentID]
	if !ok {
		return domain.EscrowRecord{}, domain.ErrNotFound
	}
	return r.records[recordID], nil
}

func (r *EscrowRecordRepository) UpdateIf(_ context.Context, record domain.EscrowRecord, expectedStatus domain.EscrowStatus, expectedDisputed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.records[record.RecordID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Status != expectedStatus || current.Disputed != expectedDisputed {
		return domain.ErrStatusConflict
	}
	r.records[record.RecordID] = record
	return nil
}

func (r *EscrowRecordRepository) ListPayoutDue(_ context.Context, releasedBefore time.Time, maxAttempts, limit int) ([]domain.EscrowRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.EscrowRecord, 0)
	for _, record := range r.records {
		if record.Status != domain.EscrowStatusReleased || record.Disputed {
			continue
		}
		if record.ReleasedAt == nil || record.ReleasedAt.After(releasedBefore) {
			continue
		}
		if record.PayoutAttempts >= maxAttempts {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReleasedAt.Before(*out[j].ReleasedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *EscrowRecordRepository) ListResidualReturnDue(_ context.Context, limit int) ([]domain.EscrowRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.EscrowRecord, 0)
	for _, record := range r.records {
		if record.Status != domain.EscrowStatusPaidOut || record.Disputed {
			continue
		}
		if record.BufferResidualMinor() == 0 {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		left, right := out[i].PayoutCompletedAt, out[j].PayoutCompletedAt
		if left == nil || right == nil {
			return out[i].RecordID < out[j].RecordID
		}
		return left.Before(*right)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type AcknowledgmentRepository struct {
	mu   sync.RWMutex
	acks map[string]domain.AssignmentAcknowledgment
}

func (r *AcknowledgmentRepository) Create(_ context.Context, ack domain.AssignmentAcknowledgment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.acks[ack.AssignmentID]; ok {
		return domain.ErrConflict
	}
	r.acks[ack.AssignmentID] = ack
	return nil
}

func (r *AcknowledgmentRepository) GetByAssignmentID(_ context.Context, assignmentID string) (domain.AssignmentAcknowledgment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ack, ok := r.acks[assignmentID]
	if !ok {
		return domain.AssignmentAcknowledgment{}, domain.ErrNotFound
	}
	return ack, nil
}

func (r *AcknowledgmentRepository) MarkReminderSent(_ context.Context, assignmentID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ack, ok := r.acks[assignmentID]
	if !ok {
		return domain.ErrNotFound
	}
	if !ack.Open() || ack.ReminderSentAt != nil {
		return domain.ErrConflict
	}
	ack.ReminderSentAt = &at
	r.acks[assignmentID] = ack
	return nil
}

func (r *AcknowledgmentRepository) MarkAcknowledged(_ context.Context, assignmentID string, at time.Time, late bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ack, ok := r.acks[assignmentID]
	if !ok {
		return domain.ErrNotFound
	}
	if !ack.Open() {
		return domain.ErrConflict
	}
	ack.AcknowledgedAt = &at
	ack.LateFlag = late
	r.acks[assignmentID] = ack
	return nil
}

func (r *AcknowledgmentRepository) MarkAutoCancelled(_ context.Context, assignmentID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ack, ok := r.acks[assignmentID]
	if !ok {
		return domain.ErrNotFound
	}
	if !ack.Open() {
		return domain.ErrConflict
	}
	ack.AutoCancelledAt = &at
	ack.LateFlag = true
	r.acks[assignmentID] = ack
	return nil
}

func (r *AcknowledgmentRepository) ListOpen(_ context.Context, assignedBefore time.Time, limit int) ([]domain.AssignmentAcknowledgment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AssignmentAcknowledgment, 0)
	for _, ack := range r.acks {
		if !ack.Open() || ack.AssignedAt.After(assignedBefore) {
			continue
		}
		out = append(out, ack)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.Before(out[j].AssignedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type LedgerEntryRepository struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
}

func (r *LedgerEntryRepository) Append(_ context.Context, entry domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *LedgerEntryRepository) ListByRecordID(_ context.Context, recordID string) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.LedgerEntry, 0)
	for _, entry := range r.entries {
		if entry.RecordID == recordID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type IdempotencyRepository struct {
	mu      sync.Mutex
	records map[string]ports.IdempotencyRecord
}

func (r *IdempotencyRepository) Get(_ context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok || now.After(rec.ExpiresAt) {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (r *IdempotencyRepository) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[key]; ok && existing.ExpiresAt.After(time.Now().UTC()) {
		return domain.ErrConflict
	}
	r.records[key] = ports.IdempotencyRecord{Key: key, RequestHash: requestHash, ExpiresAt: expiresAt}
	return nil
}

func (r *IdempotencyRepository) Complete(_ context.Context, key string, responseCode int, responseBody []byte, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return domain.ErrNotFound
	}
	rec.ResponseCode = responseCode
	rec.ResponseBody = responseBody
	r.records[key] = rec
	return nil
}

type dedupRecord struct {
	eventType string
	expiresAt time.Time
}

type EventDedupRepository struct {
	mu      sync.Mutex
	records map[string]dedupRecord
}

func (r *EventDedupRepository) IsDuplicate(_ context.Context, eventID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[eventID]
	if !ok || now.After(rec.expiresAt) {
		return false, nil
	}
	return true, nil
}

func (r *EventDedupRepository) MarkProcessed(_ context.Context, eventID, eventType string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[eventID] = dedupRecord{eventType: eventType, expiresAt: expiresAt}
	return nil
}

type OutboxRepository struct {
	mu      sync.Mutex
	records map[string]ports.OutboxRecord
	order   []string
}

func (r *OutboxRepository) Enqueue(_ context.Context, record ports.OutboxRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.RecordID]; ok {
		return domain.ErrConflict
	}
	r.records[record.RecordID] = record
	r.order = append(r.order, record.RecordID)
	return nil
}

func (r *OutboxRepository) ListPending(_ context.Context, limit int) ([]ports.OutboxRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.OutboxRecord, 0)
	for _, id := range r.order {
		record := r.records[id]
		if record.SentAt != nil {
			continue
		}
		out = append(out, record)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, recordID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[recordID]
	if !ok {
		return domain.ErrNotFound
	}
	record.SentAt = &at
	r.records[recordID] = record
	return nil
}
