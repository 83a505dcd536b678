package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shiftforge/escrow-payout-service/internal/contracts"
	"github.com/shiftforge/escrow-payout-service/internal/domain"
	"github.com/shiftforge/escrow-payout-service/internal/ports"
)

type Repositories struct {
	Records     ports.EscrowRecordRepository
	Acks        ports.AcknowledgmentRepository
	Ledger      ports.LedgerEntryRepository
	Idempotency ports.IdempotencyRepository
	EventDedup  ports.EventDedupRepository
	Outbox      ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Records:     &escrowRecordRepository{db: db},
		Acks:        &acknowledgmentRepository{db: db},
		Ledger:      &ledgerEntryRepository{db: db},
		Idempotency: &idempotencyRepository{db: db},
		EventDedup:  &eventDedupRepository{db: db},
		Outbox:      &outboxRepository{db: db},
	}
}

type escrowRecordModel struct {
	RecordID           string     `gorm:"column:record_id;type:uuid;primaryKey"`
	AssignmentID       string     `gorm:"column:assignment_id"`
	ShiftID            string     `gorm:"column:shift_id"`
	WorkerID           string     `gorm:"column:worker_id"`
	BusinessID         string     `gorm:"column:business_id"`
	HourlyRateMinor    int64      `gorm:"column:hourly_rate_minor"`
	HoursEstimated     float64    `gorm:"column:hours_estimated"`
	HoursActual        *float64   `gorm:"column:hours_actual"`
	GrossMinor         int64      `gorm:"column:gross_minor"`
	PlatformFeeMinor   int64      `gorm:"column:platform_fee_minor"`
	TaxMinor           int64      `gorm:"column:tax_minor"`
	NetMinor           int64      `gorm:"column:net_minor"`
	EscrowMinor        int64      `gorm:"column:escrow_minor"`
	RefundedMinor      int64      `gorm:"column:refunded_minor"`
	Status             string     `gorm:"column:status"`
	GatewayHoldRef     string     `gorm:"column:gateway_hold_ref"`
	GatewayPayoutRef   string     `gorm:"column:gateway_payout_ref"`
	HeldAt             *time.Time `gorm:"column:held_at"`
	ReleasedAt         *time.Time `gorm:"column:released_at"`
	PayoutInitiatedAt  *time.Time `gorm:"column:payout_initiated_at"`
	PayoutCompletedAt  *time.Time `gorm:"column:payout_completed_at"`
	PayoutAttempts     int        `gorm:"column:payout_attempts"`
	LastGatewayError   string     `gorm:"column:last_gateway_error"`
	Disputed           bool       `gorm:"column:disputed"`
	DisputeOpenedAt    *time.Time `gorm:"column:dispute_opened_at"`
	DisputeReason      string     `gorm:"column:dispute_reason"`
	DisputeResolvedAt  *time.Time `gorm:"column:dispute_resolved_at"`
	DisputeResolution  string     `gorm:"column:dispute_resolution"`
	SplitWorkerMinor   int64      `gorm:"column:split_worker_minor"`
	SplitBusinessMinor int64      `gorm:"column:split_business_minor"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
}

func (escrowRecordModel) TableName() string { return "escrow_records" }

func toEscrowRecordModel(r domain.EscrowRecord) escrowRecordModel {
	return escrowRecordModel{
		RecordID:           r.RecordID,
		AssignmentID:       r.AssignmentID,
		ShiftID:            r.ShiftID,
		WorkerID:           r.WorkerID,
		BusinessID:         r.BusinessID,
		HourlyRateMinor:    r.HourlyRateMinor,
		HoursEstimated:     r.HoursEstimated,
		HoursActual:        r.HoursActual,
		GrossMinor:         r.GrossMinor,
		PlatformFeeMinor:   r.PlatformFeeMinor,
		TaxMinor:           r.TaxMinor,
		NetMinor:           r.NetMinor,
		EscrowMinor:        r.EscrowMinor,
		RefundedMinor:      r.RefundedMinor,
		Status:             string(r.Status),
		GatewayHoldRef:     r.GatewayHoldRef,
		GatewayPayoutRef:   r.GatewayPayoutRef,
		HeldAt:             r.HeldAt,
		ReleasedAt:         r.ReleasedAt,
		PayoutInitiatedAt:  r.PayoutInitiatedAt,
		PayoutCompletedAt:  r.PayoutCompletedAt,
		PayoutAttempts:     r.PayoutAttempts,
		LastGatewayError:   r.LastGatewayError,
		Disputed:           r.Disputed,
		DisputeOpenedAt:    r.Dispute.OpenedAt,
		DisputeReason:      r.Dispute.Reason,
		DisputeResolvedAt:  r.Dispute.ResolvedAt,
		DisputeResolution:  r.Dispute.Resolution,
		SplitWorkerMinor:   r.Dispute.SplitWorkerAmountMinor,
		SplitBusinessMinor: r.Dispute.SplitBusinessRefundMinor,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func (m escrowRecordModel) toDomain() domain.EscrowRecord {
	return domain.EscrowRecord{
		RecordID:          m.RecordID,
		AssignmentID:      m.AssignmentID,
		ShiftID:           m.ShiftID,
		WorkerID:          m.WorkerID,
		BusinessID:        m.BusinessID,
		HourlyRateMinor:   m.HourlyRateMinor,
		HoursEstimated:    m.HoursEstimated,
		HoursActual:       m.HoursActual,
		GrossMinor:        m.GrossMinor,
		PlatformFeeMinor:  m.PlatformFeeMinor,
		TaxMinor:          m.TaxMinor,
		NetMinor:          m.NetMinor,
		EscrowMinor:       m.EscrowMinor,
		RefundedMinor:     m.RefundedMinor,
		Status:            domain.EscrowStatus(m.Status),
		GatewayHoldRef:    m.GatewayHoldRef,
		GatewayPayoutRef:  m.GatewayPayoutRef,
		HeldAt:            m.HeldAt,
		ReleasedAt:        m.ReleasedAt,
		PayoutInitiatedAt: m.PayoutInitiatedAt,
		PayoutCompletedAt: m.PayoutCompletedAt,
		PayoutAttempts:    m.PayoutAttempts,
		LastGatewayError:  m.LastGatewayError,
		Disputed:          m.Disputed,
		Dispute: domain.DisputeCase{
			OpenedAt:                 m.DisputeOpenedAt,
			Reason:                   m.DisputeReason,
			ResolvedAt:               m.DisputeResolvedAt,
			Resolution:               m.DisputeResolution,
			SplitWorkerAmountMinor:   m.SplitWorkerMinor,
			SplitBusinessRefundMinor: m.SplitBusinessMinor,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

type escrowRecordRepository struct {
	db *gorm.DB
}

func (r *escrowRecordRepository) Create(ctx context.Context, record domain.EscrowRecord) error {
	model := toEscrowRecordModel(record)
	err := r.db.WithContext(ctx).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	return err
}

func (r *escrowRecordRepository) GetByID(ctx context.Context, recordID string) (domain.EscrowRecord, error) {
	var model escrowRecordModel
	err := r.db.WithContext(ctx).First(&model, "record_id = ?", recordID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.EscrowRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	return model.toDomain(), nil
}

func (r *escrowRecordRepository) GetByAssignmentID(ctx context.Context, assignmentID string) (domain.EscrowRecord, error) {
	var model escrowRecordModel
	err := r.db.WithContext(ctx).First(&model, "assignment_id = ?", assignmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.EscrowRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.EscrowRecord{}, err
	}
	return model.toDomain(), nil
}

// UpdateIf is the optimistic lock: the UPDATE carries the expected status and
// disputed flag in its WHERE clause, so a concurrent transition makes this a
// zero-row write and the caller observes ErrStatusConflict.
func (r *escrowRecordRepository) UpdateIf(ctx context.Context, record domain.EscrowRecord, expectedStatus domain.EscrowStatus, expectedDisputed bool) error {
	model := toEscrowRecordModel(record)
	tx := r.db.WithContext(ctx).
		Model(&escrowRecordModel{}).
		Where("record_id = ? AND status = ? AND disputed = ?", record.RecordID, string(expectedStatus), expectedDisputed).
		Select("*").
		Omit("record_id", "created_at").
		Updates(&model)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrStatusConflict
	}
	return nil
}

func (r *escrowRecordRepository) ListPayoutDue(ctx context.Context, releasedBefore time.Time, maxAttempts, limit int) ([]domain.EscrowRecord, error) {
	var models []escrowRecordModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND disputed = FALSE AND released_at <= ? AND payout_attempts < ?",
			string(domain.EscrowStatusReleased), releasedBefore, maxAttempts).
		Order("released_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.EscrowRecord, 0, len(models))
	for _, model := range models {
		out = append(out, model.toDomain())
	}
	return out, nil
}

func (r *escrowRecordRepository) ListResidualReturnDue(ctx context.Context, limit int) ([]domain.EscrowRecord, error) {
	var models []escrowRecordModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND disputed = FALSE AND escrow_minor - refunded_minor - gross_minor > 0",
			string(domain.EscrowStatusPaidOut)).
		Order("payout_completed_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.EscrowRecord, 0, len(models))
	for _, model := range models {
		out = append(out, model.toDomain())
	}
	return out, nil
}

type acknowledgmentModel struct {
	AssignmentID    string     `gorm:"column:assignment_id;primaryKey"`
	ShiftID         string     `gorm:"column:shift_id"`
	WorkerID        string     `gorm:"column:worker_id"`
	RecordID        string     `gorm:"column:record_id;type:uuid"`
	AssignedAt      time.Time  `gorm:"column:assigned_at"`
	AcknowledgedAt  *time.Time `gorm:"column:acknowledged_at"`
	ReminderSentAt  *time.Time `gorm:"column:reminder_sent_at"`
	AutoCancelledAt *time.Time `gorm:"column:auto_cancelled_at"`
	LateFlag        bool       `gorm:"column:late_flag"`
}

func (acknowledgmentModel) TableName() string { return "assignment_acknowledgments" }

func (m acknowledgmentModel) toDomain() domain.AssignmentAcknowledgment {
	return domain.AssignmentAcknowledgment{
		AssignmentID:    m.AssignmentID,
		ShiftID:         m.ShiftID,
		WorkerID:        m.WorkerID,
		RecordID:        m.RecordID,
		AssignedAt:      m.AssignedAt,
		AcknowledgedAt:  m.AcknowledgedAt,
		ReminderSentAt:  m.ReminderSentAt,
		AutoCancelledAt: m.AutoCancelledAt,
		LateFlag:        m.LateFlag,
	}
}

type acknowledgmentRepository struct {
	db *gorm.DB
}

func (r *acknowledgmentRepository) Create(ctx context.Context, ack domain.AssignmentAcknowledgment) error {
	model := acknowledgmentModel{
		AssignmentID:    ack.AssignmentID,
		ShiftID:         ack.ShiftID,
		WorkerID:        ack.WorkerID,
		RecordID:        ack.RecordID,
		AssignedAt:      ack.AssignedAt,
		AcknowledgedAt:  ack.AcknowledgedAt,
		ReminderSentAt:  ack.ReminderSentAt,
		AutoCancelledAt: ack.AutoCancelledAt,
		LateFlag:        ack.LateFlag,
	}
	err := r.db.WithContext(ctx).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	return err
}

func (r *acknowledgmentRepository) GetByAssignmentID(ctx context.Context, assignmentID string) (domain.AssignmentAcknowledgment, error) {
	var model acknowledgmentModel
	err := r.db.WithContext(ctx).First(&model, "assignment_id = ?", assignmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.AssignmentAcknowledgment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.AssignmentAcknowledgment{}, err
	}
	return model.toDomain(), nil
}

func (r *acknowledgmentRepository) MarkReminderSent(ctx context.Context, assignmentID string, at time.Time) error {
	tx := r.db.WithContext(ctx).
		Model(&acknowledgmentModel{}).
		Where("assignment_id = ? AND acknowledged_at IS NULL AND auto_cancelled_at IS NULL AND reminder_sent_at IS NULL", assignmentID).
		Update("reminder_sent_at", at)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *acknowledgmentRepository) MarkAcknowledged(ctx context.Context, assignmentID string, at time.Time, late bool) error {
	tx := r.db.WithContext(ctx).
		Model(&acknowledgmentModel{}).
		Where("assignment_id = ? AND acknowledged_at IS NULL AND auto_cancelled_at IS NULL", assignmentID).
		Updates(map[string]interface{}{"acknowledged_at": at, "late_flag": late})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *acknowledgmentRepository) MarkAutoCancelled(ctx context.Context, assignmentID string, at time.Time) error {
	tx := r.db.WithContext(ctx).
		Model(&acknowledgmentModel{}).
		Where("assignment_id = ? AND acknowledged_at IS NULL AND auto_cancelled_at IS NULL", assignmentID).
		Updates(map[string]interface{}{"auto_cancelled_at": at, "late_flag": true})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *acknowledgmentRepository) ListOpen(ctx context.Context, assignedBefore time.Time, limit int) ([]domain.AssignmentAcknowledgment, error) {
	var models []acknowledgmentModel
	err := r.db.WithContext(ctx).
		Where("acknowledged_at IS NULL AND auto_cancelled_at IS NULL AND assigned_at <= ?", assignedBefore).
		Order("assigned_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.AssignmentAcknowledgment, 0, len(models))
	for _, model := range models {
		out = append(out, model.toDomain())
	}
	return out, nil
}

type ledgerEntryModel struct {
	EntryID      string    `gorm:"column:entry_id;type:uuid;primaryKey"`
	RecordID     string    `gorm:"column:record_id;type:uuid"`
	AssignmentID string    `gorm:"column:assignment_id"`
	EntryType    string    `gorm:"column:entry_type"`
	Direction    string    `gorm:"column:direction"`
	AmountMinor  int64     `gorm:"column:amount_minor"`
	PartyID      string    `gorm:"column:party_id"`
	GatewayRef   string    `gorm:"column:gateway_ref"`
	Note         string    `gorm:"column:note"`
	OccurredAt   time.Time `gorm:"column:occurred_at"`
}

func (ledgerEntryModel) TableName() string { return "ledger_entries" }

type ledgerEntryRepository struct {
	db *gorm.DB
}

func (r *ledgerEntryRepository) Append(ctx context.Context, entry domain.LedgerEntry) error {
	model := ledgerEntryModel{
		EntryID:      entry.EntryID,
		RecordID:     entry.RecordID,
		AssignmentID: entry.AssignmentID,
		EntryType:    entry.EntryType,
		Direction:    entry.Direction,
		AmountMinor:  entry.AmountMinor,
		PartyID:      entry.PartyID,
		GatewayRef:   entry.GatewayRef,
		Note:         entry.Note,
		OccurredAt:   entry.OccurredAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *ledgerEntryRepository) ListByRecordID(ctx context.Context, recordID string) ([]domain.LedgerEntry, error) {
	var models []ledgerEntryModel
	err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("occurred_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.LedgerEntry, 0, len(models))
	for _, model := range models {
		out = append(out, domain.LedgerEntry{
			EntryID:      model.EntryID,
			RecordID:     model.RecordID,
			AssignmentID: model.AssignmentID,
			EntryType:    model.EntryType,
			Direction:    model.Direction,
			AmountMinor:  model.AmountMinor,
			PartyID:      model.PartyID,
			GatewayRef:   model.GatewayRef,
			Note:         model.Note,
			OccurredAt:   model.OccurredAt,
		})
	}
	return out, nil
}

type idempotencyModel struct {
	Key          string    `gorm:"column:key;primaryKey"`
	RequestHash  string    `gorm:"column:request_hash"`
	ResponseCode int       `gorm:"column:response_code"`
	ResponseBody []byte    `gorm:"column:response_body"`
	ExpiresAt    time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string { return "idempotency_records" }

type idempotencyRepository struct {
	db *gorm.DB
}

func (r *idempotencyRepository) Get(ctx context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	var model idempotencyModel
	err := r.db.WithContext(ctx).First(&model, "key = ? AND expires_at > ?", key, now).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ports.IdempotencyRecord{
		Key:          model.Key,
		RequestHash:  model.RequestHash,
		ResponseCode: model.ResponseCode,
		ResponseBody: model.ResponseBody,
		ExpiresAt:    model.ExpiresAt,
	}, nil
}

func (r *idempotencyRepository) Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error {
	model := idempotencyModel{Key: key, RequestHash: requestHash, ExpiresAt: expiresAt}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, responseCode int, responseBody []byte, _ time.Time) error {
	return r.db.WithContext(ctx).
		Model(&idempotencyModel{}).
		Where("key = ?", key).
		Updates(map[string]interface{}{"response_code": responseCode, "response_body": responseBody}).Error
}

type eventDedupModel struct {
	EventID   string    `gorm:"column:event_id;primaryKey"`
	EventType string    `gorm:"column:event_type"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
}

func (eventDedupModel) TableName() string { return "event_dedup" }

type eventDedupRepository struct {
	db *gorm.DB
}

func (r *eventDedupRepository) IsDuplicate(ctx context.Context, eventID string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&eventDedupModel{}).
		Where("event_id = ? AND expires_at > ?", eventID, now).
		Count(&count).Error
	return count > 0, err
}

func (r *eventDedupRepository) MarkProcessed(ctx context.Context, eventID, eventType string, expiresAt time.Time) error {
	model := eventDedupModel{EventID: eventID, EventType: eventType, ExpiresAt: expiresAt}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

type outboxModel struct {
	RecordID   string     `gorm:"column:record_id;type:uuid;primaryKey"`
	EventClass string     `gorm:"column:event_class"`
	Envelope   []byte     `gorm:"column:envelope;type:jsonb"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	SentAt     *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string { return "outbox_records" }

type outboxRepository struct {
	db *gorm.DB
}

func (r *outboxRepository) Enqueue(ctx context.Context, record ports.OutboxRecord) error {
	envelope, err := json.Marshal(record.Envelope)
	if err != nil {
		return err
	}
	model := outboxModel{
		RecordID:   record.RecordID,
		EventClass: record.EventClass,
		Envelope:   envelope,
		CreatedAt:  record.CreatedAt,
		SentAt:     record.SentAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *outboxRepository) ListPending(ctx context.Context, limit int) ([]ports.OutboxRecord, error) {
	var models []outboxModel
	err := r.db.WithContext(ctx).
		Where("sent_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]ports.OutboxRecord, 0, len(models))
	for _, model := range models {
		var envelope contracts.EventEnvelope
		if err := json.Unmarshal(model.Envelope, &envelope); err != nil {
			return nil, err
		}
		out = append(out, ports.OutboxRecord{
			RecordID:   model.RecordID,
			EventClass: model.EventClass,
			Envelope:   envelope,
			CreatedAt:  model.CreatedAt,
			SentAt:     model.SentAt,
		})
	}
	return out, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, recordID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("record_id = ?", recordID).
		Update("sent_at", at).Error
}
