package contracts

import (
	"encoding/json"
	"time"
)

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	EventClass       string          `json:"event_class,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    string          `json:"schema_version"`
	Data             json.RawMessage `json:"data"`
}

// Consumed payloads.

type AssignmentCreatedPayload struct {
	AssignmentID    string  `json:"assignment_id"`
	ShiftID         string  `json:"shift_id"`
	WorkerID        string  `json:"worker_id"`
	BusinessID      string  `json:"business_id"`
	HourlyRateMinor int64   `json:"hourly_rate_minor"`
	HoursEstimated  float64 `json:"hours_estimated"`
	AssignedAt      string  `json:"assigned_at"`
}

type ShiftCompletedPayload struct {
	AssignmentID string  `json:"assignment_id"`
	ShiftID      string  `json:"shift_id"`
	HoursActual  float64 `json:"hours_actual"`
	CompletedAt  string  `json:"completed_at"`
}

// Emitted payloads.

type HoldCompletedPayload struct {
	RecordID      string `json:"record_id"`
	AssignmentID  string `json:"assignment_id"`
	BusinessID    string `json:"business_id"`
	WorkerID      string `json:"worker_id"`
	EscrowMinor   int64  `json:"escrow_minor"`
	GrossMinor    int64  `json:"gross_minor"`
	PaymentStatus string `json:"payment_status"`
	HeldAt        string `json:"held_at"`
}

type HoldFailedPayload struct {
	RecordID     string `json:"record_id"`
	AssignmentID string `json:"assignment_id"`
	BusinessID   string `json:"business_id"`
	EscrowMinor  int64  `json:"escrow_minor"`
	Reason       string `json:"reason"`
	FailedAt     string `json:"failed_at"`
}

type ReleaseCompletedPayload struct {
	RecordID      string  `json:"record_id"`
	AssignmentID  string  `json:"assignment_id"`
	HoursActual   float64 `json:"hours_actual"`
	GrossMinor    int64   `json:"gross_minor"`
	NetMinor      int64   `json:"net_minor"`
	RefundedMinor int64   `json:"refunded_minor"`
	ReleasedAt    string  `json:"released_at"`
}

type PayoutCompletedPayload struct {
	RecordID      string `json:"record_id"`
	AssignmentID  string `json:"assignment_id"`
	WorkerID      string `json:"worker_id"`
	NetMinor      int64  `json:"net_minor"`
	ResidualMinor int64  `json:"residual_minor"`
	CompletedAt   string `json:"completed_at"`
}

type PayoutFailedPayload struct {
	RecordID     string `json:"record_id"`
	AssignmentID string `json:"assignment_id"`
	WorkerID     string `json:"worker_id"`
	NetMinor     int64  `json:"net_minor"`
	Attempts     int    `json:"attempts"`
	Reason       string `json:"reason"`
	FailedAt     string `json:"failed_at"`
}

type PayoutEscalatedPayload struct {
	RecordID     string `json:"record_id"`
	AssignmentID string `json:"assignment_id"`
	WorkerID     string `json:"worker_id"`
	NetMinor     int64  `json:"net_minor"`
	Attempts     int    `json:"attempts"`
	EscalatedAt  string `json:"escalated_at"`
}

type EscrowCancelledPayload struct {
	RecordID      string `json:"record_id"`
	AssignmentID  string `json:"assignment_id"`
	BusinessID    string `json:"business_id"`
	RefundedMinor int64  `json:"refunded_minor"`
	CancelledAt   string `json:"cancelled_at"`
}

type DisputeOpenedPayload struct {
	RecordID     string `json:"record_id"`
	AssignmentID string `json:"assignment_id"`
	Reason       string `json:"reason"`
	OpenedAt     string `json:"opened_at"`
}

type DisputeResolvedPayload struct {
	RecordID            string `json:"record_id"`
	AssignmentID        string `json:"assignment_id"`
	Resolution          string `json:"resolution"`
	WorkerAmountMinor   int64  `json:"worker_amount_minor"`
	BusinessRefundMinor int64  `json:"business_refund_minor"`
	ResolvedAt          string `json:"resolved_at"`
}

type AckReminderPayload struct {
	AssignmentID string `json:"assignment_id"`
	WorkerID     string `json:"worker_id"`
	AssignedAt   string `json:"assigned_at"`
	RemindedAt   string `json:"reminded_at"`
}

type AutoCancelledPayload struct {
	AssignmentID  string `json:"assignment_id"`
	ShiftID       string `json:"shift_id"`
	WorkerID      string `json:"worker_id"`
	RecordID      string `json:"record_id"`
	CancelledAt   string `json:"cancelled_at"`
	RefundedMinor int64  `json:"refunded_minor"`
}

type AcknowledgedLatePayload struct {
	AssignmentID   string `json:"assignment_id"`
	WorkerID       string `json:"worker_id"`
	AcknowledgedAt string `json:"acknowledged_at"`
}

type DLQRecord struct {
	OriginalEvent EventEnvelope `json:"original_event"`
	ErrorSummary  string        `json:"error_summary"`
	RetryCount    int           `json:"retry_count"`
	FirstSeenAt   time.Time     `json:"first_seen_at"`
	LastErrorAt   time.Time     `json:"last_error_at"`
	SourceTopic   string        `json:"source_topic,omitempty"`
	TraceID       string        `json:"trace_id,omitempty"`
}
