package domain

import "time"

// AssignmentAcknowledgment tracks a worker's acceptance of an assignment.
// Created alongside the escrow record; immutable once AcknowledgedAt is set.
// AcknowledgedAt and AutoCancelledAt are mutually exclusive; the enforcer and
// the worker race for the row and exactly one of them commits.
type AssignmentAcknowledgment struct {
	AssignmentID    string     `json:"assignment_id"`
	ShiftID         string     `json:"shift_id"`
	WorkerID        string     `json:"worker_id"`
	RecordID        string     `json:"record_id"`
	AssignedAt      time.Time  `json:"assigned_at"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	ReminderSentAt  *time.Time `json:"reminder_sent_at,omitempty"`
	AutoCancelledAt *time.Time `json:"auto_cancelled_at,omitempty"`
	LateFlag        bool       `json:"late_flag"`
}

func (a AssignmentAcknowledgment) Open() bool {
	return a.AcknowledgedAt == nil && a.AutoCancelledAt == nil
}
