package ports

import "context"

// Assignment is the narrow read model this service needs from the
// assignment/shift provider. Everything else about shifts stays external.
type Assignment struct {
	AssignmentID    string
	ShiftID         string
	WorkerID        string
	BusinessID      string
	HourlyRateMinor int64
	HoursEstimated  float64
}

type AssignmentReader interface {
	GetAssignment(ctx context.Context, assignmentID string) (Assignment, error)
}

// StaffingClient gives back the shift slot an auto-cancelled worker occupied.
type StaffingClient interface {
	ReleaseShiftSlot(ctx context.Context, shiftID, assignmentID string) error
}

// PaymentProfileReader resolves platform identities to gateway references.
type PaymentProfileReader interface {
	BusinessPayerRef(ctx context.Context, businessID string) (string, error)
	WorkerPayeeRef(ctx context.Context, workerID string) (string, error)
}
