package grpc

import (
	"context"

	"github.com/shiftforge/escrow-payout-service/internal/ports"
)

type AssignmentClient struct{}
type StaffingClient struct{}
type ProfileClient struct{}

func NewAssignmentClient(_ string) *AssignmentClient { return &AssignmentClient{} }
func NewStaffingClient(_ string) *StaffingClient     { return &StaffingClient{} }
func NewProfileClient(_ string) *ProfileClient       { return &ProfileClient{} }

func (c *AssignmentClient) GetAssignment(_ context.Context, assignmentID string) (ports.Assignment, error) {
	return ports.Assignment{
		AssignmentID:    assignmentID,
		ShiftID:         "shift-" + assignmentID,
		WorkerID:        "worker-" + assignmentID,
		BusinessID:      "business-" + assignmentID,
		HourlyRateMinor: 2000,
		HoursEstimated:  8,
	}, nil
}

func (c *StaffingClient) ReleaseShiftSlot(_ context.Context, _, _ string) error {
	return nil
}

func (c *ProfileClient) BusinessPayerRef(_ context.Context, businessID string) (string, error) {
	return "payer:" + businessID, nil
}

func (c *ProfileClient) WorkerPayeeRef(_ context.Context, workerID string) (string, error) {
	return "payee:" + workerID, nil
}
