package domain

import "time"

type EscrowStatus string

const (
	EscrowStatusPending               EscrowStatus = "pending"
	EscrowStatusInEscrow              EscrowStatus = "in_escrow"
	EscrowStatusReleased              EscrowStatus = "released"
	EscrowStatusPaidOut               EscrowStatus = "paid_out"
	EscrowStatusCancelled             EscrowStatus = "cancelled"
	EscrowStatusRefunded              EscrowStatus = "refunded"
	EscrowStatusFailed                EscrowStatus = "failed"
	EscrowStatusPayoutFailedPermanent EscrowStatus = "payout_failed_permanent"

	// Claim statuses. A transition that moves money CAS-es into the matching
	// claim status before calling the gateway, so at most one non-terminal
	// gateway operation is ever in flight per record. A gateway failure
	// reverts the claim; the stable idempotency keys make a replay after a
	// crash mid-claim safe to re-drive.
	EscrowStatusReleasing  EscrowStatus = "releasing"
	EscrowStatusCancelling EscrowStatus = "cancelling"
	EscrowStatusPayingOut  EscrowStatus = "paying_out"
)

const (
	ResolutionReleaseToWorker  = "release_to_worker"
	ResolutionRefundToBusiness = "refund_to_business"
	ResolutionSplit            = "split"
)

// DisputeCase is embedded in the escrow record; a record carries at most one
// open dispute at a time and the full case is retained after resolution.
type DisputeCase struct {
	OpenedAt                 *time.Time `json:"opened_at,omitempty"`
	Reason                   string     `json:"reason,omitempty"`
	ResolvedAt               *time.Time `json:"resolved_at,omitempty"`
	Resolution               string     `json:"resolution,omitempty"`
	SplitWorkerAmountMinor   int64      `json:"split_worker_amount_minor,omitempty"`
	SplitBusinessRefundMinor int64      `json:"split_business_refund_minor,omitempty"`
}

// EscrowRecord is the aggregate root: one per shift assignment, never deleted.
// Terminal rows are the permanent ledger of the transaction. The status column
// doubles as the optimistic lock for every transition.
type EscrowRecord struct {
	RecordID        string       `json:"record_id"`
	AssignmentID    string       `json:"assignment_id"`
	ShiftID         string       `json:"shift_id"`
	WorkerID        string       `json:"worker_id"`
	BusinessID      string       `json:"business_id"`
	HourlyRateMinor int64        `json:"hourly_rate_minor"`
	HoursEstimated  float64      `json:"hours_estimated"`
	HoursActual     *float64     `json:"hours_actual,omitempty"`
	GrossMinor      int64        `json:"gross_minor"`
	PlatformFeeMinor int64       `json:"platform_fee_minor"`
	TaxMinor        int64        `json:"tax_minor"`
	NetMinor        int64        `json:"net_minor"`
	EscrowMinor     int64        `json:"escrow_minor"`
	RefundedMinor   int64        `json:"refunded_minor"`
	Status          EscrowStatus `json:"status"`

	GatewayHoldRef   string `json:"gateway_hold_ref,omitempty"`
	GatewayPayoutRef string `json:"gateway_payout_ref,omitempty"`

	HeldAt            *time.Time `json:"held_at,omitempty"`
	ReleasedAt        *time.Time `json:"released_at,omitempty"`
	PayoutInitiatedAt *time.Time `json:"payout_initiated_at,omitempty"`
	PayoutCompletedAt *time.Time `json:"payout_completed_at,omitempty"`

	PayoutAttempts   int    `json:"payout_attempts"`
	LastGatewayError string `json:"last_gateway_error,omitempty"`

	Disputed bool        `json:"disputed"`
	Dispute  DisputeCase `json:"dispute,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RemainingEscrowMinor is the captured balance the gateway still holds:
// what was captured minus everything refunded so far and, once released,
// the recomputed gross that is earmarked for payout and fees.
func (r EscrowRecord) RemainingEscrowMinor() int64 {
	remaining := r.EscrowMinor - r.RefundedMinor
	if remaining < 0 {
		return 0
	}
	return remaining
}

// BufferResidualMinor is what remains captured beyond the payable gross,
// the safety buffer plus rounding slack, returned to the business at payout.
func (r EscrowRecord) BufferResidualMinor() int64 {
	residual := r.EscrowMinor - r.RefundedMinor - r.GrossMinor
	if residual < 0 {
		return 0
	}
	return residual
}

func (r EscrowRecord) Terminal() bool {
	switch r.Status {
	case EscrowStatusPaidOut, EscrowStatusCancelled, EscrowStatusRefunded,
		EscrowStatusFailed, EscrowStatusPayoutFailedPermanent:
		return true
	default:
		return false
	}
}

// Amounts is the full money derivation for a shift at a given hour count.
type Amounts struct {
	GrossMinor  int64
	FeeMinor    int64
	TaxMinor    int64
	NetMinor    int64
	EscrowMinor int64
}

// ComputeAmounts derives gross, fee, tax, net and the buffered escrow capture
// for rate × hours. Fee, tax and buffer fractions are threaded in explicitly;
// they are platform configuration, never record state.
func ComputeAmounts(rateMinor int64, hours, feePct, taxPct, bufferPct float64) (Amounts, error) {
	gross, err := MulRateByHours(rateMinor, hours)
	if err != nil {
		return Amounts{}, err
	}
	fee, err := PercentOf(gross, feePct)
	if err != nil {
		return Amounts{}, err
	}
	tax, err := PercentOf(gross, taxPct)
	if err != nil {
		return Amounts{}, err
	}
	deductions, err := AddMinor(fee, tax)
	if err != nil {
		return Amounts{}, err
	}
	net, err := SubMinor(gross, deductions)
	if err != nil {
		return Amounts{}, err
	}
	buffer, err := PercentOf(gross, bufferPct)
	if err != nil {
		return Amounts{}, err
	}
	escrow, err := AddMinor(gross, buffer)
	if err != nil {
		return Amounts{}, err
	}
	return Amounts{GrossMinor: gross, FeeMinor: fee, TaxMinor: tax, NetMinor: net, EscrowMinor: escrow}, nil
}

// ValidResolution reports whether the resolution name is one this service applies.
func ValidResolution(resolution string) bool {
	switch resolution {
	case ResolutionReleaseToWorker, ResolutionRefundToBusiness, ResolutionSplit:
		return true
	default:
		return false
	}
}
