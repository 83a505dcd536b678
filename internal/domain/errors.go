package domain

import "errors"

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrConflict              = errors.New("conflict")
	ErrIdempotencyRequired   = errors.New("idempotency key required")
	ErrIdempotencyConflict   = errors.New("idempotency conflict")
	ErrUnsupportedEventType  = errors.New("unsupported event type")
	ErrUnsupportedEventClass = errors.New("unsupported event class")
	ErrInvalidEnvelope       = errors.New("invalid envelope")

	ErrInvalidAmount  = errors.New("invalid amount")
	ErrAmountOverflow = errors.New("amount overflow")

	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrStatusConflict       = errors.New("status changed concurrently")
	ErrRecordDisputed       = errors.New("record frozen by open dispute")
	ErrNoOpenDispute        = errors.New("no open dispute on record")
	ErrCoolingOffActive     = errors.New("cooling-off window has not elapsed")
	ErrPayoutExhausted      = errors.New("payout retries exhausted")
	ErrSplitMismatch        = errors.New("split amounts do not reconcile with released gross")
	ErrResolutionPinned     = errors.New("earlier resolution attempt pinned different parameters")
	ErrAcknowledgmentClosed = errors.New("assignment already auto-cancelled")
	ErrGatewayDeclined      = errors.New("payment gateway declined")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
)
