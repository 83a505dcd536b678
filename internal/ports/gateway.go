package ports

import "context"

// PaymentGatewayPort abstracts the external payment processor. Amounts are
// integer minor units and every call carries a stable idempotency key derived
// from (recordID, operation), so a retry after a timeout has effect only once
// at the gateway. Implementations reject non-positive amounts before any
// network call and bound each call with the context deadline.
type PaymentGatewayPort interface {
	CaptureHold(ctx context.Context, payerRef string, amountMinor int64, idemKey string) (holdRef string, err error)
	Transfer(ctx context.Context, payeeRef string, amountMinor int64, idemKey string) (transferRef string, err error)
	Refund(ctx context.Context, holdRef string, amountMinor int64, idemKey string) (refundRef string, err error)
}
