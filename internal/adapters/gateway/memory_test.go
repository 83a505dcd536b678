package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shiftforge/escrow-payout-service/internal/domain"
)

func TestMemoryDeduplicatesOnIdempotencyKey(t *testing.T) {
	t.Parallel()
	gw := NewMemory()
	ctx := context.Background()

	first, err := gw.CaptureHold(ctx, "payer:biz-1", 10500, "rec-1:capture_hold")
	require.NoError(t, err)
	second, err := gw.CaptureHold(ctx, "payer:biz-1", 10500, "rec-1:capture_hold")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, gw.CallsFor("capture_hold"), 1)
}

func TestMemoryRejectsInvalidCalls(t *testing.T) {
	t.Parallel()
	gw := NewMemory()
	ctx := context.Background()

	_, err := gw.Transfer(ctx, "", 100, "key")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = gw.Transfer(ctx, "payee:wrk-1", 0, "key")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = gw.Refund(ctx, "hold-1", 100, "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	require.Empty(t, gw.Calls())
}

func TestMemorySimulatedDeclines(t *testing.T) {
	t.Parallel()
	gw := NewMemory()
	gw.FailTransfers = true
	ctx := context.Background()

	_, err := gw.Transfer(ctx, "payee:wrk-1", 7200, "rec-1:worker_transfer")
	require.ErrorIs(t, err, domain.ErrGatewayDeclined)
	require.Empty(t, gw.Calls())

	// Captures and refunds keep working when only transfers fail.
	_, err = gw.CaptureHold(ctx, "payer:biz-1", 10500, "rec-1:capture_hold")
	require.NoError(t, err)
}
