package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/shiftforge/escrow-payout-service/internal/domain"
)

// Call is one recorded gateway invocation.
type Call struct {
	Operation   string
	Ref         string
	AmountMinor int64
	IdemKey     string
}

// Memory is a deterministic in-process gateway used by tests and the local
// runtime. It deduplicates on idempotency key exactly like a real processor:
// a repeated key returns the original reference without a second movement.
type Memory struct {
	mu    sync.Mutex
	calls []Call
	byKey map[string]string
	seq   int

	FailCaptures  bool
	FailTransfers bool
	FailRefunds   bool
}

func NewMemory() *Memory {
	return &Memory{byKey: make(map[string]string)}
}

func (g *Memory) CaptureHold(_ context.Context, payerRef string, amountMinor int64, idemKey string) (string, error) {
	return g.execute("capture_hold", payerRef, amountMinor, idemKey, g.FailCaptures)
}

func (g *Memory) Transfer(_ context.Context, payeeRef string, amountMinor int64, idemKey string) (string, error) {
	return g.execute("transfer", payeeRef, amountMinor, idemKey, g.FailTransfers)
}

func (g *Memory) Refund(_ context.Context, holdRef string, amountMinor int64, idemKey string) (string, error) {
	return g.execute("refund", holdRef, amountMinor, idemKey, g.FailRefunds)
}

func (g *Memory) execute(operation, ref string, amountMinor int64, idemKey string, fail bool) (string, error) {
	if err := validateCall(ref, amountMinor, idemKey); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if fail {
		return "", fmt.Errorf("%w: simulated %s failure", domain.ErrGatewayDeclined, operation)
	}
	if existing, ok := g.byKey[idemKey]; ok {
		return existing, nil
	}
	g.seq++
	out := fmt.Sprintf("%s-%04d", operation, g.seq)
	g.byKey[idemKey] = out
	g.calls = append(g.calls, Call{Operation: operation, Ref: ref, AmountMinor: amountMinor, IdemKey: idemKey})
	return out, nil
}

// Calls returns a copy of every money-moving call accepted so far.
func (g *Memory) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallsFor filters accepted calls by operation.
func (g *Memory) CallsFor(operation string) []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, 0)
	for _, call := range g.calls {
		if call.Operation == operation {
			out = append(out, call)
		}
	}
	return out
}
