package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shiftforge/escrow-payout-service/internal/adapters/gateway"
	"github.com/shiftforge/escrow-payout-service/internal/adapters/memory"
	"github.com/shiftforge/escrow-payout-service/internal/contracts"
	"github.com/shiftforge/escrow-payout-service/internal/domain"
	"github.com/shiftforge/escrow-payout-service/internal/ports"
)

// publisherRecorder captures emitted envelopes in place of a broker.
type publisherRecorder struct {
	mu              sync.Mutex
	domainEvents    []contracts.EventEnvelope
	analyticsEvents []contracts.EventEnvelope
}

func (p *publisherRecorder) PublishDomain(_ context.Context, event contracts.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.domainEvents = append(p.domainEvents, event)
	return nil
}

func (p *publisherRecorder) PublishAnalytics(_ context.Context, event contracts.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analyticsEvents = append(p.analyticsEvents, event)
	return nil
}

func (p *publisherRecorder) analyticsTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.analyticsEvents))
	for _, event := range p.analyticsEvents {
		out = append(out, event.EventType)
	}
	return out
}

// hookedGateway lets a test run an interleaved operation right before a
// refund reaches the processor. The hook fires at most once.
type hookedGateway struct {
	inner ports.PaymentGatewayPort

	mu           sync.Mutex
	beforeRefund func()
}

func (g *hookedGateway) CaptureHold(ctx context.Context, payerRef string, amountMinor int64, idemKey string) (string, error) {
	return g.inner.CaptureHold(ctx, payerRef, amountMinor, idemKey)
}

func (g *hookedGateway) Transfer(ctx context.Context, payeeRef string, amountMinor int64, idemKey string) (string, error) {
	return g.inner.Transfer(ctx, payeeRef, amountMinor, idemKey)
}

func (g *hookedGateway) Refund(ctx context.Context, holdRef string, amountMinor int64, idemKey string) (string, error) {
	g.mu.Lock()
	hook := g.beforeRefund
	g.beforeRefund = nil
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	return g.inner.Refund(ctx, holdRef, amountMinor, idemKey)
}

type testEnv struct {
	svc         *Service
	repos       *memory.Repositories
	gateway     *gateway.Memory
	hooks       *hookedGateway
	assignments *memory.AssignmentStore
	staffing    *memory.StaffingRecorder
	stats       *memory.WorkerStatsStore
	bus         *publisherRecorder

	now time.Time
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		repos:       memory.NewRepositories(),
		gateway:     gateway.NewMemory(),
		assignments: memory.NewAssignmentStore(),
		staffing:    memory.NewStaffingRecorder(),
		stats:       memory.NewWorkerStatsStore(),
		bus:         &publisherRecorder{},
		now:         time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}
	env.hooks = &hookedGateway{inner: env.gateway}
	env.assignments.Seed(ports.Assignment{
		AssignmentID:    "asg-1",
		ShiftID:         "shift-1",
		WorkerID:        "wrk-1",
		BusinessID:      "biz-1",
		HourlyRateMinor: 2000,
		HoursEstimated:  5,
	})
	env.svc = NewService(Dependencies{
		Config:       cfg,
		Records:      env.repos.Records,
		Acks:         env.repos.Acks,
		Ledger:       env.repos.Ledger,
		Idempotency:  env.repos.Idempotency,
		EventDedup:   env.repos.EventDedup,
		Outbox:       env.repos.Outbox,
		Gateway:      env.hooks,
		Assignments:  env.assignments,
		Staffing:     env.staffing,
		Profiles:     memory.NewProfileDirectory(),
		SweepLocks:   memory.NewSweepLockStore(),
		WorkerStats:  env.stats,
		DomainEvents: env.bus,
		Analytics:    env.bus,
	})
	env.svc.nowFn = func() time.Time { return env.now }
	return env
}

func (e *testEnv) advance(d time.Duration) { e.now = e.now.Add(d) }

func businessActor(key string) Actor {
	return Actor{SubjectID: "biz-1", Role: "business", RequestID: "req-1", IdempotencyKey: key}
}

func workerActor() Actor {
	return Actor{SubjectID: "wrk-1", Role: "worker", RequestID: "req-2"}
}

func adminActor() Actor {
	return Actor{SubjectID: "ops-1", Role: "admin", RequestID: "req-3", IdempotencyKey: "admin-key"}
}

func (e *testEnv) hold(t *testing.T) domain.EscrowRecord {
	t.Helper()
	record, err := e.svc.Hold(context.Background(), businessActor("hold-key"), HoldInput{AssignmentID: "asg-1"})
	require.NoError(t, err)
	return record
}

func (e *testEnv) release(t *testing.T, recordID string, hours float64) domain.EscrowRecord {
	t.Helper()
	record, err := e.svc.Release(context.Background(), businessActor("release-key"), ReleaseInput{RecordID: recordID, HoursActual: hours})
	require.NoError(t, err)
	return record
}

func (e *testEnv) outboxTypes(t *testing.T) []string {
	t.Helper()
	pending, err := e.repos.Outbox.ListPending(context.Background(), 100)
	require.NoError(t, err)
	out := make([]string, 0, len(pending))
	for _, record := range pending {
		out = append(out, record.Envelope.EventType)
	}
	return out
}

func TestHoldCapturesBufferedEscrow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	require.Equal(t, domain.EscrowStatusInEscrow, record.Status)
	require.Equal(t, int64(10000), record.GrossMinor)
	require.Equal(t, int64(1000), record.PlatformFeeMinor)
	require.Equal(t, int64(9000), record.NetMinor)
	require.Equal(t, int64(10500), record.EscrowMinor)
	require.NotEmpty(t, record.GatewayHoldRef)
	require.NotNil(t, record.HeldAt)

	captures := env.gateway.CallsFor("capture_hold")
	require.Len(t, captures, 1)
	require.Equal(t, int64(10500), captures[0].AmountMinor)
	require.Equal(t, record.RecordID+":capture_hold", captures[0].IdemKey)
	require.Equal(t, "payer:biz-1", captures[0].Ref)

	entries, err := env.repos.Ledger.ListByRecordID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, domain.LedgerEntryEscrowHold, entries[0].EntryType)
	require.Equal(t, domain.LedgerDirectionDebit, entries[0].Direction)
	require.Equal(t, int64(10500), entries[0].AmountMinor)

	ack, err := env.repos.Acks.GetByAssignmentID(ctx, "asg-1")
	require.NoError(t, err)
	require.True(t, ack.Open())
	require.Equal(t, record.RecordID, ack.RecordID)

	require.Equal(t, []string{domain.EventEscrowHoldCompleted}, env.outboxTypes(t))
}

func TestHoldIdempotentReplay(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	first, err := env.svc.Hold(ctx, businessActor("same-key"), HoldInput{AssignmentID: "asg-1"})
	require.NoError(t, err)
	second, err := env.svc.Hold(ctx, businessActor("same-key"), HoldInput{AssignmentID: "asg-1"})
	require.NoError(t, err)

	require.Equal(t, first.RecordID, second.RecordID)
	require.Len(t, env.gateway.CallsFor("capture_hold"), 1)
}

func TestHoldRejectsDuplicateAssignment(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.hold(t)
	_, err := env.svc.Hold(ctx, businessActor("other-key"), HoldInput{AssignmentID: "asg-1"})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestHoldRequiresIdempotencyKey(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})

	actor := businessActor("")
	_, err := env.svc.Hold(context.Background(), actor, HoldInput{AssignmentID: "asg-1"})
	require.ErrorIs(t, err, domain.ErrIdempotencyRequired)
}

func TestHoldGatewayDeclinePersistsFailedRecord(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	env.gateway.FailCaptures = true
	ctx := context.Background()

	record, err := env.svc.Hold(ctx, businessActor("hold-key"), HoldInput{AssignmentID: "asg-1"})
	require.ErrorIs(t, err, domain.ErrGatewayDeclined)
	require.Equal(t, domain.EscrowStatusFailed, record.Status)
	require.NotEmpty(t, record.LastGatewayError)

	stored, err := env.repos.Records.GetByAssignmentID(ctx, "asg-1")
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusFailed, stored.Status)

	require.Contains(t, env.bus.analyticsTypes(), domain.EventEscrowHoldFailed)
	require.Empty(t, env.outboxTypes(t))
}

func TestReleaseRefundsEstimateOverage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	released := env.release(t, record.RecordID, 4)

	require.Equal(t, domain.EscrowStatusReleased, released.Status)
	require.Equal(t, int64(8000), released.GrossMinor)
	require.Equal(t, int64(800), released.PlatformFeeMinor)
	require.Equal(t, int64(7200), released.NetMinor)
	require.Equal(t, int64(2000), released.RefundedMinor)
	require.NotNil(t, released.ReleasedAt)

	refunds := env.gateway.CallsFor("refund")
	require.Len(t, refunds, 1)
	require.Equal(t, int64(2000), refunds[0].AmountMinor)
	require.Equal(t, record.GatewayHoldRef, refunds[0].Ref)

	entries, err := env.repos.Ledger.ListByRecordID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, domain.LedgerEntryBusinessRefund, entries[1].EntryType)
	require.Equal(t, int64(2000), entries[1].AmountMinor)
}

func TestReleaseOverrunNeverRecharges(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})

	record := env.hold(t)
	released := env.release(t, record.RecordID, 6)

	require.Equal(t, int64(12000), released.GrossMinor)
	require.Equal(t, int64(0), released.RefundedMinor)
	require.Empty(t, env.gateway.CallsFor("refund"))
	require.Len(t, env.gateway.CallsFor("capture_hold"), 1)
}

func TestReleaseRequiresInEscrowStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	_, err := env.svc.Cancel(ctx, adminActor(), record.RecordID)
	require.NoError(t, err)

	_, err = env.svc.Release(ctx, businessActor("release-key"), ReleaseInput{RecordID: record.RecordID, HoursActual: 4})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPayoutBlockedDuringCoolingOff(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})

	record := env.hold(t)
	env.release(t, record.RecordID, 4)

	_, err := env.svc.Payout(context.Background(), adminActor(), record.RecordID)
	require.ErrorIs(t, err, domain.ErrCoolingOffActive)
}

func TestPayoutTransfersNetAndReturnsBuffer(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	env.release(t, record.RecordID, 4)
	env.advance(16 * time.Minute)

	paid, err := env.svc.Payout(ctx, adminActor(), record.RecordID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusPaidOut, paid.Status)
	require.Equal(t, int64(2500), paid.RefundedMinor)
	require.NotEmpty(t, paid.GatewayPayoutRef)
	require.NotNil(t, paid.PayoutCompletedAt)

	transfers := env.gateway.CallsFor("transfer")
	require.Len(t, transfers, 1)
	require.Equal(t, int64(7200), transfers[0].AmountMinor)
	require.Equal(t, "payee:wrk-1", transfers[0].Ref)

	refunds := env.gateway.CallsFor("refund")
	require.Len(t, refunds, 2)
	require.Equal(t, int64(500), refunds[1].AmountMinor)

	// Credits must reconcile against the captured escrow debit.
	entries, err := env.repos.Ledger.ListByRecordID(ctx, record.RecordID)
	require.NoError(t, err)
	var debits, credits int64
	for _, entry := range entries {
		switch entry.Direction {
		case domain.LedgerDirectionDebit:
			debits += entry.AmountMinor
		case domain.LedgerDirectionCredit:
			credits += entry.AmountMinor
		}
	}
	require.Equal(t, int64(10500), debits)
	require.Equal(t, debits, credits)

	stats, err := env.stats.Get(ctx, "wrk-1")
	require.NoError(t, err)
	require.Equal(t, int64(7200), stats.LifetimeEarnedMinor)
	require.Equal(t, int64(1), stats.PayoutCount)
}

func TestPayoutRetriesUntilExhausted(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{MaxPayoutAttempts: 2})
	env.gateway.FailTransfers = true
	ctx := context.Background()

	record := env.hold(t)
	env.release(t, record.RecordID, 5)
	env.advance(16 * time.Minute)

	_, err := env.svc.Payout(ctx, adminActor(), record.RecordID)
	require.ErrorIs(t, err, domain.ErrGatewayDeclined)
	stored, err := env.repos.Records.GetByID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusReleased, stored.Status)
	require.Equal(t, 1, stored.PayoutAttempts)
	require.NotEmpty(t, stored.LastGatewayError)

	_, err = env.svc.Payout(ctx, adminActor(), record.RecordID)
	require.ErrorIs(t, err, domain.ErrGatewayDeclined)
	stored, err = env.repos.Records.GetByID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusPayoutFailedPermanent, stored.Status)
	require.Equal(t, 2, stored.PayoutAttempts)

	_, err = env.svc.Payout(ctx, adminActor(), record.RecordID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	types := env.outboxTypes(t)
	require.Contains(t, types, domain.EventEscrowPayoutFailed)
	require.Contains(t, types, domain.EventEscrowPayoutEscalated)
}

func TestCancelReversesEscrowInFull(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	cancelled, err := env.svc.Cancel(ctx, adminActor(), record.RecordID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusCancelled, cancelled.Status)
	require.Equal(t, int64(10500), cancelled.RefundedMinor)

	refunds := env.gateway.CallsFor("refund")
	require.Len(t, refunds, 1)
	require.Equal(t, int64(10500), refunds[0].AmountMinor)

	entries, err := env.repos.Ledger.ListByRecordID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, domain.LedgerEntryEscrowRefund, entries[1].EntryType)
}

func TestReleaseClaimBlocksConcurrentCancel(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)

	var cancelErr error
	env.hooks.beforeRefund = func() {
		_, cancelErr = env.svc.Cancel(ctx, adminActor(), record.RecordID)
	}

	released, err := env.svc.Release(ctx, businessActor("release-key"), ReleaseInput{RecordID: record.RecordID, HoursActual: 4})
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusReleased, released.Status)
	require.ErrorIs(t, cancelErr, domain.ErrInvalidTransition)

	var refunded int64
	for _, call := range env.gateway.CallsFor("refund") {
		refunded += call.AmountMinor
	}
	require.Equal(t, int64(2000), refunded)
	require.LessOrEqual(t, refunded, record.EscrowMinor)
}

func TestCancelClaimBlocksConcurrentRelease(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)

	var releaseErr error
	env.hooks.beforeRefund = func() {
		_, releaseErr = env.svc.Release(ctx, businessActor("release-key"), ReleaseInput{RecordID: record.RecordID, HoursActual: 4})
	}

	cancelled, err := env.svc.Cancel(ctx, adminActor(), record.RecordID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusCancelled, cancelled.Status)
	require.Equal(t, int64(10500), cancelled.RefundedMinor)
	require.ErrorIs(t, releaseErr, domain.ErrInvalidTransition)

	var refunded int64
	for _, call := range env.gateway.CallsFor("refund") {
		refunded += call.AmountMinor
	}
	require.Equal(t, int64(10500), refunded)
}

func TestReleaseRefundFailureLeavesRecordRetryable(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	env.gateway.FailRefunds = true
	_, err := env.svc.Release(ctx, businessActor("release-key"), ReleaseInput{RecordID: record.RecordID, HoursActual: 4})
	require.ErrorIs(t, err, domain.ErrGatewayDeclined)

	stored, err := env.repos.Records.GetByID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusInEscrow, stored.Status)
	require.NotEmpty(t, stored.LastGatewayError)

	env.gateway.FailRefunds = false
	released := env.release(t, record.RecordID, 4)
	require.Equal(t, domain.EscrowStatusReleased, released.Status)
	require.Equal(t, int64(2000), released.RefundedMinor)
	require.Empty(t, released.LastGatewayError)
}

func TestPayoutCommitsTransferWhenBufferReturnFails(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{MaxPayoutAttempts: 1})
	ctx := context.Background()

	record := env.hold(t)
	env.release(t, record.RecordID, 4)
	env.advance(16 * time.Minute)
	env.gateway.FailRefunds = true

	paid, err := env.svc.Payout(ctx, adminActor(), record.RecordID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusPaidOut, paid.Status)
	require.NotEmpty(t, paid.GatewayPayoutRef)
	require.Equal(t, 0, paid.PayoutAttempts)
	require.Equal(t, int64(2000), paid.RefundedMinor)

	stored, err := env.repos.Records.GetByID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusPaidOut, stored.Status)
	require.NotEmpty(t, stored.LastGatewayError)

	transfers := env.gateway.CallsFor("transfer")
	require.Len(t, transfers, 1)
	require.Equal(t, int64(7200), transfers[0].AmountMinor)

	entries, err := env.repos.Ledger.ListByRecordID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, domain.LedgerEntryWorkerPayout, entries[2].EntryType)
	require.Equal(t, int64(7200), entries[2].AmountMinor)

	stats, err := env.stats.Get(ctx, "wrk-1")
	require.NoError(t, err)
	require.Equal(t, int64(7200), stats.LifetimeEarnedMinor)

	// The next sweep settles the outstanding buffer.
	env.gateway.FailRefunds = false
	report, err := env.svc.RunPayoutSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.ResidualReturned)

	settled, err := env.repos.Records.GetByID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Equal(t, int64(2500), settled.RefundedMinor)
	require.Empty(t, settled.LastGatewayError)

	entries, err = env.repos.Ledger.ListByRecordID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	var debits, credits int64
	for _, entry := range entries {
		switch entry.Direction {
		case domain.LedgerDirectionDebit:
			debits += entry.AmountMinor
		case domain.LedgerDirectionCredit:
			credits += entry.AmountMinor
		}
	}
	require.Equal(t, int64(10500), debits)
	require.Equal(t, debits, credits)
}

func TestAcknowledgeOnTime(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.hold(t)
	env.advance(30 * time.Minute)

	ack, err := env.svc.Acknowledge(ctx, workerActor(), "asg-1")
	require.NoError(t, err)
	require.NotNil(t, ack.AcknowledgedAt)
	require.False(t, ack.LateFlag)

	stats, err := env.stats.Get(ctx, "wrk-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), stats.ReliabilityPenalty)
}

func TestAcknowledgeLateAppliesPenalty(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.hold(t)
	env.advance(3 * time.Hour)

	ack, err := env.svc.Acknowledge(ctx, workerActor(), "asg-1")
	require.NoError(t, err)
	require.True(t, ack.LateFlag)

	stats, err := env.stats.Get(ctx, "wrk-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.ReliabilityPenalty)
	require.Contains(t, env.bus.analyticsTypes(), domain.EventAcknowledgedLate)
}

func TestAcknowledgeOtherWorkerForbidden(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})

	env.hold(t)
	actor := Actor{SubjectID: "wrk-2", Role: "worker", RequestID: "req-9"}
	_, err := env.svc.Acknowledge(context.Background(), actor, "asg-1")
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.hold(t)
	first, err := env.svc.Acknowledge(ctx, workerActor(), "asg-1")
	require.NoError(t, err)
	second, err := env.svc.Acknowledge(ctx, workerActor(), "asg-1")
	require.NoError(t, err)
	require.Equal(t, first.AcknowledgedAt.Unix(), second.AcknowledgedAt.Unix())
}

func TestAcknowledgmentSweepSendsOneReminder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.hold(t)
	env.advance(2*time.Hour + time.Minute)

	report, err := env.svc.RunAcknowledgmentSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Scanned)
	require.Equal(t, 1, report.Reminded)

	ack, err := env.repos.Acks.GetByAssignmentID(ctx, "asg-1")
	require.NoError(t, err)
	require.NotNil(t, ack.ReminderSentAt)
	require.Contains(t, env.bus.analyticsTypes(), domain.EventAckReminder)

	report, err = env.svc.RunAcknowledgmentSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Reminded)
	require.Equal(t, 1, report.Skipped)
}

func TestAcknowledgmentSweepAutoCancels(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	env.advance(7 * time.Hour)

	report, err := env.svc.RunAcknowledgmentSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Cancelled)

	ack, err := env.repos.Acks.GetByAssignmentID(ctx, "asg-1")
	require.NoError(t, err)
	require.NotNil(t, ack.AutoCancelledAt)
	require.True(t, ack.LateFlag)

	stored, err := env.repos.Records.GetByID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusCancelled, stored.Status)
	require.Equal(t, int64(10500), stored.RefundedMinor)

	require.Equal(t, []string{"shift-1"}, env.staffing.Released)
	stats, err := env.stats.Get(ctx, "wrk-1")
	require.NoError(t, err)
	require.Equal(t, int64(5), stats.ReliabilityPenalty)

	types := env.outboxTypes(t)
	require.Contains(t, types, domain.EventEscrowCancelled)
	require.Contains(t, types, domain.EventAutoCancelled)
}

func TestAcknowledgeAfterAutoCancelRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	env.hold(t)
	env.advance(7 * time.Hour)
	_, err := env.svc.RunAcknowledgmentSweep(ctx)
	require.NoError(t, err)

	_, err = env.svc.Acknowledge(ctx, workerActor(), "asg-1")
	require.ErrorIs(t, err, domain.ErrAcknowledgmentClosed)
}

func TestAcknowledgmentSweepSkipsAcknowledgedRows(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	_, err := env.svc.Acknowledge(ctx, workerActor(), "asg-1")
	require.NoError(t, err)
	env.advance(7 * time.Hour)

	report, err := env.svc.RunAcknowledgmentSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Scanned)

	stored, err := env.repos.Records.GetByID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusInEscrow, stored.Status)
}

func TestPayoutSweepPaysDueRecords(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	env.release(t, record.RecordID, 4)
	env.advance(16 * time.Minute)

	report, err := env.svc.RunPayoutSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Scanned)
	require.Equal(t, 1, report.Succeeded)

	stored, err := env.repos.Records.GetByID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusPaidOut, stored.Status)
}

func TestPayoutSweepSkipsDisputedRecords(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	env.release(t, record.RecordID, 4)
	_, err := env.svc.OpenDispute(ctx, workerActor(), record.RecordID, "hours under-reported")
	require.NoError(t, err)
	env.advance(16 * time.Minute)

	report, err := env.svc.RunPayoutSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Scanned)

	stored, err := env.repos.Records.GetByID(ctx, record.RecordID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusReleased, stored.Status)
	require.True(t, stored.Disputed)
}

func TestOpenDisputeFreezesRecord(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	disputed, err := env.svc.OpenDispute(ctx, workerActor(), record.RecordID, "shift never happened")
	require.NoError(t, err)
	require.True(t, disputed.Disputed)
	require.NotNil(t, disputed.Dispute.OpenedAt)

	_, err = env.svc.Release(ctx, businessActor("release-key"), ReleaseInput{RecordID: record.RecordID, HoursActual: 4})
	require.ErrorIs(t, err, domain.ErrRecordDisputed)
	_, err = env.svc.Payout(ctx, adminActor(), record.RecordID)
	require.ErrorIs(t, err, domain.ErrRecordDisputed)
	_, err = env.svc.Cancel(ctx, adminActor(), record.RecordID)
	require.ErrorIs(t, err, domain.ErrRecordDisputed)

	_, err = env.svc.OpenDispute(ctx, workerActor(), record.RecordID, "again")
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestOpenDisputeStrangerForbidden(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})

	record := env.hold(t)
	actor := Actor{SubjectID: "usr-9", Role: "user", RequestID: "req-9"}
	_, err := env.svc.OpenDispute(context.Background(), actor, record.RecordID, "unrelated")
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestResolveDisputeRequiresAdmin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	_, err := env.svc.OpenDispute(ctx, workerActor(), record.RecordID, "hours contested")
	require.NoError(t, err)

	_, err = env.svc.ResolveDispute(ctx, businessActor("k"), ResolveDisputeInput{
		RecordID: record.RecordID, Resolution: domain.ResolutionRefundToBusiness,
	})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestResolveDisputeWithoutOpenCase(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})

	record := env.hold(t)
	_, err := env.svc.ResolveDispute(context.Background(), adminActor(), ResolveDisputeInput{
		RecordID: record.RecordID, Resolution: domain.ResolutionReleaseToWorker,
	})
	require.ErrorIs(t, err, domain.ErrNoOpenDispute)
}

func TestResolveDisputeReleaseToWorker(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	_, err := env.svc.OpenDispute(ctx, workerActor(), record.RecordID, "worker completed the shift")
	require.NoError(t, err)

	resolved, err := env.svc.ResolveDispute(ctx, adminActor(), ResolveDisputeInput{
		RecordID: record.RecordID, Resolution: domain.ResolutionReleaseToWorker,
	})
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusPaidOut, resolved.Status)
	require.False(t, resolved.Disputed)
	require.Equal(t, domain.ResolutionReleaseToWorker, resolved.Dispute.Resolution)
	require.NotNil(t, resolved.Dispute.ResolvedAt)
	require.Equal(t, int64(500), resolved.RefundedMinor)

	transfers := env.gateway.CallsFor("transfer")
	require.Len(t, transfers, 1)
	require.Equal(t, int64(9000), transfers[0].AmountMinor)
	refunds := env.gateway.CallsFor("refund")
	require.Len(t, refunds, 1)
	require.Equal(t, int64(500), refunds[0].AmountMinor)
}

func TestResolveDisputeRefundToBusiness(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	_, err := env.svc.OpenDispute(ctx, businessActor("k"), record.RecordID, "shift cancelled on site")
	require.NoError(t, err)

	resolved, err := env.svc.ResolveDispute(ctx, adminActor(), ResolveDisputeInput{
		RecordID: record.RecordID, Resolution: domain.ResolutionRefundToBusiness,
	})
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusRefunded, resolved.Status)
	require.Equal(t, int64(10500), resolved.RefundedMinor)

	refunds := env.gateway.CallsFor("refund")
	require.Len(t, refunds, 1)
	require.Equal(t, int64(10500), refunds[0].AmountMinor)
}

func TestResolveDisputeSplit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	env.release(t, record.RecordID, 4)
	_, err := env.svc.OpenDispute(ctx, workerActor(), record.RecordID, "partial no-show contested")
	require.NoError(t, err)

	_, err = env.svc.ResolveDispute(ctx, adminActor(), ResolveDisputeInput{
		RecordID: record.RecordID, Resolution: domain.ResolutionSplit,
		WorkerAmountMinor: 3000, BusinessRefundMinor: 4000,
	})
	require.ErrorIs(t, err, domain.ErrSplitMismatch)

	resolved, err := env.svc.ResolveDispute(ctx, adminActor(), ResolveDisputeInput{
		RecordID: record.RecordID, Resolution: domain.ResolutionSplit,
		WorkerAmountMinor: 3000, BusinessRefundMinor: 5000,
	})
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusPaidOut, resolved.Status)
	require.Equal(t, int64(3000), resolved.Dispute.SplitWorkerAmountMinor)
	require.Equal(t, int64(5000), resolved.Dispute.SplitBusinessRefundMinor)
	// 2000 release refund plus the 5000 split portion plus the 500 buffer.
	require.Equal(t, int64(7500), resolved.RefundedMinor)

	transfers := env.gateway.CallsFor("transfer")
	require.Len(t, transfers, 1)
	require.Equal(t, int64(3000), transfers[0].AmountMinor)
	refunds := env.gateway.CallsFor("refund")
	require.Len(t, refunds, 2)
	require.Equal(t, int64(5500), refunds[1].AmountMinor)

	stats, err := env.stats.Get(ctx, "wrk-1")
	require.NoError(t, err)
	require.Equal(t, int64(3000), stats.LifetimeEarnedMinor)
}

func TestResolveDisputePinsReattemptParameters(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)
	env.release(t, record.RecordID, 4)
	_, err := env.svc.OpenDispute(ctx, workerActor(), record.RecordID, "hours contested")
	require.NoError(t, err)

	// The worker transfer lands, the business refund is declined: the case
	// stays open with the split parameters pinned.
	env.gateway.FailRefunds = true
	_, err = env.svc.ResolveDispute(ctx, adminActor(), ResolveDisputeInput{
		RecordID: record.RecordID, Resolution: domain.ResolutionSplit,
		WorkerAmountMinor: 3000, BusinessRefundMinor: 5000,
	})
	require.ErrorIs(t, err, domain.ErrGatewayDeclined)
	require.Len(t, env.gateway.CallsFor("transfer"), 1)

	_, err = env.svc.ResolveDispute(ctx, adminActor(), ResolveDisputeInput{
		RecordID: record.RecordID, Resolution: domain.ResolutionSplit,
		WorkerAmountMinor: 4000, BusinessRefundMinor: 4000,
	})
	require.ErrorIs(t, err, domain.ErrResolutionPinned)

	_, err = env.svc.ResolveDispute(ctx, adminActor(), ResolveDisputeInput{
		RecordID: record.RecordID, Resolution: domain.ResolutionRefundToBusiness,
	})
	require.ErrorIs(t, err, domain.ErrResolutionPinned)
	require.Len(t, env.gateway.CallsFor("transfer"), 1)

	// Replaying the pinned parameters dedups the transfer at the gateway and
	// completes the refund.
	env.gateway.FailRefunds = false
	resolved, err := env.svc.ResolveDispute(ctx, adminActor(), ResolveDisputeInput{
		RecordID: record.RecordID, Resolution: domain.ResolutionSplit,
		WorkerAmountMinor: 3000, BusinessRefundMinor: 5000,
	})
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusPaidOut, resolved.Status)
	require.Equal(t, int64(3000), resolved.Dispute.SplitWorkerAmountMinor)
	require.Equal(t, int64(5000), resolved.Dispute.SplitBusinessRefundMinor)
	require.Equal(t, int64(7500), resolved.RefundedMinor)

	require.Len(t, env.gateway.CallsFor("transfer"), 1)
	refunds := env.gateway.CallsFor("refund")
	require.Len(t, refunds, 2)
	require.Equal(t, int64(5500), refunds[1].AmountMinor)

	stats, err := env.stats.Get(ctx, "wrk-1")
	require.NoError(t, err)
	require.Equal(t, int64(3000), stats.LifetimeEarnedMinor)
}

func TestGetRecordAuthorization(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	record := env.hold(t)

	for _, actor := range []Actor{workerActor(), businessActor("k"), adminActor()} {
		got, err := env.svc.GetRecord(ctx, actor, record.RecordID)
		require.NoError(t, err)
		require.Equal(t, record.RecordID, got.RecordID)
	}

	stranger := Actor{SubjectID: "usr-9", Role: "user", RequestID: "req-9"}
	_, err := env.svc.GetRecord(ctx, stranger, record.RecordID)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestGetWorkerStatsScopedToOwner(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	_, err := env.svc.GetWorkerStats(ctx, workerActor(), "wrk-1")
	require.NoError(t, err)

	other := Actor{SubjectID: "wrk-2", Role: "worker", RequestID: "req-9"}
	_, err = env.svc.GetWorkerStats(ctx, other, "wrk-1")
	require.ErrorIs(t, err, domain.ErrForbidden)
}
