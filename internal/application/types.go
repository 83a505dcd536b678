package application

import (
	"log/slog"
	"time"

	"github.com/shiftforge/escrow-payout-service/internal/ports"
)

type Config struct {
	ServiceName          string
	IdempotencyTTL       time.Duration
	EventDedupTTL        time.Duration
	OutboxFlushBatchSize int

	EscrowBufferPct float64
	PlatformFeePct  float64
	TaxPct          float64

	CoolingOffWindow  time.Duration
	AckReminderAfter  time.Duration
	AckCancelAfter    time.Duration
	MaxPayoutAttempts int
	GatewayTimeout    time.Duration
	SweepBatchSize    int

	LateAckPenaltyPoints    int64
	AutoCancelPenaltyPoints int64
}

type Actor struct {
	SubjectID      string
	Role           string
	RequestID      string
	IdempotencyKey string
}

type HoldInput struct {
	AssignmentID string
}

type ReleaseInput struct {
	RecordID    string
	HoursActual float64
}

type ResolveDisputeInput struct {
	RecordID            string
	Resolution          string
	WorkerAmountMinor   int64
	BusinessRefundMinor int64
}

// AckSweepReport summarizes one acknowledgment enforcement pass.
type AckSweepReport struct {
	Scanned   int
	Reminded  int
	Cancelled int
	Skipped   int
}

// PayoutSweepReport summarizes one payout scheduling pass.
type PayoutSweepReport struct {
	Scanned          int
	Attempted        int
	Succeeded        int
	Failed           int
	Skipped          int
	ResidualReturned int
}

type Service struct {
	cfg    Config
	logger *slog.Logger

	records     ports.EscrowRecordRepository
	acks        ports.AcknowledgmentRepository
	ledger      ports.LedgerEntryRepository
	idempotency ports.IdempotencyRepository
	eventDedup  ports.EventDedupRepository
	outbox      ports.OutboxRepository

	gateway     ports.PaymentGatewayPort
	assignments ports.AssignmentReader
	staffing    ports.StaffingClient
	profiles    ports.PaymentProfileReader

	sweepLocks  ports.SweepLockStore
	workerStats ports.WorkerStatsStore

	domainEvents ports.DomainPublisher
	analytics    ports.AnalyticsPublisher
	dlq          ports.DLQPublisher

	nowFn func() time.Time
}

type Dependencies struct {
	Config       Config
	Logger       *slog.Logger
	Records      ports.EscrowRecordRepository
	Acks         ports.AcknowledgmentRepository
	Ledger       ports.LedgerEntryRepository
	Idempotency  ports.IdempotencyRepository
	EventDedup   ports.EventDedupRepository
	Outbox       ports.OutboxRepository
	Gateway      ports.PaymentGatewayPort
	Assignments  ports.AssignmentReader
	Staffing     ports.StaffingClient
	Profiles     ports.PaymentProfileReader
	SweepLocks   ports.SweepLockStore
	WorkerStats  ports.WorkerStatsStore
	DomainEvents ports.DomainPublisher
	Analytics    ports.AnalyticsPublisher
	DLQ          ports.DLQPublisher
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "Escrow-Payout-Service"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 7 * 24 * time.Hour
	}
	if cfg.EventDedupTTL <= 0 {
		cfg.EventDedupTTL = 7 * 24 * time.Hour
	}
	if cfg.OutboxFlushBatchSize <= 0 {
		cfg.OutboxFlushBatchSize = 100
	}
	if cfg.EscrowBufferPct <= 0 {
		cfg.EscrowBufferPct = 0.05
	}
	if cfg.PlatformFeePct <= 0 {
		cfg.PlatformFeePct = 0.10
	}
	if cfg.TaxPct < 0 {
		cfg.TaxPct = 0
	}
	if cfg.CoolingOffWindow <= 0 {
		cfg.CoolingOffWindow = 15 * time.Minute
	}
	if cfg.AckReminderAfter <= 0 {
		cfg.AckReminderAfter = 2 * time.Hour
	}
	if cfg.AckCancelAfter <= 0 {
		cfg.AckCancelAfter = 6 * time.Hour
	}
	if cfg.MaxPayoutAttempts <= 0 {
		cfg.MaxPayoutAttempts = 5
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 200
	}
	if cfg.LateAckPenaltyPoints <= 0 {
		cfg.LateAckPenaltyPoints = 1
	}
	if cfg.AutoCancelPenaltyPoints <= 0 {
		cfg.AutoCancelPenaltyPoints = 5
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:          cfg,
		logger:       logger,
		records:      deps.Records,
		acks:         deps.Acks,
		ledger:       deps.Ledger,
		idempotency:  deps.Idempotency,
		eventDedup:   deps.EventDedup,
		outbox:       deps.Outbox,
		gateway:      deps.Gateway,
		assignments:  deps.Assignments,
		staffing:     deps.Staffing,
		profiles:     deps.Profiles,
		sweepLocks:   deps.SweepLocks,
		workerStats:  deps.WorkerStats,
		domainEvents: deps.DomainEvents,
		analytics:    deps.Analytics,
		dlq:          deps.DLQ,
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
}
