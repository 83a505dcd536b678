package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	cacheadapter "github.com/shiftforge/escrow-payout-service/internal/adapters/cache"
	eventadapter "github.com/shiftforge/escrow-payout-service/internal/adapters/events"
	gatewayadapter "github.com/shiftforge/escrow-payout-service/internal/adapters/gateway"
	grpcadapter "github.com/shiftforge/escrow-payout-service/internal/adapters/grpc"
	httpadapter "github.com/shiftforge/escrow-payout-service/internal/adapters/http"
	"github.com/shiftforge/escrow-payout-service/internal/adapters/memory"
	"github.com/shiftforge/escrow-payout-service/internal/adapters/postgres"
	"github.com/shiftforge/escrow-payout-service/internal/application"
	"github.com/shiftforge/escrow-payout-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	outbox     *eventadapter.OutboxWorker
	sweeps     *eventadapter.SweepWorker
	consumer   *eventadapter.ConsumerWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("bootstrapping escrow payout service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	cleanups := []func(){}
	cleanup := func(context.Context) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var (
		records     ports.EscrowRecordRepository
		acks        ports.AcknowledgmentRepository
		ledger      ports.LedgerEntryRepository
		idempotency ports.IdempotencyRepository
		eventDedup  ports.EventDedupRepository
		outboxRepo  ports.OutboxRepository
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		sqlDB, err := pool.DB()
		if err != nil {
			return nil, fmt.Errorf("gorm sql db: %w", err)
		}
		cleanups = append(cleanups, func() { _ = sqlDB.Close() })
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			cleanup(ctx)
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		repos := postgres.NewRepositories(pool)
		records = repos.Records
		acks = repos.Acks
		ledger = repos.Ledger
		idempotency = repos.Idempotency
		eventDedup = repos.EventDedup
		outboxRepo = repos.Outbox
	} else {
		logger.Warn("no database url configured; using in-memory repositories")
		repos := memory.NewRepositories()
		records = repos.Records
		acks = repos.Acks
		ledger = repos.Ledger
		idempotency = repos.Idempotency
		eventDedup = repos.EventDedup
		outboxRepo = repos.Outbox
	}

	var (
		sweepLocks  ports.SweepLockStore
		workerStats ports.WorkerStatsStore
	)
	if cfg.RedisURL != "" {
		redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			cleanup(ctx)
			return nil, fmt.Errorf("init redis client: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			cleanup(ctx)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		cleanups = append(cleanups, func() { _ = redisClient.Close() })
		sweepLocks = cacheadapter.NewRedisSweepLockStore(redisClient)
		workerStats = cacheadapter.NewRedisWorkerStatsStore(redisClient)
	} else {
		logger.Warn("no redis url configured; using in-memory sweep locks and worker stats")
		sweepLocks = memory.NewSweepLockStore()
		workerStats = memory.NewWorkerStatsStore()
	}

	var gateway ports.PaymentGatewayPort
	if cfg.GatewayBaseURL != "" {
		gateway = gatewayadapter.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)
	} else {
		logger.Warn("no gateway base url configured; using in-memory payment gateway")
		gateway = gatewayadapter.NewMemory()
	}

	var (
		domainEvents ports.DomainPublisher
		analytics    ports.AnalyticsPublisher
		dlq          ports.DLQPublisher
		poller       eventadapter.Poller
	)
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, nil, cfg.DLQTopic)
		if err != nil {
			cleanup(ctx)
			return nil, fmt.Errorf("init kafka publisher: %w", err)
		}
		cleanups = append(cleanups, func() { _ = publisher.Close() })
		domainEvents = publisher
		analytics = publisher
		dlq = publisher

		consumer, err := eventadapter.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, []string{
			cfg.TopicAssignmentCreated,
			cfg.TopicShiftCompleted,
		})
		if err != nil {
			cleanup(ctx)
			return nil, fmt.Errorf("init kafka consumer: %w", err)
		}
		cleanups = append(cleanups, func() { _ = consumer.Close() })
		poller = consumer
	} else {
		logger.Warn("no kafka brokers configured; events stay in memory")
		domainEvents = eventadapter.NewMemoryDomainPublisher()
		analytics = eventadapter.NewMemoryAnalyticsPublisher()
		dlq = eventadapter.NewLoggingDLQPublisher(logger)
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:             cfg.ServiceID,
			IdempotencyTTL:          cfg.IdempotencyTTL,
			EventDedupTTL:           cfg.EventDedupTTL,
			OutboxFlushBatchSize:    cfg.OutboxFlushBatchSize,
			EscrowBufferPct:         cfg.EscrowBufferPct,
			PlatformFeePct:          cfg.PlatformFeePct,
			TaxPct:                  cfg.TaxPct,
			CoolingOffWindow:        cfg.CoolingOffWindow,
			AckReminderAfter:        cfg.AckReminderAfter,
			AckCancelAfter:          cfg.AckCancelAfter,
			MaxPayoutAttempts:       cfg.MaxPayoutAttempts,
			GatewayTimeout:          cfg.GatewayTimeout,
			SweepBatchSize:          cfg.SweepBatchSize,
			LateAckPenaltyPoints:    cfg.LateAckPenaltyPoints,
			AutoCancelPenaltyPoints: cfg.AutoCancelPenaltyPoints,
		},
		Logger:       logger,
		Records:      records,
		Acks:         acks,
		Ledger:       ledger,
		Idempotency:  idempotency,
		EventDedup:   eventDedup,
		Outbox:       outboxRepo,
		Gateway:      gateway,
		Assignments:  grpcadapter.NewAssignmentClient(cfg.AssignmentGRPCURL),
		Staffing:     grpcadapter.NewStaffingClient(cfg.StaffingGRPCURL),
		Profiles:     grpcadapter.NewProfileClient(cfg.ProfileGRPCURL),
		SweepLocks:   sweepLocks,
		WorkerStats:  workerStats,
		DomainEvents: domainEvents,
		Analytics:    analytics,
		DLQ:          dlq,
	})

	handler := httpadapter.NewHandler(svc)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	grpcadapter.Register(grpcServer, grpcadapter.NewEscrowInternalServer(svc))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		cleanup(ctx)
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	var consumerWorker *eventadapter.ConsumerWorker
	if poller != nil {
		consumerWorker = eventadapter.NewConsumerWorker(logger, poller, svc, dlq, cfg.ConsumerPollInterval, cfg.ConsumerBatchSize)
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		outbox:     eventadapter.NewOutboxWorker(logger, svc, cfg.OutboxFlushInterval),
		sweeps:     eventadapter.NewSweepWorker(logger, svc, cfg.AckSweepInterval, cfg.PayoutSweepInterval),
		consumer:   consumerWorker,
		cleanupFn:  cleanup,
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 3)
	go func() {
		r.logger.Info("outbox worker started")
		errCh <- r.outbox.Run(ctx)
	}()
	go func() {
		r.logger.Info("sweep worker started")
		errCh <- r.sweeps.Run(ctx)
	}()
	if r.consumer != nil {
		go func() {
			r.logger.Info("consumer worker started")
			errCh <- r.consumer.Run(ctx)
		}()
	}

	err := <-errCh
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
