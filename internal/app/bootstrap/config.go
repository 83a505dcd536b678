package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the escrow payout service.
// It merges file defaults and environment overrides to support both local and
// deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int32

	GatewayBaseURL string
	GatewayAPIKey  string

	AssignmentGRPCURL string
	StaffingGRPCURL   string
	ProfileGRPCURL    string

	KafkaBrokers           []string
	KafkaConsumerGroup     string
	TopicAssignmentCreated string
	TopicShiftCompleted    string
	DLQTopic               string

	IdempotencyTTL       time.Duration
	EventDedupTTL        time.Duration
	ConsumerPollInterval time.Duration
	ConsumerBatchSize    int
	OutboxFlushInterval  time.Duration
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

	AckSweepInterval    time.Duration
	PayoutSweepInterval time.Duration

	LateAckPenaltyPoints    int64
	AutoCancelPenaltyPoints int64
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL            string   `yaml:"postgres_url"`
		RedisURL               string   `yaml:"redis_url"`
		GatewayBaseURL         string   `yaml:"gateway_base_url"`
		GatewayAPIKey          string   `yaml:"gateway_api_key"`
		AssignmentGRPCURL      string   `yaml:"assignment_grpc_url"`
		StaffingGRPCURL        string   `yaml:"staffing_grpc_url"`
		ProfileGRPCURL         string   `yaml:"profile_grpc_url"`
		KafkaBrokers           []string `yaml:"kafka_brokers"`
		KafkaConsumerGroup     string   `yaml:"kafka_consumer_group"`
		TopicAssignmentCreated string   `yaml:"topic_assignment_created"`
		TopicShiftCompleted    string   `yaml:"topic_shift_completed"`
		TopicDLQ               string   `yaml:"topic_dlq"`
	} `yaml:"dependencies"`
	Escrow struct {
		BufferPct               float64 `yaml:"buffer_pct"`
		PlatformFeePct          float64 `yaml:"platform_fee_pct"`
		TaxPct                  float64 `yaml:"tax_pct"`
		CoolingOffMinutes       int     `yaml:"cooling_off_minutes"`
		AckReminderHours        int     `yaml:"ack_reminder_hours"`
		AckCancelHours          int     `yaml:"ack_cancel_hours"`
		MaxPayoutAttempts       int     `yaml:"max_payout_attempts"`
		GatewayTimeoutSeconds   int     `yaml:"gateway_timeout_seconds"`
		SweepBatchSize          int     `yaml:"sweep_batch_size"`
		AckSweepMinutes         int     `yaml:"ack_sweep_minutes"`
		PayoutSweepSeconds      int     `yaml:"payout_sweep_seconds"`
		LateAckPenaltyPoints    int64   `yaml:"late_ack_penalty_points"`
		AutoCancelPenaltyPoints int64   `yaml:"auto_cancel_penalty_points"`
	} `yaml:"escrow"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:               "Escrow-Payout-Service",
		HTTPPort:                8080,
		GRPCPort:                9090,
		MaxDBConns:              20,
		KafkaConsumerGroup:      "escrow-payout-service",
		TopicAssignmentCreated:  "assignment.created",
		TopicShiftCompleted:     "shift.completed",
		DLQTopic:                "escrow-payout.dlq",
		IdempotencyTTL:          7 * 24 * time.Hour,
		EventDedupTTL:           7 * 24 * time.Hour,
		ConsumerPollInterval:    2 * time.Second,
		ConsumerBatchSize:       50,
		OutboxFlushInterval:     2 * time.Second,
		OutboxFlushBatchSize:    100,
		EscrowBufferPct:         0.05,
		PlatformFeePct:          0.10,
		TaxPct:                  0,
		CoolingOffWindow:        15 * time.Minute,
		AckReminderAfter:        2 * time.Hour,
		AckCancelAfter:          6 * time.Hour,
		MaxPayoutAttempts:       5,
		GatewayTimeout:          10 * time.Second,
		SweepBatchSize:          200,
		AckSweepInterval:        15 * time.Minute,
		PayoutSweepInterval:     time.Minute,
		LateAckPenaltyPoints:    1,
		AutoCancelPenaltyPoints: 5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		cfg.DatabaseURL = f.Dependencies.PostgresURL
		cfg.RedisURL = f.Dependencies.RedisURL
		cfg.GatewayBaseURL = f.Dependencies.GatewayBaseURL
		cfg.GatewayAPIKey = f.Dependencies.GatewayAPIKey
		cfg.AssignmentGRPCURL = f.Dependencies.AssignmentGRPCURL
		cfg.StaffingGRPCURL = f.Dependencies.StaffingGRPCURL
		cfg.ProfileGRPCURL = f.Dependencies.ProfileGRPCURL
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
		}
		if f.Dependencies.KafkaConsumerGroup != "" {
			cfg.KafkaConsumerGroup = f.Dependencies.KafkaConsumerGroup
		}
		if f.Dependencies.TopicAssignmentCreated != "" {
			cfg.TopicAssignmentCreated = f.Dependencies.TopicAssignmentCreated
		}
		if f.Dependencies.TopicShiftCompleted != "" {
			cfg.TopicShiftCompleted = f.Dependencies.TopicShiftCompleted
		}
		if f.Dependencies.TopicDLQ != "" {
			cfg.DLQTopic = f.Dependencies.TopicDLQ
		}
		if f.Escrow.BufferPct > 0 {
			cfg.EscrowBufferPct = f.Escrow.BufferPct
		}
		if f.Escrow.PlatformFeePct > 0 {
			cfg.PlatformFeePct = f.Escrow.PlatformFeePct
		}
		if f.Escrow.TaxPct > 0 {
			cfg.TaxPct = f.Escrow.TaxPct
		}
		if f.Escrow.CoolingOffMinutes > 0 {
			cfg.CoolingOffWindow = time.Duration(f.Escrow.CoolingOffMinutes) * time.Minute
		}
		if f.Escrow.AckReminderHours > 0 {
			cfg.AckReminderAfter = time.Duration(f.Escrow.AckReminderHours) * time.Hour
		}
		if f.Escrow.AckCancelHours > 0 {
			cfg.AckCancelAfter = time.Duration(f.Escrow.AckCancelHours) * time.Hour
		}
		if f.Escrow.MaxPayoutAttempts > 0 {
			cfg.MaxPayoutAttempts = f.Escrow.MaxPayoutAttempts
		}
		if f.Escrow.GatewayTimeoutSeconds > 0 {
			cfg.GatewayTimeout = time.Duration(f.Escrow.GatewayTimeoutSeconds) * time.Second
		}
		if f.Escrow.SweepBatchSize > 0 {
			cfg.SweepBatchSize = f.Escrow.SweepBatchSize
		}
		if f.Escrow.AckSweepMinutes > 0 {
			cfg.AckSweepInterval = time.Duration(f.Escrow.AckSweepMinutes) * time.Minute
		}
		if f.Escrow.PayoutSweepSeconds > 0 {
			cfg.PayoutSweepInterval = time.Duration(f.Escrow.PayoutSweepSeconds) * time.Second
		}
		if f.Escrow.LateAckPenaltyPoints > 0 {
			cfg.LateAckPenaltyPoints = f.Escrow.LateAckPenaltyPoints
		}
		if f.Escrow.AutoCancelPenaltyPoints > 0 {
			cfg.AutoCancelPenaltyPoints = f.Escrow.AutoCancelPenaltyPoints
		}
	}

	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.GatewayBaseURL = envOrDefault("GATEWAY_BASE_URL", cfg.GatewayBaseURL)
	cfg.GatewayAPIKey = envOrDefault("GATEWAY_API_KEY", cfg.GatewayAPIKey)
	cfg.AssignmentGRPCURL = envOrDefault("ASSIGNMENT_GRPC_URL", cfg.AssignmentGRPCURL)
	cfg.StaffingGRPCURL = envOrDefault("STAFFING_GRPC_URL", cfg.StaffingGRPCURL)
	cfg.ProfileGRPCURL = envOrDefault("PROFILE_GRPC_URL", cfg.ProfileGRPCURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = envOrDefault("KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)
	cfg.TopicAssignmentCreated = envOrDefault("KAFKA_TOPIC_ASSIGNMENT_CREATED", cfg.TopicAssignmentCreated)
	cfg.TopicShiftCompleted = envOrDefault("KAFKA_TOPIC_SHIFT_COMPLETED", cfg.TopicShiftCompleted)
	cfg.DLQTopic = envOrDefault("KAFKA_TOPIC_DLQ", cfg.DLQTopic)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("MAX_DB_CONNS", int(cfg.MaxDBConns)))
	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour
	cfg.EventDedupTTL = time.Duration(envInt("EVENT_DEDUP_TTL_HOURS", int(cfg.EventDedupTTL.Hours()))) * time.Hour
	cfg.ConsumerPollInterval = time.Duration(envInt("CONSUMER_POLL_SECONDS", int(cfg.ConsumerPollInterval.Seconds()))) * time.Second
	cfg.ConsumerBatchSize = envInt("CONSUMER_BATCH_SIZE", cfg.ConsumerBatchSize)
	cfg.OutboxFlushInterval = time.Duration(envInt("OUTBOX_FLUSH_SECONDS", int(cfg.OutboxFlushInterval.Seconds()))) * time.Second
	cfg.OutboxFlushBatchSize = envInt("OUTBOX_FLUSH_BATCH_SIZE", cfg.OutboxFlushBatchSize)
	cfg.EscrowBufferPct = envFloat("ESCROW_BUFFER_PCT", cfg.EscrowBufferPct)
	cfg.PlatformFeePct = envFloat("PLATFORM_FEE_PCT", cfg.PlatformFeePct)
	cfg.TaxPct = envFloat("TAX_PCT", cfg.TaxPct)
	cfg.CoolingOffWindow = time.Duration(envInt("COOLING_OFF_MINUTES", int(cfg.CoolingOffWindow.Minutes()))) * time.Minute
	cfg.AckReminderAfter = time.Duration(envInt("ACK_REMINDER_HOURS", int(cfg.AckReminderAfter.Hours()))) * time.Hour
	cfg.AckCancelAfter = time.Duration(envInt("ACK_CANCEL_HOURS", int(cfg.AckCancelAfter.Hours()))) * time.Hour
	cfg.MaxPayoutAttempts = envInt("MAX_PAYOUT_ATTEMPTS", cfg.MaxPayoutAttempts)
	cfg.GatewayTimeout = time.Duration(envInt("GATEWAY_TIMEOUT_SECONDS", int(cfg.GatewayTimeout.Seconds()))) * time.Second
	cfg.SweepBatchSize = envInt("SWEEP_BATCH_SIZE", cfg.SweepBatchSize)
	cfg.AckSweepInterval = time.Duration(envInt("ACK_SWEEP_MINUTES", int(cfg.AckSweepInterval.Minutes()))) * time.Minute
	cfg.PayoutSweepInterval = time.Duration(envInt("PAYOUT_SWEEP_SECONDS", int(cfg.PayoutSweepInterval.Seconds()))) * time.Second

	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	items := strings.Split(raw, ",")
	return trimNonEmpty(items)
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
