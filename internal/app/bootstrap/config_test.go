package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, "Escrow-Payout-Service", cfg.ServiceID)
	require.Equal(t, 8080, cfg.HTTPPort)
	require.Equal(t, 9090, cfg.GRPCPort)
	require.Equal(t, 0.05, cfg.EscrowBufferPct)
	require.Equal(t, 0.10, cfg.PlatformFeePct)
	require.Equal(t, 15*time.Minute, cfg.CoolingOffWindow)
	require.Equal(t, 2*time.Hour, cfg.AckReminderAfter)
	require.Equal(t, 6*time.Hour, cfg.AckCancelAfter)
	require.Equal(t, 5, cfg.MaxPayoutAttempts)
	require.Equal(t, "assignment.created", cfg.TopicAssignmentCreated)
	require.Equal(t, "shift.completed", cfg.TopicShiftCompleted)
	require.Equal(t, "escrow-payout.dlq", cfg.DLQTopic)
	require.Empty(t, cfg.DatabaseURL)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
service:
  id: Escrow-Payout-Service-Staging
  http_port: 8180
dependencies:
  postgres_url: postgres://localhost:5432/escrow
  kafka_brokers:
    - broker-1:9092
    - broker-2:9092
escrow:
  buffer_pct: 0.08
  cooling_off_minutes: 30
  max_payout_attempts: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "Escrow-Payout-Service-Staging", cfg.ServiceID)
	require.Equal(t, 8180, cfg.HTTPPort)
	require.Equal(t, "postgres://localhost:5432/escrow", cfg.DatabaseURL)
	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 0.08, cfg.EscrowBufferPct)
	require.Equal(t, 30*time.Minute, cfg.CoolingOffWindow)
	require.Equal(t, 3, cfg.MaxPayoutAttempts)
	// File values the yaml omits keep their defaults.
	require.Equal(t, 9090, cfg.GRPCPort)
	require.Equal(t, 0.10, cfg.PlatformFeePct)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
dependencies:
  postgres_url: postgres://file-host:5432/escrow
escrow:
  max_payout_attempts: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("DATABASE_URL", "postgres://env-host:5432/escrow")
	t.Setenv("MAX_PAYOUT_ATTEMPTS", "7")
	t.Setenv("ESCROW_BUFFER_PCT", "0.02")
	t.Setenv("KAFKA_BROKERS", "broker-a:9092, broker-b:9092")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "postgres://env-host:5432/escrow", cfg.DatabaseURL)
	require.Equal(t, 7, cfg.MaxPayoutAttempts)
	require.Equal(t, 0.02, cfg.EscrowBufferPct)
	require.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.KafkaBrokers)
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service: ["), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}
