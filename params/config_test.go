package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.Equal(t, Default(), cfg)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("MARKETS", "TATA_INR, RELI_INR ,")
	t.Setenv("WITH_SNAPSHOT", "true")
	t.Setenv("SNAPSHOT_INTERVAL_MS", "500")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("FEEDER_INTERVAL_MS", "-4")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))

	require.Equal(t, []string{"TATA_INR", "RELI_INR"}, cfg.Engine.Markets)
	require.True(t, cfg.Snapshot.Restore)
	require.Equal(t, 500*time.Millisecond, cfg.Snapshot.Interval)
	require.Equal(t, 2, cfg.Redis.DB)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, Default().Feeder.Interval, cfg.Feeder.Interval, "invalid interval keeps default")
	require.Equal(t, "orders", cfg.Redis.CommandQueue)
}

func TestEnvFileIsOverriddenByEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BASE_CURRENCY=USD\nAPI_ADDR=:9000\n"), 0644))
	t.Setenv("API_ADDR", ":9100")
	// godotenv.Load sets variables in the process; clear them afterwards
	t.Setenv("BASE_CURRENCY", "")
	require.NoError(t, os.Unsetenv("BASE_CURRENCY"))

	cfg := LoadFromEnv(path)

	require.Equal(t, "USD", cfg.Engine.BaseCurrency)
	require.Equal(t, ":9100", cfg.API.Addr)
}
