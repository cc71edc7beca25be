package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Kronos/internal/repo"
	"github.com/shaiso/Kronos/internal/store"
)

// clearEnv убирает переменные, которые могли прийти из окружения CI.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"KRONOS_CONFIG", "DB_URL", "RABBITMQ_URL", "REDIS_URL", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, store.DefaultAddr, cfg.Redis.Addr)
	assert.Equal(t, store.DefaultPrefix, cfg.Redis.Prefix)
	assert.Equal(t, time.Millisecond, cfg.Redis.Resolution)
	assert.Equal(t, time.Hour, cfg.Redis.PayloadGrace)
	assert.Equal(t, repo.DefaultURL, cfg.Database.URL)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 3, cfg.Scheduler.RearmAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Scheduler.RearmBackoff)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.ListenerMaxBackoff)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("KRONOS_LOG_LEVEL", "debug")
	t.Setenv("KRONOS_REDIS_MODE", "cluster")
	t.Setenv("KRONOS_REDIS_CLUSTER_ADDRS", "10.0.0.1:6379,10.0.0.2:6379")
	t.Setenv("KRONOS_REDIS_PAYLOAD_GRACE", "2h")
	t.Setenv("KRONOS_SCHEDULER_TIMEZONE", "Europe/Berlin")
	t.Setenv("KRONOS_HTTP_RATE_LIMIT", "5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "cluster", cfg.Redis.Mode)
	assert.Equal(t, []string{"10.0.0.1:6379", "10.0.0.2:6379"}, cfg.Redis.ClusterAddrs)
	assert.Equal(t, 2*time.Hour, cfg.Redis.PayloadGrace)
	assert.Equal(t, float64(5), cfg.HTTP.RateLimit)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoad_LegacyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_URL", "postgresql://legacy/db")
	t.Setenv("REDIS_URL", "redis://legacy:6379/2")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgresql://legacy/db", cfg.Database.URL)
	assert.Equal(t, "redis://legacy:6379/2", cfg.Redis.URL)
	assert.Equal(t, "text", cfg.Log.Format)

	// новое имя важнее старого
	t.Setenv("KRONOS_DATABASE_URL", "postgresql://new/db")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgresql://new/db", cfg.Database.URL)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "kronos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
redis:
  addr: redis.internal:6380
  prefix: jobs
scheduler:
  rearm_attempts: 5
  rearm_backoff: 1s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "jobs", cfg.Redis.Prefix)
	assert.Equal(t, 5, cfg.Scheduler.RearmAttempts)
	assert.Equal(t, time.Second, cfg.Scheduler.RearmBackoff)

	// окружение важнее файла
	t.Setenv("KRONOS_REDIS_PREFIX", "env")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.Redis.Prefix)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)

	t.Setenv("KRONOS_SCHEDULER_TIMEZONE", "Mars/Olympus")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("KRONOS_SCHEDULER_TIMEZONE", "UTC")
	t.Setenv("KRONOS_REDIS_MODE", "ring")
	_, err = Load("")
	assert.ErrorContains(t, err, "redis.mode")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestStoreConversions(t *testing.T) {
	cfg := &Config{Redis: RedisConfig{
		Mode:          "sentinel",
		Password:      "secret",
		Prefix:        "kx",
		ClaimTTL:      time.Hour,
		SentinelAddrs: []string{"s1:26379"},
	}}

	client := cfg.StoreClient()
	assert.Equal(t, "sentinel", client.Mode)
	assert.Equal(t, "secret", client.Password)
	assert.Equal(t, []string{"s1:26379"}, client.SentinelAddrs)

	opts := cfg.StoreOptions()
	assert.Equal(t, "kx", opts.Prefix)
	assert.Equal(t, time.Hour, opts.ClaimTTL)
}
