package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/shaiso/Kronos/internal/mq"
	"github.com/shaiso/Kronos/internal/queue"
	"github.com/shaiso/Kronos/internal/repo"
	"github.com/shaiso/Kronos/internal/scheduler"
	"github.com/shaiso/Kronos/internal/store"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "KRONOS"

// SetDefaults задаёт значения по умолчанию для всех ключей.
//
// Ключ без значения по умолчанию не читается из окружения при Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.addr", store.DefaultAddr)
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.sentinel_master", "")
	v.SetDefault("redis.sentinel_addrs", []string{})
	v.SetDefault("redis.cluster_addrs", []string{})
	v.SetDefault("redis.tls", false)
	v.SetDefault("redis.tls_skip_verify", false)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.prefix", store.DefaultPrefix)
	v.SetDefault("redis.resolution", store.DefaultResolution)
	v.SetDefault("redis.payload_grace", store.DefaultPayloadGrace)
	v.SetDefault("redis.claim_ttl", store.DefaultClaimTTL)
	v.SetDefault("redis.configure_notifications", true)

	v.SetDefault("database.url", repo.DefaultURL)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("amqp.url", mq.DefaultURL)

	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.rearm_attempts", scheduler.DefaultRearmAttempts)
	v.SetDefault("scheduler.rearm_backoff", scheduler.DefaultRearmBackoff)
	v.SetDefault("scheduler.listener_min_backoff", "1s")
	v.SetDefault("scheduler.listener_max_backoff", "30s")
	v.SetDefault("scheduler.promote_interval", queue.DefaultPromoteInterval)
	v.SetDefault("scheduler.promote_batch", queue.DefaultPromoteBatch)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.metrics_addr", ":8081")
	v.SetDefault("http.rate_limit", 50.0)
	v.SetDefault("http.rate_burst", 100)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.shutdown_timeout", "10s")
}

// bindLegacyEnv связывает ключи со старыми именами переменных.
// Новое имя (KRONOS_*) имеет приоритет.
func bindLegacyEnv(v *viper.Viper) error {
	legacy := map[string]string{
		"database.url": "DB_URL",
		"amqp.url":     "RABBITMQ_URL",
		"redis.url":    "REDIS_URL",
		"log.level":    "LOG_LEVEL",
		"log.format":   "LOG_FORMAT",
	}
	for key, env := range legacy {
		if err := v.BindEnv(key, envName(key), env); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// New создаёт viper с окружением и значениями по умолчанию.
func New() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Load читает конфигурацию. path — файл конфигурации (пусто —
// KRONOS_CONFIG или только окружение).
func Load(path string) (*Config, error) {
	v, err := New()
	if err != nil {
		return nil, err
	}
	return LoadWithViper(v, path)
}

// LoadWithViper читает конфигурацию из подготовленного viper
// (например, с привязанными флагами cobra).
func LoadWithViper(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
