// Package config загружает конфигурацию процессов Kronos.
//
// Источники (по возрастанию приоритета): значения по умолчанию, файл
// конфигурации (--config или KRONOS_CONFIG), переменные окружения
// KRONOS_<SECTION>_<KEY>. Для совместимости читаются и старые имена:
// DB_URL, RABBITMQ_URL, REDIS_URL, LOG_LEVEL, LOG_FORMAT.
package config

import (
	"fmt"
	"time"

	"github.com/shaiso/Kronos/internal/store"
)

// Config — конфигурация Kronos.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	AMQP      AMQPConfig      `mapstructure:"amqp"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

// LogConfig — настройки логирования.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// RedisConfig — подключение к Redis и параметры хранилища маркеров.
type RedisConfig struct {
	URL            string   `mapstructure:"url"`
	Mode           string   `mapstructure:"mode"`
	Addr           string   `mapstructure:"addr"`
	Username       string   `mapstructure:"username"`
	Password       string   `mapstructure:"password"`
	DB             int      `mapstructure:"db"`
	SentinelMaster string   `mapstructure:"sentinel_master"`
	SentinelAddrs  []string `mapstructure:"sentinel_addrs"`
	ClusterAddrs   []string `mapstructure:"cluster_addrs"`
	TLS            bool     `mapstructure:"tls"`
	TLSSkipVerify  bool     `mapstructure:"tls_skip_verify"`
	MaxRetries     int      `mapstructure:"max_retries"`

	Prefix       string        `mapstructure:"prefix"`
	Resolution   time.Duration `mapstructure:"resolution"`
	PayloadGrace time.Duration `mapstructure:"payload_grace"`
	ClaimTTL     time.Duration `mapstructure:"claim_ttl"`

	// ConfigureNotifications — включить notify-keyspace-events при старте.
	// На управляемых Redis CONFIG SET часто запрещён.
	ConfigureNotifications bool `mapstructure:"configure_notifications"`
}

// DatabaseConfig — PostgreSQL очереди задач.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	// AutoMigrate — применять миграции при старте kronos-scheduler.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// AMQPConfig — RabbitMQ для объявлений о задачах. Пустой URL
// отключает публикацию.
type AMQPConfig struct {
	URL string `mapstructure:"url"`
}

// SchedulerConfig — параметры scheduler'а.
type SchedulerConfig struct {
	Timezone           string        `mapstructure:"timezone"`
	RearmAttempts      int           `mapstructure:"rearm_attempts"`
	RearmBackoff       time.Duration `mapstructure:"rearm_backoff"`
	ListenerMinBackoff time.Duration `mapstructure:"listener_min_backoff"`
	ListenerMaxBackoff time.Duration `mapstructure:"listener_max_backoff"`
	PromoteInterval    time.Duration `mapstructure:"promote_interval"`
	PromoteBatch       int           `mapstructure:"promote_batch"`
}

// HTTPConfig — HTTP-серверы процессов.
type HTTPConfig struct {
	// Addr — адрес API (kronos-api).
	Addr string `mapstructure:"addr"`

	// MetricsAddr — адрес /metrics и /healthz (kronos-scheduler).
	MetricsAddr string `mapstructure:"metrics_addr"`

	// RateLimit — запросов в секунду на API (0 — без ограничения).
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Validate проверяет значения, которые нельзя исправить по умолчанию.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Redis.Mode {
	case "", "standalone", "sentinel", "cluster":
	default:
		return fmt.Errorf("invalid redis.mode %q", c.Redis.Mode)
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log.format %q", c.Log.Format)
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("invalid http.rate_limit %v", c.HTTP.RateLimit)
	}
	return nil
}

// Location возвращает часовой пояс разбора выражений.
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}

// StoreClient возвращает параметры подключения к Redis.
func (c *Config) StoreClient() store.ClientConfig {
	r := c.Redis
	return store.ClientConfig{
		URL:            r.URL,
		Mode:           r.Mode,
		Addr:           r.Addr,
		Username:       r.Username,
		Password:       r.Password,
		DB:             r.DB,
		SentinelMaster: r.SentinelMaster,
		SentinelAddrs:  r.SentinelAddrs,
		ClusterAddrs:   r.ClusterAddrs,
		TLS:            r.TLS,
		TLSSkipVerify:  r.TLSSkipVerify,
		MaxRetries:     r.MaxRetries,
	}
}

// StoreOptions возвращает параметры хранилища маркеров.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Prefix:       c.Redis.Prefix,
		Resolution:   c.Redis.Resolution,
		PayloadGrace: c.Redis.PayloadGrace,
		ClaimTTL:     c.Redis.ClaimTTL,
	}
}
