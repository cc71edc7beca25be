package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/shaiso/Kronos/internal/domain"
	"github.com/shaiso/Kronos/internal/repo"
	"github.com/shaiso/Kronos/internal/scheduler"
	"github.com/shaiso/Kronos/internal/telemetry"
)

// Scheduler — операции регистрации расписаний (scheduler.Scheduler).
type Scheduler interface {
	Schedule(ctx context.Context, when string, def domain.JobDefinition) (*scheduler.Result, error)
	At(ctx context.Context, when string, def domain.JobDefinition) (*scheduler.Ack, error)
	Every(ctx context.Context, expr string, def domain.JobDefinition) (*scheduler.Ack, error)
	Cancel(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (*scheduler.Pending, error)
	List(ctx context.Context, limit int) ([]scheduler.Pending, error)
}

// Jobs — чтение задач очереди (queue.Service).
type Jobs interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, filter repo.JobFilter) ([]domain.Job, int, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	scheduler Scheduler
	jobs      Jobs
	health    func(ctx context.Context) error
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	limiter   *rate.Limiter
}

// Config — конфигурация для создания Handler.
type Config struct {
	Scheduler Scheduler
	Jobs      Jobs // опционально: без него /jobs отвечает 503

	// Health проверяет зависимости для /healthz (опционально).
	Health func(ctx context.Context) error

	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// RateLimit — запросов в секунду (0 — без ограничения), RateBurst — запас.
	RateLimit float64
	RateBurst int
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = max(1, int(cfg.RateLimit))
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Handler{
		scheduler: cfg.Scheduler,
		jobs:      cfg.Jobs,
		health:    cfg.Health,
		logger:    logger.With("component", "api"),
		metrics:   cfg.Metrics,
		limiter:   limiter,
	}
}
