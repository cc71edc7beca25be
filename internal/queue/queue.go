package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Kronos/internal/domain"
	"github.com/shaiso/Kronos/internal/repo"
	"github.com/shaiso/Kronos/internal/telemetry"
)

// JobRepo — хранилище задач (repo.JobRepo).
type JobRepo interface {
	Create(ctx context.Context, job *domain.Job) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, filter repo.JobFilter) ([]domain.Job, error)
	Count(ctx context.Context, filter repo.JobFilter) (int, error)
	PromoteDue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error)
}

// Publisher объявляет задачи, готовые к выполнению (mq.Publisher).
type Publisher interface {
	PublishJobQueued(ctx context.Context, job *domain.Job) error
}

// Config — конфигурация Service.
type Config struct {
	Repo      JobRepo
	Publisher Publisher // опционально
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Service — очередь задач.
type Service struct {
	repo      JobRepo
	publisher Publisher
	logger    *slog.Logger
	clock     func() time.Time
}

// New создаёт новый Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		repo:      cfg.Repo,
		publisher: cfg.Publisher,
		logger:    logger.With("component", "queue"),
		clock:     clock,
	}
}

// Save ставит задачу в очередь.
//
// Присваивает ID и состояние (QUEUED или DELAYED). Если задача с тем же
// IdempotencyKey уже есть, job заполняется существующей записью и
// возвращается created = false; повторного объявления нет.
func (s *Service) Save(ctx context.Context, job *domain.Job) (bool, error) {
	if s.repo == nil {
		return false, ErrNoRepo
	}

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.MarkQueued(s.clock())

	created, err := s.repo.Create(ctx, job)
	if err != nil {
		return false, fmt.Errorf("save job: %w", err)
	}

	logger := telemetry.WithJobID(s.logger, job.ID.String())
	if !created {
		logger.Debug("job already exists", "idempotency_key", job.IdempotencyKey)
		return false, nil
	}

	if job.State == domain.JobStateQueued {
		s.announce(ctx, logger, job)
	} else {
		logger.Debug("job delayed", "promote_at", job.PromoteAt)
	}
	return true, nil
}

// Get возвращает задачу по ID (repo.ErrNotFound, если её нет).
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if s.repo == nil {
		return nil, ErrNoRepo
	}
	return s.repo.GetByID(ctx, id)
}

// List возвращает страницу задач и общее число задач по фильтру.
func (s *Service) List(ctx context.Context, filter repo.JobFilter) ([]domain.Job, int, error) {
	if s.repo == nil {
		return nil, 0, ErrNoRepo
	}

	jobs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// announce публикует job.queued. Ошибка только логируется.
func (s *Service) announce(ctx context.Context, logger *slog.Logger, job *domain.Job) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJobQueued(ctx, job); err != nil {
		// Не фатально: задача уже в БД
		logger.Warn("failed to publish job.queued", "error", err)
	}
}
