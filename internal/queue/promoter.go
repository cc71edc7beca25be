package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Kronos/internal/telemetry"
)

// Значения по умолчанию для Promoter.
const (
	DefaultPromoteInterval = time.Second
	DefaultPromoteBatch    = 100
)

// Promote переводит до batch наступивших отложенных задач в QUEUED
// и объявляет их. Возвращает число переведённых задач.
func (s *Service) Promote(ctx context.Context, batch int) (int, error) {
	if s.repo == nil {
		return 0, ErrNoRepo
	}
	if batch <= 0 {
		batch = DefaultPromoteBatch
	}

	jobs, err := s.repo.PromoteDue(ctx, s.clock(), batch)
	if err != nil {
		return 0, fmt.Errorf("promote delayed jobs: %w", err)
	}

	for i := range jobs {
		job := &jobs[i]
		s.announce(ctx, telemetry.WithJobID(s.logger, job.ID.String()), job)
	}

	if len(jobs) > 0 {
		s.logger.Info("delayed jobs promoted", "count", len(jobs))
	}
	return len(jobs), nil
}

// RunPromoter вызывает Promote каждые interval до отмены ctx.
// Полная пачка повторяется сразу, не дожидаясь следующего тика.
func (s *Service) RunPromoter(ctx context.Context, interval time.Duration, batch int) {
	if interval <= 0 {
		interval = DefaultPromoteInterval
	}
	if batch <= 0 {
		batch = DefaultPromoteBatch
	}

	tk := time.NewTicker(interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			for {
				n, err := s.Promote(ctx, batch)
				if err != nil {
					s.logger.Error("promoter tick failed", "error", err)
					break
				}
				if n < batch || ctx.Err() != nil {
					break
				}
			}
		}
	}
}
