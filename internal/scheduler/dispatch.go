package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shaiso/Kronos/internal/domain"
	"github.com/shaiso/Kronos/internal/telemetry"
)

// HandleFire обрабатывает срабатывание маркера.
//
//  1. Отмечает срабатывание (Claim). Повторное событие для того же
//     срабатывания отбрасывается: без постановки и без перевзвода.
//  2. Собирает задачу с меткой ONCE или RECURRING:<expr> и ключом
//     идемпотентности "{schedule_id}_{fire_at_ms}".
//  3. Ставит задачу в очередь.
//  4. Повторяющееся расписание перевзводится даже при ошибке очереди;
//     однократное удаляет копию payload.
//
// Ошибки логируются: вызывающему (слушателю) вернуть их некуда.
func (s *Scheduler) HandleFire(ctx context.Context, m *domain.Marker, payload []byte) {
	logger := telemetry.WithScheduleID(s.logger, m.ScheduleID).With(
		"occurrence", m.Occurrence,
		"fire_at", m.FireAt,
	)

	claimed, err := s.store.Claim(ctx, m.ScheduleID, m.FireAt)
	switch {
	case err != nil:
		// Вторая линия защиты — ключ идемпотентности очереди
		logger.Warn("failed to claim occurrence, dispatching anyway", "error", err)
	case !claimed:
		logger.Debug("occurrence already dispatched, duplicate dropped")
		s.metrics.Fire(telemetry.FireDuplicate)
		return
	}

	valid := s.enqueue(ctx, logger, m)

	if !m.Spec.IsRecurring() {
		s.finish(ctx, logger, m, payload)
		return
	}

	if !valid {
		logger.Error("recurring schedule is invalid, recurrence stopped")
		s.finish(ctx, logger, m, payload)
		return
	}

	s.rearm(ctx, logger, m, payload)
}

// enqueue собирает и ставит задачу. Возвращает false, если описание
// задачи в маркере невалидно (расписание испорчено навсегда).
func (s *Scheduler) enqueue(ctx context.Context, logger *slog.Logger, m *domain.Marker) bool {
	job, report, err := s.builder.Build(m.Definition)
	if err != nil {
		logger.Error("invalid job definition in marker", "error", err)
		s.metrics.Fire(telemetry.FireInvalid)
		return false
	}
	logIgnored(logger, report)

	job.SetTag(m.Spec.Tag())
	job.ScheduleID = m.ScheduleID
	job.IdempotencyKey = m.IdempotencyKey()

	if s.queue == nil {
		logger.Error("failed to enqueue job", "error", ErrNoQueue)
		s.metrics.Fire(telemetry.FireEnqueueFailed)
		return true
	}

	created, err := s.queue.Save(ctx, job)
	if err != nil {
		logger.Error("failed to enqueue job", "error", err, "idempotency_key", job.IdempotencyKey)
		s.metrics.Fire(telemetry.FireEnqueueFailed)
		return true
	}

	s.metrics.Fire(telemetry.FireEnqueued)
	if !created {
		logger.Info("job already enqueued for occurrence", "job_id", job.ID, "idempotency_key", job.IdempotencyKey)
		return true
	}

	s.metrics.Enqueued(string(m.Spec.Kind))
	logger.Info("job enqueued",
		"job_id", job.ID,
		"type", job.Type,
		"tag", job.Tag(),
	)
	return true
}

// rearm взводит маркер следующего срабатывания с тем же id.
func (s *Scheduler) rearm(ctx context.Context, logger *slog.Logger, m *domain.Marker, current []byte) {
	now := s.localNow()

	nextAt, err := NextOccurrence(m.Spec.Expr, m.FireAt, now)
	if err != nil {
		logger.Error("failed to compute next occurrence, recurrence stopped", "expr", m.Spec.Expr, "error", err)
		s.metrics.RearmFailure()
		s.finish(ctx, logger, m, current)
		return
	}

	next := m.Next(nextAt)
	payload, err := json.Marshal(next)
	if err != nil {
		logger.Error("failed to encode next marker", "error", err)
		s.metrics.RearmFailure()
		return
	}

	// Задержка считается заново на каждой попытке: пауза retry не
	// сдвигает следующее срабатывание.
	var ttl time.Duration
	err = retry(ctx, s.rearmAttempts, s.rearmBackoff, func() error {
		ttl = s.store.RoundTTL(delayUntil(nextAt, s.localNow(), s.store.Resolution()))
		return s.store.Arm(ctx, m.ScheduleID, payload, ttl)
	})
	if err != nil {
		logger.Error("failed to re-arm recurring schedule", "error", err, "attempts", s.rearmAttempts)
		s.metrics.RearmFailure()
		return
	}
	s.metrics.Armed(string(m.Spec.Kind))

	logger.Info("schedule re-armed",
		"next_fire_at", nextAt,
		"next_occurrence", next.Occurrence,
		"ttl", ttl,
	)
}

// finish удаляет копию payload завершённого расписания.
func (s *Scheduler) finish(ctx context.Context, logger *slog.Logger, m *domain.Marker, payload []byte) {
	if _, err := s.store.Finish(ctx, m.ScheduleID, payload); err != nil {
		// Копия истечёт сама через PayloadGrace
		logger.Warn("failed to remove marker payload", "error", err)
	}
}
