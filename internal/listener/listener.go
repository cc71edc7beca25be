package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Kronos/internal/domain"
	"github.com/shaiso/Kronos/internal/store"
	"github.com/shaiso/Kronos/internal/telemetry"
)

// Значения задержки переподписки по умолчанию.
const (
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// Store — часть хранилища, нужная слушателю.
type Store interface {
	MarkerID(key string) (string, bool)
	Load(ctx context.Context, id string) ([]byte, bool, error)
}

// FireFunc обрабатывает сработавший маркер. payload — прочитанная
// копия в исходном виде.
type FireFunc func(ctx context.Context, marker *domain.Marker, payload []byte)

// Config — параметры Listener.
type Config struct {
	Source  Source
	Store   Store
	OnFire  FireFunc
	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// MinBackoff, MaxBackoff — границы задержки переподписки.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Listener — подписчик на события истечения маркеров.
type Listener struct {
	source  Source
	store   Store
	onFire  FireFunc
	logger  *slog.Logger
	metrics *telemetry.Metrics

	minBackoff time.Duration
	maxBackoff time.Duration
}

// New создаёт Listener.
func New(cfg Config) *Listener {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	minBackoff := cfg.MinBackoff
	if minBackoff <= 0 {
		minBackoff = DefaultMinBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < minBackoff {
		maxBackoff = max(DefaultMaxBackoff, minBackoff)
	}

	return &Listener{
		source:     cfg.Source,
		store:      cfg.Store,
		onFire:     cfg.OnFire,
		logger:     logger.With("component", "listener"),
		metrics:    cfg.Metrics,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Run слушает события до отмены ctx.
//
// При разрыве подписки ждёт с экспоненциальной задержкой и
// подписывается заново. Задержка сбрасывается, если сессия доставила
// хотя бы одно событие или продержалась дольше maxBackoff.
func (l *Listener) Run(ctx context.Context) error {
	delay := l.minBackoff

	for {
		started := time.Now()
		delivered := false

		err := l.source.Listen(ctx, func(key string) {
			delivered = true
			l.handle(ctx, key)
		})

		if ctx.Err() != nil {
			l.logger.Info("listener stopped")
			return nil
		}

		if delivered || time.Since(started) >= l.maxBackoff {
			delay = l.minBackoff
		}

		if err == nil {
			err = ErrDisconnected
		}
		l.logger.Warn("listener disconnected", "error", err, "retry_in", delay)
		l.metrics.Reconnect()

		select {
		case <-ctx.Done():
			l.logger.Info("listener stopped")
			return nil
		case <-time.After(delay):
		}

		// Увеличиваем задержку (максимум maxBackoff)
		delay = min(delay*2, l.maxBackoff)
	}
}

// handle обрабатывает одно событие истечения.
func (l *Listener) handle(ctx context.Context, key string) {
	id, ok := l.store.MarkerID(key)
	if !ok {
		return
	}

	logger := telemetry.WithScheduleID(l.logger, id)

	payload, live, err := l.store.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("marker payload missing, event dropped")
		l.metrics.Fire(telemetry.FireMissing)
		return
	}
	if err != nil {
		logger.Error("failed to load marker payload", "error", err)
		l.metrics.Fire(telemetry.FireMissing)
		return
	}
	if live {
		logger.Debug("marker re-armed, stale event dropped")
		l.metrics.Fire(telemetry.FireStale)
		return
	}

	marker, err := decodeMarker(id, payload)
	if err != nil {
		logger.Error("failed to decode marker", "error", err)
		l.metrics.DecodeError()
		l.metrics.Fire(telemetry.FireDecodeError)
		return
	}

	l.fire(ctx, logger, marker, payload)
}

// fire вызывает OnFire, перехватывая панику.
func (l *Listener) fire(ctx context.Context, logger *slog.Logger, marker *domain.Marker, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in fire handler", "panic", fmt.Sprint(r))
		}
	}()

	l.onFire(ctx, marker, payload)
}

// decodeMarker разбирает payload и сверяет id расписания.
func decodeMarker(id string, payload []byte) (*domain.Marker, error) {
	var m domain.Marker
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, &DecodeError{ScheduleID: id, Err: err}
	}
	if m.ScheduleID != id {
		return nil, &DecodeError{ScheduleID: id, Err: fmt.Errorf("schedule id mismatch: %q", m.ScheduleID)}
	}
	if m.FireAt.IsZero() {
		return nil, &DecodeError{ScheduleID: id, Err: errors.New("fire time missing")}
	}
	return &m, nil
}
