package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Kronos/internal/dateexpr"
	"github.com/shaiso/Kronos/internal/domain"
	"github.com/shaiso/Kronos/internal/jobs"
	"github.com/shaiso/Kronos/internal/listener"
	"github.com/shaiso/Kronos/internal/store"
	"github.com/shaiso/Kronos/internal/telemetry"
)

// Значения по умолчанию для Config.
const (
	DefaultRearmAttempts = 3
	DefaultRearmBackoff  = 200 * time.Millisecond
)

// KeyStore — хранилище TTL-маркеров (store.KeyStore).
type KeyStore interface {
	Arm(ctx context.Context, id string, payload []byte, delay time.Duration) error
	Disarm(ctx context.Context, id string) (bool, error)
	Load(ctx context.Context, id string) ([]byte, bool, error)
	Claim(ctx context.Context, id string, fireAt time.Time) (bool, error)
	Finish(ctx context.Context, id string, payload []byte) (bool, error)
	Inspect(ctx context.Context, id string) (*store.Entry, error)
	List(ctx context.Context, limit int) ([]store.Entry, error)
	MarkerID(key string) (string, bool)
	Resolution() time.Duration
	RoundTTL(delay time.Duration) time.Duration
}

// Queue — очередь задач. Save идемпотентен по Job.IdempotencyKey:
// created = false, если задача с таким ключом уже есть.
type Queue interface {
	Save(ctx context.Context, job *domain.Job) (bool, error)
}

// Config — конфигурация Scheduler.
type Config struct {
	Store   KeyStore
	Queue   Queue
	Builder *jobs.Builder // опционально (default: jobs.NewBuilder(Clock))

	// Source — источник событий истечения. Без него Start не слушает
	// события (процесс только регистрирует расписания).
	Source listener.Source

	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// Location — часовой пояс, в котором разбираются выражения (default: UTC).
	Location *time.Location

	// Clock — источник текущего времени (default: time.Now).
	Clock func() time.Time

	RearmAttempts int           // попытки перевзвода (default: 3)
	RearmBackoff  time.Duration // пауза перед второй попыткой (default: 200ms)

	ListenerMinBackoff time.Duration
	ListenerMaxBackoff time.Duration
}

// Scheduler — оркестратор: регистрирует расписания и ставит задачи
// в очередь при срабатывании маркеров.
type Scheduler struct {
	store   KeyStore
	queue   Queue
	builder *jobs.Builder
	source  listener.Source
	logger  *slog.Logger
	metrics *telemetry.Metrics
	loc     *time.Location
	clock   func() time.Time

	rearmAttempts int
	rearmBackoff  time.Duration

	listenerMin time.Duration
	listenerMax time.Duration

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Ack — подтверждение регистрации отложенного расписания.
type Ack struct {
	ScheduleID string              `json:"schedule_id"`
	Kind       domain.ScheduleKind `json:"kind"`
	Expr       string              `json:"expr"`
	Tag        string              `json:"tag"`
	FireAt     time.Time           `json:"fire_at"`
	TTL        time.Duration       `json:"ttl"`
	Report     jobs.Report         `json:"report"`
}

// Result — результат Schedule: Job для "now", Ack для отложенных.
type Result struct {
	Job    *domain.Job `json:"job,omitempty"`
	Report jobs.Report `json:"report"`
	Ack    *Ack        `json:"ack,omitempty"`
}

// Pending — взведённое расписание.
type Pending struct {
	domain.Marker
	TTL time.Duration `json:"ttl"`
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	builder := cfg.Builder
	if builder == nil {
		builder = jobs.NewBuilder(clock)
	}
	attempts := cfg.RearmAttempts
	if attempts <= 0 {
		attempts = DefaultRearmAttempts
	}
	backoff := cfg.RearmBackoff
	if backoff <= 0 {
		backoff = DefaultRearmBackoff
	}

	return &Scheduler{
		store:         cfg.Store,
		queue:         cfg.Queue,
		builder:       builder,
		source:        cfg.Source,
		logger:        logger.With("component", "scheduler"),
		metrics:       cfg.Metrics,
		loc:           loc,
		clock:         clock,
		rearmAttempts: attempts,
		rearmBackoff:  backoff,
		listenerMin:   cfg.ListenerMinBackoff,
		listenerMax:   cfg.ListenerMaxBackoff,
	}
}

// localNow возвращает текущее время в часовом поясе scheduler'а.
func (s *Scheduler) localNow() time.Time {
	return s.clock().In(s.loc)
}

// Start запускает слушатель событий истечения (если задан Source).
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelFunc != nil {
		return ErrAlreadyStarted
	}
	if s.store == nil {
		return ErrNoStore
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	if s.source == nil {
		s.logger.Info("scheduler started without expiry listener")
		return nil
	}

	l := listener.New(listener.Config{
		Source:     s.source,
		Store:      s.store,
		OnFire:     s.HandleFire,
		Logger:     s.logger,
		Metrics:    s.metrics,
		MinBackoff: s.listenerMin,
		MaxBackoff: s.listenerMax,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = l.Run(ctx)
	}()

	s.logger.Info("scheduler started")
	return nil
}

// Stop останавливает слушатель и ждёт завершения текущего события.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancelFunc
	s.cancelFunc = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()

	s.logger.Info("scheduler stopped")
}

// Schedule выбирает вид расписания по выражению: "now", повторяющееся
// выражение или однократный момент.
func (s *Scheduler) Schedule(ctx context.Context, when string, def domain.JobDefinition) (*Result, error) {
	switch {
	case strings.EqualFold(strings.TrimSpace(when), "now"):
		job, report, err := s.now(ctx, def)
		if err != nil {
			return nil, err
		}
		return &Result{Job: job, Report: report}, nil
	case dateexpr.IsRecurring(when):
		ack, err := s.Every(ctx, when, def)
		if err != nil {
			return nil, err
		}
		return &Result{Ack: ack, Report: ack.Report}, nil
	default:
		ack, err := s.At(ctx, when, def)
		if err != nil {
			return nil, err
		}
		return &Result{Ack: ack, Report: ack.Report}, nil
	}
}

// Now сразу ставит задачу в очередь, без обращения к хранилищу маркеров.
func (s *Scheduler) Now(ctx context.Context, def domain.JobDefinition) (*domain.Job, error) {
	job, _, err := s.now(ctx, def)
	return job, err
}

func (s *Scheduler) now(ctx context.Context, def domain.JobDefinition) (*domain.Job, jobs.Report, error) {
	if s.queue == nil {
		return nil, jobs.Report{}, ErrNoQueue
	}

	job, report, err := s.builder.Build(def)
	if err != nil {
		return nil, report, err
	}
	logIgnored(s.logger, report)

	if _, err := s.queue.Save(ctx, job); err != nil {
		return nil, report, fmt.Errorf("enqueue job: %w", err)
	}
	s.metrics.Enqueued(string(domain.ScheduleNow))

	s.logger.Info("job enqueued",
		"job_id", job.ID,
		"type", job.Type,
		"tag", job.Tag(),
	)
	return job, report, nil
}

// At регистрирует однократный запуск в момент, заданный выражением.
func (s *Scheduler) At(ctx context.Context, when string, def domain.JobDefinition) (*Ack, error) {
	report, err := s.validate(def)
	if err != nil {
		return nil, err
	}

	now := s.localNow()
	fireAt, err := dateexpr.Parse(when, now)
	if err != nil {
		return nil, err
	}

	spec := domain.ScheduleSpec{Kind: domain.ScheduleAt, Expr: strings.TrimSpace(when)}
	return s.arm(ctx, def, spec, fireAt, now, report)
}

// AtTime регистрирует однократный запуск в момент t.
func (s *Scheduler) AtTime(ctx context.Context, t time.Time, def domain.JobDefinition) (*Ack, error) {
	report, err := s.validate(def)
	if err != nil {
		return nil, err
	}

	spec := domain.ScheduleSpec{Kind: domain.ScheduleAt, Expr: t.Format(time.RFC3339Nano)}
	return s.arm(ctx, def, spec, t, s.localNow(), report)
}

// Every регистрирует повторяющееся расписание. Выражение без "every"
// ("5 minutes") считается интервалом.
//
// При ошибке хранилища маркер не остаётся взведённым.
func (s *Scheduler) Every(ctx context.Context, expr string, def domain.JobDefinition) (*Ack, error) {
	report, err := s.validate(def)
	if err != nil {
		return nil, err
	}

	expr = normalizeEvery(expr)
	rec, err := dateexpr.ParseRecurrence(expr)
	if err != nil {
		return nil, err
	}

	now := s.localNow()
	fireAt, err := dateexpr.Upcoming(rec, expr, now)
	if err != nil {
		return nil, err
	}

	spec := domain.ScheduleSpec{Kind: domain.ScheduleEvery, Expr: expr}
	return s.arm(ctx, def, spec, fireAt, now, report)
}

// validate проверяет описание и возвращает отчёт по атрибутам.
func (s *Scheduler) validate(def domain.JobDefinition) (jobs.Report, error) {
	if s.store == nil {
		return jobs.Report{}, ErrNoStore
	}
	_, report, err := s.builder.Build(def)
	if err != nil {
		return report, err
	}
	logIgnored(s.logger, report)
	return report, nil
}

// arm взводит маркер первого срабатывания нового расписания.
func (s *Scheduler) arm(ctx context.Context, def domain.JobDefinition, spec domain.ScheduleSpec, fireAt, now time.Time, report jobs.Report) (*Ack, error) {
	marker := &domain.Marker{
		ScheduleID: uuid.NewString(),
		Definition: def,
		Spec:       spec,
		FireAt:     fireAt,
		Occurrence: 1,
		CreatedAt:  now,
	}

	payload, err := json.Marshal(marker)
	if err != nil {
		return nil, fmt.Errorf("encode marker: %w", err)
	}

	ttl := s.store.RoundTTL(delayUntil(fireAt, now, s.store.Resolution()))
	if err := s.store.Arm(ctx, marker.ScheduleID, payload, ttl); err != nil {
		return nil, err
	}
	s.metrics.Armed(string(spec.Kind))

	telemetry.WithScheduleID(s.logger, marker.ScheduleID).Info("schedule armed",
		"kind", spec.Kind,
		"expr", spec.Expr,
		"fire_at", fireAt,
		"ttl", ttl,
	)

	return &Ack{
		ScheduleID: marker.ScheduleID,
		Kind:       spec.Kind,
		Expr:       spec.Expr,
		Tag:        spec.Tag(),
		FireAt:     fireAt,
		TTL:        ttl,
		Report:     report,
	}, nil
}

// Cancel снимает маркер расписания. Возвращает false, если маркера нет.
//
// Отмена не гарантирована, если маркер истекает одновременно с вызовом:
// событие могло уже уйти слушателю.
func (s *Scheduler) Cancel(ctx context.Context, id string) (bool, error) {
	if s.store == nil {
		return false, ErrNoStore
	}

	removed, err := s.store.Disarm(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.metrics.Cancelled()
		telemetry.WithScheduleID(s.logger, id).Info("schedule cancelled")
	}
	return removed, nil
}

// Get возвращает взведённое расписание (store.ErrNotFound, если его нет).
func (s *Scheduler) Get(ctx context.Context, id string) (*Pending, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}

	entry, err := s.store.Inspect(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodePending(*entry)
}

// List возвращает до limit взведённых расписаний, ближайшие первыми.
// Нечитаемые маркеры пропускаются.
func (s *Scheduler) List(ctx context.Context, limit int) ([]Pending, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}

	entries, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]Pending, 0, len(entries))
	for _, e := range entries {
		p, err := decodePending(e)
		if err != nil {
			s.logger.Warn("skipping unreadable marker", "schedule_id", e.ID, "error", err)
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func decodePending(e store.Entry) (*Pending, error) {
	var m domain.Marker
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return nil, &listener.DecodeError{ScheduleID: e.ID, Err: err}
	}
	return &Pending{Marker: m, TTL: e.TTL}, nil
}

func logIgnored(logger *slog.Logger, report jobs.Report) {
	if len(report.Ignored) > 0 {
		logger.Debug("unknown job attributes ignored", "attributes", report.Ignored)
	}
	for _, r := range report.Rejected {
		logger.Warn("job attribute rejected", "attribute", r.Name, "reason", r.Reason)
	}
}
