package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Kronos/internal/dateexpr"
	"github.com/shaiso/Kronos/internal/domain"
	"github.com/shaiso/Kronos/internal/jobs"
	"github.com/shaiso/Kronos/internal/store"
	"github.com/shaiso/Kronos/internal/telemetry"
)

// t0 — среда, 13 марта 2024, 10:00 UTC.
var t0 = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

var emailDef = domain.JobDefinition{
	"type": "email",
	"data": map[string]any{"to": "a@b.com"},
}

// --- fakes ---

type fakeQueue struct {
	mu    sync.Mutex
	jobs  []*domain.Job
	byKey map[string]*domain.Job
	err   error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{byKey: make(map[string]*domain.Job)}
}

func (q *fakeQueue) Save(_ context.Context, job *domain.Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return false, q.err
	}
	if job.IdempotencyKey != "" {
		if existing, ok := q.byKey[job.IdempotencyKey]; ok {
			*job = *existing
			return false, nil
		}
	}

	job.ID = uuid.New()
	job.MarkQueued(time.Now())
	q.jobs = append(q.jobs, job)
	if job.IdempotencyKey != "" {
		q.byKey[job.IdempotencyKey] = job
	}
	return true, nil
}

func (q *fakeQueue) SetErr(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *fakeQueue) Jobs() []*domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*domain.Job(nil), q.jobs...)
}

// flakyArmStore отклоняет первые fails вызовов Arm.
type flakyArmStore struct {
	KeyStore
	fails  int
	onFail func()
}

func (f *flakyArmStore) Arm(ctx context.Context, id string, payload []byte, delay time.Duration) error {
	if f.fails > 0 {
		f.fails--
		f.onFail()
		return errors.New("i/o timeout")
	}
	return f.KeyStore.Arm(ctx, id, payload, delay)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// chanSource доставляет ключи из канала и подтверждает обработку.
type chanSource struct {
	keys chan string
	done chan struct{}
}

func (c *chanSource) Listen(ctx context.Context, handle func(key string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case k := <-c.keys:
			handle(k)
			c.done <- struct{}{}
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// --- env ---

type env struct {
	t     *testing.T
	mr    *miniredis.Miniredis
	store *store.KeyStore
	queue *fakeQueue
	clock *testClock
	src   *chanSource
	logs  *syncBuffer
	sched *Scheduler
}

func newEnv(t *testing.T) *env {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e := &env{
		t:     t,
		mr:    mr,
		store: store.New(client, store.Options{}),
		queue: newFakeQueue(),
		clock: &testClock{t: t0},
		src:   &chanSource{keys: make(chan string), done: make(chan struct{})},
		logs:  &syncBuffer{},
	}
	e.sched = e.newScheduler()

	require.NoError(t, e.sched.Start(context.Background()))
	t.Cleanup(e.sched.Stop)
	return e
}

func (e *env) newScheduler() *Scheduler {
	return New(Config{
		Store:        e.store,
		Queue:        e.queue,
		Source:       e.src,
		Logger:       telemetry.NewLogger(e.logs, "debug", "json"),
		Clock:        e.clock.Now,
		RearmBackoff: time.Millisecond,
	})
}

// expire сдвигает часы и время Redis на d.
func (e *env) expire(d time.Duration) {
	e.clock.Advance(d)
	e.mr.FastForward(d)
}

// emit доставляет событие истечения маркера и ждёт его обработки.
func (e *env) emit(id string) {
	e.t.Helper()

	select {
	case e.src.keys <- markerKey(id):
	case <-time.After(2 * time.Second):
		e.t.Fatal("event not accepted")
	}
	select {
	case <-e.src.done:
	case <-time.After(2 * time.Second):
		e.t.Fatal("event not handled")
	}
}

// loadMarker читает текущую копию payload как маркер.
func (e *env) loadMarker(id string) (*domain.Marker, []byte) {
	e.t.Helper()

	raw, _, err := e.store.Load(context.Background(), id)
	require.NoError(e.t, err)

	var m domain.Marker
	require.NoError(e.t, json.Unmarshal(raw, &m))
	return &m, raw
}

func markerKey(id string) string  { return "kronos:marker:{" + id + "}" }
func payloadKey(id string) string { return "kronos:payload:{" + id + "}" }

// --- Now ---

func TestNow_EnqueuesOneJobWithoutStore(t *testing.T) {
	e := newEnv(t)

	job, err := e.sched.Now(context.Background(), emailDef)
	require.NoError(t, err)

	jobs := e.queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
	assert.Equal(t, "NOW", jobs[0].Data["schedule"])
	assert.Equal(t, "a@b.com", jobs[0].Data["to"])
	assert.Empty(t, jobs[0].ScheduleID)
	assert.Empty(t, e.mr.Keys())
}

func TestNow_InvalidDefinition(t *testing.T) {
	e := newEnv(t)

	_, err := e.sched.Now(context.Background(), domain.JobDefinition{"type": "email", "data": "oops"})

	var ve *jobs.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.ErrorIs(t, err, jobs.ErrInvalidData)
	assert.Empty(t, e.queue.Jobs())
}

func TestNow_QueueError(t *testing.T) {
	e := newEnv(t)
	e.queue.SetErr(errors.New("db down"))

	_, err := e.sched.Now(context.Background(), emailDef)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue job")
}

// --- At ---

func TestAt_ArmsMarkerWithTTL(t *testing.T) {
	e := newEnv(t)

	ack, err := e.sched.At(context.Background(), "in 10 minutes", emailDef)
	require.NoError(t, err)

	assert.Equal(t, domain.ScheduleAt, ack.Kind)
	assert.Equal(t, "ONCE", ack.Tag)
	assert.Equal(t, t0.Add(10*time.Minute), ack.FireAt)

	ttl := e.mr.TTL(markerKey(ack.ScheduleID))
	assert.InDelta(t, float64(600*time.Second), float64(ttl), float64(e.store.Resolution()))
	assert.Empty(t, e.queue.Jobs())
}

func TestAt_FiresOnceAndCleansUp(t *testing.T) {
	e := newEnv(t)

	ack, err := e.sched.At(context.Background(), "in 10 minutes", emailDef)
	require.NoError(t, err)

	e.expire(10 * time.Minute)
	e.emit(ack.ScheduleID)

	jobs := e.queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "ONCE", jobs[0].Tag())
	assert.Equal(t, ack.ScheduleID, jobs[0].ScheduleID)
	assert.Equal(t, domain.OccurrenceKey(ack.ScheduleID, ack.FireAt), jobs[0].IdempotencyKey)

	assert.False(t, e.mr.Exists(markerKey(ack.ScheduleID)))
	assert.False(t, e.mr.Exists(payloadKey(ack.ScheduleID)))

	// повтор события: копии payload уже нет
	e.emit(ack.ScheduleID)
	assert.Len(t, e.queue.Jobs(), 1)
}

func TestAtTime(t *testing.T) {
	e := newEnv(t)

	ack, err := e.sched.AtTime(context.Background(), t0.Add(90*time.Second), emailDef)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, e.mr.TTL(markerKey(ack.ScheduleID)))
	assert.Equal(t, t0.Add(90*time.Second).Format(time.RFC3339Nano), ack.Expr)
}

func TestAt_PastTimeClampsToResolution(t *testing.T) {
	e := newEnv(t)

	ack, err := e.sched.AtTime(context.Background(), t0.Add(-time.Hour), emailDef)
	require.NoError(t, err)
	assert.Equal(t, e.store.Resolution(), ack.TTL)
}

func TestAt_ParseError(t *testing.T) {
	e := newEnv(t)

	_, err := e.sched.At(context.Background(), "in 10 parsecs", emailDef)

	var pe *dateexpr.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "parsecs", pe.Token)
	assert.Empty(t, e.mr.Keys())
}

// --- Every ---

func TestEvery_RearmsAfterFiring(t *testing.T) {
	e := newEnv(t)

	ack, err := e.sched.Every(context.Background(), "every 1 hour", emailDef)
	require.NoError(t, err)
	assert.Equal(t, "RECURRING:every 1 hour", ack.Tag)
	assert.Equal(t, time.Hour, e.mr.TTL(markerKey(ack.ScheduleID)))

	e.expire(time.Hour)
	e.emit(ack.ScheduleID)

	jobs := e.queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "RECURRING:every 1 hour", jobs[0].Tag())
	assert.Equal(t, domain.OccurrenceKey(ack.ScheduleID, t0.Add(time.Hour)), jobs[0].IdempotencyKey)

	require.True(t, e.mr.Exists(markerKey(ack.ScheduleID)))
	assert.InDelta(t, float64(time.Hour), float64(e.mr.TTL(markerKey(ack.ScheduleID))), float64(e.store.Resolution()))

	p, err := e.sched.Get(context.Background(), ack.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Occurrence)
	assert.Equal(t, t0.Add(2*time.Hour), p.FireAt.UTC())
}

func TestEvery_KeepsFiring(t *testing.T) {
	e := newEnv(t)

	ack, err := e.sched.Every(context.Background(), "every 1 hour", emailDef)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		e.expire(time.Hour)
		e.emit(ack.ScheduleID)
	}

	jobs := e.queue.Jobs()
	require.Len(t, jobs, 3)
	keys := map[string]bool{}
	for _, j := range jobs {
		keys[j.IdempotencyKey] = true
	}
	assert.Len(t, keys, 3)
}

func TestEvery_DuplicateEventsProduceOneChain(t *testing.T) {
	e := newEnv(t)

	ack, err := e.sched.Every(context.Background(), "every 1 hour", emailDef)
	require.NoError(t, err)
	id := ack.ScheduleID

	e.expire(time.Hour)
	fired, payload := e.loadMarker(id)

	e.emit(id)
	// маркер уже перевзведён: событие устарело
	e.emit(id)
	// второй процесс успел прочитать старый payload до перевзвода
	e.sched.HandleFire(context.Background(), fired, payload)

	assert.Len(t, e.queue.Jobs(), 1)

	p, err := e.sched.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Occurrence)
	assert.InDelta(t, float64(time.Hour), float64(p.TTL), float64(e.store.Resolution()))
	assert.Contains(t, e.logs.String(), "duplicate dropped")
}

func TestEvery_TwoInstancesOneJob(t *testing.T) {
	e := newEnv(t)
	other := e.newScheduler()

	ack, err := e.sched.Every(context.Background(), "every 1 hour", emailDef)
	require.NoError(t, err)

	e.expire(time.Hour)
	fired, payload := e.loadMarker(ack.ScheduleID)

	var wg sync.WaitGroup
	for _, s := range []*Scheduler{e.sched, other} {
		wg.Add(1)
		go func(s *Scheduler) {
			defer wg.Done()
			s.HandleFire(context.Background(), fired, payload)
		}(s)
	}
	wg.Wait()

	assert.Len(t, e.queue.Jobs(), 1)
	p, err := e.sched.Get(context.Background(), ack.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Occurrence)
}

func TestEvery_CorruptPayloadDropped(t *testing.T) {
	e := newEnv(t)

	ack, err := e.sched.Every(context.Background(), "every 1 hour", emailDef)
	require.NoError(t, err)

	e.expire(time.Hour)
	require.NoError(t, e.mr.Set(payloadKey(ack.ScheduleID), "{garbage"))
	e.emit(ack.ScheduleID)

	assert.Empty(t, e.queue.Jobs())
	assert.Contains(t, e.logs.String(), "failed to decode marker")

	// scheduler продолжает работать
	_, err = e.sched.Now(context.Background(), emailDef)
	require.NoError(t, err)
	assert.Len(t, e.queue.Jobs(), 1)
}

func TestEvery_RearmsWhenEnqueueFails(t *testing.T) {
	e := newEnv(t)

	ack, err := e.sched.Every(context.Background(), "every 1 hour", emailDef)
	require.NoError(t, err)

	e.queue.SetErr(errors.New("db down"))
	e.expire(time.Hour)
	e.emit(ack.ScheduleID)

	assert.Empty(t, e.queue.Jobs())
	require.True(t, e.mr.Exists(markerKey(ack.ScheduleID)))
	assert.Contains(t, e.logs.String(), "failed to enqueue job")

	e.queue.SetErr(nil)
	e.expire(time.Hour)
	e.emit(ack.ScheduleID)

	jobs := e.queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.OccurrenceKey(ack.ScheduleID, t0.Add(2*time.Hour)), jobs[0].IdempotencyKey)
}

func TestEvery_InvalidDefinitionStopsChain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	payload, err := json.Marshal(domain.Marker{
		ScheduleID: "broken",
		Definition: domain.JobDefinition{"data": map[string]any{}},
		Spec:       domain.ScheduleSpec{Kind: domain.ScheduleEvery, Expr: "every 1 hour"},
		FireAt:     t0.Add(time.Hour),
		Occurrence: 1,
	})
	require.NoError(t, err)
	require.NoError(t, e.store.Arm(ctx, "broken", payload, time.Hour))

	e.expire(time.Hour)
	e.emit("broken")

	assert.Empty(t, e.queue.Jobs())
	assert.False(t, e.mr.Exists(markerKey("broken")))
	assert.False(t, e.mr.Exists(payloadKey("broken")))
	assert.Contains(t, e.logs.String(), "recurrence stopped")
}

func TestEvery_LateFireSkipsMissedOccurrences(t *testing.T) {
	e := newEnv(t)

	ack, err := e.sched.Every(context.Background(), "every 1 hour", emailDef)
	require.NoError(t, err)

	e.mr.FastForward(time.Hour)
	e.clock.Advance(3*time.Hour + 30*time.Minute)
	e.emit(ack.ScheduleID)

	require.Len(t, e.queue.Jobs(), 1)
	p, err := e.sched.Get(context.Background(), ack.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(4*time.Hour+30*time.Minute), p.FireAt.UTC())
	assert.InDelta(t, float64(time.Hour), float64(p.TTL), float64(e.store.Resolution()))
}

func TestEvery_IntervalWithoutPrefix(t *testing.T) {
	e := newEnv(t)

	ack, err := e.sched.Every(context.Background(), "5 minutes", emailDef)
	require.NoError(t, err)
	assert.Equal(t, "every 5 minutes", ack.Expr)
	assert.Equal(t, "RECURRING:every 5 minutes", ack.Tag)
	assert.Equal(t, 5*time.Minute, e.mr.TTL(markerKey(ack.ScheduleID)))
}

func TestEvery_FailedRegistrationLeavesNoMarker(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.sched.Every(ctx, "every fortnight", emailDef)
	assert.ErrorIs(t, err, dateexpr.ErrParse)

	_, err = e.sched.Every(ctx, "every 1 hour", domain.JobDefinition{"data": map[string]any{}})
	assert.ErrorIs(t, err, jobs.ErrMissingType)

	assert.Empty(t, e.mr.Keys())

	e.mr.Close()
	_, err = e.sched.Every(ctx, "every 1 hour", emailDef)
	var se *store.StoreError
	assert.True(t, errors.As(err, &se), "got %v", err)
}

func TestEvery_RejectsExpressionsWithoutFutureFire(t *testing.T) {
	e := newEnv(t)

	for _, expr := range []string{
		"every 3000000 hours",
		"every 600000 weeks",
		"cron:0 0 30 2 *",
		"0 0 31 4 *",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := e.sched.Every(context.Background(), expr, emailDef)

			var pe *dateexpr.ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Empty(t, e.mr.Keys())
		})
	}

	_, err := e.sched.At(context.Background(), "in 3000000 hours", emailDef)
	assert.ErrorIs(t, err, dateexpr.ErrParse)
	assert.Empty(t, e.mr.Keys())
}

func TestRearm_RetryRecomputesDelay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	flaky := &flakyArmStore{
		KeyStore: e.store,
		fails:    1,
		onFail:   func() { e.expire(400 * time.Millisecond) },
	}
	s := New(Config{
		Store:        flaky,
		Queue:        e.queue,
		Logger:       telemetry.NewLogger(e.logs, "debug", "json"),
		Clock:        e.clock.Now,
		RearmBackoff: time.Millisecond,
	})

	s.HandleFire(ctx, &domain.Marker{
		ScheduleID: "s-1",
		Definition: emailDef,
		Spec:       domain.ScheduleSpec{Kind: domain.ScheduleEvery, Expr: "every 1 hour"},
		FireAt:     t0,
		Occurrence: 1,
	}, nil)

	require.Len(t, e.queue.Jobs(), 1)
	assert.Equal(t, 0, flaky.fails)
	assert.Equal(t, time.Hour-400*time.Millisecond, e.mr.TTL(markerKey("s-1")))
}

// --- Schedule / Cancel / Get / List ---

func TestSchedule_Dispatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.sched.Schedule(ctx, "now", emailDef)
	require.NoError(t, err)
	require.NotNil(t, res.Job)
	assert.Nil(t, res.Ack)

	res, err = e.sched.Schedule(ctx, "every 2 hours", emailDef)
	require.NoError(t, err)
	require.NotNil(t, res.Ack)
	assert.Equal(t, domain.ScheduleEvery, res.Ack.Kind)

	res, err = e.sched.Schedule(ctx, "tomorrow at 9am", emailDef)
	require.NoError(t, err)
	require.NotNil(t, res.Ack)
	assert.Equal(t, domain.ScheduleAt, res.Ack.Kind)
	assert.Equal(t, time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC), res.Ack.FireAt)

	res, err = e.sched.Schedule(ctx, "now", domain.JobDefinition{
		"type": "email", "data": map[string]any{}, "color": "red",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"color"}, res.Report.Ignored)
}

func TestCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	ack, err := e.sched.At(ctx, "in 1 hour", emailDef)
	require.NoError(t, err)

	removed, err := e.sched.Cancel(ctx, ack.ScheduleID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, e.mr.Keys())

	_, err = e.sched.Get(ctx, ack.ScheduleID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	removed, err = e.sched.Cancel(ctx, ack.ScheduleID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestList(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	late, err := e.sched.At(ctx, "in 2 hours", emailDef)
	require.NoError(t, err)
	soon, err := e.sched.Every(ctx, "every 5 minutes", emailDef)
	require.NoError(t, err)

	pending, err := e.sched.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, soon.ScheduleID, pending[0].ScheduleID)
	assert.Equal(t, late.ScheduleID, pending[1].ScheduleID)
	assert.Equal(t, "email", pending[1].Definition.Type())
}

func TestStartStop(t *testing.T) {
	e := newEnv(t)

	assert.ErrorIs(t, e.sched.Start(context.Background()), ErrAlreadyStarted)

	e.sched.Stop()
	e.sched.Stop()
	require.NoError(t, e.sched.Start(context.Background()))
}

func TestStart_RequiresStore(t *testing.T) {
	s := New(Config{})
	assert.ErrorIs(t, s.Start(context.Background()), ErrNoStore)

	_, err := s.Every(context.Background(), "every 1 hour", emailDef)
	assert.ErrorIs(t, err, ErrNoStore)

	_, err = s.Now(context.Background(), emailDef)
	assert.ErrorIs(t, err, ErrNoQueue)
}

// --- helpers ---

func TestNextOccurrence(t *testing.T) {
	fireAt := t0.Add(time.Hour)

	// по расписанию: от fireAt, без накопления задержки
	next, err := NextOccurrence("every 1 hour", fireAt, fireAt.Add(250*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(2*time.Hour), next)

	// отставание больше периода: от now
	next, err = NextOccurrence("every 1 hour", fireAt, fireAt.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, fireAt.Add(150*time.Minute), next)

	// календарное правило
	next, err = NextOccurrence("every day at 9am", t0, t0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC), next)

	_, err = NextOccurrence("tomorrow", t0, t0)
	assert.ErrorIs(t, err, dateexpr.ErrParse)

	// правило без будущих срабатываний
	_, err = NextOccurrence("cron:0 0 30 2 *", t0, t0)
	assert.ErrorIs(t, err, dateexpr.ErrParse)
}

func TestDelayUntil(t *testing.T) {
	assert.Equal(t, time.Minute, delayUntil(t0.Add(time.Minute), t0, time.Millisecond))
	assert.Equal(t, time.Millisecond, delayUntil(t0, t0, time.Millisecond))
	assert.Equal(t, time.Millisecond, delayUntil(t0.Add(-time.Hour), t0, time.Millisecond))
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := retry(ctx, 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	calls = 0
	err = retry(cancelled, 3, time.Hour, func() error {
		calls++
		return errors.New("down")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNormalizeEvery(t *testing.T) {
	assert.Equal(t, "every 5 minutes", normalizeEvery("5 minutes"))
	assert.Equal(t, "every day at 9am", normalizeEvery(" every day at 9am "))
	assert.Equal(t, "@hourly", normalizeEvery("@hourly"))
	assert.Equal(t, "*/5 * * * *", normalizeEvery("*/5 * * * *"))
}
