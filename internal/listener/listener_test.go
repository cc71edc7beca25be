package listener

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Kronos/internal/domain"
	"github.com/shaiso/Kronos/internal/store"
	"github.com/shaiso/Kronos/internal/telemetry"
)

// fakeSource отдаёт заранее заданные сессии: ключи, затем ошибку.
// После последней сессии блокируется до отмены ctx.
type fakeSource struct {
	mu       sync.Mutex
	sessions []session
	calls    int
}

type session struct {
	keys []string
	err  error
}

func (s *fakeSource) Listen(ctx context.Context, handle func(key string)) error {
	s.mu.Lock()
	s.calls++
	if len(s.sessions) == 0 {
		s.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	sess := s.sessions[0]
	s.sessions = s.sessions[1:]
	s.mu.Unlock()

	for _, k := range sess.keys {
		handle(k)
	}
	return sess.err
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeStore — payload по id и признак живого маркера.
type fakeStore struct {
	payloads map[string][]byte
	live     map[string]bool
}

func (s *fakeStore) MarkerID(key string) (string, bool) {
	return strings.CutPrefix(key, "marker:")
}

func (s *fakeStore) Load(_ context.Context, id string) ([]byte, bool, error) {
	if id == "broken" {
		return nil, false, &store.StoreError{Op: "load", Err: errors.New("connection reset")}
	}
	p, ok := s.payloads[id]
	if !ok {
		return nil, s.live[id], &store.StoreError{Op: "load", Err: store.ErrNotFound}
	}
	return p, s.live[id], nil
}

func markerPayload(t *testing.T, id string) []byte {
	t.Helper()
	raw, err := json.Marshal(domain.Marker{
		ScheduleID: id,
		Definition: domain.JobDefinition{"type": "email", "data": map[string]any{}},
		Spec:       domain.ScheduleSpec{Kind: domain.ScheduleAt, Expr: "in 1 minute"},
		FireAt:     time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC),
		Occurrence: 1,
	})
	require.NoError(t, err)
	return raw
}

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) onFire(_ context.Context, m *domain.Marker, _ []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, m.ScheduleID)
}

func (r *recorder) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

// counterValue суммирует значения счётчика name в реестре.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func runUntil(t *testing.T, l *Listener, cond func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListener_DispatchesInOrder(t *testing.T) {
	st := &fakeStore{payloads: map[string][]byte{
		"a": markerPayload(t, "a"),
		"b": markerPayload(t, "b"),
		"c": markerPayload(t, "c"),
	}}
	src := &fakeSource{sessions: []session{{
		keys: []string{"marker:a", "payload:a", "marker:b", "other", "marker:c"},
	}}}
	rec := &recorder{}

	l := New(Config{Source: src, Store: st, OnFire: rec.onFire, MinBackoff: time.Millisecond})
	runUntil(t, l, func() bool { return len(rec.IDs()) == 3 })

	assert.Equal(t, []string{"a", "b", "c"}, rec.IDs())
}

func TestListener_DropsStaleMissingAndCorrupt(t *testing.T) {
	var logs bytes.Buffer
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	st := &fakeStore{
		payloads: map[string][]byte{
			"stale":    markerPayload(t, "stale"),
			"corrupt":  []byte("{not json"),
			"mismatch": markerPayload(t, "someone-else"),
			"ok":       markerPayload(t, "ok"),
		},
		live: map[string]bool{"stale": true},
	}
	src := &fakeSource{sessions: []session{{
		keys: []string{"marker:stale", "marker:missing", "marker:broken", "marker:corrupt", "marker:mismatch", "marker:ok"},
	}}}
	rec := &recorder{}

	l := New(Config{
		Source:     src,
		Store:      st,
		OnFire:     rec.onFire,
		Logger:     telemetry.NewLogger(&logs, "debug", "json"),
		Metrics:    metrics,
		MinBackoff: time.Millisecond,
	})
	runUntil(t, l, func() bool { return len(rec.IDs()) == 1 })

	assert.Equal(t, []string{"ok"}, rec.IDs())
	assert.Contains(t, logs.String(), "failed to decode marker")
	assert.Contains(t, logs.String(), "marker payload missing")
	assert.Contains(t, logs.String(), "stale event dropped")
	assert.Equal(t, float64(2), counterValue(t, reg, "kronos_marker_decode_errors_total"))
}

func TestListener_RecoversFromPanic(t *testing.T) {
	var logs bytes.Buffer
	st := &fakeStore{payloads: map[string][]byte{
		"boom": markerPayload(t, "boom"),
		"ok":   markerPayload(t, "ok"),
	}}
	src := &fakeSource{sessions: []session{{keys: []string{"marker:boom", "marker:ok"}}}}
	rec := &recorder{}

	l := New(Config{
		Source: src,
		Store:  st,
		Logger: telemetry.NewLogger(&logs, "info", "json"),
		OnFire: func(ctx context.Context, m *domain.Marker, payload []byte) {
			if m.ScheduleID == "boom" {
				panic("handler exploded")
			}
			rec.onFire(ctx, m, payload)
		},
		MinBackoff: time.Millisecond,
	})
	runUntil(t, l, func() bool { return len(rec.IDs()) == 1 })

	assert.Equal(t, []string{"ok"}, rec.IDs())
	assert.Contains(t, logs.String(), "handler exploded")
}

func TestListener_ReconnectsAfterDisconnect(t *testing.T) {
	var logs bytes.Buffer
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	st := &fakeStore{payloads: map[string][]byte{
		"a": markerPayload(t, "a"),
		"b": markerPayload(t, "b"),
	}}
	src := &fakeSource{sessions: []session{
		{keys: []string{"marker:a"}, err: errors.New("connection reset")},
		{err: errors.New("connection refused")},
		{keys: []string{"marker:b"}, err: nil},
	}}
	rec := &recorder{}

	l := New(Config{
		Source:     src,
		Store:      st,
		OnFire:     rec.onFire,
		Logger:     telemetry.NewLogger(&logs, "info", "json"),
		Metrics:    metrics,
		MinBackoff: time.Millisecond,
		MaxBackoff: 4 * time.Millisecond,
	})
	runUntil(t, l, func() bool { return len(rec.IDs()) == 2 && src.Calls() == 4 })

	assert.Equal(t, []string{"a", "b"}, rec.IDs())
	assert.Contains(t, logs.String(), "listener disconnected")
	assert.Equal(t, float64(3), counterValue(t, reg, "kronos_listener_reconnects_total"))
}

func TestListener_StopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	l := New(Config{Source: src, Store: &fakeStore{}, OnFire: func(context.Context, *domain.Marker, []byte) {}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, l.Run(ctx))
}

func TestNew_Defaults(t *testing.T) {
	l := New(Config{})
	assert.Equal(t, DefaultMinBackoff, l.minBackoff)
	assert.Equal(t, DefaultMaxBackoff, l.maxBackoff)
}

func TestDecodeMarker(t *testing.T) {
	m, err := decodeMarker("a", markerPayload(t, "a"))
	require.NoError(t, err)
	assert.Equal(t, "a", m.ScheduleID)
	assert.Equal(t, int64(1), m.Occurrence)

	_, err = decodeMarker("a", []byte(`{"schedule_id":"a"}`))
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "a", de.ScheduleID)

	_, err = decodeMarker("a", []byte(`[]`))
	assert.Error(t, err)
}

func TestExpiredChannel(t *testing.T) {
	assert.Equal(t, "__keyevent@0__:expired", ExpiredChannel(0))
	assert.Equal(t, "__keyevent@3__:expired", NewRedisSource(nil, 3).Channel())
}

func TestRedisSource_Listen(t *testing.T) {
	clients := map[string]func(addr string) redis.UniversalClient{
		"standalone": func(addr string) redis.UniversalClient {
			return redis.NewClient(&redis.Options{Addr: addr})
		},
		"cluster": func(addr string) redis.UniversalClient {
			return redis.NewClusterClient(&redis.ClusterOptions{Addrs: []string{addr}})
		},
	}

	for name, newClient := range clients {
		t.Run(name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			client := newClient(mr.Addr())
			t.Cleanup(func() { _ = client.Close() })

			src := NewRedisSource(client, 0)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			got := make(chan string, 4)
			done := make(chan error, 1)
			go func() {
				done <- src.Listen(ctx, func(key string) { got <- key })
			}()

			require.Eventually(t, func() bool {
				return mr.PubSubNumSub(src.Channel())[src.Channel()] > 0
			}, 2*time.Second, 10*time.Millisecond)

			mr.Publish(src.Channel(), "kronos:marker:{a}")
			mr.Publish(src.Channel(), "kronos:marker:{b}")

			for _, want := range []string{"kronos:marker:{a}", "kronos:marker:{b}"} {
				select {
				case key := <-got:
					assert.Equal(t, want, key)
				case <-time.After(2 * time.Second):
					t.Fatalf("key %s not delivered", want)
				}
			}

			cancel()
			select {
			case err := <-done:
				assert.ErrorIs(t, err, context.Canceled)
			case <-time.After(2 * time.Second):
				t.Fatal("listen did not stop")
			}
		})
	}
}

func TestRedisSource_SubscribeError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	err := NewRedisSource(client, 0).Listen(context.Background(), func(string) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe __keyevent@0__:expired")
}
