package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Kronos/internal/domain"
	"github.com/shaiso/Kronos/internal/repo"
)

var t0 = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

// memRepo — JobRepo в памяти с уникальностью по idempotency_key.
type memRepo struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*domain.Job
	byKey map[string]uuid.UUID
	err   error
}

func newMemRepo() *memRepo {
	return &memRepo{jobs: map[uuid.UUID]*domain.Job{}, byKey: map[string]uuid.UUID{}}
}

func (r *memRepo) Create(_ context.Context, job *domain.Job) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return false, r.err
	}
	if job.IdempotencyKey != "" {
		if id, ok := r.byKey[job.IdempotencyKey]; ok {
			*job = *r.jobs[id]
			return false, nil
		}
		r.byKey[job.IdempotencyKey] = job.ID
	}
	stored := *job
	r.jobs[job.ID] = &stored
	return true, nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := *j
	return &out, nil
}

func (r *memRepo) matching(filter repo.JobFilter) []domain.Job {
	var out []domain.Job
	for _, j := range r.jobs {
		if filter.Type != "" && j.Type != filter.Type {
			continue
		}
		if filter.State != "" && j.State != filter.State {
			continue
		}
		if filter.ScheduleID != "" && j.ScheduleID != filter.ScheduleID {
			continue
		}
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

func (r *memRepo) List(_ context.Context, filter repo.JobFilter) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	filter, err := filter.Normalize()
	if err != nil {
		return nil, err
	}
	all := r.matching(filter)
	if filter.Offset >= len(all) {
		return nil, nil
	}
	all = all[filter.Offset:]
	return all[:min(filter.Limit, len(all))], nil
}

func (r *memRepo) Count(_ context.Context, filter repo.JobFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matching(filter)), nil
}

func (r *memRepo) PromoteDue(_ context.Context, now time.Time, limit int) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Job
	for _, j := range r.jobs {
		if len(out) == limit {
			break
		}
		if j.State == domain.JobStateDelayed && !j.PromoteAt.After(now) {
			j.State = domain.JobStateQueued
			j.PromoteAt = nil
			out = append(out, *j)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []uuid.UUID
	err       error
}

func (p *fakePublisher) PublishJobQueued(_ context.Context, job *domain.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, job.ID)
	return nil
}

func (p *fakePublisher) Published() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uuid.UUID(nil), p.published...)
}

func newService(r *memRepo, p *fakePublisher, clock *time.Time) *Service {
	return New(Config{
		Repo:      r,
		Publisher: p,
		Clock:     func() time.Time { return *clock },
	})
}

func TestSave_CreatesAndAnnounces(t *testing.T) {
	r, p, now := newMemRepo(), &fakePublisher{}, t0
	s := newService(r, p, &now)

	job := domain.NewJob("email", map[string]any{"to": "a@b.com"})
	created, err := s.Save(context.Background(), job)
	require.NoError(t, err)

	assert.True(t, created)
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, domain.JobStateQueued, job.State)
	assert.Equal(t, t0, job.CreatedAt)
	assert.Equal(t, []uuid.UUID{job.ID}, p.Published())
}

func TestSave_IdempotentByKey(t *testing.T) {
	r, p, now := newMemRepo(), &fakePublisher{}, t0
	s := newService(r, p, &now)
	ctx := context.Background()

	first := domain.NewJob("email", nil)
	first.IdempotencyKey = "s-1_1710324000000"
	created, err := s.Save(ctx, first)
	require.NoError(t, err)
	require.True(t, created)

	second := domain.NewJob("email", nil)
	second.IdempotencyKey = "s-1_1710324000000"
	created, err = s.Save(ctx, second)
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, p.Published(), 1)
}

func TestSave_DelayedIsNotAnnounced(t *testing.T) {
	r, p, now := newMemRepo(), &fakePublisher{}, t0
	s := newService(r, p, &now)

	job := domain.NewJob("email", nil)
	job.Delay = time.Minute
	created, err := s.Save(context.Background(), job)
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, domain.JobStateDelayed, job.State)
	require.NotNil(t, job.PromoteAt)
	assert.Equal(t, t0.Add(time.Minute), *job.PromoteAt)
	assert.Empty(t, p.Published())
}

func TestSave_PublishFailureIsNotFatal(t *testing.T) {
	r, now := newMemRepo(), t0
	p := &fakePublisher{err: errors.New("amqp channel not available")}
	s := newService(r, p, &now)

	job := domain.NewJob("email", nil)
	created, err := s.Save(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, created)

	stored, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, stored.ID)
}

func TestSave_RepoError(t *testing.T) {
	r, now := newMemRepo(), t0
	r.err = errors.New("connection refused")
	s := newService(r, nil, &now)

	_, err := s.Save(context.Background(), domain.NewJob("email", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save job")
}

func TestSave_NoRepo(t *testing.T) {
	s := New(Config{})
	_, err := s.Save(context.Background(), domain.NewJob("email", nil))
	assert.ErrorIs(t, err, ErrNoRepo)
}

func TestPromote(t *testing.T) {
	r, p, now := newMemRepo(), &fakePublisher{}, t0
	s := newService(r, p, &now)
	ctx := context.Background()

	soon := domain.NewJob("email", nil)
	soon.Delay = time.Minute
	later := domain.NewJob("email", nil)
	later.Delay = time.Hour
	_, err := s.Save(ctx, soon)
	require.NoError(t, err)
	_, err = s.Save(ctx, later)
	require.NoError(t, err)

	n, err := s.Promote(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = t0.Add(2 * time.Minute)
	n, err = s.Promote(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{soon.ID}, p.Published())

	got, err := s.Get(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateQueued, got.State)
	assert.Nil(t, got.PromoteAt)
}

func TestRunPromoter_StopsOnCancel(t *testing.T) {
	r, p, now := newMemRepo(), &fakePublisher{}, t0
	s := newService(r, p, &now)

	job := domain.NewJob("email", nil)
	job.Delay = time.Minute
	_, err := s.Save(context.Background(), job)
	require.NoError(t, err)
	now = t0.Add(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunPromoter(ctx, time.Millisecond, 10)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(p.Published()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("promoter did not stop")
	}
}

func TestList(t *testing.T) {
	r, now := newMemRepo(), t0
	s := newService(r, nil, &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		now = t0.Add(time.Duration(i) * time.Second)
		job := domain.NewJob("email", nil)
		job.ScheduleID = "s-1"
		_, err := s.Save(ctx, job)
		require.NoError(t, err)
	}
	_, err := s.Save(ctx, domain.NewJob("sms", nil))
	require.NoError(t, err)

	jobs, total, err := s.List(ctx, repo.JobFilter{ScheduleID: "s-1", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, jobs, 2)
	assert.True(t, jobs[0].CreatedAt.After(jobs[1].CreatedAt))

	_, _, err = s.List(ctx, repo.JobFilter{State: "BOGUS"})
	assert.ErrorIs(t, err, repo.ErrInvalidFilter)
}
