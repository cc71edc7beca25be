package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduleSpec_Tag(t *testing.T) {
	assert.Equal(t, "NOW", ScheduleSpec{Kind: ScheduleNow}.Tag())
	assert.Equal(t, "ONCE", ScheduleSpec{Kind: ScheduleAt, Expr: "in 1 hour"}.Tag())
	assert.Equal(t, "RECURRING:every 5 minutes", ScheduleSpec{Kind: ScheduleEvery, Expr: "every 5 minutes"}.Tag())
	assert.True(t, ScheduleSpec{Kind: ScheduleEvery}.IsRecurring())
	assert.False(t, ScheduleSpec{Kind: ScheduleAt}.IsRecurring())
}

func TestMarker_NextKeepsChain(t *testing.T) {
	fireAt := time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)
	m := &Marker{ScheduleID: "s-1", FireAt: fireAt, Occurrence: 1}

	next := m.Next(fireAt.Add(time.Minute))

	assert.Equal(t, "s-1", next.ScheduleID)
	assert.Equal(t, int64(2), next.Occurrence)
	assert.Equal(t, int64(1), m.Occurrence)
	assert.Equal(t, "s-1_1710324000000", m.IdempotencyKey())
	assert.Equal(t, "s-1_1710324060000", next.IdempotencyKey())
}

func TestJob_MarkQueued(t *testing.T) {
	now := time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

	job := NewJob("email", nil)
	job.MarkQueued(now)
	assert.Equal(t, JobStateQueued, job.State)
	assert.Nil(t, job.PromoteAt)
	assert.Equal(t, now, job.CreatedAt)

	delayed := NewJob("email", nil)
	delayed.Delay = 30 * time.Second
	delayed.MarkQueued(now)
	assert.Equal(t, JobStateDelayed, delayed.State)
	assert.Equal(t, now.Add(30*time.Second), *delayed.PromoteAt)
}

func TestJob_Tag(t *testing.T) {
	job := &Job{}
	assert.Empty(t, job.Tag())

	job.SetTag(TagOnce)
	assert.Equal(t, "ONCE", job.Tag())
	assert.Equal(t, "ONCE", job.Data["schedule"])
}

func TestJobState(t *testing.T) {
	assert.True(t, JobStateComplete.IsTerminal())
	assert.False(t, JobStateDelayed.IsTerminal())
	assert.True(t, JobStateDelayed.IsValid())
	assert.False(t, JobState("PAUSED").IsValid())
}
