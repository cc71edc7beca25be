package mq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Kronos/internal/domain"
)

func TestAMQPPriority(t *testing.T) {
	tests := []struct {
		priority int
		want     uint8
	}{
		{-15, MaxPriority},
		{-10, 7},
		{-5, 5},
		{0, 4},
		{10, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AMQPPriority(tt.priority), "priority %d", tt.priority)
	}
}

func TestParsePayload_JobQueued(t *testing.T) {
	job := domain.NewJob("email", map[string]any{"to": "a@b.com"})
	job.ID = uuid.New()
	job.Priority = -10
	job.ScheduleID = "s-1"
	job.SetTag(domain.RecurringTag("every 1 hour"))

	raw, err := json.Marshal(&Message{
		ID:        "m-1",
		Type:      MessageTypeJobQueued,
		Payload:   NewJobQueuedPayload(job),
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	// так сообщение видит потребитель
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))

	p, err := ParsePayload[JobQueuedPayload](&msg)
	require.NoError(t, err)
	assert.Equal(t, job.ID, p.JobID)
	assert.Equal(t, "email", p.Type)
	assert.Equal(t, -10, p.Priority)
	assert.Equal(t, "RECURRING:every 1 hour", p.Tag)
	assert.Equal(t, "s-1", p.ScheduleID)
}

func TestTopologyInfo(t *testing.T) {
	info := TopologyInfo()
	assert.Contains(t, info, string(ExchangeJobs))
	assert.Contains(t, info, string(QueueJobsQueued))
	assert.Contains(t, info, string(QueueDLQJobs))
}
