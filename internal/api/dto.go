package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Kronos/internal/domain"
	"github.com/shaiso/Kronos/internal/jobs"
	"github.com/shaiso/Kronos/internal/scheduler"
)

// Schedule DTOs

// ScheduleRequest — запрос на регистрацию расписания.
//
// Для /schedules и /schedules/at выражение берётся из When,
// для /schedules/every — из Interval (или When).
type ScheduleRequest struct {
	When       string          `json:"when,omitempty"`
	Interval   string          `json:"interval,omitempty"`
	Definition json.RawMessage `json:"definition"`
}

// ReportResponse — отчёт по атрибутам задачи.
type ReportResponse struct {
	Applied  []string              `json:"applied"`
	Ignored  []string              `json:"ignored"`
	Rejected []jobs.AttributeIssue `json:"rejected"`
}

// ReportFromDomain конвертирует jobs.Report в ReportResponse.
func ReportFromDomain(r jobs.Report) ReportResponse {
	out := ReportResponse{
		Applied:  r.Applied,
		Ignored:  r.Ignored,
		Rejected: r.Rejected,
	}
	if out.Applied == nil {
		out.Applied = []string{}
	}
	if out.Ignored == nil {
		out.Ignored = []string{}
	}
	if out.Rejected == nil {
		out.Rejected = []jobs.AttributeIssue{}
	}
	return out
}

// AckResponse — подтверждение регистрации отложенного расписания.
type AckResponse struct {
	ScheduleID string         `json:"schedule_id"`
	Kind       string         `json:"kind"`
	Expr       string         `json:"expr"`
	Tag        string         `json:"tag"`
	FireAt     time.Time      `json:"fire_at"`
	TTLMs      int64          `json:"ttl_ms"`
	Report     ReportResponse `json:"report"`
}

// AckFromDomain конвертирует scheduler.Ack в AckResponse.
func AckFromDomain(a *scheduler.Ack) AckResponse {
	return AckResponse{
		ScheduleID: a.ScheduleID,
		Kind:       string(a.Kind),
		Expr:       a.Expr,
		Tag:        a.Tag,
		FireAt:     a.FireAt,
		TTLMs:      a.TTL.Milliseconds(),
		Report:     ReportFromDomain(a.Report),
	}
}

// ScheduleResultResponse — результат общей регистрации: задача для
// "now" или подтверждение для отложенного расписания.
type ScheduleResultResponse struct {
	Job    *JobResponse   `json:"job,omitempty"`
	Ack    *AckResponse   `json:"ack,omitempty"`
	Report ReportResponse `json:"report"`
}

// NowResponse — результат немедленной постановки.
type NowResponse struct {
	Job    JobResponse    `json:"job"`
	Report ReportResponse `json:"report"`
}

// PendingResponse — взведённое расписание.
type PendingResponse struct {
	ScheduleID string               `json:"schedule_id"`
	Kind       string               `json:"kind"`
	Expr       string               `json:"expr"`
	Tag        string               `json:"tag"`
	Definition domain.JobDefinition `json:"definition"`
	FireAt     time.Time            `json:"fire_at"`
	Occurrence int64                `json:"occurrence"`
	CreatedAt  time.Time            `json:"created_at"`
	TTLMs      int64                `json:"ttl_ms"`
}

// PendingFromDomain конвертирует scheduler.Pending в PendingResponse.
func PendingFromDomain(p *scheduler.Pending) PendingResponse {
	return PendingResponse{
		ScheduleID: p.ScheduleID,
		Kind:       string(p.Spec.Kind),
		Expr:       p.Spec.Expr,
		Tag:        p.Spec.Tag(),
		Definition: p.Definition,
		FireAt:     p.FireAt,
		Occurrence: p.Occurrence,
		CreatedAt:  p.CreatedAt,
		TTLMs:      p.TTL.Milliseconds(),
	}
}

// Job DTOs

// BackoffResponse — политика повторов.
type BackoffResponse struct {
	Type    string `json:"type"`
	DelayMs int64  `json:"delay_ms"`
}

// JobResponse — ответ с задачей.
type JobResponse struct {
	ID               uuid.UUID        `json:"id"`
	Type             string           `json:"type"`
	Data             map[string]any   `json:"data"`
	Priority         int              `json:"priority"`
	MaxAttempts      int              `json:"max_attempts"`
	Backoff          *BackoffResponse `json:"backoff,omitempty"`
	DelayMs          int64            `json:"delay_ms,omitempty"`
	TTLMs            int64            `json:"ttl_ms,omitempty"`
	RemoveOnComplete bool             `json:"remove_on_complete"`
	SearchKeys       []string         `json:"search_keys,omitempty"`
	State            string           `json:"state"`
	ScheduleID       string           `json:"schedule_id,omitempty"`
	IdempotencyKey   string           `json:"idempotency_key,omitempty"`
	PromoteAt        *time.Time       `json:"promote_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// JobFromDomain конвертирует domain.Job в JobResponse.
func JobFromDomain(j *domain.Job) JobResponse {
	resp := JobResponse{
		ID:               j.ID,
		Type:             j.Type,
		Data:             j.Data,
		Priority:         j.Priority,
		MaxAttempts:      j.MaxAttempts,
		DelayMs:          j.Delay.Milliseconds(),
		TTLMs:            j.TTL.Milliseconds(),
		RemoveOnComplete: j.RemoveOnComplete,
		SearchKeys:       j.SearchKeys,
		State:            string(j.State),
		ScheduleID:       j.ScheduleID,
		IdempotencyKey:   j.IdempotencyKey,
		PromoteAt:        j.PromoteAt,
		CreatedAt:        j.CreatedAt,
	}
	if j.Backoff != nil {
		resp.Backoff = &BackoffResponse{
			Type:    string(j.Backoff.Type),
			DelayMs: j.Backoff.Delay.Milliseconds(),
		}
	}
	return resp
}
