package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobDefinition — описание задачи от вызывающего кода.
//
// Это "сырое" отображение: обязательные ключи type и data плюс
// необязательные атрибуты очереди (priority, attempts, backoff, delay,
// ttl, removeOnComplete, searchKeys). Проверяется в jobs.Builder.
type JobDefinition map[string]any

// Type возвращает значение ключа type (пустая строка, если его нет или это не строка).
func (d JobDefinition) Type() string {
	s, _ := d["type"].(string)
	return s
}

// Data возвращает значение ключа data, если это отображение.
func (d JobDefinition) Data() map[string]any {
	m, _ := d["data"].(map[string]any)
	return m
}

// Clone возвращает копию верхнего уровня.
func (d JobDefinition) Clone() JobDefinition {
	if d == nil {
		return nil
	}
	out := make(JobDefinition, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// BackoffType — стратегия задержки между попытками.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// Backoff — политика повторов, передаётся очереди как есть.
type Backoff struct {
	Type  BackoffType   `json:"type"`
	Delay time.Duration `json:"delay"`
}

// Job — запись задачи, готовая к передаче в очередь.
//
// После Save запись принадлежит очереди: scheduler её больше не меняет.
type Job struct {
	// ID — идентификатор задачи в очереди.
	ID uuid.UUID `json:"id"`

	// Type — тип задачи (по нему исполнитель выбирает обработчик).
	Type string `json:"type"`

	// Data — полезная нагрузка. Всегда содержит ключ schedule (см. ScheduleTag).
	Data map[string]any `json:"data"`

	// Priority — приоритет: меньше значение, раньше выполнение.
	Priority int `json:"priority"`

	// MaxAttempts — сколько раз очередь может попытаться выполнить задачу.
	MaxAttempts int `json:"max_attempts"`

	// Backoff — политика задержки между попытками (nil — без задержки).
	Backoff *Backoff `json:"backoff,omitempty"`

	// Delay — задержка перед постановкой в очередь.
	Delay time.Duration `json:"delay,omitempty"`

	// TTL — максимальное время выполнения в активном состоянии.
	TTL time.Duration `json:"ttl,omitempty"`

	// RemoveOnComplete — удалить запись после успешного выполнения.
	RemoveOnComplete bool `json:"remove_on_complete,omitempty"`

	// SearchKeys — ключи data, по которым очередь индексирует задачу.
	SearchKeys []string `json:"search_keys,omitempty"`

	// State — состояние в очереди.
	State JobState `json:"state"`

	// ScheduleID — расписание, породившее задачу (пусто для NOW).
	ScheduleID string `json:"schedule_id,omitempty"`

	// IdempotencyKey — ключ дедупликации: "{schedule_id}_{fire_at_ms}".
	// Повторная постановка с тем же ключом не создаёт вторую задачу.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// PromoteAt — когда задержанная задача станет QUEUED.
	PromoteAt *time.Time `json:"promote_at,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// DefaultMaxAttempts — значение attempts по умолчанию.
const DefaultMaxAttempts = 1

// NewJob создаёт запись задачи с атрибутами по умолчанию.
func NewJob(jobType string, data map[string]any) *Job {
	if data == nil {
		data = map[string]any{}
	}
	return &Job{
		Type:        jobType,
		Data:        data,
		MaxAttempts: DefaultMaxAttempts,
		State:       JobStateQueued,
	}
}

// Tag возвращает метку расписания из data.
func (j *Job) Tag() string {
	s, _ := j.Data[ScheduleDataKey].(string)
	return s
}

// SetTag записывает метку расписания в data.
func (j *Job) SetTag(tag string) {
	if j.Data == nil {
		j.Data = map[string]any{}
	}
	j.Data[ScheduleDataKey] = tag
}

// MarkQueued переводит задачу в QUEUED или DELAYED в зависимости от Delay.
func (j *Job) MarkQueued(now time.Time) {
	j.CreatedAt = now
	if j.Delay > 0 {
		at := now.Add(j.Delay)
		j.State = JobStateDelayed
		j.PromoteAt = &at
		return
	}
	j.State = JobStateQueued
	j.PromoteAt = nil
}
