package domain

import (
	"fmt"
	"time"
)

// ScheduleDataKey — ключ в Job.Data, куда записывается метка расписания.
const ScheduleDataKey = "schedule"

// Метки расписания в Job.Data["schedule"].
const (
	TagNow             = "NOW"
	TagOnce            = "ONCE"
	TagRecurringPrefix = "RECURRING:"
)

// RecurringTag возвращает метку для повторяющегося расписания.
func RecurringTag(expr string) string {
	return TagRecurringPrefix + expr
}

// ScheduleKind — вид расписания.
type ScheduleKind string

const (
	// ScheduleNow — немедленная постановка, без маркера в хранилище.
	ScheduleNow ScheduleKind = "now"

	// ScheduleAt — однократный запуск в заданный момент.
	ScheduleAt ScheduleKind = "at"

	// ScheduleEvery — повторяющийся запуск.
	ScheduleEvery ScheduleKind = "every"
)

// ScheduleSpec — когда запускать задачу.
//
// Для At в Expr лежит исходное выражение (или RFC3339, если вызывающий
// передал time.Time). Для Every — выражение повторения, которое заново
// разбирается при каждом срабатывании.
type ScheduleSpec struct {
	Kind ScheduleKind `json:"kind"`
	Expr string       `json:"expr,omitempty"`
}

// IsRecurring возвращает true для повторяющихся расписаний.
func (s ScheduleSpec) IsRecurring() bool {
	return s.Kind == ScheduleEvery
}

// Tag возвращает метку, которую получит Job.Data["schedule"].
func (s ScheduleSpec) Tag() string {
	switch s.Kind {
	case ScheduleAt:
		return TagOnce
	case ScheduleEvery:
		return RecurringTag(s.Expr)
	default:
		return TagNow
	}
}

// Marker — содержимое маркера в TTL-хранилище.
//
// Одно ожидающее срабатывание на ScheduleID. Временем жизни маркера
// управляет только TTL хранилища; процесс scheduler'а его не держит в памяти.
type Marker struct {
	// ScheduleID — идентификатор расписания (общий для всей цепочки повторов).
	ScheduleID string `json:"schedule_id"`

	// Definition — исходное описание задачи.
	Definition JobDefinition `json:"definition"`

	// Spec — вид расписания и выражение.
	Spec ScheduleSpec `json:"spec"`

	// FireAt — момент, на который взведён маркер.
	FireAt time.Time `json:"fire_at"`

	// Occurrence — порядковый номер срабатывания (с 1).
	Occurrence int64 `json:"occurrence"`

	// CreatedAt — когда расписание было зарегистрировано.
	CreatedAt time.Time `json:"created_at"`
}

// IdempotencyKey возвращает ключ дедупликации для текущего срабатывания.
func (m *Marker) IdempotencyKey() string {
	return OccurrenceKey(m.ScheduleID, m.FireAt)
}

// OccurrenceKey формирует ключ "{schedule_id}_{fire_at_ms}".
func OccurrenceKey(scheduleID string, fireAt time.Time) string {
	return fmt.Sprintf("%s_%d", scheduleID, fireAt.UnixMilli())
}

// Next возвращает маркер следующего срабатывания той же цепочки.
func (m *Marker) Next(fireAt time.Time) *Marker {
	next := *m
	next.FireAt = fireAt
	next.Occurrence = m.Occurrence + 1
	return &next
}
