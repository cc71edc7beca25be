package domain

// JobState — состояние задачи в очереди.
//
// Жизненный цикл (ведёт очередь, не scheduler):
//
//	QUEUED → ACTIVE → COMPLETE
//	                ↘ FAILED
//	DELAYED → QUEUED (когда наступает promote_at)
type JobState string

const (
	// JobStateDelayed — задача сохранена с задержкой (атрибут delay).
	JobStateDelayed JobState = "DELAYED"

	// JobStateQueued — задача ожидает исполнителя.
	JobStateQueued JobState = "QUEUED"

	// JobStateActive — задача выполняется.
	JobStateActive JobState = "ACTIVE"

	// JobStateComplete — задача успешно выполнена.
	JobStateComplete JobState = "COMPLETE"

	// JobStateFailed — задача завершилась ошибкой, попытки исчерпаны.
	JobStateFailed JobState = "FAILED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateComplete, JobStateFailed:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что состояние известно.
func (s JobState) IsValid() bool {
	switch s {
	case JobStateDelayed, JobStateQueued, JobStateActive, JobStateComplete, JobStateFailed:
		return true
	default:
		return false
	}
}
