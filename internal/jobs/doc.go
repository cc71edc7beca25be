// Package jobs проверяет описание задачи и собирает из него domain.Job.
//
// Правила валидации (первое нарушение прерывает проверку):
//   - описание — обычное отображение (не массив, не null, не примитив);
//   - type — непустая строка;
//   - data — обычное отображение.
//
// После проверки к описанию подмешиваются значения по умолчанию
// {data: {schedule: "NOW"}} (значения вызывающего кода важнее), затем
// атрибуты очереди переносятся в Job по таблице attributeSetters.
// Неизвестные атрибуты игнорируются и попадают в Report.Ignored.
package jobs
