// Package dateexpr разбирает человекочитаемые выражения времени.
//
// Parse превращает выражение в абсолютный момент относительно опорного
// времени ref. Функция чистая: одинаковые (expr, ref) дают одинаковый
// результат.
//
// Поддерживаемые формы:
//   - "now"
//   - абсолютные: RFC3339, "2006-01-02 15:04[:05]", "2006-01-02"
//   - относительные: "in 5 minutes", "2 hours from now", "in 1 hour 30 minutes",
//     "3 days ago", "5m", "1h30m"
//   - календарные: "tomorrow at 10am", "next monday", "friday at 18:30", "at noon"
//   - повторяющиеся (ParseRecurrence): "every 1 hour", "every other day",
//     "every day at 10am", "every monday at 9:00", "every weekday at 9am",
//     "cron:0 9 * * *", "@hourly", "@every 5m"
//
// Календарные повторения компилируются в robfig/cron расписания,
// интервальные считаются через AddDate/Add.
package dateexpr
