package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/shaiso/Kronos/internal/dateexpr"
)

// normalizeEvery дополняет интервал без "every" ("5 minutes") до
// повторяющегося выражения.
func normalizeEvery(expr string) string {
	expr = strings.TrimSpace(expr)
	if dateexpr.IsRecurring(expr) {
		return expr
	}
	return "every " + expr
}

// NextOccurrence вычисляет следующее срабатывание повторяющегося
// выражения после срабатывания fireAt.
//
// Следующий момент отсчитывается от fireAt, чтобы интервалы не
// накапливали задержку доставки. Если он уже прошёл (scheduler отстал
// больше чем на период), выражение разбирается заново относительно now:
// пропущенные срабатывания не догоняются. Правило без будущих
// срабатываний даёт *dateexpr.ParseError.
func NextOccurrence(expr string, fireAt, now time.Time) (time.Time, error) {
	rec, err := dateexpr.ParseRecurrence(expr)
	if err != nil {
		return time.Time{}, err
	}

	next := rec.Next(fireAt.In(now.Location()))
	if next.After(now) {
		return next, nil
	}
	return dateexpr.Upcoming(rec, expr, now)
}

// delayUntil возвращает задержку до t. Неположительная задержка
// заменяется разрешением хранилища.
func delayUntil(t, now time.Time, resolution time.Duration) time.Duration {
	d := t.Sub(now)
	if d <= 0 {
		return resolution
	}
	return d
}

// retry выполняет fn до attempts раз с удваивающейся паузой.
func retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
