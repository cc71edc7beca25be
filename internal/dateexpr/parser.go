package dateexpr

import (
	"strings"
	"time"
)

// absoluteLayouts — форматы абсолютного времени без часового пояса
// интерпретируются в location опорного времени.
var absoluteLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Parse разбирает выражение в абсолютный момент относительно ref.
//
// Нулевой ref означает текущее время. Для повторяющихся выражений
// возвращается первое срабатывание после ref.
func Parse(expr string, ref time.Time) (time.Time, error) {
	if ref.IsZero() {
		ref = time.Now()
	}

	s := strings.TrimSpace(expr)
	if s == "" {
		return time.Time{}, newParseError(expr, "", "empty expression")
	}

	if IsRecurring(s) {
		rec, err := ParseRecurrence(s)
		if err != nil {
			return time.Time{}, err
		}
		return Upcoming(rec, expr, ref)
	}

	if t, ok := parseAbsolute(s, ref.Location()); ok {
		return t, nil
	}

	return parseRelative(expr, tokenize(s), ref)
}

// MustParse — Parse для констант в тестах и примерах.
func MustParse(expr string, ref time.Time) time.Time {
	t, err := Parse(expr, ref)
	if err != nil {
		panic(err)
	}
	return t
}

func parseAbsolute(s string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// relative — состояние разбора относительного выражения.
type relative struct {
	expr string
	ref  time.Time

	off      offset
	sign     int
	dayShift int
	hasDate  bool
	clock    *clockTime
}

func parseRelative(expr string, toks []string, ref time.Time) (time.Time, error) {
	r := &relative{expr: expr, ref: ref, sign: 1}

	for i := 0; i < len(toks); {
		next, err := r.step(toks, i)
		if err != nil {
			return time.Time{}, err
		}
		i = next
	}

	return r.resolve(), nil
}

// step разбирает один терм и возвращает индекс следующего токена.
func (r *relative) step(toks []string, i int) (int, error) {
	tok := toks[i]

	switch tok {
	case "now", "later":
		return i + 1, nil

	case "in", "after":
		if i+1 >= len(toks) {
			return i, newParseError(r.expr, tok, "missing duration")
		}
		return i + 1, nil

	case "from":
		if i+1 < len(toks) && toks[i+1] == "now" {
			return i + 2, nil
		}
		return i, newParseError(r.expr, tok, "expected \"from now\"")

	case "ago":
		if r.off.isZero() {
			return i, newParseError(r.expr, tok, "\"ago\" without duration")
		}
		r.sign = -1
		return i + 1, nil

	case "today":
		return r.setDay(tok, 0, i)
	case "tomorrow":
		return r.setDay(tok, 1, i)
	case "yesterday":
		return r.setDay(tok, -1, i)

	case "next":
		if i+1 >= len(toks) {
			return i, newParseError(r.expr, tok, "missing weekday or unit")
		}
		nt := toks[i+1]
		if wd, ok := weekdays[nt]; ok {
			return r.setDay(nt, daysUntil(r.ref, wd), i+1)
		}
		if u, ok := units[nt]; ok {
			if !r.off.add(1, u) {
				return i, newParseError(r.expr, nt, "offset out of range")
			}
			return i + 2, nil
		}
		return i, newParseError(r.expr, nt, "expected weekday or unit after \"next\"")

	case "at":
		c, next, ok := takeClock(toks, i+1, true)
		if !ok {
			bad := tok
			if i+1 < len(toks) {
				bad = toks[i+1]
			}
			return i, newParseError(r.expr, bad, "invalid time of day")
		}
		return r.setClock(c, toks[i+1], next)

	case "every":
		return i, newParseError(r.expr, tok, "recurring term in one-shot expression")
	}

	if wd, ok := weekdays[tok]; ok {
		return r.setDay(tok, daysUntil(r.ref, wd), i)
	}

	// "10am", "10:30", "noon"
	if c, next, ok := takeClock(toks, i, false); ok {
		return r.setClock(c, tok, next)
	}

	// "5 minutes", "an hour", "10 am"
	if n, ok := quantity(tok); ok {
		if i+1 >= len(toks) {
			return i, newParseError(r.expr, tok, "missing unit")
		}
		if u, ok := units[toks[i+1]]; ok {
			if !r.off.add(n, u) {
				return i, newParseError(r.expr, tok, "offset out of range")
			}
			return i + 2, nil
		}
		if c, next, ok := takeClock(toks, i, true); ok && next == i+2 {
			return r.setClock(c, tok, next)
		}
		return i, newParseError(r.expr, toks[i+1], "unknown unit")
	}

	// "5m", "1h30m"
	if d, ok := goDuration(tok); ok {
		if d < 0 || !r.off.plus(d) {
			return i, newParseError(r.expr, tok, "offset out of range")
		}
		return i + 1, nil
	}

	return i, newParseError(r.expr, tok, "unexpected token")
}

func (r *relative) setDay(tok string, shift, i int) (int, error) {
	if r.hasDate {
		return i, newParseError(r.expr, tok, "day specified twice")
	}
	r.hasDate = true
	r.dayShift = shift
	return i + 1, nil
}

func (r *relative) setClock(c clockTime, tok string, next int) (int, error) {
	if r.clock != nil {
		return next, newParseError(r.expr, tok, "time of day specified twice")
	}
	r.clock = &c
	return next, nil
}

// resolve собирает итоговый момент.
//
// Голое время суток, уже прошедшее сегодня, переносится на завтра.
func (r *relative) resolve() time.Time {
	t := r.off.apply(r.ref, r.sign)
	if r.dayShift != 0 {
		t = t.AddDate(0, 0, r.dayShift)
	}

	if r.clock == nil {
		return t
	}

	t = r.clock.at(t)
	if !r.hasDate && r.off.isZero() && !t.After(r.ref) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
