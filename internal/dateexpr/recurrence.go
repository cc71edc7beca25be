package dateexpr

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений (5 полей + дескрипторы @hourly, @every).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Recurrence — правило повторения.
type Recurrence interface {
	// Next возвращает первое срабатывание строго после from.
	Next(from time.Time) time.Time

	// String возвращает нормализованное описание правила.
	String() string
}

// intervalRecurrence — фиксированный шаг: "every 2 hours", "every month".
type intervalRecurrence struct {
	off offset
}

func (r intervalRecurrence) Next(from time.Time) time.Time {
	return r.off.apply(from, 1)
}

func (r intervalRecurrence) String() string {
	return fmt.Sprintf("interval(y=%d m=%d d=%d dur=%s)", r.off.years, r.off.months, r.off.days, r.off.dur)
}

// cronRecurrence — календарное правило на robfig/cron.
type cronRecurrence struct {
	spec  string
	sched cron.Schedule
}

// Next делегирует robfig/cron. Расписания без CRON_TZ считаются
// в location переданного времени.
func (r cronRecurrence) Next(from time.Time) time.Time {
	return r.sched.Next(from)
}

func (r cronRecurrence) String() string {
	return "cron(" + r.spec + ")"
}

// steppedDaily — "every N days at HH:MM" для N > 1.
type steppedDaily struct {
	step  int
	clock clockTime
}

func (r steppedDaily) Next(from time.Time) time.Time {
	t := r.clock.at(from)
	if !t.After(from) {
		t = t.AddDate(0, 0, 1)
	}
	return t.AddDate(0, 0, r.step-1)
}

func (r steppedDaily) String() string {
	return fmt.Sprintf("every %d days at %02d:%02d", r.step, r.clock.hour, r.clock.minute)
}

var (
	reCronField = regexp.MustCompile(`^[0-9*/,\-?]+$`)
	reCronNames = regexp.MustCompile(`^(?i:mon|tue|wed|thu|fri|sat|sun|jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)([-,/](?i:mon|tue|wed|thu|fri|sat|sun|jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec|[0-9]+))*$`)
)

// IsRecurring сообщает, задаёт ли выражение повторение.
func IsRecurring(expr string) bool {
	s := strings.ToLower(strings.TrimSpace(expr))
	switch {
	case s == "every" || strings.HasPrefix(s, "every "):
		return true
	case strings.HasPrefix(s, "cron:"), strings.HasPrefix(s, "@"):
		return true
	}
	return looksLikeCron(s)
}

// looksLikeCron — пять полей, каждое похоже на поле crontab.
func looksLikeCron(s string) bool {
	fields := strings.Fields(s)
	if len(fields) != 5 {
		return false
	}
	if !reCronField.MatchString(fields[0]) {
		return false
	}
	for _, f := range fields[1:] {
		if !reCronField.MatchString(f) && !reCronNames.MatchString(f) {
			return false
		}
	}
	return true
}

// ParseRecurrence разбирает повторяющееся выражение.
func ParseRecurrence(expr string) (Recurrence, error) {
	s := strings.TrimSpace(expr)
	low := strings.ToLower(s)

	switch {
	case strings.HasPrefix(low, "cron:"):
		spec := strings.TrimSpace(s[len("cron:"):])
		if spec == "" {
			return nil, newParseError(expr, "cron:", "cron expression required")
		}
		return compileCron(expr, spec)
	case strings.HasPrefix(s, "@"), looksLikeCron(s):
		return compileCron(expr, s)
	}

	toks := tokenize(s)
	if len(toks) == 0 {
		return nil, newParseError(expr, "", "empty expression")
	}
	if toks[0] != "every" {
		return nil, newParseError(expr, toks[0], "recurring expression must start with \"every\"")
	}

	rest := toks[1:]
	if len(rest) == 0 {
		return nil, newParseError(expr, "every", "missing interval")
	}

	// "every 5m", "every 1h30m"
	if d, ok := goDuration(rest[0]); ok && len(rest) == 1 {
		if d <= 0 {
			return nil, newParseError(expr, rest[0], "interval must be positive")
		}
		return intervalRecurrence{off: offset{dur: d}}, nil
	}

	step := 1
	if rest[0] == "other" {
		step = 2
		rest = rest[1:]
	} else if n, ok := quantity(rest[0]); ok {
		if n <= 0 {
			return nil, newParseError(expr, rest[0], "interval must be positive")
		}
		step = n
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return nil, newParseError(expr, toks[len(toks)-1], "missing unit")
	}

	head := rest[0]
	clock, err := trailingClock(expr, rest[1:])
	if err != nil {
		return nil, err
	}

	if u, ok := units[head]; ok {
		if clock == nil {
			var off offset
			if !off.add(step, u) {
				return nil, newParseError(expr, toks[1], "interval out of range")
			}
			return intervalRecurrence{off: off}, nil
		}
		if u != unitDay {
			return nil, newParseError(expr, "at", "time of day is only supported for daily recurrences")
		}
		if step > 1 {
			return steppedDaily{step: step, clock: *clock}, nil
		}
		return compileCron(expr, fmt.Sprintf("%d %d * * *", clock.minute, clock.hour))
	}

	dow := ""
	switch head {
	case "weekday", "weekdays":
		dow = "1-5"
	case "weekend", "weekends":
		dow = "0,6"
	default:
		if wd, ok := weekdays[head]; ok {
			dow = fmt.Sprintf("%d", int(wd))
		}
	}
	if dow == "" {
		return nil, newParseError(expr, head, "unknown unit")
	}
	if step != 1 {
		return nil, newParseError(expr, toks[1], "step is not supported for weekday recurrences")
	}

	c := clockTime{}
	if clock != nil {
		c = *clock
	}
	return compileCron(expr, fmt.Sprintf("%d %d * * %s", c.minute, c.hour, dow))
}

// Upcoming возвращает первое срабатывание rec строго после ref.
// Правило, которое после ref не срабатывает, даёт ParseError.
func Upcoming(rec Recurrence, expr string, ref time.Time) (time.Time, error) {
	next := rec.Next(ref)
	if next.IsZero() {
		return time.Time{}, newParseError(expr, rec.String(), "expression never fires")
	}
	if !next.After(ref) {
		return time.Time{}, newParseError(expr, rec.String(), "interval out of range")
	}
	return next, nil
}

// trailingClock разбирает необязательный хвост "at <time>".
func trailingClock(expr string, toks []string) (*clockTime, error) {
	if len(toks) == 0 {
		return nil, nil
	}
	if toks[0] != "at" {
		return nil, newParseError(expr, toks[0], "unexpected token")
	}
	c, next, ok := takeClock(toks, 1, true)
	if !ok {
		bad := "at"
		if len(toks) > 1 {
			bad = toks[1]
		}
		return nil, newParseError(expr, bad, "invalid time of day")
	}
	if next != len(toks) {
		return nil, newParseError(expr, toks[next], "unexpected token")
	}
	return &c, nil
}

func compileCron(expr, spec string) (Recurrence, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, &ParseError{Expr: expr, Token: spec, Reason: "invalid cron expression: " + err.Error()}
	}
	return cronRecurrence{spec: spec, sched: sched}, nil
}
