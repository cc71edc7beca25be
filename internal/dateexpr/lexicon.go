package dateexpr

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// unit — единица относительного смещения.
type unit int

const (
	unitSecond unit = iota + 1
	unitMinute
	unitHour
	unitDay
	unitWeek
	unitMonth
	unitYear
)

var units = map[string]unit{
	"s": unitSecond, "sec": unitSecond, "secs": unitSecond, "second": unitSecond, "seconds": unitSecond,
	"m": unitMinute, "min": unitMinute, "mins": unitMinute, "minute": unitMinute, "minutes": unitMinute,
	"h": unitHour, "hr": unitHour, "hrs": unitHour, "hour": unitHour, "hours": unitHour,
	"d": unitDay, "day": unitDay, "days": unitDay,
	"w": unitWeek, "wk": unitWeek, "wks": unitWeek, "week": unitWeek, "weeks": unitWeek,
	"mo": unitMonth, "month": unitMonth, "months": unitMonth,
	"y": unitYear, "yr": unitYear, "yrs": unitYear, "year": unitYear, "years": unitYear,
}

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// offset — накопленное относительное смещение.
type offset struct {
	years, months, days int
	dur                 time.Duration
}

// maxSpanYears ограничивает календарную часть смещения.
const maxSpanYears = 10000

// add прибавляет n единиц u. Возвращает false, если смещение выходит
// за допустимый диапазон; o при этом не меняется.
func (o *offset) add(n int, u unit) bool {
	if n < 0 {
		return false
	}
	switch u {
	case unitSecond:
		return o.addDur(n, time.Second)
	case unitMinute:
		return o.addDur(n, time.Minute)
	case unitHour:
		return o.addDur(n, time.Hour)
	case unitDay:
		return addBounded(&o.days, n, 1, maxSpanYears*366)
	case unitWeek:
		return addBounded(&o.days, n, 7, maxSpanYears*366)
	case unitMonth:
		return addBounded(&o.months, n, 1, maxSpanYears*12)
	case unitYear:
		return addBounded(&o.years, n, 1, maxSpanYears)
	}
	return false
}

func (o *offset) addDur(n int, per time.Duration) bool {
	if int64(n) > math.MaxInt64/int64(per) {
		return false
	}
	return o.plus(time.Duration(n) * per)
}

// plus прибавляет d к длительности без переполнения time.Duration.
func (o *offset) plus(d time.Duration) bool {
	if d > 0 && o.dur > math.MaxInt64-d {
		return false
	}
	o.dur += d
	return true
}

func addBounded(v *int, n, mul, limit int) bool {
	if n > limit/mul || *v+n*mul > limit {
		return false
	}
	*v += n * mul
	return true
}

func (o offset) isZero() bool {
	return o.years == 0 && o.months == 0 && o.days == 0 && o.dur == 0
}

func (o offset) apply(t time.Time, sign int) time.Time {
	t = t.AddDate(sign*o.years, sign*o.months, sign*o.days)
	return t.Add(time.Duration(sign) * o.dur)
}

// tokenize нормализует выражение: нижний регистр, без запятых и "and".
func tokenize(s string) []string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ",", " ")
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if f == "and" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// quantity разбирает число: цифры, "a"/"an" или слово one..twelve.
func quantity(tok string) (int, bool) {
	if n, ok := numberWords[tok]; ok {
		return n, true
	}
	if tok == "" || strings.IndexFunc(tok, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, false
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return n, true
}

// goDuration разбирает токен как Go duration ("5m", "1h30m").
func goDuration(tok string) (time.Duration, bool) {
	d, err := time.ParseDuration(tok)
	if err != nil {
		return 0, false
	}
	return d, true
}

// clockTime — время суток.
type clockTime struct {
	hour, minute int
}

var reClock = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(am|pm)?$`)

// parseClock разбирает "10am", "10:30", "10:30pm", "22:15", "noon", "midnight".
// Голое число ("10") принимается только при bare=true (после "at").
func parseClock(tok string, bare bool) (clockTime, bool) {
	switch tok {
	case "noon", "midday":
		return clockTime{hour: 12}, true
	case "midnight":
		return clockTime{}, true
	}

	m := reClock.FindStringSubmatch(tok)
	if m == nil {
		return clockTime{}, false
	}
	if m[2] == "" && m[3] == "" && !bare {
		return clockTime{}, false
	}

	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if minute > 59 {
		return clockTime{}, false
	}

	switch m[3] {
	case "am", "pm":
		if hour < 1 || hour > 12 {
			return clockTime{}, false
		}
		if hour == 12 {
			hour = 0
		}
		if m[3] == "pm" {
			hour += 12
		}
	default:
		if hour > 23 {
			return clockTime{}, false
		}
	}

	return clockTime{hour: hour, minute: minute}, true
}

// takeClock разбирает время суток начиная с toks[i], включая раздельный
// суффикс ("10 am"). Возвращает индекс следующего токена.
func takeClock(toks []string, i int, bare bool) (clockTime, int, bool) {
	if i >= len(toks) {
		return clockTime{}, i, false
	}
	if i+1 < len(toks) && (toks[i+1] == "am" || toks[i+1] == "pm") {
		if c, ok := parseClock(toks[i]+toks[i+1], true); ok {
			return c, i + 2, true
		}
	}
	if c, ok := parseClock(toks[i], bare); ok {
		return c, i + 1, true
	}
	return clockTime{}, i, false
}

// at возвращает момент дня t в указанное время суток.
func (c clockTime) at(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.hour, c.minute, 0, 0, t.Location())
}

// daysUntil возвращает число дней до следующего wd строго после from (1..7).
func daysUntil(from time.Time, wd time.Weekday) int {
	n := (int(wd) - int(from.Weekday()) + 7) % 7
	if n == 0 {
		n = 7
	}
	return n
}
