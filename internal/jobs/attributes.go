package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shaiso/Kronos/internal/domain"
)

// attributeSetter переносит значение атрибута в Job.
type attributeSetter func(b *Builder, job *domain.Job, v any) error

// attributeSetters — таблица известных атрибутов очереди.
var attributeSetters = map[string]attributeSetter{
	"priority":         setPriority,
	"attempts":         setAttempts,
	"backoff":          setBackoff,
	"delay":            setDelay,
	"ttl":              setTTL,
	"removeOnComplete": setRemoveOnComplete,
	"searchKeys":       setSearchKeys,
}

// priorities — именованные уровни приоритета.
var priorities = map[string]int{
	"low":      10,
	"normal":   0,
	"medium":   -5,
	"high":     -10,
	"critical": -15,
}

// Attributes возвращает имена поддерживаемых атрибутов.
func Attributes() []string {
	names := make([]string, 0, len(attributeSetters))
	for name := range attributeSetters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var errNotInteger = errors.New("expected an integer")

func setPriority(_ *Builder, job *domain.Job, v any) error {
	if s, ok := v.(string); ok {
		p, ok := priorities[strings.ToLower(s)]
		if !ok {
			return fmt.Errorf("unknown priority %q", s)
		}
		job.Priority = p
		return nil
	}

	n, err := toInt(v)
	if err != nil {
		return err
	}
	job.Priority = n
	return nil
}

func setAttempts(_ *Builder, job *domain.Job, v any) error {
	n, err := toInt(v)
	if err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	job.MaxAttempts = n
	return nil
}

// setBackoff принимает true/false или {type: fixed|exponential, delay: ms}.
func setBackoff(_ *Builder, job *domain.Job, v any) error {
	switch b := v.(type) {
	case bool:
		if b {
			job.Backoff = &domain.Backoff{Type: domain.BackoffFixed}
		} else {
			job.Backoff = nil
		}
		return nil

	case map[string]any:
		backoff := &domain.Backoff{Type: domain.BackoffFixed}
		if t, ok := b["type"]; ok {
			s, _ := t.(string)
			switch domain.BackoffType(strings.ToLower(s)) {
			case domain.BackoffFixed:
			case domain.BackoffExponential:
				backoff.Type = domain.BackoffExponential
			default:
				return fmt.Errorf("unknown backoff type %v", t)
			}
		}
		if d, ok := b["delay"]; ok {
			ms, err := toInt(d)
			if err != nil {
				return fmt.Errorf("delay: %w", err)
			}
			if ms < 0 {
				return fmt.Errorf("delay must not be negative")
			}
			backoff.Delay = time.Duration(ms) * time.Millisecond
		}
		job.Backoff = backoff
		return nil
	}

	return fmt.Errorf("expected boolean or object, got %s", kindOf(v))
}

// setDelay принимает миллисекунды или момент времени (RFC3339).
// Момент в прошлом означает отсутствие задержки.
func setDelay(b *Builder, job *domain.Job, v any) error {
	if s, ok := v.(string); ok {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("expected milliseconds or RFC3339 time: %w", err)
		}
		d := t.Sub(b.now())
		if d < 0 {
			d = 0
		}
		job.Delay = d
		return nil
	}

	ms, err := toInt(v)
	if err != nil {
		return err
	}
	if ms < 0 {
		return fmt.Errorf("must not be negative, got %d", ms)
	}
	job.Delay = time.Duration(ms) * time.Millisecond
	return nil
}

func setTTL(_ *Builder, job *domain.Job, v any) error {
	ms, err := toInt(v)
	if err != nil {
		return err
	}
	if ms <= 0 {
		return fmt.Errorf("must be positive, got %d", ms)
	}
	job.TTL = time.Duration(ms) * time.Millisecond
	return nil
}

func setRemoveOnComplete(_ *Builder, job *domain.Job, v any) error {
	b, ok := v.(bool)
	if !ok {
		return fmt.Errorf("expected boolean, got %s", kindOf(v))
	}
	job.RemoveOnComplete = b
	return nil
}

// setSearchKeys принимает строку или список строк.
func setSearchKeys(_ *Builder, job *domain.Job, v any) error {
	switch keys := v.(type) {
	case string:
		job.SearchKeys = []string{keys}
		return nil
	case []any:
		out := make([]string, 0, len(keys))
		for i, k := range keys {
			s, ok := k.(string)
			if !ok || s == "" {
				return fmt.Errorf("element %d: expected non-empty string", i)
			}
			out = append(out, s)
		}
		job.SearchKeys = out
		return nil
	}
	return fmt.Errorf("expected string or list of strings, got %s", kindOf(v))
}

// toInt приводит число из JSON к int. Дробные значения отклоняются.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, errNotInteger
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, errNotInteger
		}
		return int(i), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	}
	return 0, fmt.Errorf("%w, got %s", errNotInteger, kindOf(v))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
