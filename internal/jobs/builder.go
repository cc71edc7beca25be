package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"dario.cat/mergo"

	"github.com/shaiso/Kronos/internal/domain"
)

// Report — что произошло с атрибутами при сборке.
type Report struct {
	// Applied — атрибуты, перенесённые в Job.
	Applied []string `json:"applied,omitempty"`

	// Ignored — неизвестные атрибуты.
	Ignored []string `json:"ignored,omitempty"`

	// Rejected — известные атрибуты с некорректным значением.
	Rejected []AttributeIssue `json:"rejected,omitempty"`
}

// AttributeIssue — отклонённый атрибут.
type AttributeIssue struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Clean возвращает true, если все атрибуты применены.
func (r Report) Clean() bool {
	return len(r.Ignored) == 0 && len(r.Rejected) == 0
}

// Builder проверяет описания и собирает задачи.
type Builder struct {
	now func() time.Time
}

// NewBuilder создаёт Builder. now используется для атрибута delay,
// заданного абсолютным временем; nil — time.Now.
func NewBuilder(now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{now: now}
}

// DecodeDefinition разбирает JSON-описание задачи.
//
// Массивы, null и примитивы отклоняются с ErrNotMapping.
func DecodeDefinition(raw []byte) (domain.JobDefinition, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, newValidationError("", "empty definition", ErrNotMapping)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, newValidationError("", fmt.Sprintf("decode json: %v", err), ErrNotMapping)
	}

	m, ok := v.(map[string]any)
	if !ok {
		return nil, newValidationError("", fmt.Sprintf("expected object, got %s", kindOf(v)), ErrNotMapping)
	}
	return domain.JobDefinition(m), nil
}

// DefinitionFrom приводит произвольное значение к описанию задачи.
//
// Принимаются отображения со строковыми ключами и структуры
// (через JSON-представление).
func DefinitionFrom(v any) (domain.JobDefinition, error) {
	switch d := v.(type) {
	case domain.JobDefinition:
		if d == nil {
			return nil, newValidationError("", "nil definition", ErrNotMapping)
		}
		return d, nil
	case map[string]any:
		if d == nil {
			return nil, newValidationError("", "nil definition", ErrNotMapping)
		}
		return domain.JobDefinition(d), nil
	case nil:
		return nil, newValidationError("", "nil definition", ErrNotMapping)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, newValidationError("", "nil definition", ErrNotMapping)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct && !isStringMap(rv) {
		return nil, newValidationError("", fmt.Sprintf("expected mapping, got %s", rv.Kind()), ErrNotMapping)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, newValidationError("", fmt.Sprintf("encode definition: %v", err), ErrNotMapping)
	}
	return DecodeDefinition(raw)
}

// Validate проверяет правила описания. Первое нарушение прерывает проверку.
func (b *Builder) Validate(def domain.JobDefinition) error {
	if def == nil {
		return newValidationError("", "nil definition", ErrNotMapping)
	}

	t, ok := def["type"].(string)
	if !ok || t == "" {
		return newValidationError("type", "must be a non-empty string", ErrMissingType)
	}

	data, ok := def["data"]
	if !ok || data == nil {
		return newValidationError("data", "is required", ErrInvalidData)
	}
	if _, ok := data.(map[string]any); ok {
		return nil
	}
	if !isStringMap(reflect.ValueOf(data)) {
		return newValidationError("data", fmt.Sprintf("expected mapping, got %s", kindOf(data)), ErrInvalidData)
	}
	return nil
}

// Build проверяет описание, подмешивает значения по умолчанию и
// переносит атрибуты очереди в Job.
//
// Описание вызывающего кода не изменяется.
func (b *Builder) Build(def domain.JobDefinition) (*domain.Job, Report, error) {
	var report Report

	if err := b.Validate(def); err != nil {
		return nil, report, err
	}

	merged, err := b.withDefaults(def)
	if err != nil {
		return nil, report, err
	}

	job := domain.NewJob(merged.Type(), merged.Data())

	for _, name := range sortedKeys(merged) {
		if name == "type" || name == "data" {
			continue
		}

		set, ok := attributeSetters[name]
		if !ok {
			report.Ignored = append(report.Ignored, name)
			continue
		}

		if err := set(b, job, merged[name]); err != nil {
			report.Rejected = append(report.Rejected, AttributeIssue{Name: name, Reason: err.Error()})
			continue
		}
		report.Applied = append(report.Applied, name)
	}

	return job, report, nil
}

// defaults возвращает свежую копию значений по умолчанию: mergo
// сливает вложенные отображения на месте.
func defaults() domain.JobDefinition {
	return domain.JobDefinition{
		"data": map[string]any{
			domain.ScheduleDataKey: domain.TagNow,
		},
	}
}

// withDefaults сливает описание поверх значений по умолчанию.
func (b *Builder) withDefaults(def domain.JobDefinition) (domain.JobDefinition, error) {
	src, err := normalize(def)
	if err != nil {
		return nil, newValidationError("", err.Error(), ErrNotMapping)
	}

	dst := defaults()
	if err := mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge defaults: %w", err)
	}
	return dst, nil
}

// normalize приводит описание к JSON-виду (map[string]any, []any,
// float64), чтобы слияние и таблица атрибутов видели единые типы и
// не разделяли вложенные значения с вызывающим кодом.
func normalize(def domain.JobDefinition) (domain.JobDefinition, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode definition: %w", err)
	}
	var out domain.JobDefinition
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return out, nil
}

func isStringMap(v reflect.Value) bool {
	return v.IsValid() && v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String && !v.IsNil()
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	}
	return reflect.TypeOf(v).Kind().String()
}
