package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shaiso/Kronos/internal/domain"
)

// Границы выборки List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// DBTX — общий интерфейс pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// JobRepo — репозиторий задач очереди.
type JobRepo struct {
	db DBTX
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(db DBTX) *JobRepo {
	return &JobRepo{db: db}
}

const jobColumns = `
	id, type, data, priority, max_attempts, backoff, delay_ms, ttl_ms,
	remove_on_complete, search_keys, state, schedule_id, idempotency_key,
	promote_at, created_at`

// Create сохраняет задачу.
//
// Вставка идемпотентна по idempotency_key: если задача с таким ключом
// уже есть, job заполняется существующей записью и возвращается false.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job) (bool, error) {
	dataJSON, err := json.Marshal(job.Data)
	if err != nil {
		return false, fmt.Errorf("marshal data: %w", err)
	}
	backoffJSON, err := marshalBackoff(job.Backoff)
	if err != nil {
		return false, err
	}

	searchKeys := job.SearchKeys
	if searchKeys == nil {
		searchKeys = []string{}
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		RETURNING id
	`
	var id uuid.UUID
	err = r.db.QueryRow(ctx, query,
		job.ID,
		job.Type,
		dataJSON,
		job.Priority,
		job.MaxAttempts,
		backoffJSON,
		job.Delay.Milliseconds(),
		job.TTL.Milliseconds(),
		job.RemoveOnComplete,
		searchKeys,
		job.State,
		nullString(job.ScheduleID),
		nullString(job.IdempotencyKey),
		job.PromoteAt,
		job.CreatedAt,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		// Конфликт по ключу идемпотентности
		existing, err := r.GetByIdempotencyKey(ctx, job.IdempotencyKey)
		if err != nil {
			return false, fmt.Errorf("load duplicate job: %w", err)
		}
		*job = *existing
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert job: %w", err)
	}
	return true, nil
}

// GetByID возвращает задачу по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.db.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает задачу по ключу идемпотентности.
func (r *JobRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE idempotency_key = $1`
	return scanJob(r.db.QueryRow(ctx, query, key))
}

// List возвращает задачи по фильтру, новые первыми.
func (r *JobRepo) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE ($1::text IS NULL OR type = $1)
		  AND ($2::text IS NULL OR state = $2::job_state)
		  AND ($3::text IS NULL OR schedule_id = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.db.Query(ctx, query,
		nullString(filter.Type),
		nullString(string(filter.State)),
		nullString(filter.ScheduleID),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Count возвращает число задач по фильтру (без учёта Limit/Offset).
func (r *JobRepo) Count(ctx context.Context, filter JobFilter) (int, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return 0, err
	}

	query := `
		SELECT count(*)
		FROM jobs
		WHERE ($1::text IS NULL OR type = $1)
		  AND ($2::text IS NULL OR state = $2::job_state)
		  AND ($3::text IS NULL OR schedule_id = $3)
	`
	var total int
	err = r.db.QueryRow(ctx, query,
		nullString(filter.Type),
		nullString(string(filter.State)),
		nullString(filter.ScheduleID),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return total, nil
}

// PromoteDue переводит DELAYED задачи с наступившим promote_at в QUEUED
// и возвращает их. Параллельные вызовы не делят строки (SKIP LOCKED).
func (r *JobRepo) PromoteDue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	query := `
		UPDATE jobs
		SET state = 'QUEUED', promote_at = NULL
		WHERE id IN (
			SELECT id FROM jobs
			WHERE state = 'DELAYED' AND promote_at <= $1
			ORDER BY promote_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("promote due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// --- Helpers ---

// JobFilter — параметры фильтрации задач.
type JobFilter struct {
	Type       string
	State      domain.JobState
	ScheduleID string
	Limit      int
	Offset     int
}

// Normalize проверяет фильтр и подставляет значения по умолчанию.
func (f JobFilter) Normalize() (JobFilter, error) {
	if f.State != "" && !f.State.IsValid() {
		return f, fmt.Errorf("%w: unknown state %q", ErrInvalidFilter, f.State)
	}
	if f.Offset < 0 {
		return f, fmt.Errorf("%w: negative offset", ErrInvalidFilter)
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	f.Limit = min(f.Limit, MaxListLimit)
	return f, nil
}

// scanJob сканирует одну строку в Job (pgx.Row или pgx.Rows).
func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var dataJSON, backoffJSON []byte
	var delayMs, ttlMs int64
	var scheduleID, idempotencyKey *string

	err := row.Scan(
		&job.ID,
		&job.Type,
		&dataJSON,
		&job.Priority,
		&job.MaxAttempts,
		&backoffJSON,
		&delayMs,
		&ttlMs,
		&job.RemoveOnComplete,
		&job.SearchKeys,
		&job.State,
		&scheduleID,
		&idempotencyKey,
		&job.PromoteAt,
		&job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if dataJSON != nil {
		if err := json.Unmarshal(dataJSON, &job.Data); err != nil {
			return nil, fmt.Errorf("unmarshal data: %w", err)
		}
	}
	if backoffJSON != nil {
		job.Backoff = &domain.Backoff{}
		if err := json.Unmarshal(backoffJSON, job.Backoff); err != nil {
			return nil, fmt.Errorf("unmarshal backoff: %w", err)
		}
	}

	job.Delay = time.Duration(delayMs) * time.Millisecond
	job.TTL = time.Duration(ttlMs) * time.Millisecond
	if scheduleID != nil {
		job.ScheduleID = *scheduleID
	}
	if idempotencyKey != nil {
		job.IdempotencyKey = *idempotencyKey
	}

	return &job, nil
}

func marshalBackoff(b *domain.Backoff) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal backoff: %w", err)
	}
	return raw, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
