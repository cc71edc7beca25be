package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Kronos/internal/domain"
	"github.com/shaiso/Kronos/internal/repo"
)

// ListJobs возвращает задачи очереди с фильтрацией.
// GET /api/v1/jobs?type=...&state=...&schedule_id=...&limit=...&offset=...
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		Unavailable(w, "job queue not configured")
		return
	}

	q := r.URL.Query()
	filter := repo.JobFilter{
		Type:       q.Get("type"),
		State:      domain.JobState(q.Get("state")),
		ScheduleID: q.Get("schedule_id"),
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", repo.DefaultListLimit); err != nil {
		BadRequest(w, "invalid limit")
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		BadRequest(w, "invalid offset")
		return
	}

	jobs, total, err := h.jobs.List(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]JobResponse, len(jobs))
	for i := range jobs {
		result[i] = JobFromDomain(&jobs[i])
	}
	List(w, result, total)
}

// GetJob возвращает задачу по ID.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		Unavailable(w, "job queue not configured")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if HandleError(w, h.logger, err, "job not found") {
		return
	}
	Success(w, JobFromDomain(job))
}

// Healthz проверяет зависимости.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			Unavailable(w, err.Error())
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
