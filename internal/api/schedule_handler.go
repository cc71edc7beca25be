package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shaiso/Kronos/internal/domain"
	"github.com/shaiso/Kronos/internal/jobs"
	"github.com/shaiso/Kronos/internal/store"
	"github.com/shaiso/Kronos/internal/telemetry"
)

// CreateSchedule регистрирует расписание по выражению: "now",
// повторяющееся или однократное.
// POST /api/v1/schedules {when, definition}
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	req, def, ok := h.decodeScheduleRequest(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.When) == "" {
		BadRequest(w, "when is required")
		return
	}

	res, err := h.scheduler.Schedule(r.Context(), req.When, def)
	if HandleError(w, h.logger, err, "") {
		return
	}

	resp := ScheduleResultResponse{Report: ReportFromDomain(res.Report)}
	if res.Job != nil {
		job := JobFromDomain(res.Job)
		resp.Job = &job
	}
	if res.Ack != nil {
		ack := AckFromDomain(res.Ack)
		resp.Ack = &ack
	}
	Created(w, resp)
}

// ScheduleNow сразу ставит задачу в очередь.
// POST /api/v1/schedules/now {definition}
func (h *Handler) ScheduleNow(w http.ResponseWriter, r *http.Request) {
	_, def, ok := h.decodeScheduleRequest(w, r)
	if !ok {
		return
	}

	res, err := h.scheduler.Schedule(r.Context(), "now", def)
	if HandleError(w, h.logger, err, "") {
		return
	}

	Created(w, NowResponse{
		Job:    JobFromDomain(res.Job),
		Report: ReportFromDomain(res.Report),
	})
}

// ScheduleAt регистрирует однократный запуск.
// POST /api/v1/schedules/at {when, definition}
func (h *Handler) ScheduleAt(w http.ResponseWriter, r *http.Request) {
	req, def, ok := h.decodeScheduleRequest(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.When) == "" {
		BadRequest(w, "when is required")
		return
	}

	ack, err := h.scheduler.At(r.Context(), req.When, def)
	if HandleError(w, h.logger, err, "") {
		return
	}
	Created(w, AckFromDomain(ack))
}

// ScheduleEvery регистрирует повторяющееся расписание.
// POST /api/v1/schedules/every {interval, definition}
func (h *Handler) ScheduleEvery(w http.ResponseWriter, r *http.Request) {
	req, def, ok := h.decodeScheduleRequest(w, r)
	if !ok {
		return
	}

	interval := req.Interval
	if interval == "" {
		interval = req.When
	}
	if strings.TrimSpace(interval) == "" {
		BadRequest(w, "interval is required")
		return
	}

	ack, err := h.scheduler.Every(r.Context(), interval, def)
	if HandleError(w, h.logger, err, "") {
		return
	}
	Created(w, AckFromDomain(ack))
}

// ListSchedules возвращает взведённые расписания, ближайшие первыми.
// GET /api/v1/schedules?limit=...
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", store.DefaultListLimit)
	if err != nil || limit <= 0 {
		BadRequest(w, "invalid limit")
		return
	}

	pending, err := h.scheduler.List(r.Context(), limit)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]PendingResponse, len(pending))
	for i := range pending {
		result[i] = PendingFromDomain(&pending[i])
	}
	List(w, result, len(result))
}

// GetSchedule возвращает взведённое расписание.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	p, err := h.scheduler.Get(r.Context(), id)
	if HandleError(w, h.logger, err, "schedule not found") {
		return
	}
	Success(w, PendingFromDomain(p))
}

// CancelSchedule снимает маркер расписания.
// DELETE /api/v1/schedules/{id}
func (h *Handler) CancelSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	removed, err := h.scheduler.Cancel(r.Context(), id)
	if HandleError(w, h.logger, err, "") {
		return
	}
	if !removed {
		NotFound(w, "schedule not found")
		return
	}

	telemetry.WithScheduleID(telemetry.FromContext(r.Context()), id).Info("schedule cancelled via api")
	NoContent(w)
}

// decodeScheduleRequest разбирает тело запроса и описание задачи.
func (h *Handler) decodeScheduleRequest(w http.ResponseWriter, r *http.Request) (*ScheduleRequest, domain.JobDefinition, bool) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, ErrorDetail{Code: ErrCodeBadRequest, Message: "request body too large"})
			return nil, nil, false
		}
		BadRequest(w, "invalid request body")
		return nil, nil, false
	}

	def, err := jobs.DecodeDefinition(req.Definition)
	if HandleError(w, h.logger, err, "") {
		return nil, nil, false
	}
	return &req, def, true
}

// queryInt читает целочисленный query-параметр.
func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
