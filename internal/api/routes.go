package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger, h.metrics),
		RateLimit(h.limiter),
		LimitBody(maxBodyBytes),
	)

	// Schedules
	mux.Handle("POST /api/v1/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("POST /api/v1/schedules/now", chain(http.HandlerFunc(h.ScheduleNow)))
	mux.Handle("POST /api/v1/schedules/at", chain(http.HandlerFunc(h.ScheduleAt)))
	mux.Handle("POST /api/v1/schedules/every", chain(http.HandlerFunc(h.ScheduleEvery)))
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("GET /api/v1/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.CancelSchedule)))

	// Jobs
	mux.Handle("GET /api/v1/jobs", chain(http.HandlerFunc(h.ListJobs)))
	mux.Handle("GET /api/v1/jobs/{id}", chain(http.HandlerFunc(h.GetJob)))

	// Служебные: без логирования и лимита
	mux.HandleFunc("GET /healthz", h.Healthz)
}
