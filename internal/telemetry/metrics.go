package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки события истечения (метка outcome).
const (
	FireEnqueued      = "enqueued"
	FireDuplicate     = "duplicate"
	FireStale         = "stale"
	FireMissing       = "missing"
	FireDecodeError   = "decode_error"
	FireEnqueueFailed = "enqueue_failed"
	FireInvalid       = "invalid"
)

// Metrics — метрики scheduler'а.
//
// Методы безопасны для nil: компоненты можно создавать без метрик.
type Metrics struct {
	armed         *prometheus.CounterVec
	fires         *prometheus.CounterVec
	enqueued      *prometheus.CounterVec
	cancelled     prometheus.Counter
	decodeErrors  prometheus.Counter
	reconnects    prometheus.Counter
	rearmFailures prometheus.Counter
	httpRequests  *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg. При reg == nil метрики
// создаются без регистрации.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		armed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kronos_schedules_armed_total",
			Help: "Schedule markers armed, by schedule kind",
		}, []string{"kind"}),
		fires: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kronos_fires_total",
			Help: "Expiration events handled, by outcome",
		}, []string{"outcome"}),
		enqueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kronos_jobs_enqueued_total",
			Help: "Jobs handed to the queue, by schedule kind",
		}, []string{"kind"}),
		cancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "kronos_schedules_cancelled_total",
			Help: "Schedules cancelled before firing",
		}),
		decodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "kronos_marker_decode_errors_total",
			Help: "Marker payloads that could not be decoded",
		}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "kronos_listener_reconnects_total",
			Help: "Expiry listener resubscriptions after a disconnect",
		}),
		rearmFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "kronos_rearm_failures_total",
			Help: "Recurring schedules that could not be re-armed",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kronos_api_http_requests_total",
			Help: "HTTP requests handled by the API, by method and status",
		}, []string{"method", "status"}),
	}
}

// Armed учитывает взведённый маркер.
func (m *Metrics) Armed(kind string) {
	if m == nil {
		return
	}
	m.armed.WithLabelValues(kind).Inc()
}

// Fire учитывает исход обработки события.
func (m *Metrics) Fire(outcome string) {
	if m == nil {
		return
	}
	m.fires.WithLabelValues(outcome).Inc()
}

// Enqueued учитывает задачу, переданную в очередь.
func (m *Metrics) Enqueued(kind string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(kind).Inc()
}

// Cancelled учитывает отменённое расписание.
func (m *Metrics) Cancelled() {
	if m == nil {
		return
	}
	m.cancelled.Inc()
}

// DecodeError учитывает нечитаемый payload маркера.
func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// Reconnect учитывает переподписку слушателя.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// RearmFailure учитывает неудачный перевзвод.
func (m *Metrics) RearmFailure() {
	if m == nil {
		return
	}
	m.rearmFailures.Inc()
}

// HTTPRequest учитывает обработанный HTTP-запрос.
func (m *Metrics) HTTPRequest(method, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, status).Inc()
}
