package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector of the process on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	// Sessions is the number of live space sessions.
	Sessions prometheus.Gauge
	// Players is the number of players across all sessions.
	Players prometheus.Gauge
	// Events counts accepted inbound events by type.
	Events *prometheus.CounterVec
	// Dropped counts inbound events dropped before dispatch by reason.
	Dropped *prometheus.CounterVec
	// JoinRejections counts failed joins by reason.
	JoinRejections *prometheus.CounterVec
	// TelemetryErrors counts failed cache calls by service.
	TelemetryErrors *prometheus.CounterVec
	// OutboundDrops counts frames dropped on a full send buffer.
	OutboundDrops prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "gather_sessions",
			Help: "Number of live space sessions",
		}),
		Players: f.NewGauge(prometheus.GaugeOpts{
			Name: "gather_players",
			Help: "Number of connected players across all sessions",
		}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gather_events_total",
			Help: "Total number of accepted inbound events by type",
		}, []string{"type"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gather_events_dropped_total",
			Help: "Total number of inbound events dropped by reason",
		}, []string{"reason"}),
		JoinRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gather_join_rejections_total",
			Help: "Total number of rejected joins by reason",
		}, []string{"reason"}),
		TelemetryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gather_telemetry_errors_total",
			Help: "Total number of failed telemetry cache calls by service",
		}, []string{"service"}),
		OutboundDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "gather_outbound_drops_total",
			Help: "Total number of outbound frames dropped on backpressure",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// TelemetryError matches the telemetry cache error hook.
func (m *Metrics) TelemetryError(service string) {
	m.TelemetryErrors.WithLabelValues(service).Inc()
}
