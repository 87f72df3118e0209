package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its own prometheus registry so tests can run several
// instances without collector name clashes.
type Metrics struct {
	registry *prometheus.Registry

	Uploads         *prometheus.CounterVec
	SessionsCreated prometheus.Counter
	SessionsDeleted prometheus.Counter
	CapturesServed  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snaplink_uploads_total",
			Help: "Capture uploads grouped by outcome.",
		}, []string{"status"}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snaplink_sessions_created_total",
			Help: "Sessions created, explicitly or on first upload.",
		}),
		SessionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snaplink_sessions_deleted_total",
			Help: "Sessions removed by an administrator.",
		}),
		CapturesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snaplink_capture_pages_served_total",
			Help: "Capture pages served to visitors.",
		}),
	}
	m.registry.MustRegister(m.Uploads, m.SessionsCreated, m.SessionsDeleted, m.CapturesServed)
	return m
}

// Handler exposes the registry in prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
