package frontend

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the dev server's Prometheus instrumentation. Each Frontend
// owns its own registry so tests can run side by side.
type Metrics struct {
	registry *prometheus.Registry

	// Restarts counts full application restarts.
	Restarts prometheus.Counter

	// Notifications counts browser notifications by message type.
	Notifications *prometheus.CounterVec

	// Crashes counts unexpected application exits.
	Crashes prometheus.Counter

	// ProxyRequests counts requests forwarded to the application.
	ProxyRequests prometheus.Counter
}

func newMetrics(clientCount func() int) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		Restarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "devloop",
			Name:      "restarts_total",
			Help:      "Full application restarts triggered by file changes.",
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devloop",
			Name:      "notifications_total",
			Help:      "Browser notifications sent, by message type.",
		}, []string{"type"}),
		Crashes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "devloop",
			Name:      "crashes_total",
			Help:      "Unexpected application exits.",
		}),
		ProxyRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "devloop",
			Name:      "proxy_requests_total",
			Help:      "Requests forwarded to the application.",
		}),
	}

	if clientCount != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "devloop",
			Name:      "connected_clients",
			Help:      "Browsers currently holding a reload connection.",
		}, func() float64 { return float64(clientCount()) })
	}

	return m
}

// handler exposes the registry in Prometheus text format.
func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
