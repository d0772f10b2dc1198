package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps the Prometheus collectors used by the realtime core.
type Registry struct {
	ActiveConnections prometheus.Gauge
	EventsReceived    *prometheus.CounterVec
	EventsDelivered   prometheus.Counter
	DeliveryDropped   prometheus.Counter
	AuthFailures      prometheus.Counter
	ValidationErrors  prometheus.Counter
	PersistenceErrors prometheus.Counter
	Escalations       prometheus.Counter
}

// NewRegistry creates the Prometheus collectors.
func NewRegistry() *Registry {
	return &Registry{
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "carelink_ws_connections_active",
			Help: "Number of live authenticated WebSocket connections",
		}),
		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_ws_events_received_total",
			Help: "Total inbound events by type",
		}, []string{"type"}),
		EventsDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carelink_ws_events_delivered_total",
			Help: "Total events delivered to subscribed connections",
		}),
		DeliveryDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carelink_ws_delivery_dropped_total",
			Help: "Total deliveries dropped because the connection send buffer was full or closed",
		}),
		AuthFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carelink_ws_auth_failures_total",
			Help: "Total rejected connection attempts",
		}),
		ValidationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carelink_ws_validation_errors_total",
			Help: "Total inbound events dropped for malformed payloads",
		}),
		PersistenceErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carelink_ws_persistence_errors_total",
			Help: "Total storage failures while handling events",
		}),
		Escalations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carelink_ws_escalations_total",
			Help: "Total critical events escalated to staff rooms",
		}),
	}
}

// Handler returns an HTTP handler exposing Prometheus metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}
