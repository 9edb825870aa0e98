package metrics

import (
	"errors"
	"time"

	"fieldnav/internal/domain/navigation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Navigation holds the navigation service's collectors.
// It implements engine.Metrics.
type Navigation struct {
	routeRequests    *prometheus.CounterVec
	routeFailures    *prometheus.CounterVec
	routeLatency     prometheus.Histogram
	staleDiscards    prometheus.Counter
	samplesDropped   prometheus.Counter
	stateTransitions *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	eventsFailed     *prometheus.CounterVec
	brokerUp         prometheus.Gauge
	brokerRetries    prometheus.Counter
}

// NewNavigation registers the collectors on reg.
func NewNavigation(reg prometheus.Registerer) *Navigation {
	f := promauto.With(reg)
	return &Navigation{
		routeRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldnav_route_requests_total",
			Help: "Route requests sent to the directions provider",
		}, []string{"trigger"}),
		routeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldnav_route_failures_total",
			Help: "Route requests that ended without a usable route",
		}, []string{"reason"}),
		routeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldnav_route_latency_seconds",
			Help:    "Directions provider latency",
			Buckets: prometheus.DefBuckets,
		}),
		staleDiscards: f.NewCounter(prometheus.CounterOpts{
			Name: "fieldnav_stale_routes_discarded_total",
			Help: "Route responses dropped because a newer request superseded them",
		}),
		samplesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "fieldnav_position_samples_dropped_total",
			Help: "Position samples rejected as out of order or dropped behind a full session mailbox",
		}),
		stateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldnav_session_state_transitions_total",
			Help: "Navigation session state changes",
		}, []string{"from", "to"}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "fieldnav_active_sessions",
			Help: "Navigation sessions currently hosted",
		}),
		eventsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldnav_outbound_events_failed_total",
			Help: "Status, progress or history writes that could not be delivered",
		}, []string{"sink"}),
		brokerUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "fieldnav_broker_connected",
			Help: "1 while the RabbitMQ publish channel is open",
		}),
		brokerRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "fieldnav_broker_reconnect_failures_total",
			Help: "Failed attempts to re-establish the RabbitMQ connection",
		}),
	}
}

func (m *Navigation) RouteRequested(manual bool) {
	trigger := "auto"
	if manual {
		trigger = "manual"
	}
	m.routeRequests.WithLabelValues(trigger).Inc()
}

func (m *Navigation) RouteCompleted(latency time.Duration, err error) {
	m.routeLatency.Observe(latency.Seconds())
	if err != nil {
		m.routeFailures.WithLabelValues(reason(err)).Inc()
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, navigation.ErrRouteTimeout):
		return "timeout"
	case errors.Is(err, navigation.ErrEmptyRoute):
		return "empty"
	default:
		return "provider"
	}
}

func (m *Navigation) StaleDiscarded() { m.staleDiscards.Inc() }

func (m *Navigation) SampleDropped() { m.samplesDropped.Inc() }

func (m *Navigation) StateEntered(from, to string) {
	m.stateTransitions.WithLabelValues(from, to).Inc()
}

func (m *Navigation) SessionOpened() { m.activeSessions.Inc() }

func (m *Navigation) SessionClosed() { m.activeSessions.Dec() }

func (m *Navigation) EventFailed(sink string) { m.eventsFailed.WithLabelValues(sink).Inc() }

// BrokerConnected and BrokerReconnectFailed implement rabbitmq.Observer.
func (m *Navigation) BrokerConnected(up bool) {
	if up {
		m.brokerUp.Set(1)
		return
	}
	m.brokerUp.Set(0)
}

func (m *Navigation) BrokerReconnectFailed() { m.brokerRetries.Inc() }
