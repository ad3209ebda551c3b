// Package metrics defines the prometheus instrumentation shared by the
// monitor, alert, and telemetry components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "schemaguard"
)

// Set holds the counters tracked across the subsystem. All operations
// are thread-safe via prometheus's internal locking.
type Set struct {
	// EventsRecorded counts access events accepted by the monitor.
	EventsRecorded prometheus.Counter

	// BufferEvictions counts events evicted from the telemetry ring
	// buffer on overflow.
	BufferEvictions prometheus.Counter

	// DuplicateEvents counts events dropped by ingest de-duplication
	// after a flush retry.
	DuplicateEvents prometheus.Counter

	// FlushFailures counts failed monitor flush cycles.
	FlushFailures prometheus.Counter

	// UnknownElementEvents counts access events dropped because the
	// element is not in the monitoring registry.
	UnknownElementEvents prometheus.Counter

	// AlertsDispatched counts alerts dispatched, labeled by severity.
	AlertsDispatched *prometheus.CounterVec

	// AlertsThrottled counts alerts suppressed by throttling.
	AlertsThrottled prometheus.Counter

	// ChannelErrors counts channel send failures, labeled by channel.
	ChannelErrors *prometheus.CounterVec
}

// New registers the metric set with the given registerer.
func New(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		EventsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "events_recorded_total",
			Help:      "Access events recorded against deprecated elements.",
		}),
		BufferEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "buffer_evictions_total",
			Help:      "Events evicted from the telemetry ring buffer on overflow.",
		}),
		DuplicateEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "duplicate_events_total",
			Help:      "Events dropped by ingest de-duplication.",
		}),
		FlushFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "flush_failures_total",
			Help:      "Failed flush cycles from the monitor to the telemetry collector.",
		}),
		UnknownElementEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "unknown_element_events_total",
			Help:      "Access events dropped because the element is not monitored.",
		}),
		AlertsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "dispatched_total",
			Help:      "Alerts dispatched to channels, by severity.",
		}, []string{"severity"}),
		AlertsThrottled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "throttled_total",
			Help:      "Alerts suppressed by per-key throttling.",
		}),
		ChannelErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "channel_errors_total",
			Help:      "Channel send failures, by channel name.",
		}, []string{"channel"}),
	}
}

// NewNop returns a metric set backed by a private registry, for use in
// tests and in callers that do not expose metrics.
func NewNop() *Set {
	return New(prometheus.NewRegistry())
}
