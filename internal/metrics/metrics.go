// Package metrics exposes Prometheus counters for the realtime core.
//
// The counters back the "log/metric" observability hooks on the silent
// failure paths: dropped events, dropped sends, discarded stale loads.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MalformedEvents counts inbound events dropped for missing or invalid fields.
	MalformedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "transport",
		Name:      "malformed_events_total",
		Help:      "Inbound events dropped because they were malformed.",
	})

	// ReconnectsScheduled counts transport reconnect attempts scheduled after a closure.
	ReconnectsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "transport",
		Name:      "reconnects_scheduled_total",
		Help:      "Reconnect attempts scheduled after a transport closure.",
	})

	// DroppedSends counts outbound events dropped while disconnected.
	DroppedSends = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "transport",
		Name:      "dropped_sends_total",
		Help:      "Outbound events dropped because no connection was active.",
	})

	// DuplicateMessages counts server echoes suppressed by the dedup window.
	DuplicateMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "chat",
		Name:      "duplicate_messages_total",
		Help:      "Inbound messages suppressed as duplicates of local echoes.",
	})

	// StaleHistoryLoads counts history responses discarded after a selection change.
	StaleHistoryLoads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "chat",
		Name:      "stale_history_loads_total",
		Help:      "History loads discarded because the selection changed.",
	})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
