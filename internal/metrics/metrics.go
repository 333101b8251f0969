// Package metrics registers the kernel's prometheus collectors. It never
// starts an HTTP server — mounting /metrics is the external CLI's job, the
// same split the teacher's internal/api/observability.go draws between
// "register collectors" and "serve them".
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TickDuration records wall-clock time spent in one engine tick.
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kernel_tick_duration_seconds",
		Help:    "Time spent executing one engine tick.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	// BotDecisionDuration records wall-clock time spent in one bot's
	// decision cycle, labeled by outcome (ok/timeout/fault/rate_limited).
	BotDecisionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kernel_bot_decision_duration_seconds",
		Help:    "Time spent in a single bot decision cycle.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	}, []string{"outcome"})

	// BusQueueDepth tracks the current depth of each priority queue.
	BusQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kernel_bus_queue_depth",
		Help: "Current number of buffered events per priority.",
	}, []string{"priority"})

	// BusEventsDropped counts events dropped for a reason (queue_full,
	// subscriber_timeout).
	BusEventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_bus_events_dropped_total",
		Help: "Events dropped by the bus, labeled by reason.",
	}, []string{"reason"})

	// ReplayHashMismatches counts ticks where replay verification
	// detected a state hash divergence from the recorded run.
	ReplayHashMismatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kernel_replay_hash_mismatches_total",
		Help: "Replay verification runs where the recomputed state hash diverged.",
	})

	// BombChainLength records how many bombs detonate in a single chain
	// reaction (1 = no chaining).
	BombChainLength = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kernel_bomb_chain_length",
		Help:    "Number of bombs detonating in one chain reaction.",
		Buckets: prometheus.LinearBuckets(1, 1, 16),
	})
)

// registry is a private collector set rather than prometheus.DefaultRegisterer
// so tests and multiple simulations in one process never collide on
// double-registration.
var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		TickDuration,
		BotDecisionDuration,
		BusQueueDepth,
		BusEventsDropped,
		ReplayHashMismatches,
		BombChainLength,
	)
}

// Registry returns the collector set an external HTTP surface can mount
// (e.g. with promhttp.HandlerFor(metrics.Registry(), ...)).
func Registry() *prometheus.Registry { return registry }
