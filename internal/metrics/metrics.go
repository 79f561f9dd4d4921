package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels cycles that delivered a usable document.
	OutcomeSuccess = "success"
	// OutcomeError labels cycles that counted towards escalation.
	OutcomeError = "error"
	// OutcomeEmpty labels cycles with an empty body.
	OutcomeEmpty = "empty"
	// OutcomeStale labels results discarded after a reconfigure or reconnect.
	OutcomeStale = "stale"
)

const namespace = "calladmin"

var (
	fetchCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_cycles_total",
			Help:      "Completed notice fetch cycles, partitioned by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	fetchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_seconds",
			Help:      "Notice fetch latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 4, 6, 8},
		},
	)

	consecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Failed cycles since the last successful one.",
		},
	)

	reconnectRequired = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconnect_required",
			Help:      "1 while polling is halted waiting for an explicit reconnect.",
		},
	)

	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Calls merged into the registry, partitioned by kind (backlog, new, handled, duplicate).",
		},
		[]string{"kind"},
	)

	trackerResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_resolutions_total",
			Help:      "Tracker name lookups, partitioned by outcome (resolved, fallback).",
		},
		[]string{"outcome"},
	)

	sinkDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_dropped_total",
			Help:      "Notifications dropped because a sink queue was full.",
		},
		[]string{"sink"},
	)
)

// Register attaches calladmin collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		fetchCyclesTotal,
		fetchDurationSeconds,
		consecutiveFailures,
		reconnectRequired,
		callsTotal,
		trackerResolutionsTotal,
		sinkDroppedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveFetch records a completed cycle.
func ObserveFetch(mode, outcome string, duration time.Duration) {
	fetchCyclesTotal.WithLabelValues(mode, outcome).Inc()
	if outcome == OutcomeStale {
		return
	}
	if duration < 0 {
		duration = 0
	}
	fetchDurationSeconds.Observe(duration.Seconds())
}

// SetEscalation publishes the failure counter and whether polling is halted.
func SetEscalation(attempts int, halted bool) {
	consecutiveFailures.Set(float64(attempts))
	if halted {
		reconnectRequired.Set(1)
	} else {
		reconnectRequired.Set(0)
	}
}

// AddCalls increments the merged call counter for kind.
func AddCalls(kind string, n int) {
	if n <= 0 {
		return
	}
	callsTotal.WithLabelValues(kind).Add(float64(n))
}

// ObserveTrackerResolution counts one finished tracker lookup.
func ObserveTrackerResolution(resolved bool) {
	outcome := "fallback"
	if resolved {
		outcome = "resolved"
	}
	trackerResolutionsTotal.WithLabelValues(outcome).Inc()
}

// IncSinkDropped counts a notification a sink could not accept.
func IncSinkDropped(sink string) {
	sinkDroppedTotal.WithLabelValues(sink).Inc()
}
