package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchdog",
			Subsystem: "supervisor",
			Name:      "ticks_total",
			Help:      "Number of supervisor polling ticks executed.",
		}, []string{"process"},
	)
	recoveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchdog",
			Subsystem: "recovery",
			Name:      "runs_total",
			Help:      "Number of recovery runs by classification and outcome.",
		}, []string{"process", "classification", "outcome"},
	)
	consecutiveFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "watchdog",
			Subsystem: "supervisor",
			Name:      "consecutive_failures",
			Help:      "Current consecutive failed recovery verifications.",
		}, []string{"process"},
	)
	currentBackoff = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "watchdog",
			Subsystem: "supervisor",
			Name:      "backoff_seconds",
			Help:      "Current recovery backoff interval in seconds.",
		}, []string{"process"},
	)
	alertsFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchdog",
			Subsystem: "alert",
			Name:      "fired_total",
			Help:      "Number of alerts dispatched, by rule type.",
		}, []string{"process", "type"},
	)
	healthDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "watchdog",
			Subsystem: "health",
			Name:      "check_duration_seconds",
			Help:      "Observed health probe round-trip time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"process"},
	)
	processUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "watchdog",
			Subsystem: "process",
			Name:      "up",
			Help:      "Whether the monitored process is reported running (1) or not (0).",
		}, []string{"process"},
	)
	processMemoryMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "watchdog",
			Subsystem: "process",
			Name:      "memory_mb",
			Help:      "Last observed monitored process memory in MB.",
		}, []string{"process"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{ticks, recoveries, consecutiveFailures, currentBackoff, alertsFired, healthDuration, processUp, processMemoryMB}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncTick(process string) {
	if regOK.Load() {
		ticks.WithLabelValues(process).Inc()
	}
}

func IncRecovery(process, classification, outcome string) {
	if regOK.Load() {
		recoveries.WithLabelValues(process, classification, outcome).Inc()
	}
}

func SetConsecutiveFailures(process string, n int) {
	if regOK.Load() {
		consecutiveFailures.WithLabelValues(process).Set(float64(n))
	}
}

func SetBackoffSeconds(process string, s float64) {
	if regOK.Load() {
		currentBackoff.WithLabelValues(process).Set(s)
	}
}

func IncAlertFired(process, typ string) {
	if regOK.Load() {
		alertsFired.WithLabelValues(process, typ).Inc()
	}
}

func ObserveHealthDuration(process string, seconds float64) {
	if regOK.Load() {
		healthDuration.WithLabelValues(process).Observe(seconds)
	}
}

func SetProcessUp(process string, up bool) {
	if regOK.Load() {
		var v float64
		if up {
			v = 1
		}
		processUp.WithLabelValues(process).Set(v)
	}
}

func SetProcessMemoryMB(process string, mb float64) {
	if regOK.Load() {
		processMemoryMB.WithLabelValues(process).Set(mb)
	}
}
