// Package telemetry exposes the engine's own operational metrics on the
// default Prometheus registry. Everything here is about the poller, not the
// polled devices; device metrics travel through the event pipeline.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts finished collection cycles per device and outcome.
	// Status is one of ok, degraded or failed.
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devicemon_cycles_total",
		Help: "Collection cycles finished, by device and outcome.",
	}, []string{"device", "status"})

	// CycleDuration observes wall-clock duration of full collection cycles.
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devicemon_cycle_duration_seconds",
		Help:    "Wall-clock duration of a collection cycle.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"device"})

	// ConsecutiveFailures tracks the per-device failure streak feeding the
	// auto-stop decision.
	ConsecutiveFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "devicemon_consecutive_failures",
		Help: "Consecutive failed cycles since the last success.",
	}, []string{"device"})

	// ActiveCollectors counts collectors currently in the running state.
	ActiveCollectors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devicemon_active_collectors",
		Help: "Collectors currently running.",
	})

	// ProbeLatency observes reachability probe round-trip time.
	ProbeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devicemon_probe_latency_seconds",
		Help:    "ICMP reachability probe round-trip time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"device"})
)

// ForgetDevice drops all per-device series after a collector is removed so
// stale devices do not linger on the scrape endpoint forever.
func ForgetDevice(deviceID string) {
	labels := prometheus.Labels{"device": deviceID}
	CyclesTotal.DeletePartialMatch(labels)
	CycleDuration.DeletePartialMatch(labels)
	ConsecutiveFailures.DeletePartialMatch(labels)
	ProbeLatency.DeletePartialMatch(labels)
}
