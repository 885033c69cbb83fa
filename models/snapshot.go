package models

import "time"

// Status describes the overall health of one collection cycle.
type Status string

const (
	// StatusOK means every metric group in the cycle succeeded.
	StatusOK Status = "ok"

	// StatusDegraded means at least one group failed but others succeeded,
	// so the snapshot contains partial data.
	StatusDegraded Status = "degraded"
)

// MetricRow is one table entry after column reassembly — for example one
// network interface or one storage volume. Fields holds the decoded column
// values keyed by column name; a column the device did not return is simply
// absent from the map, never conflated with a zero value. Calculate functions
// add derived fields (e.g. "usedPercent") to the same map.
type MetricRow struct {
	// Index is the integer table row index shared by all columns of the row.
	Index int `json:"index"`

	// Fields maps column name → decoded value
	// (int64 | uint64 | float64 | string).
	Fields map[string]interface{} `json:"fields"`
}

// String returns the named field as a string when present.
func (r MetricRow) String(name string) (string, bool) {
	s, ok := r.Fields[name].(string)
	return s, ok
}

// Float returns the named field widened to float64 when present and numeric.
func (r MetricRow) Float(name string) (float64, bool) {
	switch v := r.Fields[name].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// GroupResult is the outcome of polling one metric group within a cycle.
// Exactly one of Scalars or Rows is populated, matching the group kind.
type GroupResult struct {
	// Scalars maps metric name → decoded value for scalar groups.
	Scalars map[string]interface{} `json:"scalars,omitempty"`

	// Rows holds the reassembled, filtered table rows for table groups.
	Rows []MetricRow `json:"rows,omitempty"`
}

// CycleError is one group-level failure captured during a cycle. Group-level
// failures never abort the cycle; they are recorded here and the snapshot
// status is downgraded to degraded.
type CycleError struct {
	// Group names the metric group that failed.
	Group string `json:"group"`

	// Type is the classified error taxonomy value
	// (connectivity | authentication | timeout | unsupported_oid | unknown).
	Type string `json:"type"`

	// Message is the underlying error text.
	Message string `json:"message"`
}

// Summary carries the derived cross-group values of one cycle. Every metric
// field is either a typed value or nil — never a stale value from a previous
// cycle.
type Summary struct {
	// CPUUsage is the processor load as an integer percentage.
	CPUUsage *float64 `json:"cpu_usage,omitempty"`

	// MemoryUsage is the memory usage percentage (table row preferred,
	// scalar used/total pair as fallback).
	MemoryUsage *float64 `json:"memory_usage,omitempty"`

	// DiskUsage is the maximum usage percentage across storage rows;
	// 0 (present) when the storage table is empty after filtering.
	DiskUsage *float64 `json:"disk_usage,omitempty"`

	// Temperature is the board temperature in whole degrees Celsius, falling
	// back to the processor temperature. Frequently absent.
	Temperature *float64 `json:"temperature,omitempty"`

	// UptimeSeconds is the device's system uptime converted to seconds.
	UptimeSeconds *uint64 `json:"uptime_seconds,omitempty"`

	// Status is ok or degraded.
	Status Status `json:"status"`

	// Errors lists the group-level failures captured during the cycle.
	Errors []CycleError `json:"errors,omitempty"`

	// UnsupportedMetrics names summary metrics for which no attempted source
	// yielded a value. Not errors — many devices legitimately lack branches
	// of the management tree.
	UnsupportedMetrics []string `json:"unsupported_metrics,omitempty"`
}

// MetricSnapshot is the full result of one collection cycle for one device.
// Owned by the collector state machine until emitted as a metrics event.
type MetricSnapshot struct {
	// DeviceID identifies the device the cycle ran against.
	DeviceID string `json:"device_id"`

	// Timestamp is the wall-clock time the cycle started.
	Timestamp time.Time `json:"timestamp"`

	// Groups maps group name → result for every group that succeeded this
	// cycle. Failed groups are absent here and listed in Summary.Errors.
	Groups map[string]GroupResult `json:"groups"`

	// Summary holds the derived cross-group values.
	Summary Summary `json:"summary"`

	// LatencyMs is the reachability-probe round-trip time in milliseconds.
	LatencyMs int64 `json:"latency_ms"`

	// DurationMs is the total cycle duration in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// CollectorStats holds the cumulative counters of one collector state
// machine. Owned exclusively by that machine; Status requests receive a copy.
type CollectorStats struct {
	// TotalCollections counts every attempted cycle.
	TotalCollections uint64 `json:"total_collections"`

	// SuccessfulCollections counts cycles that produced a snapshot,
	// including degraded ones.
	SuccessfulCollections uint64 `json:"successful_collections"`

	// FailedCollections counts cycle-level failures (no snapshot produced).
	FailedCollections uint64 `json:"failed_collections"`

	// LastCollection is the time of the most recent attempted cycle.
	LastCollection time.Time `json:"last_collection,omitempty"`

	// LastSuccess is the time of the most recent snapshot-producing cycle.
	LastSuccess time.Time `json:"last_success,omitempty"`

	// LastError is the text of the most recent cycle-level failure.
	LastError string `json:"last_error,omitempty"`

	// ConsecutiveErrors counts cycle-level failures since the last snapshot.
	// Reset to zero by any snapshot-producing cycle, even a degraded one.
	ConsecutiveErrors int `json:"consecutive_errors"`

	// StartedAt is when the collector entered the running state.
	StartedAt time.Time `json:"started_at,omitempty"`

	// UptimeSeconds is how long the collector has been running, refreshed by
	// the coarse uptime timer and finalised on stop.
	UptimeSeconds int64 `json:"uptime_seconds"`
}
