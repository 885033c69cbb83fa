// Package event defines the typed outbound event contract of the collection
// engine. Each event kind has its own payload type and its own Sink method,
// so consumers are statically checked against the contract instead of
// switching on an untyped emit.
//
// Delivery guarantees are the sink implementation's business; the engine
// emits at most once per cycle and calls each device's sink from a single
// goroutine at a time, so per-device ordering is preserved by construction.
package event

import (
	"time"

	"github.com/vpbank/device_monitor/models"
)

// Kind names one event kind on the wire.
type Kind string

const (
	KindMetrics  Kind = "metrics"
	KindError    Kind = "error"
	KindWarning  Kind = "warning"
	KindStart    Kind = "start"
	KindStop     Kind = "stop"
	KindAutoStop Kind = "auto-stop"
)

// ─────────────────────────────────────────────────────────────────────────────
// Payload types
// ─────────────────────────────────────────────────────────────────────────────

// MetricsEvent carries the snapshot of one completed cycle.
type MetricsEvent struct {
	DeviceID  string                `json:"device_id"`
	Timestamp time.Time             `json:"timestamp"`
	Snapshot  models.MetricSnapshot `json:"snapshot"`
}

// ErrorEvent reports one classified cycle-level failure.
type ErrorEvent struct {
	DeviceID          string    `json:"device_id"`
	ErrorType         string    `json:"error_type"`
	Message           string    `json:"message"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	Timestamp         time.Time `json:"timestamp"`
}

// WarningEvent reports a degraded-but-successful cycle whose summary recorded
// unsupported metrics.
type WarningEvent struct {
	DeviceID           string    `json:"device_id"`
	UnsupportedMetrics []string  `json:"unsupported_metrics"`
	Timestamp          time.Time `json:"timestamp"`
}

// LifecycleEvent marks a start, stop or auto-stop transition. Stats is the
// collector's counter set at transition time; FinalErrorType is set only on
// auto-stop and names the classified error that crossed the threshold.
type LifecycleEvent struct {
	DeviceID       string                `json:"device_id"`
	Stats          models.CollectorStats `json:"stats"`
	FinalErrorType string                `json:"final_error_type,omitempty"`
	Timestamp      time.Time             `json:"timestamp"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Sink contract
// ─────────────────────────────────────────────────────────────────────────────

// Sink receives the engine's outbound events. Implementations must be safe
// for concurrent use — different devices emit from different goroutines.
type Sink interface {
	Metrics(MetricsEvent)
	Error(ErrorEvent)
	Warning(WarningEvent)
	Started(LifecycleEvent)
	Stopped(LifecycleEvent)
	AutoStopped(LifecycleEvent)
}

// NopSink discards every event. Useful as a default and in tests.
type NopSink struct{}

func (NopSink) Metrics(MetricsEvent)       {}
func (NopSink) Error(ErrorEvent)           {}
func (NopSink) Warning(WarningEvent)       {}
func (NopSink) Started(LifecycleEvent)     {}
func (NopSink) Stopped(LifecycleEvent)     {}
func (NopSink) AutoStopped(LifecycleEvent) {}

// ─────────────────────────────────────────────────────────────────────────────
// ChannelSink
// ─────────────────────────────────────────────────────────────────────────────

// Envelope is the uniform wrapper ChannelSink places on its stream: the kind
// tag plus the kind's payload, ready for serialisation.
type Envelope struct {
	Kind      Kind        `json:"kind"`
	DeviceID  string      `json:"device_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ChannelSink funnels every event into a single buffered channel as
// Envelope values. Sends block when the buffer is full, which preserves
// ordering instead of silently dropping.
type ChannelSink struct {
	ch chan Envelope
}

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelSink{ch: make(chan Envelope, buffer)}
}

// Events returns the stream for a consumer to range over.
func (s *ChannelSink) Events() <-chan Envelope { return s.ch }

// Close closes the stream. The caller must guarantee no further emits —
// in practice: stop every collector first.
func (s *ChannelSink) Close() { close(s.ch) }

func (s *ChannelSink) Metrics(e MetricsEvent) {
	s.ch <- Envelope{Kind: KindMetrics, DeviceID: e.DeviceID, Timestamp: e.Timestamp, Payload: e}
}

func (s *ChannelSink) Error(e ErrorEvent) {
	s.ch <- Envelope{Kind: KindError, DeviceID: e.DeviceID, Timestamp: e.Timestamp, Payload: e}
}

func (s *ChannelSink) Warning(e WarningEvent) {
	s.ch <- Envelope{Kind: KindWarning, DeviceID: e.DeviceID, Timestamp: e.Timestamp, Payload: e}
}

func (s *ChannelSink) Started(e LifecycleEvent) {
	s.ch <- Envelope{Kind: KindStart, DeviceID: e.DeviceID, Timestamp: e.Timestamp, Payload: e}
}

func (s *ChannelSink) Stopped(e LifecycleEvent) {
	s.ch <- Envelope{Kind: KindStop, DeviceID: e.DeviceID, Timestamp: e.Timestamp, Payload: e}
}

func (s *ChannelSink) AutoStopped(e LifecycleEvent) {
	s.ch <- Envelope{Kind: KindAutoStop, DeviceID: e.DeviceID, Timestamp: e.Timestamp, Payload: e}
}
