// Package file — split.go provides a Transport that writes metric snapshots
// and alert-class events (errors, warnings, lifecycle transitions) to
// separate destinations.
//
// Pipeline position:
//
//	format/json → transport/file/split
//
// Routing logic:
//   - JSON payloads whose kind is "metrics" → metric writer
//   - Everything else (errors, warnings, start/stop/auto-stop) → alert writer
//
// Both writers can be plain io.Writers (os.Stdout, *os.File) or RotatingFile
// instances for automatic size-based rotation.
package file

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// SplitConfig
// ─────────────────────────────────────────────────────────────────────────────

// SplitConfig controls SplitWriterTransport behaviour.
type SplitConfig struct {
	// MetricWriter receives metric snapshot payloads.
	// nil defaults to os.Stdout.
	MetricWriter io.Writer

	// AlertWriter receives error, warning and lifecycle payloads.
	// nil defaults to os.Stderr.
	AlertWriter io.Writer

	// Newline appended after each message.  Default "\n".
	Newline string
}

// ─────────────────────────────────────────────────────────────────────────────
// SplitWriterTransport
// ─────────────────────────────────────────────────────────────────────────────

// SplitWriterTransport implements Transport by routing each JSON message to
// one of two io.Writers based on its event kind.  It is safe for concurrent
// use.
//
// Detection: a fast bytes.Contains check for the `"kind":"metrics"` tag is
// used instead of full JSON unmarshalling to keep the hot path
// allocation-free. The formatter emits the envelope with compact field
// encoding, so the tag appears verbatim in compact output and with a space in
// pretty-printed output; both variants are checked.
type SplitWriterTransport struct {
	metricMu sync.Mutex
	alertMu  sync.Mutex
	metricW  io.Writer
	alertW   io.Writer
	nl       []byte
	closers  []io.Closer
	logger   *slog.Logger
}

// metricMarkers identify metric envelopes in compact and indented encodings.
var metricMarkers = [][]byte{
	[]byte(`"kind":"metrics"`),
	[]byte(`"kind": "metrics"`),
}

// NewSplit constructs a SplitWriterTransport.
//
//   - cfg.MetricWriter defaults to os.Stdout when nil.
//   - cfg.AlertWriter defaults to os.Stderr when nil.
//   - cfg.Newline defaults to "\n" when empty.
//   - logger defaults to a no-op logger when nil.
func NewSplit(cfg SplitConfig, logger *slog.Logger) *SplitWriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	mw := cfg.MetricWriter
	if mw == nil {
		mw = os.Stdout
	}
	aw := cfg.AlertWriter
	if aw == nil {
		aw = os.Stderr
	}
	nl := cfg.Newline
	if nl == "" {
		nl = "\n"
	}

	st := &SplitWriterTransport{
		metricW: mw,
		alertW:  aw,
		nl:      []byte(nl),
		logger:  logger,
	}

	// Track io.Closers so Close() can clean up RotatingFile instances.
	if c, ok := mw.(io.Closer); ok && mw != os.Stdout && mw != os.Stderr {
		st.closers = append(st.closers, c)
	}
	if c, ok := aw.(io.Closer); ok && aw != os.Stdout && aw != os.Stderr {
		st.closers = append(st.closers, c)
	}

	return st
}

// Send inspects data for the metric marker and routes to the appropriate
// writer.
func (st *SplitWriterTransport) Send(data []byte) error {
	for _, marker := range metricMarkers {
		if bytes.Contains(data, marker) {
			return st.writeMetric(data)
		}
	}
	return st.writeAlert(data)
}

// Close flushes and closes any io.Closer writers (e.g. RotatingFile).
// Plain os.Stdout / os.Stderr are never closed.
func (st *SplitWriterTransport) Close() error {
	var firstErr error
	for _, c := range st.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (st *SplitWriterTransport) writeMetric(data []byte) error {
	st.metricMu.Lock()
	defer st.metricMu.Unlock()

	if _, err := st.metricW.Write(data); err != nil {
		st.logger.Error("transport/file: metric write failed",
			"error", err.Error(), "bytes", len(data),
		)
		return fmt.Errorf("transport/file: metric write: %w", err)
	}
	if _, err := st.metricW.Write(st.nl); err != nil {
		st.logger.Error("transport/file: metric newline write failed",
			"error", err.Error(),
		)
		return fmt.Errorf("transport/file: metric write newline: %w", err)
	}

	st.logger.Debug("transport/file: sent metric message", "bytes", len(data))
	return nil
}

func (st *SplitWriterTransport) writeAlert(data []byte) error {
	st.alertMu.Lock()
	defer st.alertMu.Unlock()

	if _, err := st.alertW.Write(data); err != nil {
		st.logger.Error("transport/file: alert write failed",
			"error", err.Error(), "bytes", len(data),
		)
		return fmt.Errorf("transport/file: alert write: %w", err)
	}
	if _, err := st.alertW.Write(st.nl); err != nil {
		st.logger.Error("transport/file: alert newline write failed",
			"error", err.Error(),
		)
		return fmt.Errorf("transport/file: alert write newline: %w", err)
	}

	st.logger.Debug("transport/file: sent alert message", "bytes", len(data))
	return nil
}
