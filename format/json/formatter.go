// Package json serialises engine event envelopes for the output pipeline.
// It is the primary (and currently only) serialisation format.
//
// Pipeline position:
//
//	collector → event.ChannelSink → format/json → transport/file
//
// The formatter converts an event.Envelope into a JSON byte slice. All json
// struct tags are declared on the event and model types themselves, so
// serialisation is a single json.Marshal call with optional indentation.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vpbank/device_monitor/pkg/devicemon/event"
)

// ─────────────────────────────────────────────────────────────────────────────
// Formatter interface
// ─────────────────────────────────────────────────────────────────────────────

// Formatter serialises an event.Envelope into a byte slice. Alternative
// formatters (protobuf, line protocol …) can be added by implementing this
// interface without touching any other package.
type Formatter interface {
	Format(env event.Envelope) ([]byte, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls JSONFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented, human-readable JSON when true.
	// Use false (default) in production to minimise byte count on the wire.
	PrettyPrint bool

	// Indent is the indent string used when PrettyPrint=true.
	// Defaults to two spaces when empty and PrettyPrint=true.
	Indent string
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONFormatter
// ─────────────────────────────────────────────────────────────────────────────

// JSONFormatter implements Formatter using encoding/json from the standard
// library. It is safe for concurrent use by multiple goroutines; all fields
// are immutable after construction.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter. If logger is nil, a no-op logger is
// substituted.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

// Format serialises env to JSON. It returns a non-nil error only when
// json.Marshal itself fails (an un-serialisable value type entered the
// pipeline upstream). The returned byte slice is always non-nil on success.
func (f *JSONFormatter) Format(env event.Envelope) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	if f.cfg.PrettyPrint {
		data, err = json.MarshalIndent(env, "", f.cfg.Indent)
	} else {
		data, err = json.Marshal(env)
	}

	if err != nil {
		f.logger.Error("format/json: marshal failed",
			"kind", string(env.Kind),
			"device", env.DeviceID,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("format/json: marshal: %w", err)
	}

	f.logger.Debug("format/json: formatted event",
		"kind", string(env.Kind),
		"device", env.DeviceID,
		"bytes", len(data),
	)

	return data, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

// noopWriter discards all log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
