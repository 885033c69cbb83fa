// Package file writes the engine's event stream as JSON lines.
//
// The output pipeline hands each formatted envelope (the bytes produced by
// format/json) to a Transport. WriterTransport appends every record to one
// io.Writer; SplitWriterTransport routes metric records and alert records to
// separate writers; RotatingFile caps how large an output file may grow.
package file

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Transport consumes formatted event records. Send delivers exactly one
// record; Close releases whatever the transport owns.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// ─────────────────────────────────────────────────────────────────────────────
// WriterTransport
// ─────────────────────────────────────────────────────────────────────────────

// Config controls WriterTransport.
type Config struct {
	// Writer receives the records. nil means os.Stdout.
	Writer io.Writer

	// Newline terminates each record. Empty means "\n".
	Newline string
}

// WriterTransport appends each record plus a newline to a single io.Writer.
// A mutex serialises senders so records never interleave, which matters when
// several collectors share one destination such as os.Stdout.
type WriterTransport struct {
	mu     sync.Mutex
	w      io.Writer
	nl     []byte
	logger *slog.Logger
}

// New constructs a WriterTransport with the documented Config defaults.
// A nil logger is replaced with a no-op one.
func New(cfg Config, logger *slog.Logger) *WriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	nl := cfg.Newline
	if nl == "" {
		nl = "\n"
	}
	return &WriterTransport{
		w:      w,
		nl:     []byte(nl),
		logger: logger,
	}
}

// Send writes one record. Record and terminator go out as a single Write so
// a failing destination cannot leave half a line behind.
func (t *WriterTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := make([]byte, 0, len(data)+len(t.nl))
	rec = append(rec, data...)
	rec = append(rec, t.nl...)

	if _, err := t.w.Write(rec); err != nil {
		t.logger.Error("transport/file: write failed", "error", err.Error(), "bytes", len(data))
		return fmt.Errorf("transport/file: write: %w", err)
	}

	t.logger.Debug("transport/file: record written", "bytes", len(data))
	return nil
}

// Close is a no-op. The writer's lifetime belongs to whoever supplied it:
// stdout to the process, rotating files to the application's shutdown path.
func (t *WriterTransport) Close() error {
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
