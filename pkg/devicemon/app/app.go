// Package app wires the monitoring engine together and manages its lifecycle.
//
// Event path:
//
//	Registry → Collectors → event.ChannelSink → [eventCh] →
//	Formatter → Transport
//
// A single pipeline goroutine drains the sink so output records are written
// in emission order. The engine's own telemetry is served separately on a
// Prometheus scrape endpoint.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	jsonformat "github.com/vpbank/device_monitor/format/json"
	"github.com/vpbank/device_monitor/models"
	"github.com/vpbank/device_monitor/pkg/devicemon/config"
	"github.com/vpbank/device_monitor/pkg/devicemon/event"
	"github.com/vpbank/device_monitor/pkg/devicemon/probe"
	"github.com/vpbank/device_monitor/pkg/devicemon/registry"
	filetransport "github.com/vpbank/device_monitor/transport/file"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config holds the top-level settings for the monitoring application.
// Zero-value fields fall back to documented defaults.
type Config struct {
	// ConfigPaths are the directories for YAML device configuration.
	// Use config.PathsFromEnv() to populate from environment variables.
	ConfigPaths config.Paths

	// BufferSize is the capacity of the event channel between the collectors
	// and the output pipeline. Default: 4096.
	BufferSize int

	// ProbeEnabled turns on the ICMP reachability probe ahead of each cycle.
	ProbeEnabled bool

	// ProbeTimeoutSec is the echo reply deadline in seconds. Default: 2.
	ProbeTimeoutSec int

	// ProbePrivileged selects raw ICMP sockets over UDP datagram sockets.
	ProbePrivileged bool

	// MetricsListenAddr is the HTTP address for the Prometheus scrape
	// endpoint. Empty disables the endpoint.
	MetricsListenAddr string

	// PrettyPrint enables indented JSON output.
	PrettyPrint bool

	// SplitFile routes metric snapshots and alert events to separate files.
	SplitFile bool

	// MetricFilePath is the metrics output file when SplitFile is set.
	MetricFilePath string

	// AlertFilePath is the alerts output file when SplitFile is set.
	AlertFilePath string

	// FileMaxBytes triggers output file rotation; 0 disables rotation.
	FileMaxBytes int64

	// FileMaxBackups is the number of rotated files to keep; 0 keeps all.
	FileMaxBackups int

	// TransportWriter is the io.Writer for the plain (non-split) transport.
	// nil = os.Stdout.
	TransportWriter io.Writer
}

func (c *Config) withDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 4096
	}
	if c.ProbeTimeoutSec <= 0 {
		c.ProbeTimeoutSec = 2
	}
	if c.MetricFilePath == "" {
		c.MetricFilePath = "device_metrics.json"
	}
	if c.AlertFilePath == "" {
		c.AlertFilePath = "device_alerts.json"
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// App
// ─────────────────────────────────────────────────────────────────────────────

// App orchestrates the full monitoring engine. Create one with New, start it
// with Start, and stop it with Stop.
type App struct {
	cfg    Config
	logger *slog.Logger

	// Running devices, by ID. Written only in Start and Reload.
	devices map[string]models.DeviceDescriptor

	reg       *registry.Registry
	sink      *event.ChannelSink
	formatter *jsonformat.JSONFormatter
	transport filetransport.Transport
	httpSrv   *http.Server

	wg sync.WaitGroup
}

// New constructs an App. It does not start anything — call Start for that.
func New(cfg Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg.withDefaults()
	return &App{
		cfg:     cfg,
		logger:  logger,
		devices: make(map[string]models.DeviceDescriptor),
	}
}

// Registry exposes the collector registry for on-demand operations.
func (a *App) Registry() *registry.Registry { return a.reg }

// Start loads the device configuration, builds the output pipeline, and
// starts one collector per device. The caller must eventually call Stop.
func (a *App) Start(ctx context.Context) error {
	// ── 1. Load device configuration ────────────────────────────────────
	a.logger.Info("app: loading device configuration")
	descs, err := config.Load(a.cfg.ConfigPaths, a.logger)
	if err != nil {
		return fmt.Errorf("app: load config: %w", err)
	}
	if len(descs) == 0 {
		a.logger.Warn("app: no devices configured")
	}

	// ── 2. Build the output pipeline (transport → formatter → sink) ─────
	transport, err := a.buildTransport()
	if err != nil {
		return err
	}
	a.transport = transport
	a.formatter = jsonformat.New(jsonformat.Config{
		PrettyPrint: a.cfg.PrettyPrint,
	}, a.logger)
	a.sink = event.NewChannelSink(a.cfg.BufferSize)

	a.wg.Add(1)
	go a.pipeline()

	// ── 3. Build the registry with shared collector dependencies ────────
	var prober probe.Prober = probe.NopProber{}
	if a.cfg.ProbeEnabled {
		prober = probe.NewICMPProber(
			time.Duration(a.cfg.ProbeTimeoutSec)*time.Second,
			a.cfg.ProbePrivileged,
		)
	}
	a.reg = registry.New(registry.Options{
		Prober: prober,
		Sink:   a.sink,
		Logger: a.logger,
	})

	// ── 4. Start collectors ─────────────────────────────────────────────
	for _, desc := range descs {
		if err := a.reg.Start(desc); err != nil {
			a.logger.Error("app: device failed to start", "device", desc.ID, "error", err.Error())
			continue
		}
		a.devices[desc.ID] = desc
	}

	// ── 5. Telemetry endpoint ───────────────────────────────────────────
	if a.cfg.MetricsListenAddr != "" {
		a.startMetricsServer()
	}

	a.logger.Info("app: engine running",
		"devices", len(a.devices),
		"probe_enabled", a.cfg.ProbeEnabled,
	)
	return nil
}

// Stop performs a graceful shutdown.
//
// Shutdown order:
//  1. Stop every collector (no further events can be emitted).
//  2. Close the sink; the pipeline goroutine drains remaining events.
//  3. Close the transport and shut down the telemetry endpoint.
func (a *App) Stop() {
	a.logger.Info("app: shutting down")

	if a.reg != nil {
		a.reg.StopAll()
	}
	if a.sink != nil {
		a.sink.Close()
	}
	a.wg.Wait()

	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			a.logger.Error("app: transport close error", "error", err.Error())
		}
	}
	if a.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("app: metrics server shutdown error", "error", err.Error())
		}
	}

	a.logger.Info("app: shutdown complete")
}

// Reload re-reads the device configuration and applies the difference:
// new devices start, removed devices stop, changed devices restart. Returns
// an error if the new configuration fails to load; the running set is
// untouched in that case.
func (a *App) Reload() error {
	a.logger.Info("app: reloading device configuration")
	descs, err := config.Load(a.cfg.ConfigPaths, a.logger)
	if err != nil {
		return fmt.Errorf("app: reload config: %w", err)
	}

	next := make(map[string]models.DeviceDescriptor, len(descs))
	for _, d := range descs {
		next[d.ID] = d
	}

	var started, stopped, restarted int
	for id := range a.devices {
		if _, keep := next[id]; !keep {
			if err := a.reg.Stop(id); err != nil {
				a.logger.Warn("app: stop removed device", "device", id, "error", err.Error())
			}
			delete(a.devices, id)
			stopped++
		}
	}
	for id, desc := range next {
		old, known := a.devices[id]
		if known && sameDescriptor(old, desc) {
			continue
		}
		if known {
			if err := a.reg.Stop(id); err != nil {
				a.logger.Warn("app: restart device", "device", id, "error", err.Error())
			}
			restarted++
		} else {
			started++
		}
		if err := a.reg.Start(desc); err != nil {
			a.logger.Error("app: device failed to start", "device", id, "error", err.Error())
			delete(a.devices, id)
			continue
		}
		a.devices[id] = desc
	}

	a.logger.Info("app: configuration reloaded",
		"devices", len(a.devices),
		"started", started,
		"stopped", stopped,
		"restarted", restarted,
	)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline
// ─────────────────────────────────────────────────────────────────────────────

// pipeline drains the event sink, serialises each envelope, and hands it to
// the transport. It exits when the sink channel is closed during Stop.
func (a *App) pipeline() {
	defer a.wg.Done()

	for env := range a.sink.Events() {
		data, err := a.formatter.Format(env)
		if err != nil {
			a.logger.Warn("app: format error",
				"kind", string(env.Kind),
				"device", env.DeviceID,
				"error", err.Error(),
			)
			continue
		}
		if err := a.transport.Send(data); err != nil {
			a.logger.Error("app: transport send error",
				"error", err.Error(),
				"bytes", len(data),
			)
		}
	}
}

// buildTransport assembles the output transport from the file settings.
func (a *App) buildTransport() (filetransport.Transport, error) {
	if !a.cfg.SplitFile {
		return filetransport.New(filetransport.Config{
			Writer: a.cfg.TransportWriter,
		}, a.logger), nil
	}

	metricW, err := filetransport.NewRotatingFile(filetransport.RotateConfig{
		FilePath:   a.cfg.MetricFilePath,
		MaxBytes:   a.cfg.FileMaxBytes,
		MaxBackups: a.cfg.FileMaxBackups,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: open metric file: %w", err)
	}
	alertW, err := filetransport.NewRotatingFile(filetransport.RotateConfig{
		FilePath:   a.cfg.AlertFilePath,
		MaxBytes:   a.cfg.FileMaxBytes,
		MaxBackups: a.cfg.FileMaxBackups,
	}, a.logger)
	if err != nil {
		_ = metricW.Close()
		return nil, fmt.Errorf("app: open alert file: %w", err)
	}

	return filetransport.NewSplit(filetransport.SplitConfig{
		MetricWriter: metricW,
		AlertWriter:  alertW,
	}, a.logger), nil
}

// startMetricsServer serves the Prometheus scrape endpoint in the background.
func (a *App) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:              a.cfg.MetricsListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("app: telemetry endpoint listening", "addr", a.cfg.MetricsListenAddr)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("app: metrics server error", "error", err.Error())
		}
	}()
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

// sameDescriptor compares two descriptors by value. V3 credentials are
// compared by content, not pointer identity, so an unchanged reload does not
// restart every v3 device.
func sameDescriptor(a, b models.DeviceDescriptor) bool {
	av3, bv3 := a.V3, b.V3
	a.V3, b.V3 = nil, nil
	if a != b {
		return false
	}
	if (av3 == nil) != (bv3 == nil) {
		return false
	}
	return av3 == nil || *av3 == *bv3
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
