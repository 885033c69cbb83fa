// Command devicemon is the device monitoring engine binary.
//
// It loads device definitions from YAML directories specified by environment
// variables (or command-line flags), starts one collector per device, and
// runs until interrupted (SIGINT / SIGTERM). SIGHUP reloads the device
// configuration in place.
//
// Usage:
//
//	devicemon [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vpbank/device_monitor/pkg/devicemon/app"
	"github.com/vpbank/device_monitor/pkg/devicemon/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "devicemon: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ── Flags ────────────────────────────────────────────────────────────
	var (
		logLevel string
		logFmt   string
		pretty   bool
		bufSize  int

		probeOn       bool
		probeTimeout  int
		probePriv     bool
		metricsListen string

		splitFile      bool
		metricFilePath string
		alertFilePath  string
		fileMaxBytes   int64
		fileMaxBackups int

		// Config path overrides (defaults read from env).
		cfgDevices  string
		cfgDefaults string
	)

	flag.StringVar(&logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "json", "Log format: json, text")
	flag.BoolVar(&pretty, "format.pretty", false, "Pretty-print JSON output")
	flag.IntVar(&bufSize, "pipeline.buffer.size", 4096, "Event channel buffer size")

	flag.BoolVar(&probeOn, "probe.enabled", true, "Enable ICMP reachability probe before each cycle")
	flag.IntVar(&probeTimeout, "probe.timeout", 2, "Echo reply deadline in seconds")
	flag.BoolVar(&probePriv, "probe.privileged", false, "Use raw ICMP sockets (needs CAP_NET_RAW)")
	flag.StringVar(&metricsListen, "metrics.listen", ":9161", "Prometheus scrape endpoint address (empty=disabled)")

	flag.BoolVar(&splitFile, "transport.file.split", false, "Split output: metrics and alerts to separate files")
	flag.StringVar(&metricFilePath, "transport.file.metrics", "device_metrics.json", "Output file for metric snapshots")
	flag.StringVar(&alertFilePath, "transport.file.alerts", "device_alerts.json", "Output file for alert events")
	flag.Int64Var(&fileMaxBytes, "transport.file.max.bytes", 0, "Max file size in bytes before rotation (0=disabled)")
	flag.IntVar(&fileMaxBackups, "transport.file.max.backups", 5, "Max rotated backup files to keep (0=unlimited)")

	flag.StringVar(&cfgDevices, "config.devices", "", "Override DEVICE_MONITOR_DEVICES_DIRECTORY_PATH")
	flag.StringVar(&cfgDefaults, "config.defaults", "", "Override DEVICE_MONITOR_DEFAULTS_DIRECTORY_PATH")

	flag.Parse()

	// ── Logger ───────────────────────────────────────────────────────────
	logger, err := buildLogger(logLevel, logFmt)
	if err != nil {
		return err
	}

	// ── Config paths ─────────────────────────────────────────────────────
	paths := config.PathsFromEnv()
	if cfgDevices != "" {
		paths.Devices = cfgDevices
	}
	if cfgDefaults != "" {
		paths.Defaults = cfgDefaults
	}

	// ── Build App ────────────────────────────────────────────────────────
	application := app.New(app.Config{
		ConfigPaths:       paths,
		BufferSize:        bufSize,
		ProbeEnabled:      probeOn,
		ProbeTimeoutSec:   probeTimeout,
		ProbePrivileged:   probePriv,
		MetricsListenAddr: metricsListen,
		PrettyPrint:       pretty,
		SplitFile:         splitFile,
		MetricFilePath:    metricFilePath,
		AlertFilePath:     alertFilePath,
		FileMaxBytes:      fileMaxBytes,
		FileMaxBackups:    fileMaxBackups,
	}, logger)

	// ── Start ────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	logger.Info("devicemon: running, press Ctrl-C to stop")

	// SIGHUP reloads configuration without restarting collectors that did
	// not change.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	for {
		select {
		case <-ctx.Done():
			logger.Info("devicemon: received shutdown signal")
			application.Stop()
			return nil
		case <-hup:
			if err := application.Reload(); err != nil {
				logger.Error("devicemon: reload failed", "error", err.Error())
			}
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}
