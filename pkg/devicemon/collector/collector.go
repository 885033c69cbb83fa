// Package collector implements the per-device collection state machine: one
// goroutine per device driving the three interval tiers, serialising cycles,
// tracking cumulative stats and stopping itself after too many consecutive
// cycle-level failures.
//
// A cycle is atomic from the outside: it either produces a snapshot (possibly
// degraded) or fails as a whole. Group failures inside a cycle degrade the
// snapshot; only probe failures and session failures count against the
// auto-stop threshold.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vpbank/device_monitor/models"
	"github.com/vpbank/device_monitor/pkg/devicemon/catalog"
	"github.com/vpbank/device_monitor/pkg/devicemon/errclass"
	"github.com/vpbank/device_monitor/pkg/devicemon/event"
	"github.com/vpbank/device_monitor/pkg/devicemon/poll"
	"github.com/vpbank/device_monitor/pkg/devicemon/probe"
	"github.com/vpbank/device_monitor/pkg/devicemon/session"
	"github.com/vpbank/device_monitor/pkg/devicemon/summary"
	"github.com/vpbank/device_monitor/pkg/devicemon/telemetry"
)

// Fallback values applied when the descriptor leaves a knob unset.
const (
	defaultFastSec     = 30
	defaultStandardSec = 60
	defaultSlowSec     = 300
	defaultUptimeSec   = 30
	defaultMaxFailures = 5
)

var allTiers = []catalog.Tier{catalog.TierFast, catalog.TierStandard, catalog.TierSlow}

// Options assembles a Collector. Descriptor is required; every other field
// has a production default.
type Options struct {
	Descriptor models.DeviceDescriptor

	// Groups is the metric group registry. Defaults to catalog.Default().
	Groups []catalog.Group

	// Opener creates protocol sessions. Defaults to session.NewDialer.
	Opener session.Opener

	// Prober checks reachability ahead of each cycle. Defaults to
	// probe.NopProber (probing disabled).
	Prober probe.Prober

	// Sink receives outbound events. Defaults to event.NopSink.
	Sink event.Sink

	Logger *slog.Logger
}

// Collector is the state machine for one device. Safe for concurrent use;
// cycles are serialised internally.
type Collector struct {
	desc    models.DeviceDescriptor
	groups  []catalog.Group
	opener  session.Opener
	prober  probe.Prober
	sink    event.Sink
	logger  *slog.Logger
	maxFail int

	// mu guards lifecycle state and stats. Never held across I/O or emits.
	mu      sync.Mutex
	running bool
	stats   models.CollectorStats
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// cycleMu serialises collection cycles. Scheduled ticks try-lock and skip
	// when a cycle is in flight; on-demand collections queue behind it.
	cycleMu sync.Mutex
}

// New constructs a stopped Collector for the device.
func New(opts Options) (*Collector, error) {
	if opts.Descriptor.ID == "" {
		return nil, fmt.Errorf("collector: descriptor has no device id")
	}
	if opts.Descriptor.Address == "" {
		return nil, fmt.Errorf("collector: device %s has no address", opts.Descriptor.ID)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	logger = logger.With("device", opts.Descriptor.ID)

	groups := opts.Groups
	if groups == nil {
		groups = catalog.Default()
	}
	opener := opts.Opener
	if opener == nil {
		opener = session.NewDialer(logger)
	}
	prober := opts.Prober
	if prober == nil {
		prober = probe.NopProber{}
	}
	sink := opts.Sink
	if sink == nil {
		sink = event.NopSink{}
	}
	maxFail := opts.Descriptor.MaxConsecutiveFailures
	if maxFail <= 0 {
		maxFail = defaultMaxFailures
	}

	return &Collector{
		desc:    opts.Descriptor,
		groups:  groups,
		opener:  opener,
		prober:  prober,
		sink:    sink,
		logger:  logger,
		maxFail: maxFail,
	}, nil
}

// DeviceID returns the device this collector polls.
func (c *Collector) DeviceID() string { return c.desc.ID }

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// Start transitions to running and launches the scheduler. Calling Start on
// a collector that is already running is a no-op.
func (c *Collector) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.running = true
	c.cancel = cancel
	c.stats = models.CollectorStats{StartedAt: time.Now()}
	started := c.stats
	c.mu.Unlock()

	telemetry.ActiveCollectors.Inc()
	c.logger.Info("collector started", "address", c.desc.Address)
	c.sink.Started(event.LifecycleEvent{
		DeviceID:  c.desc.ID,
		Stats:     started,
		Timestamp: time.Now(),
	})

	c.wg.Add(1)
	go c.schedule(ctx)
}

// Stop transitions to stopped and waits for the scheduler to exit. An
// in-flight cycle is allowed to finish but its result is discarded. Calling
// Stop on a collector that is not running is a no-op.
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.stats.UptimeSeconds = int64(time.Since(c.stats.StartedAt).Seconds())
	final := c.stats
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	telemetry.ActiveCollectors.Dec()
	c.logger.Info("collector stopped",
		"total", final.TotalCollections,
		"failed", final.FailedCollections,
	)
	c.sink.Stopped(event.LifecycleEvent{
		DeviceID:  c.desc.ID,
		Stats:     final,
		Timestamp: time.Now(),
	})
}

// Running reports whether the collector is in the running state.
func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Stats returns a copy of the cumulative counters with a live uptime value.
func (c *Collector) Stats() models.CollectorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	if c.running {
		s.UptimeSeconds = int64(time.Since(s.StartedAt).Seconds())
	}
	return s
}

// CollectNow runs one full cycle across every tier, outside the schedule. It
// queues behind any in-flight cycle and updates stats and events exactly like
// a scheduled cycle, auto-stop included.
func (c *Collector) CollectNow(ctx context.Context) (models.MetricSnapshot, error) {
	if !c.Running() {
		return models.MetricSnapshot{}, fmt.Errorf("collector: device %s is not running", c.desc.ID)
	}
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	return c.runAndRecord(ctx, allTiers)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler
// ─────────────────────────────────────────────────────────────────────────────

func (c *Collector) schedule(ctx context.Context) {
	defer c.wg.Done()

	iv := c.desc.Intervals
	fast := time.NewTicker(secondsOr(iv.FastSec, defaultFastSec))
	standard := time.NewTicker(secondsOr(iv.StandardSec, defaultStandardSec))
	slow := time.NewTicker(secondsOr(iv.SlowSec, defaultSlowSec))
	uptime := time.NewTicker(secondsOr(iv.UptimeSec, defaultUptimeSec))
	defer fast.Stop()
	defer standard.Stop()
	defer slow.Stop()
	defer uptime.Stop()

	// Baseline cycle: collect everything once before the tickers take over.
	c.scheduled(ctx, allTiers)

	for {
		select {
		case <-ctx.Done():
			return
		case <-fast.C:
			c.scheduled(ctx, []catalog.Tier{catalog.TierFast})
		case <-standard.C:
			c.scheduled(ctx, []catalog.Tier{catalog.TierStandard})
		case <-slow.C:
			c.scheduled(ctx, []catalog.Tier{catalog.TierSlow})
		case <-uptime.C:
			c.refreshUptime()
		}
	}
}

// scheduled runs one tick-driven cycle. When a cycle is already in flight the
// tick is skipped rather than queued: queued ticks would bunch up behind a
// slow device and fire back-to-back.
func (c *Collector) scheduled(ctx context.Context, tiers []catalog.Tier) {
	if !c.cycleMu.TryLock() {
		c.logger.Debug("cycle in flight, tick skipped", "tiers", tierNames(tiers))
		return
	}
	defer c.cycleMu.Unlock()

	if !c.Running() {
		return
	}
	_, _ = c.runAndRecord(ctx, tiers)
}

func (c *Collector) refreshUptime() {
	c.mu.Lock()
	if c.running {
		c.stats.UptimeSeconds = int64(time.Since(c.stats.StartedAt).Seconds())
	}
	c.mu.Unlock()
}

// ─────────────────────────────────────────────────────────────────────────────
// Cycle execution
// ─────────────────────────────────────────────────────────────────────────────

// cycleFailure is a cycle-level failure: no snapshot was produced.
type cycleFailure struct {
	errType errclass.Type
	err     error
}

func (f *cycleFailure) Error() string { return f.err.Error() }
func (f *cycleFailure) Unwrap() error { return f.err }

// runAndRecord executes one cycle and folds its outcome into stats, events
// and telemetry. Callers hold cycleMu.
func (c *Collector) runAndRecord(ctx context.Context, tiers []catalog.Tier) (models.MetricSnapshot, error) {
	started := time.Now()
	snap, failure := c.runCycle(ctx, tiers)
	duration := time.Since(started)

	c.mu.Lock()
	if !c.running {
		// Stopped while the cycle was in flight; the result is discarded and
		// the counters stay frozen at their stop-time values.
		c.mu.Unlock()
		return models.MetricSnapshot{}, fmt.Errorf("collector: device %s stopped mid-cycle", c.desc.ID)
	}

	c.stats.TotalCollections++
	c.stats.LastCollection = started

	if failure == nil {
		c.stats.SuccessfulCollections++
		c.stats.LastSuccess = started
		c.stats.ConsecutiveErrors = 0
		c.mu.Unlock()

		telemetry.CyclesTotal.WithLabelValues(c.desc.ID, string(snap.Summary.Status)).Inc()
		telemetry.CycleDuration.WithLabelValues(c.desc.ID).Observe(duration.Seconds())
		telemetry.ConsecutiveFailures.WithLabelValues(c.desc.ID).Set(0)

		c.sink.Metrics(event.MetricsEvent{
			DeviceID:  c.desc.ID,
			Timestamp: snap.Timestamp,
			Snapshot:  snap,
		})
		if len(snap.Summary.UnsupportedMetrics) > 0 {
			c.sink.Warning(event.WarningEvent{
				DeviceID:           c.desc.ID,
				UnsupportedMetrics: snap.Summary.UnsupportedMetrics,
				Timestamp:          snap.Timestamp,
			})
		}
		return snap, nil
	}

	c.stats.FailedCollections++
	c.stats.LastError = failure.err.Error()
	c.stats.ConsecutiveErrors++
	streak := c.stats.ConsecutiveErrors
	autoStop := streak >= c.maxFail
	if autoStop {
		c.running = false
		c.stats.UptimeSeconds = int64(time.Since(c.stats.StartedAt).Seconds())
		c.cancel()
	}
	final := c.stats
	c.mu.Unlock()

	telemetry.CyclesTotal.WithLabelValues(c.desc.ID, "failed").Inc()
	telemetry.CycleDuration.WithLabelValues(c.desc.ID).Observe(duration.Seconds())
	telemetry.ConsecutiveFailures.WithLabelValues(c.desc.ID).Set(float64(streak))

	c.logger.Warn("collection cycle failed",
		"type", string(failure.errType),
		"consecutive", streak,
		"error", failure.err.Error(),
	)
	c.sink.Error(event.ErrorEvent{
		DeviceID:          c.desc.ID,
		ErrorType:         string(failure.errType),
		Message:           failure.err.Error(),
		ConsecutiveErrors: streak,
		Timestamp:         time.Now(),
	})

	if autoStop {
		telemetry.ActiveCollectors.Dec()
		c.logger.Error("auto-stop threshold reached, collector stopping",
			"threshold", c.maxFail,
			"type", string(failure.errType),
		)
		c.sink.AutoStopped(event.LifecycleEvent{
			DeviceID:       c.desc.ID,
			Stats:          final,
			FinalErrorType: string(failure.errType),
			Timestamp:      time.Now(),
		})
	}
	return models.MetricSnapshot{}, failure
}

// runCycle executes the probe / open / collect / summarise sequence for the
// given tiers. A nil cycleFailure means a snapshot was produced.
func (c *Collector) runCycle(ctx context.Context, tiers []catalog.Tier) (models.MetricSnapshot, *cycleFailure) {
	started := time.Now()

	var groups []catalog.Group
	for _, tier := range tiers {
		groups = append(groups, catalog.ForTier(c.groups, tier)...)
	}
	attempted := make([]string, 0, len(groups))
	for _, g := range groups {
		attempted = append(attempted, g.GroupName())
	}

	// A host that does not answer echo at all fails the cycle before any
	// protocol traffic is sent.
	rtt, err := c.prober.Probe(ctx, c.desc.Address)
	if err != nil {
		return models.MetricSnapshot{}, &cycleFailure{
			errType: errclass.Connectivity,
			err:     fmt.Errorf("reachability probe: %w", err),
		}
	}
	telemetry.ProbeLatency.WithLabelValues(c.desc.ID).Observe(rtt.Seconds())

	conn, err := c.opener.Open(ctx, c.desc)
	if err != nil {
		return models.MetricSnapshot{}, &cycleFailure{
			errType: errclass.Classify(err),
			err:     err,
		}
	}
	defer conn.Close()

	results := make(map[string]models.GroupResult, len(groups))
	var cycleErrors []models.CycleError
	for _, g := range groups {
		res, err := c.collectGroup(conn, g)
		if err != nil {
			cycleErrors = append(cycleErrors, models.CycleError{
				Group:   g.GroupName(),
				Type:    string(errclass.Classify(err)),
				Message: err.Error(),
			})
			c.logger.Debug("group failed", "group", g.GroupName(), "error", err.Error())
			continue
		}
		results[g.GroupName()] = res
	}
	// Session released before aggregation; the deferred Close is a no-op.
	_ = conn.Close()

	sum := summary.Compute(results, attempted)
	sum.Errors = cycleErrors
	if len(cycleErrors) > 0 {
		sum.Status = models.StatusDegraded
	}

	return models.MetricSnapshot{
		DeviceID:   c.desc.ID,
		Timestamp:  started,
		Groups:     results,
		Summary:    sum,
		LatencyMs:  rtt.Milliseconds(),
		DurationMs: time.Since(started).Milliseconds(),
	}, nil
}

func (c *Collector) collectGroup(conn session.Conn, g catalog.Group) (models.GroupResult, error) {
	switch g := g.(type) {
	case catalog.ScalarGroup:
		scalars, err := poll.CollectScalars(conn, g.Specs, c.logger)
		if err != nil {
			return models.GroupResult{}, err
		}
		return models.GroupResult{Scalars: scalars}, nil
	case catalog.TableGroup:
		rows, err := poll.WalkTable(conn, g.Spec, c.logger)
		if err != nil {
			return models.GroupResult{}, err
		}
		return models.GroupResult{Rows: rows}, nil
	default:
		return models.GroupResult{}, fmt.Errorf("collector: unknown group kind %T", g)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func secondsOr(sec, fallback int) time.Duration {
	if sec <= 0 {
		sec = fallback
	}
	return time.Duration(sec) * time.Second
}

func tierNames(tiers []catalog.Tier) []string {
	out := make([]string, len(tiers))
	for i, t := range tiers {
		out[i] = string(t)
	}
	return out
}

// noopWriter discards log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
