// Package registry owns the process-wide set of collectors, keyed by device
// ID. It is the single entry point device management talks to: start a
// device, stop a device, ask for its stats, trigger an on-demand collection.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vpbank/device_monitor/models"
	"github.com/vpbank/device_monitor/pkg/devicemon/catalog"
	"github.com/vpbank/device_monitor/pkg/devicemon/collector"
	"github.com/vpbank/device_monitor/pkg/devicemon/event"
	"github.com/vpbank/device_monitor/pkg/devicemon/probe"
	"github.com/vpbank/device_monitor/pkg/devicemon/session"
	"github.com/vpbank/device_monitor/pkg/devicemon/telemetry"
)

// Options carries the shared dependencies every collector is built with.
type Options struct {
	// Groups is the metric group registry shared by all devices. Defaults to
	// catalog.Default().
	Groups []catalog.Group

	// Opener creates protocol sessions. Defaults to session.NewDialer.
	Opener session.Opener

	// Prober checks reachability ahead of each cycle. Defaults to
	// probe.NopProber.
	Prober probe.Prober

	// Sink receives the outbound events of every collector.
	Sink event.Sink

	Logger *slog.Logger
}

// Registry maps device IDs to running collectors.
type Registry struct {
	opts   Options
	logger *slog.Logger

	mu         sync.RWMutex
	collectors map[string]*collector.Collector
}

// New constructs an empty Registry.
func New(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Registry{
		opts:       opts,
		logger:     logger,
		collectors: make(map[string]*collector.Collector),
	}
}

// Start creates and starts a collector for the device. Starting a device
// that is already registered and running is a no-op; a registered collector
// that auto-stopped is replaced by a fresh one.
func (r *Registry) Start(desc models.DeviceDescriptor) error {
	if desc.ID == "" {
		return fmt.Errorf("registry: descriptor has no device id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.collectors[desc.ID]; ok {
		if existing.Running() {
			r.logger.Debug("device already running", "device", desc.ID)
			return nil
		}
		delete(r.collectors, desc.ID)
	}

	c, err := collector.New(collector.Options{
		Descriptor: desc,
		Groups:     r.opts.Groups,
		Opener:     r.opts.Opener,
		Prober:     r.opts.Prober,
		Sink:       r.opts.Sink,
		Logger:     r.opts.Logger,
	})
	if err != nil {
		return fmt.Errorf("registry: start %s: %w", desc.ID, err)
	}

	r.collectors[desc.ID] = c
	c.Start()
	return nil
}

// Stop stops the device's collector and removes it from the registry.
// Stopping a device that is not registered is a no-op; stopping an already
// auto-stopped collector still removes it.
func (r *Registry) Stop(deviceID string) error {
	r.mu.Lock()
	c, ok := r.collectors[deviceID]
	if ok {
		delete(r.collectors, deviceID)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("stop for unregistered device", "device", deviceID)
		return nil
	}
	c.Stop()
	telemetry.ForgetDevice(deviceID)
	return nil
}

// Stats returns a copy of the device's counters, or nil when the device is
// not registered.
func (r *Registry) Stats(deviceID string) *models.CollectorStats {
	r.mu.RLock()
	c, ok := r.collectors[deviceID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	s := c.Stats()
	return &s
}

// Running reports whether the device is registered with a running collector.
func (r *Registry) Running(deviceID string) bool {
	r.mu.RLock()
	c, ok := r.collectors[deviceID]
	r.mu.RUnlock()
	return ok && c.Running()
}

// DeviceIDs returns the IDs of every registered device.
func (r *Registry) DeviceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.collectors))
	for id := range r.collectors {
		ids = append(ids, id)
	}
	return ids
}

// CollectNow triggers one immediate full cycle for the device, bypassing the
// schedule, and returns its snapshot.
func (r *Registry) CollectNow(ctx context.Context, deviceID string) (models.MetricSnapshot, error) {
	r.mu.RLock()
	c, ok := r.collectors[deviceID]
	r.mu.RUnlock()
	if !ok {
		return models.MetricSnapshot{}, fmt.Errorf("registry: unknown device %s", deviceID)
	}
	return c.CollectNow(ctx)
}

// StopAll stops every registered collector and empties the registry.
// Collectors stop concurrently; StopAll returns when the last one has.
func (r *Registry) StopAll() {
	r.mu.Lock()
	stopping := r.collectors
	r.collectors = make(map[string]*collector.Collector)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for id, c := range stopping {
		wg.Add(1)
		go func(id string, c *collector.Collector) {
			defer wg.Done()
			c.Stop()
			telemetry.ForgetDevice(id)
		}(id, c)
	}
	wg.Wait()
	r.logger.Info("all collectors stopped", "count", len(stopping))
}

// noopWriter discards log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
