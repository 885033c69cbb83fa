package collector_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/device_monitor/models"
	"github.com/vpbank/device_monitor/pkg/devicemon/collector"
	"github.com/vpbank/device_monitor/pkg/devicemon/errclass"
	"github.com/vpbank/device_monitor/pkg/devicemon/event"
	"github.com/vpbank/device_monitor/pkg/devicemon/session"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeConn struct {
	byOID   map[string]gosnmp.SnmpPDU
	walkErr error
	walk    []gosnmp.SnmpPDU
}

func (f *fakeConn) Get(oids []string) ([]gosnmp.SnmpPDU, error) {
	out := make([]gosnmp.SnmpPDU, 0, len(oids))
	for _, oid := range oids {
		if pdu, ok := f.byOID[oid]; ok {
			out = append(out, pdu)
			continue
		}
		out = append(out, gosnmp.SnmpPDU{Name: oid, Type: gosnmp.NoSuchObject})
	}
	return out, nil
}

func (f *fakeConn) Walk(root string) ([]gosnmp.SnmpPDU, error) {
	if f.walkErr != nil {
		return nil, f.walkErr
	}
	return f.walk, nil
}

func (f *fakeConn) Close() error { return nil }

type fakeOpener struct {
	conn  session.Conn
	err   error
	opens int32
}

func (o *fakeOpener) Open(ctx context.Context, d models.DeviceDescriptor) (session.Conn, error) {
	atomic.AddInt32(&o.opens, 1)
	if o.err != nil {
		return nil, o.err
	}
	return o.conn, nil
}

func (o *fakeOpener) openCount() int32 { return atomic.LoadInt32(&o.opens) }

type fakeProber struct {
	failing int32
}

func (p *fakeProber) Probe(ctx context.Context, address string) (time.Duration, error) {
	if atomic.LoadInt32(&p.failing) == 1 {
		return 0, fmt.Errorf("probe: %s: no echo reply within 2s", address)
	}
	return 3 * time.Millisecond, nil
}

func (p *fakeProber) setFailing(v bool) {
	var n int32
	if v {
		n = 1
	}
	atomic.StoreInt32(&p.failing, n)
}

// blockingConn parks the first Get until released, signalling entry so a
// test can act while a cycle is mid-I/O.
type blockingConn struct {
	*fakeConn
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingConn) Get(oids []string) ([]gosnmp.SnmpPDU, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.fakeConn.Get(oids)
}

// recSink records every event under a mutex so tests can wait on counts.
type recSink struct {
	mu       sync.Mutex
	metrics  []event.MetricsEvent
	errors   []event.ErrorEvent
	warnings []event.WarningEvent
	started  []event.LifecycleEvent
	stopped  []event.LifecycleEvent
	auto     []event.LifecycleEvent
}

func (s *recSink) Metrics(e event.MetricsEvent) {
	s.mu.Lock()
	s.metrics = append(s.metrics, e)
	s.mu.Unlock()
}
func (s *recSink) Error(e event.ErrorEvent) {
	s.mu.Lock()
	s.errors = append(s.errors, e)
	s.mu.Unlock()
}
func (s *recSink) Warning(e event.WarningEvent) {
	s.mu.Lock()
	s.warnings = append(s.warnings, e)
	s.mu.Unlock()
}
func (s *recSink) Started(e event.LifecycleEvent) {
	s.mu.Lock()
	s.started = append(s.started, e)
	s.mu.Unlock()
}
func (s *recSink) Stopped(e event.LifecycleEvent) {
	s.mu.Lock()
	s.stopped = append(s.stopped, e)
	s.mu.Unlock()
}
func (s *recSink) AutoStopped(e event.LifecycleEvent) {
	s.mu.Lock()
	s.auto = append(s.auto, e)
	s.mu.Unlock()
}

// wait polls until cond is true or the deadline passes.
func (s *recSink) wait(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		ok := cond()
		s.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

// Intervals are pushed out far enough that only the baseline cycle and
// explicit CollectNow calls run during a test.
func testDescriptor() models.DeviceDescriptor {
	return models.DeviceDescriptor{
		ID:      "sw1",
		Address: "192.0.2.10",
		Port:    161,
		Version: "2c",
		Intervals: models.IntervalSet{
			FastSec:     3600,
			StandardSec: 3600,
			SlowSec:     3600,
			UptimeSec:   3600,
		},
		MaxConsecutiveFailures: 5,
	}
}

func healthyConn() *fakeConn {
	return &fakeConn{
		byOID: map[string]gosnmp.SnmpPDU{
			"1.3.6.1.2.1.1.3.0": {Name: "1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(360000)},
			"1.3.6.1.2.1.1.5.0": {Name: "1.3.6.1.2.1.1.5.0", Type: gosnmp.OctetString, Value: []byte("sw1")},
			"1.3.6.1.2.1.25.3.3.1.2.196608.0": {
				Name: "1.3.6.1.2.1.25.3.3.1.2.196608.0", Type: gosnmp.Integer, Value: 20,
			},
			"1.3.6.1.4.1.2021.4.6.0": {Name: "1.3.6.1.4.1.2021.4.6.0", Type: gosnmp.Integer, Value: 300},
			"1.3.6.1.4.1.2021.4.5.0": {Name: "1.3.6.1.4.1.2021.4.5.0", Type: gosnmp.Integer, Value: 1000},
			"1.3.6.1.4.1.9.9.13.1.3.1.3.1.0": {
				Name: "1.3.6.1.4.1.9.9.13.1.3.1.3.1.0", Type: gosnmp.Integer, Value: 450,
			},
			"1.3.6.1.4.1.2021.13.16.2.1.3.1.0": {
				Name: "1.3.6.1.4.1.2021.13.16.2.1.3.1.0", Type: gosnmp.Integer, Value: 520,
			},
		},
	}
}

func newCollector(t *testing.T, opts collector.Options) *collector.Collector {
	t.Helper()
	if opts.Descriptor.ID == "" {
		opts.Descriptor = testDescriptor()
	}
	c, err := collector.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestCollector_HealthyCycle(t *testing.T) {
	sink := &recSink{}
	prober := &fakeProber{}
	opener := &fakeOpener{conn: healthyConn()}

	c := newCollector(t, collector.Options{
		Opener: opener,
		Prober: prober,
		Sink:   sink,
	})
	c.Start()
	defer c.Stop()

	sink.wait(t, "baseline metrics event", func() bool { return len(sink.metrics) >= 1 })

	sink.mu.Lock()
	snap := sink.metrics[0].Snapshot
	sink.mu.Unlock()

	if snap.DeviceID != "sw1" {
		t.Errorf("DeviceID = %q, want sw1", snap.DeviceID)
	}
	if snap.Summary.CPUUsage == nil || *snap.Summary.CPUUsage != 20 {
		t.Errorf("CPUUsage = %v, want 20", snap.Summary.CPUUsage)
	}
	if snap.Summary.MemoryUsage == nil || *snap.Summary.MemoryUsage != 30 {
		t.Errorf("MemoryUsage = %v, want 30 from scalar pair", snap.Summary.MemoryUsage)
	}
	if snap.Summary.UptimeSeconds == nil || *snap.Summary.UptimeSeconds != 3600 {
		t.Errorf("UptimeSeconds = %v, want 3600", snap.Summary.UptimeSeconds)
	}
	if snap.Summary.Temperature == nil || *snap.Summary.Temperature != 45 {
		t.Errorf("Temperature = %v, want 45 from the board sensor", snap.Summary.Temperature)
	}

	stats := c.Stats()
	if stats.SuccessfulCollections != 1 || stats.ConsecutiveErrors != 0 {
		t.Errorf("stats = %+v, want one success and no error streak", stats)
	}
}

func TestCollector_UnreachableNeverOpensSession(t *testing.T) {
	sink := &recSink{}
	prober := &fakeProber{}
	prober.setFailing(true)
	opener := &fakeOpener{conn: healthyConn()}

	c := newCollector(t, collector.Options{
		Opener: opener,
		Prober: prober,
		Sink:   sink,
	})
	c.Start()
	defer c.Stop()

	sink.wait(t, "connectivity error event", func() bool { return len(sink.errors) >= 1 })

	sink.mu.Lock()
	e := sink.errors[0]
	sink.mu.Unlock()

	if e.ErrorType != string(errclass.Connectivity) {
		t.Errorf("ErrorType = %q, want connectivity", e.ErrorType)
	}
	if n := opener.openCount(); n != 0 {
		t.Errorf("session opened %d times for an unreachable device, want 0", n)
	}
}

func TestCollector_AutoStopAtThreshold(t *testing.T) {
	sink := &recSink{}
	prober := &fakeProber{}
	prober.setFailing(true)

	c := newCollector(t, collector.Options{
		Opener: &fakeOpener{conn: healthyConn()},
		Prober: prober,
		Sink:   sink,
	})
	c.Start()

	// Baseline cycle contributes failure 1; four on-demand cycles reach the
	// threshold of 5 and the fifth must trip the auto-stop.
	sink.wait(t, "baseline failure", func() bool { return len(sink.errors) >= 1 })
	for i := 0; i < 4; i++ {
		if _, err := c.CollectNow(context.Background()); err == nil {
			t.Fatalf("CollectNow %d: expected failure", i)
		}
	}

	sink.wait(t, "auto-stop event", func() bool { return len(sink.auto) == 1 })
	if c.Running() {
		t.Error("collector still running after auto-stop")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.errors) != 5 {
		t.Errorf("error events = %d, want exactly 5", len(sink.errors))
	}
	if got := sink.errors[4].ConsecutiveErrors; got != 5 {
		t.Errorf("final streak = %d, want 5", got)
	}
	auto := sink.auto[0]
	if auto.FinalErrorType != string(errclass.Connectivity) {
		t.Errorf("FinalErrorType = %q, want connectivity", auto.FinalErrorType)
	}
	if auto.Stats.FailedCollections != 5 {
		t.Errorf("FailedCollections = %d, want 5", auto.Stats.FailedCollections)
	}
	if len(sink.stopped) != 0 {
		t.Error("auto-stop must emit the auto-stop event, not a plain stop")
	}
}

func TestCollector_DegradedCycleResetsStreak(t *testing.T) {
	sink := &recSink{}
	prober := &fakeProber{}
	conn := healthyConn()
	conn.walkErr = fmt.Errorf("request timeout (after 2 retries)")

	c := newCollector(t, collector.Options{
		Opener: &fakeOpener{conn: conn},
		Prober: prober,
		Sink:   sink,
	})

	// Fail the baseline cycle first so there is a streak to reset.
	prober.setFailing(true)
	c.Start()
	defer c.Stop()
	sink.wait(t, "baseline failure", func() bool { return len(sink.errors) >= 1 })

	prober.setFailing(false)
	snap, err := c.CollectNow(context.Background())
	if err != nil {
		t.Fatalf("CollectNow: %v", err)
	}

	if snap.Summary.Status != models.StatusDegraded {
		t.Errorf("Status = %q, want degraded (table groups failed)", snap.Summary.Status)
	}
	if len(snap.Summary.Errors) == 0 {
		t.Error("degraded snapshot must list its group errors")
	}
	if stats := c.Stats(); stats.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0 after a degraded success", stats.ConsecutiveErrors)
	}
}

func TestCollector_StopDuringCycleDiscardsResult(t *testing.T) {
	sink := &recSink{}
	conn := &blockingConn{
		fakeConn: healthyConn(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}

	c := newCollector(t, collector.Options{
		Opener: &fakeOpener{conn: conn},
		Prober: &fakeProber{},
		Sink:   sink,
	})
	c.Start()

	select {
	case <-conn.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("baseline cycle never reached the session")
	}

	// Stop while the cycle is parked mid-I/O. Stop must not abort the cycle;
	// it flips the running flag and waits for the scheduler to drain.
	stopDone := make(chan struct{})
	go func() {
		c.Stop()
		close(stopDone)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for c.Running() {
		if time.Now().After(deadline) {
			t.Fatal("collector still reports running after Stop")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Let the in-flight cycle finish against the now-stopped collector.
	close(conn.release)
	select {
	case <-stopDone:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after the in-flight cycle completed")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.metrics) != 0 {
		t.Errorf("metrics events = %d, want 0: a cycle finishing after stop discards its result", len(sink.metrics))
	}
	if len(sink.stopped) != 1 {
		t.Errorf("stop events = %d, want 1", len(sink.stopped))
	}
	if stats := c.Stats(); stats.TotalCollections != 0 || stats.SuccessfulCollections != 0 {
		t.Errorf("stats = %+v, want counters frozen at their stop-time values", stats)
	}
}

func TestCollector_StopIdempotent(t *testing.T) {
	sink := &recSink{}
	c := newCollector(t, collector.Options{
		Opener: &fakeOpener{conn: healthyConn()},
		Prober: &fakeProber{},
		Sink:   sink,
	})

	c.Start()
	c.Start() // second Start is a no-op
	c.Stop()
	c.Stop() // second Stop is a no-op

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.started) != 1 {
		t.Errorf("start events = %d, want 1", len(sink.started))
	}
	if len(sink.stopped) != 1 {
		t.Errorf("stop events = %d, want 1", len(sink.stopped))
	}
}

func TestCollector_CollectNowWhenStopped(t *testing.T) {
	c := newCollector(t, collector.Options{
		Opener: &fakeOpener{conn: healthyConn()},
		Prober: &fakeProber{},
	})
	if _, err := c.CollectNow(context.Background()); err == nil {
		t.Fatal("expected error from CollectNow on a stopped collector")
	}
}

func TestCollector_UnsupportedScalarIsNotAnError(t *testing.T) {
	sink := &recSink{}
	conn := healthyConn()
	// Strip both temperature sensors from an otherwise healthy device.
	for _, oid := range []string{
		"1.3.6.1.4.1.9.9.13.1.3.1.3.1.0",
		"1.3.6.1.4.1.2021.13.16.2.1.3.1.0",
	} {
		if _, ok := conn.byOID[oid]; !ok {
			t.Fatalf("fixture no longer serves %s", oid)
		}
		delete(conn.byOID, oid)
	}

	c := newCollector(t, collector.Options{
		Opener: &fakeOpener{conn: conn},
		Prober: &fakeProber{},
		Sink:   sink,
	})
	c.Start()
	defer c.Stop()

	sink.wait(t, "warning event", func() bool { return len(sink.warnings) >= 1 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	found := false
	for _, m := range sink.warnings[0].UnsupportedMetrics {
		if m == "temperature" {
			found = true
		}
	}
	if !found {
		t.Errorf("warning = %v, want temperature listed", sink.warnings[0].UnsupportedMetrics)
	}
	if len(sink.errors) != 0 {
		t.Errorf("unsupported scalars produced %d error events, want 0", len(sink.errors))
	}
}
