package file_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/vpbank/device_monitor/transport/file"
)

// ─────────────────────────────────────────────────────────────────────────────
// SplitWriterTransport tests
// ─────────────────────────────────────────────────────────────────────────────

func newSplitBufs(t *testing.T) (*bytes.Buffer, *bytes.Buffer, *file.SplitWriterTransport) {
	t.Helper()
	var metricBuf, alertBuf bytes.Buffer
	tr := file.NewSplit(file.SplitConfig{
		MetricWriter: &metricBuf,
		AlertWriter:  &alertBuf,
	}, nil)
	return &metricBuf, &alertBuf, tr
}

func TestSplit_MetricRouting(t *testing.T) {
	metricBuf, alertBuf, tr := newSplitBufs(t)

	msg := []byte(`{"kind":"metrics","device_id":"sw1","payload":{"snapshot":{}}}`)
	if err := tr.Send(msg); err != nil {
		t.Fatalf("Send metric: %v", err)
	}

	if metricBuf.Len() == 0 {
		t.Error("expected metric data in metricBuf, got empty")
	}
	if alertBuf.Len() != 0 {
		t.Errorf("expected empty alertBuf, got %q", alertBuf.String())
	}
	if !strings.HasSuffix(metricBuf.String(), "\n") {
		t.Errorf("metric output should end with newline, got %q", metricBuf.String())
	}
}

func TestSplit_PrettyMetricRouting(t *testing.T) {
	metricBuf, alertBuf, tr := newSplitBufs(t)

	msg := []byte("{\n  \"kind\": \"metrics\",\n  \"device_id\": \"sw1\"\n}")
	if err := tr.Send(msg); err != nil {
		t.Fatalf("Send metric: %v", err)
	}
	if metricBuf.Len() == 0 || alertBuf.Len() != 0 {
		t.Error("pretty-printed metric envelope must still route to the metric writer")
	}
}

func TestSplit_AlertRouting(t *testing.T) {
	metricBuf, alertBuf, tr := newSplitBufs(t)

	for _, msg := range []string{
		`{"kind":"error","device_id":"sw1","payload":{"error_type":"timeout"}}`,
		`{"kind":"warning","device_id":"sw1","payload":{"unsupported_metrics":["temperature"]}}`,
		`{"kind":"auto-stop","device_id":"sw1","payload":{"final_error_type":"connectivity"}}`,
	} {
		if err := tr.Send([]byte(msg)); err != nil {
			t.Fatalf("Send alert: %v", err)
		}
	}

	if metricBuf.Len() != 0 {
		t.Errorf("expected empty metricBuf, got %q", metricBuf.String())
	}
	alertLines := strings.Split(strings.TrimRight(alertBuf.String(), "\n"), "\n")
	if len(alertLines) != 3 {
		t.Errorf("expected 3 alert lines, got %d: %q", len(alertLines), alertBuf.String())
	}
}

func TestSplit_MixedMessages(t *testing.T) {
	metricBuf, alertBuf, tr := newSplitBufs(t)

	metric1 := []byte(`{"kind":"metrics","device_id":"sw1","payload":{}}`)
	alert1 := []byte(`{"kind":"error","device_id":"sw1","payload":{}}`)
	metric2 := []byte(`{"kind":"metrics","device_id":"sw2","payload":{}}`)
	alert2 := []byte(`{"kind":"stop","device_id":"sw2","payload":{}}`)

	for _, msg := range [][]byte{metric1, alert1, metric2, alert2} {
		if err := tr.Send(msg); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	metricLines := strings.Split(strings.TrimRight(metricBuf.String(), "\n"), "\n")
	alertLines := strings.Split(strings.TrimRight(alertBuf.String(), "\n"), "\n")

	if len(metricLines) != 2 {
		t.Errorf("expected 2 metric lines, got %d: %q", len(metricLines), metricBuf.String())
	}
	if len(alertLines) != 2 {
		t.Errorf("expected 2 alert lines, got %d: %q", len(alertLines), alertBuf.String())
	}
}

func TestSplit_ConcurrentSafe(t *testing.T) {
	metricBuf, alertBuf, tr := newSplitBufs(t)
	const n = 100

	metricMsg := []byte(`{"kind":"metrics","device_id":"sw1","payload":{}}`)
	alertMsg := []byte(`{"kind":"error","device_id":"sw1","payload":{}}`)

	var wg sync.WaitGroup
	wg.Add(2 * n)

	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = tr.Send(metricMsg)
		}()
		go func() {
			defer wg.Done()
			_ = tr.Send(alertMsg)
		}()
	}
	wg.Wait()

	metricLines := strings.Split(strings.TrimRight(metricBuf.String(), "\n"), "\n")
	alertLines := strings.Split(strings.TrimRight(alertBuf.String(), "\n"), "\n")

	if len(metricLines) != n {
		t.Errorf("expected %d metric lines, got %d", n, len(metricLines))
	}
	if len(alertLines) != n {
		t.Errorf("expected %d alert lines, got %d", n, len(alertLines))
	}
}

func TestSplit_CustomNewline(t *testing.T) {
	var metricBuf, alertBuf bytes.Buffer
	tr := file.NewSplit(file.SplitConfig{
		MetricWriter: &metricBuf,
		AlertWriter:  &alertBuf,
		Newline:      "\r\n",
	}, nil)

	_ = tr.Send([]byte(`{"kind":"metrics"}`))
	_ = tr.Send([]byte(`{"kind":"error"}`))

	if !strings.HasSuffix(metricBuf.String(), "\r\n") {
		t.Errorf("expected CRLF newline in metric output, got %q", metricBuf.String())
	}
	if !strings.HasSuffix(alertBuf.String(), "\r\n") {
		t.Errorf("expected CRLF newline in alert output, got %q", alertBuf.String())
	}
}

func TestSplit_DefaultWriters(t *testing.T) {
	// Zero-value SplitConfig should not panic.
	tr := file.NewSplit(file.SplitConfig{}, nil)
	if tr == nil {
		t.Fatal("expected non-nil transport")
	}
}

func TestSplit_CloseReturnsNil_ForBuffers(t *testing.T) {
	_, _, tr := newSplitBufs(t)
	if err := tr.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSplit_ErrorOnFailingWriter(t *testing.T) {
	tr := file.NewSplit(file.SplitConfig{
		MetricWriter: &errWriter{},
		AlertWriter:  &errWriter{},
	}, nil)

	if err := tr.Send([]byte(`{"kind":"metrics"}`)); err == nil {
		t.Error("expected error from failing metric writer, got nil")
	}
	if err := tr.Send([]byte(`{"kind":"error"}`)); err == nil {
		t.Error("expected error from failing alert writer, got nil")
	}
}

// Ensure SplitWriterTransport satisfies the Transport interface.
var _ file.Transport = (*file.SplitWriterTransport)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// RotatingFile tests
// ─────────────────────────────────────────────────────────────────────────────

func TestRotatingFile_BasicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	rf, err := file.NewRotatingFile(file.RotateConfig{
		FilePath: path,
	}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	defer rf.Close()

	data := []byte("hello world\n")
	n, err := rf.Write(data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(data) {
		t.Errorf("Write returned %d, want %d", n, len(data))
	}

	content, _ := os.ReadFile(path)
	if string(content) != "hello world\n" {
		t.Errorf("file content = %q, want %q", content, "hello world\n")
	}
}

func TestRotatingFile_RotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	rf, err := file.NewRotatingFile(file.RotateConfig{
		FilePath:   path,
		MaxBytes:   50,
		MaxBackups: 3,
	}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	defer rf.Close()

	// Write enough data to trigger rotation.
	msg := []byte("12345678901234567890123456\n") // 27 bytes each
	for i := 0; i < 4; i++ {
		if _, err := rf.Write(msg); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	// Expect the active file and at least one backup.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("active file should exist: %v", err)
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("backup .1 should exist: %v", err)
	}
}

func TestRotatingFile_PrunesOldBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	rf, err := file.NewRotatingFile(file.RotateConfig{
		FilePath:   path,
		MaxBytes:   20,
		MaxBackups: 2,
	}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	defer rf.Close()

	// Write enough to trigger multiple rotations.
	msg := []byte("12345678901234567890\n") // 21 bytes
	for i := 0; i < 5; i++ {
		if _, err := rf.Write(msg); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	// MaxBackups=2, so .1 and .2 should exist but .3 should not.
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("backup .1 should exist: %v", err)
	}
	if _, err := os.Stat(path + ".2"); err != nil {
		t.Errorf("backup .2 should exist: %v", err)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("backup .3 should have been pruned")
	}
}

func TestRotatingFile_RequiresFilePath(t *testing.T) {
	_, err := file.NewRotatingFile(file.RotateConfig{}, nil)
	if err == nil {
		t.Error("expected error for empty FilePath, got nil")
	}
}

func TestRotatingFile_CreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "c", "test.log")

	rf, err := file.NewRotatingFile(file.RotateConfig{
		FilePath: path,
	}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	defer rf.Close()

	if _, err := rf.Write([]byte("ok\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SplitWriterTransport + RotatingFile integration
// ─────────────────────────────────────────────────────────────────────────────

func TestSplit_WithRotatingFiles(t *testing.T) {
	dir := t.TempDir()
	metricPath := filepath.Join(dir, "metrics.json")
	alertPath := filepath.Join(dir, "alerts.json")

	mrf, err := file.NewRotatingFile(file.RotateConfig{
		FilePath:   metricPath,
		MaxBytes:   500,
		MaxBackups: 2,
	}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile (metrics): %v", err)
	}

	arf, err := file.NewRotatingFile(file.RotateConfig{
		FilePath:   alertPath,
		MaxBytes:   500,
		MaxBackups: 2,
	}, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile (alerts): %v", err)
	}

	tr := file.NewSplit(file.SplitConfig{
		MetricWriter: mrf,
		AlertWriter:  arf,
	}, nil)

	// Send a mix of metric and alert envelopes.
	for i := 0; i < 20; i++ {
		_ = tr.Send([]byte(`{"kind":"metrics","device_id":"sw1","payload":{"snapshot":{}}}`))
		_ = tr.Send([]byte(`{"kind":"error","device_id":"sw1","payload":{"error_type":"timeout"}}`))
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Verify files exist.
	if _, err := os.Stat(metricPath); err != nil {
		t.Errorf("metric file should exist: %v", err)
	}
	if _, err := os.Stat(alertPath); err != nil {
		t.Errorf("alert file should exist: %v", err)
	}

	// Verify content was routed correctly.
	metricData, _ := os.ReadFile(metricPath)
	alertData, _ := os.ReadFile(alertPath)

	if bytes.Contains(metricData, []byte(`"kind":"error"`)) {
		t.Error("metric file should not contain alert data")
	}
	if bytes.Contains(alertData, []byte(`"kind":"metrics"`)) {
		t.Error("alert file should not contain metric data")
	}
}
