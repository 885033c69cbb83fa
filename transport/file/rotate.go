// Package file — rotate.go adds size-based rotation for the event output
// files.
//
// Once the active file would grow past MaxBytes it is renamed with a numeric
// suffix (device_metrics.json → device_metrics.json.1, shifting older
// suffixes up) and a fresh file is opened in its place. At most MaxBackups
// rotated files survive; zero keeps them all.
//
// RotatingFile is an io.WriteCloser, so it plugs straight into the Writer
// fields of Config and SplitConfig.
package file

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// RotateConfig controls output file rotation.
type RotateConfig struct {
	// FilePath is the active file name (required).
	FilePath string

	// MaxBytes triggers rotation when a write would push the active file
	// past this size. Zero disables rotation.
	MaxBytes int64

	// MaxBackups is how many rotated files to keep. Zero keeps all.
	MaxBackups int
}

// RotatingFile is a concurrency-safe io.WriteCloser with size-based rotation.
type RotatingFile struct {
	mu     sync.Mutex
	cfg    RotateConfig
	active *os.File
	size   int64
	logger *slog.Logger
}

// NewRotatingFile opens (or creates, including parent directories) the file
// at cfg.FilePath. The caller owns the returned writer and must Close it.
func NewRotatingFile(cfg RotateConfig, logger *slog.Logger) (*RotatingFile, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("transport/file: rotate: FilePath is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	if dir := filepath.Dir(cfg.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("transport/file: rotate: mkdir %s: %w", dir, err)
		}
	}

	rf := &RotatingFile{cfg: cfg, logger: logger}
	if err := rf.reopen(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Write implements io.Writer, rotating first when the write would exceed
// MaxBytes. A failed rotation is logged and the write proceeds on the old
// file so no record is lost.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.cfg.MaxBytes > 0 && rf.size+int64(len(p)) > rf.cfg.MaxBytes {
		if err := rf.rotate(); err != nil {
			rf.logger.Error("transport/file: rotate failed", "error", err.Error())
		}
	}

	n, err := rf.active.Write(p)
	rf.size += int64(n)
	return n, err
}

// Close closes the active file.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.active == nil {
		return nil
	}
	return rf.active.Close()
}

// reopen opens the active file for appending and records its current size.
func (rf *RotatingFile) reopen() error {
	f, err := os.OpenFile(rf.cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("transport/file: rotate: open %s: %w", rf.cfg.FilePath, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("transport/file: rotate: stat %s: %w", rf.cfg.FilePath, err)
	}
	rf.active = f
	rf.size = info.Size()
	return nil
}

// rotate shifts every numbered backup up by one (.1 → .2 and so on), moves
// the active file to .1, drops anything past MaxBackups, and reopens a
// fresh active file. Caller holds rf.mu.
func (rf *RotatingFile) rotate() error {
	if rf.active != nil {
		if err := rf.active.Close(); err != nil {
			rf.logger.Warn("transport/file: rotate: close error", "error", err.Error())
		}
		rf.active = nil
	}

	base := rf.cfg.FilePath

	high := rf.highestBackup()
	if rf.cfg.MaxBackups > 0 && high >= rf.cfg.MaxBackups {
		// The slot the shift would push the oldest file into is over the
		// limit; remove it instead of renaming into it.
		for i := rf.cfg.MaxBackups; i <= high; i++ {
			_ = os.Remove(fmt.Sprintf("%s.%d", base, i))
		}
		high = rf.cfg.MaxBackups - 1
	}
	for i := high; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", base, i), fmt.Sprintf("%s.%d", base, i+1))
	}

	if err := os.Rename(base, base+".1"); err != nil && !os.IsNotExist(err) {
		rf.logger.Warn("transport/file: rotate: rename error", "error", err.Error())
	}

	rf.logger.Info("transport/file: rotated", "file", base)

	rf.size = 0
	return rf.reopen()
}

// highestBackup returns the largest numeric suffix currently on disk.
func (rf *RotatingFile) highestBackup() int {
	high := 0
	for i := 1; ; i++ {
		if _, err := os.Stat(fmt.Sprintf("%s.%d", rf.cfg.FilePath, i)); err != nil {
			break
		}
		high = i
	}
	return high
}
