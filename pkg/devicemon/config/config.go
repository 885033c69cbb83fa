// Package config loads monitored-device definitions from YAML directory
// trees and resolves them into fully-populated descriptors.
//
// Two trees are read, each overridable by flag or environment variable:
//
//	DEVICE_MONITOR_DEVICES_DIRECTORY_PATH  → device definitions
//	DEVICE_MONITOR_DEFAULTS_DIRECTORY_PATH → shared defaults
//
// Every *.yml / *.yaml file under the devices tree maps device ID → entry.
// Fields left unset on an entry fall back first to the merged defaults, then
// to hard-coded fallbacks, so a minimal entry is just an address.
package config

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vpbank/device_monitor/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Paths
// ─────────────────────────────────────────────────────────────────────────────

// Paths holds the directory locations of both configuration trees.
type Paths struct {
	Devices  string // DEVICE_MONITOR_DEVICES_DIRECTORY_PATH
	Defaults string // DEVICE_MONITOR_DEFAULTS_DIRECTORY_PATH
}

// PathsFromEnv reads each path from its environment variable, falling back to
// the documented default when the variable is unset or empty.
func PathsFromEnv() Paths {
	return Paths{
		Devices:  envOr("DEVICE_MONITOR_DEVICES_DIRECTORY_PATH", "/etc/device_monitor/devices"),
		Defaults: envOr("DEVICE_MONITOR_DEFAULTS_DIRECTORY_PATH", "/etc/device_monitor/defaults"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ─────────────────────────────────────────────────────────────────────────────
// Raw YAML schema
// ─────────────────────────────────────────────────────────────────────────────

// rawDeviceEntry is the intermediate YAML-decoded form of a single device.
// Hard-coded fallbacks are applied for zero-valued fields during resolution.
type rawDeviceEntry struct {
	Address                string                `yaml:"address"`
	Port                   int                   `yaml:"port"`
	Version                string                `yaml:"version"`
	Community              string                `yaml:"community"`
	V3                     *models.V3Credentials `yaml:"v3"`
	Timeout                int                   `yaml:"timeout"`
	Retries                int                   `yaml:"retries"`
	Intervals              rawIntervals          `yaml:"intervals"`
	MaxConsecutiveFailures int                   `yaml:"max_consecutive_failures"`
}

type rawIntervals struct {
	Fast     int `yaml:"fast"`
	Standard int `yaml:"standard"`
	Slow     int `yaml:"slow"`
	Uptime   int `yaml:"uptime"`
}

type rawDefaults struct {
	Default rawDeviceEntry `yaml:"default"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load reads both configuration trees and returns the resolved descriptors
// sorted by device ID. A tree that does not exist is skipped silently so
// partial deployments work; malformed files are skipped with a warning so one
// bad file cannot take down monitoring of every device.
func Load(paths Paths, logger *slog.Logger) ([]models.DeviceDescriptor, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	defaults, err := loadDefaults(paths.Defaults, logger)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.DeviceDescriptor)

	files, err := yamlFiles(paths.Devices)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: list devices dir %q: %w", paths.Devices, err)
	}

	for _, path := range files {
		var raw map[string]rawDeviceEntry
		if err := decodeFile(path, &raw); err != nil {
			logger.Warn("config: skip malformed device file", "file", path, "error", err.Error())
			continue
		}
		for id, entry := range raw {
			desc, err := resolveDevice(id, entry, defaults)
			if err != nil {
				logger.Warn("config: skip invalid device", "device", id, "file", path, "error", err.Error())
				continue
			}
			if _, dup := byID[id]; dup {
				logger.Warn("config: duplicate device id, later file wins", "device", id, "file", path)
			}
			byID[id] = desc
		}
		logger.Debug("config: loaded device file", "file", path, "count", len(raw))
	}

	out := make([]models.DeviceDescriptor, 0, len(byID))
	for _, d := range byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// loadDefaults merges every defaults file in the tree; the first file to set
// a field wins.
func loadDefaults(dir string, logger *slog.Logger) (rawDeviceEntry, error) {
	var merged rawDeviceEntry

	files, err := yamlFiles(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return merged, nil
		}
		return merged, fmt.Errorf("config: list defaults dir %q: %w", dir, err)
	}

	for _, path := range files {
		var raw rawDefaults
		if err := decodeFile(path, &raw); err != nil {
			logger.Warn("config: skip malformed defaults file", "file", path, "error", err.Error())
			continue
		}
		merged = mergeDefaults(merged, raw.Default)
		logger.Debug("config: loaded defaults", "file", path)
	}
	return merged, nil
}

// mergeDefaults fills zero fields in dst with values from src.
func mergeDefaults(dst, src rawDeviceEntry) rawDeviceEntry {
	if dst.Port == 0 {
		dst.Port = src.Port
	}
	if dst.Version == "" {
		dst.Version = src.Version
	}
	if dst.Community == "" {
		dst.Community = src.Community
	}
	if dst.Timeout == 0 {
		dst.Timeout = src.Timeout
	}
	if dst.Retries == 0 {
		dst.Retries = src.Retries
	}
	if dst.Intervals.Fast == 0 {
		dst.Intervals.Fast = src.Intervals.Fast
	}
	if dst.Intervals.Standard == 0 {
		dst.Intervals.Standard = src.Intervals.Standard
	}
	if dst.Intervals.Slow == 0 {
		dst.Intervals.Slow = src.Intervals.Slow
	}
	if dst.Intervals.Uptime == 0 {
		dst.Intervals.Uptime = src.Intervals.Uptime
	}
	if dst.MaxConsecutiveFailures == 0 {
		dst.MaxConsecutiveFailures = src.MaxConsecutiveFailures
	}
	return dst
}

// resolveDevice merges a raw entry with defaults and hard-coded fallbacks,
// producing a fully-resolved descriptor.
func resolveDevice(id string, e, d rawDeviceEntry) (models.DeviceDescriptor, error) {
	if e.Address == "" {
		e.Address = d.Address
	}
	if e.Address == "" {
		return models.DeviceDescriptor{}, fmt.Errorf("no address")
	}

	port := firstNonZero(e.Port, d.Port, 161)
	timeout := firstNonZero(e.Timeout, d.Timeout, 3000)
	retries := firstNonZero(e.Retries, d.Retries, 2)
	maxFail := firstNonZero(e.MaxConsecutiveFailures, d.MaxConsecutiveFailures, 5)

	version := e.Version
	if version == "" {
		version = d.Version
	}
	if version == "" {
		version = "2c"
	}
	switch version {
	case "1", "2c", "3":
	default:
		return models.DeviceDescriptor{}, fmt.Errorf("unsupported version %q", version)
	}

	community := e.Community
	if community == "" {
		community = d.Community
	}

	v3 := e.V3
	if v3 == nil {
		v3 = d.V3
	}
	if version == "3" && v3 == nil {
		return models.DeviceDescriptor{}, fmt.Errorf("version 3 without v3 credentials")
	}

	return models.DeviceDescriptor{
		ID:        id,
		Address:   e.Address,
		Port:      port,
		Version:   version,
		Community: community,
		V3:        v3,
		TimeoutMs: timeout,
		Retries:   retries,
		Intervals: models.IntervalSet{
			FastSec:     firstNonZero(e.Intervals.Fast, d.Intervals.Fast, 30),
			StandardSec: firstNonZero(e.Intervals.Standard, d.Intervals.Standard, 60),
			SlowSec:     firstNonZero(e.Intervals.Slow, d.Intervals.Slow, 300),
			UptimeSec:   firstNonZero(e.Intervals.Uptime, d.Intervals.Uptime, 30),
		},
		MaxConsecutiveFailures: maxFail,
	}, nil
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// yamlFiles returns all *.yml / *.yaml files under dir, sorted by path.
func yamlFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, p)
		}
		return nil
	})
	return paths, err
}

// decodeFile opens path and unmarshals the YAML content into out.
func decodeFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false) // be lenient — extra keys are fine
	return dec.Decode(out)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
