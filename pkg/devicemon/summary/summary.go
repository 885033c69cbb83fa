// Package summary condenses a cycle's raw group results into the handful of
// headline metrics operators actually watch. Each headline metric has an
// ordered list of sources; the first source that yields a value wins, and a
// metric whose every attempted source came back empty is reported as
// unsupported rather than silently omitted.
package summary

import (
	"sort"

	"github.com/vpbank/device_monitor/models"
	"github.com/vpbank/device_monitor/pkg/devicemon/catalog"
)

// Compute derives the summary from the groups collected this cycle.
//
// attempted lists the groups the cycle actually ran, which is tier-dependent:
// a metric is only marked unsupported when at least one of its source groups
// was attempted and none produced a value. Metrics whose source groups were
// all out of scope for this cycle stay nil without an unsupported mark.
func Compute(groups map[string]models.GroupResult, attempted []string) models.Summary {
	ran := make(map[string]bool, len(attempted))
	for _, name := range attempted {
		ran[name] = true
	}

	s := models.Summary{Status: models.StatusOK}

	if v, tried := cpuUsage(groups, ran); tried {
		if v == nil {
			s.UnsupportedMetrics = append(s.UnsupportedMetrics, "cpu_usage")
		}
		s.CPUUsage = v
	}
	if v, tried := memoryUsage(groups, ran); tried {
		if v == nil {
			s.UnsupportedMetrics = append(s.UnsupportedMetrics, "memory_usage")
		}
		s.MemoryUsage = v
	}
	if v, tried := diskUsage(groups, ran); tried {
		if v == nil {
			s.UnsupportedMetrics = append(s.UnsupportedMetrics, "disk_usage")
		}
		s.DiskUsage = v
	}
	if v, tried := temperature(groups, ran); tried {
		if v == nil {
			s.UnsupportedMetrics = append(s.UnsupportedMetrics, "temperature")
		}
		s.Temperature = v
	}
	if v, tried := uptimeSeconds(groups, ran); tried {
		if v == nil {
			s.UnsupportedMetrics = append(s.UnsupportedMetrics, "uptime")
		}
		s.UptimeSeconds = v
	}

	sort.Strings(s.UnsupportedMetrics)
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Per-metric derivations
// ─────────────────────────────────────────────────────────────────────────────

// cpuUsage reads the processor load scalar verbatim; it is already a percent.
func cpuUsage(groups map[string]models.GroupResult, ran map[string]bool) (*float64, bool) {
	if !ran[catalog.GroupResources] {
		return nil, false
	}
	res, ok := groups[catalog.GroupResources]
	if !ok {
		return nil, true
	}
	if v, ok := scalarFloat(res, catalog.MetricProcessorLoad); ok {
		return &v, true
	}
	return nil, true
}

// memoryUsage prefers a memory row from the storage table, whose units are
// consistent within the row; the scalar used/size pair is the fallback for
// devices without a storage table.
func memoryUsage(groups map[string]models.GroupResult, ran map[string]bool) (*float64, bool) {
	tried := false

	if ran[catalog.GroupStorage] {
		tried = true
		if storage, ok := groups[catalog.GroupStorage]; ok {
			for _, row := range storage.Rows {
				descr, _ := row.String("descr")
				if !catalog.ClassifiesAsMemory(descr) {
					continue
				}
				if pct, ok := row.Float("usedPercent"); ok {
					return &pct, true
				}
			}
		}
	}

	if ran[catalog.GroupResources] {
		tried = true
		if res, ok := groups[catalog.GroupResources]; ok {
			used, usedOK := scalarFloat(res, catalog.MetricMemoryUsed)
			size, sizeOK := scalarFloat(res, catalog.MetricMemorySize)
			if usedOK && sizeOK {
				pct := 0.0
				if size > 0 {
					pct = used / size * 100
				}
				return &pct, true
			}
		}
	}

	return nil, tried
}

// diskUsage reports the fullest storage volume, the one that will fill first.
// A device whose storage table walked fine but holds no storage-class rows
// reports zero, not unsupported.
func diskUsage(groups map[string]models.GroupResult, ran map[string]bool) (*float64, bool) {
	if !ran[catalog.GroupStorage] {
		return nil, false
	}
	storage, ok := groups[catalog.GroupStorage]
	if !ok {
		return nil, true
	}

	max := 0.0
	for _, row := range storage.Rows {
		descr, _ := row.String("descr")
		if !catalog.ClassifiesAsStorage(descr) {
			continue
		}
		if pct, ok := row.Float("usedPercent"); ok && pct > max {
			max = pct
		}
	}
	return &max, true
}

// temperature prefers the chassis sensor and falls back to the CPU sensor.
func temperature(groups map[string]models.GroupResult, ran map[string]bool) (*float64, bool) {
	if !ran[catalog.GroupResources] {
		return nil, false
	}
	res, ok := groups[catalog.GroupResources]
	if !ok {
		return nil, true
	}
	if v, ok := scalarFloat(res, catalog.MetricBoardTemp); ok {
		return &v, true
	}
	if v, ok := scalarFloat(res, catalog.MetricCPUTemp); ok {
		return &v, true
	}
	return nil, true
}

func uptimeSeconds(groups map[string]models.GroupResult, ran map[string]bool) (*uint64, bool) {
	if !ran[catalog.GroupSystem] {
		return nil, false
	}
	sys, ok := groups[catalog.GroupSystem]
	if !ok {
		return nil, true
	}
	switch v := sys.Scalars[catalog.MetricSysUptime].(type) {
	case uint64:
		return &v, true
	case int64:
		if v >= 0 {
			u := uint64(v)
			return &u, true
		}
	}
	return nil, true
}

// scalarFloat reads one scalar as float64, widening the integer forms the
// decoder produces.
func scalarFloat(g models.GroupResult, name string) (float64, bool) {
	switch v := g.Scalars[name].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
