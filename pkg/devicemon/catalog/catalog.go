// Package catalog is the declarative registry of what the engine collects,
// how, and how often. Groups are defined once at process start and are
// immutable; per-group behaviour (value transforms, row calculations, row
// filters) is carried as pure functions on the group definitions so the
// polling and aggregation layers stay free of per-metric special cases.
package catalog

import (
	"math"
	"strings"

	"github.com/vpbank/device_monitor/models"
	"github.com/vpbank/device_monitor/snmp/value"
)

// ─────────────────────────────────────────────────────────────────────────────
// Interval tiers
// ─────────────────────────────────────────────────────────────────────────────

// Tier is one of the three polling frequencies a group can be assigned to.
type Tier string

const (
	TierFast     Tier = "fast"
	TierStandard Tier = "standard"
	TierSlow     Tier = "slow"
)

// ─────────────────────────────────────────────────────────────────────────────
// Group definitions
// ─────────────────────────────────────────────────────────────────────────────

// Transform converts a decoded scalar value into its semantic form, for
// example hundredths-of-a-second ticks into seconds. A nil return marks the
// value as absent.
type Transform func(v interface{}) interface{}

// ScalarSpec describes one scalar metric retrieved by a direct Get.
type ScalarSpec struct {
	// Name is the metric name used in group results and by the aggregator.
	Name string

	// OID is the full numeric object identifier, without the ".0" instance
	// suffix (the collector appends it).
	OID string

	// Transform optionally post-processes the decoded value.
	Transform Transform
}

// ColumnSpec describes one column of a table group.
type ColumnSpec struct {
	// Name is the field name the column decodes into on each MetricRow.
	Name string

	// Column is the column number under the table's base identifier.
	Column int
}

// TableSpec describes an indexed table retrieved by a subtree walk.
type TableSpec struct {
	// BaseOID is the table entry base identifier (e.g. ifEntry).
	BaseOID string

	// IndexColumn is the column whose identifiers enumerate the row indices.
	IndexColumn int

	// Columns is the full set of columns to reassemble per row.
	Columns []ColumnSpec

	// Calculate, when set, derives additional fields on a reassembled row
	// before filtering (e.g. a usage percentage from used/total pairs).
	Calculate func(row *models.MetricRow)

	// Filter, when set, decides whether a row is kept. Rows failing the
	// filter are dropped silently, not reported as errors.
	Filter func(row models.MetricRow) bool
}

// Group is one registry entry: either a scalar group or a table group,
// tagged with the interval tier that schedules it.
type Group interface {
	GroupName() string
	GroupTier() Tier
}

// ScalarGroup is a group of scalar metrics collected in one batched Get.
type ScalarGroup struct {
	Name  string
	Tier  Tier
	Specs []ScalarSpec
}

func (g ScalarGroup) GroupName() string { return g.Name }
func (g ScalarGroup) GroupTier() Tier   { return g.Tier }

// TableGroup is a group backed by a single table walk.
type TableGroup struct {
	Name string
	Tier Tier
	Spec TableSpec
}

func (g TableGroup) GroupName() string { return g.Name }
func (g TableGroup) GroupTier() Tier   { return g.Tier }

// ForTier returns the subset of groups assigned to the given tier,
// preserving registry order.
func ForTier(groups []Group, tier Tier) []Group {
	var out []Group
	for _, g := range groups {
		if g.GroupTier() == tier {
			out = append(out, g)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared transforms and classifiers
// ─────────────────────────────────────────────────────────────────────────────

// TicksToSeconds converts a TimeTicks value (hundredths of a second) to
// whole seconds.
func TicksToSeconds(v interface{}) interface{} {
	u, err := value.ToUint64(v)
	if err != nil {
		return nil
	}
	return u / 100
}

// DeciDegrees converts tenths-of-a-degree readings to whole degrees Celsius.
func DeciDegrees(v interface{}) interface{} {
	f, err := value.ToFloat64(v)
	if err != nil {
		return nil
	}
	return math.Round(f / 10)
}

// storageKeywords classify an hrStorage row as disk-like storage.
var storageKeywords = []string{"disk", "flash", "storage", "drive"}

// ClassifiesAsStorage reports whether a storage-row description names
// disk-like storage.
func ClassifiesAsStorage(descr string) bool {
	d := strings.ToLower(descr)
	for _, kw := range storageKeywords {
		if strings.Contains(d, kw) {
			return true
		}
	}
	return false
}

// ClassifiesAsMemory reports whether a storage-row description names
// physical or virtual memory.
func ClassifiesAsMemory(descr string) bool {
	return strings.Contains(strings.ToLower(descr), "memory")
}
