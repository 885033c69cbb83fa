package catalog_test

import (
	"testing"

	"github.com/vpbank/device_monitor/models"
	"github.com/vpbank/device_monitor/pkg/devicemon/catalog"
)

func TestDefault_TierAssignment(t *testing.T) {
	groups := catalog.Default()

	byName := make(map[string]catalog.Tier, len(groups))
	for _, g := range groups {
		byName[g.GroupName()] = g.GroupTier()
	}

	tests := []struct {
		group string
		want  catalog.Tier
	}{
		{catalog.GroupSystem, catalog.TierStandard},
		{catalog.GroupResources, catalog.TierFast},
		{catalog.GroupInterfaces, catalog.TierStandard},
		{catalog.GroupStorage, catalog.TierSlow},
	}
	for _, tt := range tests {
		got, ok := byName[tt.group]
		if !ok {
			t.Fatalf("group %q missing from default registry", tt.group)
		}
		if got != tt.want {
			t.Errorf("group %q tier = %s, want %s", tt.group, got, tt.want)
		}
	}
}

func TestForTier(t *testing.T) {
	groups := catalog.Default()

	fast := catalog.ForTier(groups, catalog.TierFast)
	if len(fast) != 1 || fast[0].GroupName() != catalog.GroupResources {
		t.Errorf("fast tier = %v, want only %q", fast, catalog.GroupResources)
	}

	slow := catalog.ForTier(groups, catalog.TierSlow)
	if len(slow) != 1 || slow[0].GroupName() != catalog.GroupStorage {
		t.Errorf("slow tier = %v, want only %q", slow, catalog.GroupStorage)
	}
}

func TestTicksToSeconds(t *testing.T) {
	if got := catalog.TicksToSeconds(uint32(8640000)); got != uint64(86400) {
		t.Errorf("TicksToSeconds(8640000) = %v, want 86400", got)
	}
	if got := catalog.TicksToSeconds("not a number"); got != nil {
		t.Errorf("TicksToSeconds on junk = %v, want nil", got)
	}
}

func TestDeciDegrees(t *testing.T) {
	if got := catalog.DeciDegrees(int64(385)); got != 39.0 {
		t.Errorf("DeciDegrees(385) = %v, want 39", got)
	}
	if got := catalog.DeciDegrees(int64(384)); got != 38.0 {
		t.Errorf("DeciDegrees(384) = %v, want 38", got)
	}
}

func TestClassifiers(t *testing.T) {
	tests := []struct {
		descr      string
		wantDisk   bool
		wantMemory bool
	}{
		{"/dev/sda1 Disk Partition", true, false},
		{"Flash memory", true, true},
		{"Physical memory", false, true},
		{"Fixed Drive C:", true, false},
		{"Internal Storage", true, false},
		{"Swap space", false, false},
	}
	for _, tt := range tests {
		if got := catalog.ClassifiesAsStorage(tt.descr); got != tt.wantDisk {
			t.Errorf("ClassifiesAsStorage(%q) = %v, want %v", tt.descr, got, tt.wantDisk)
		}
		if got := catalog.ClassifiesAsMemory(tt.descr); got != tt.wantMemory {
			t.Errorf("ClassifiesAsMemory(%q) = %v, want %v", tt.descr, got, tt.wantMemory)
		}
	}
}

func TestStorageGroup_CalculateAndFilter(t *testing.T) {
	groups := catalog.Default()
	var storage catalog.TableGroup
	for _, g := range groups {
		if tg, ok := g.(catalog.TableGroup); ok && tg.Name == catalog.GroupStorage {
			storage = tg
		}
	}
	if storage.Spec.Calculate == nil || storage.Spec.Filter == nil {
		t.Fatal("storage group must carry calculate and filter functions")
	}

	row := models.MetricRow{Index: 1, Fields: map[string]interface{}{
		"descr":           "/var Disk",
		"allocationUnits": uint64(4096),
		"sizeUnits":       uint64(1000),
		"usedUnits":       uint64(250),
	}}
	storage.Spec.Calculate(&row)

	if pct, ok := row.Float("usedPercent"); !ok || pct != 25.0 {
		t.Errorf("usedPercent = %v (present=%v), want 25", pct, ok)
	}
	if sz, ok := row.Fields["sizeBytes"].(uint64); !ok || sz != 4096000 {
		t.Errorf("sizeBytes = %v, want 4096000", row.Fields["sizeBytes"])
	}
	if !storage.Spec.Filter(row) {
		t.Error("disk row should pass the storage filter")
	}
}

func TestStorageGroup_ZeroSizeGuard(t *testing.T) {
	groups := catalog.Default()
	for _, g := range groups {
		tg, ok := g.(catalog.TableGroup)
		if !ok || tg.Name != catalog.GroupStorage {
			continue
		}
		row := models.MetricRow{Index: 3, Fields: map[string]interface{}{
			"descr":     "Removable Disk",
			"sizeUnits": uint64(0),
			"usedUnits": uint64(0),
		}}
		tg.Spec.Calculate(&row)
		if pct, ok := row.Float("usedPercent"); !ok || pct != 0 {
			t.Errorf("usedPercent with zero total = %v (present=%v), want 0", pct, ok)
		}
	}
}

func TestInterfaceFilter(t *testing.T) {
	groups := catalog.Default()
	for _, g := range groups {
		tg, ok := g.(catalog.TableGroup)
		if !ok || tg.Name != catalog.GroupInterfaces {
			continue
		}
		up := models.MetricRow{Fields: map[string]interface{}{"operStatus": int64(1)}}
		down := models.MetricRow{Fields: map[string]interface{}{"operStatus": int64(2)}}
		missing := models.MetricRow{Fields: map[string]interface{}{}}

		if !tg.Spec.Filter(up) {
			t.Error("up interface should be kept")
		}
		if tg.Spec.Filter(down) {
			t.Error("down interface should be dropped")
		}
		if tg.Spec.Filter(missing) {
			t.Error("row without operStatus should be dropped")
		}
	}
}
