package catalog

import "github.com/vpbank/device_monitor/models"

// Group and metric names referenced by the summary aggregator. Keeping them
// as constants pins the contract between the registry and the aggregator.
const (
	GroupSystem     = "system"
	GroupResources  = "resources"
	GroupInterfaces = "interfaces"
	GroupStorage    = "storage"

	MetricSysUptime     = "sysUptime"
	MetricProcessorLoad = "processorLoad"
	MetricMemoryUsed    = "memoryUsed"
	MetricMemorySize    = "memorySize"
	MetricBoardTemp     = "boardTemperature"
	MetricCPUTemp       = "cpuTemperature"
)

// Default returns the fixed metric group registry.
//
// Identity and uptime come from MIB-2 system, processor/memory/temperature
// from HOST-RESOURCES and UCD-SNMP (plus the common vendor environment
// sensors), interfaces from IF-MIB ifTable and volumes from hrStorageTable.
// Devices that lack a branch simply return error sentinels for it; absence
// is handled downstream, never configured away per device.
func Default() []Group {
	return []Group{
		ScalarGroup{
			Name: GroupSystem,
			Tier: TierStandard,
			Specs: []ScalarSpec{
				{Name: MetricSysUptime, OID: "1.3.6.1.2.1.1.3", Transform: TicksToSeconds},
				{Name: "sysName", OID: "1.3.6.1.2.1.1.5"},
				{Name: "sysDescr", OID: "1.3.6.1.2.1.1.1"},
			},
		},
		ScalarGroup{
			Name: GroupResources,
			Tier: TierFast,
			Specs: []ScalarSpec{
				// hrProcessorLoad of the first processor: average load over
				// the last minute as an integer percentage.
				{Name: MetricProcessorLoad, OID: "1.3.6.1.2.1.25.3.3.1.2.196608"},
				// UCD-SNMP real memory, in KB units.
				{Name: MetricMemoryUsed, OID: "1.3.6.1.4.1.2021.4.6"},
				{Name: MetricMemorySize, OID: "1.3.6.1.4.1.2021.4.5"},
				// Environment sensors, deci-degrees. Model-dependent and
				// frequently missing.
				{Name: MetricBoardTemp, OID: "1.3.6.1.4.1.9.9.13.1.3.1.3.1", Transform: DeciDegrees},
				{Name: MetricCPUTemp, OID: "1.3.6.1.4.1.2021.13.16.2.1.3.1", Transform: DeciDegrees},
			},
		},
		TableGroup{
			Name: GroupInterfaces,
			Tier: TierStandard,
			Spec: TableSpec{
				BaseOID:     "1.3.6.1.2.1.2.2.1",
				IndexColumn: 1,
				Columns: []ColumnSpec{
					{Name: "descr", Column: 2},
					{Name: "speedBps", Column: 5},
					{Name: "operStatus", Column: 8},
					{Name: "inOctets", Column: 10},
					{Name: "outOctets", Column: 16},
				},
				Filter: interfaceUp,
			},
		},
		TableGroup{
			Name: GroupStorage,
			Tier: TierSlow,
			Spec: TableSpec{
				BaseOID:     "1.3.6.1.2.1.25.2.3.1",
				IndexColumn: 1,
				Columns: []ColumnSpec{
					{Name: "descr", Column: 3},
					{Name: "allocationUnits", Column: 4},
					{Name: "sizeUnits", Column: 5},
					{Name: "usedUnits", Column: 6},
				},
				Calculate: storageUsage,
				Filter:    storageRelevant,
			},
		},
	}
}

// interfaceUp keeps only operationally-up interfaces (ifOperStatus == 1).
func interfaceUp(row models.MetricRow) bool {
	status, ok := row.Float("operStatus")
	return ok && status == 1
}

// storageUsage derives usedPercent and byte sizes from the raw unit counts.
// A zero total never divides: the percentage is reported as 0.
func storageUsage(row *models.MetricRow) {
	size, okSize := row.Float("sizeUnits")
	used, okUsed := row.Float("usedUnits")
	if !okSize || !okUsed {
		return
	}

	pct := 0.0
	if size > 0 {
		pct = used / size * 100
	}
	row.Fields["usedPercent"] = pct

	if alloc, ok := row.Float("allocationUnits"); ok {
		row.Fields["sizeBytes"] = uint64(size * alloc)
		row.Fields["usedBytes"] = uint64(used * alloc)
	}
}

// storageRelevant keeps rows the aggregator can use: disk-like volumes for
// disk usage and memory rows for the memory-usage fallback. Everything else
// (swap devices, ramdisks with exotic names) is dropped silently.
func storageRelevant(row models.MetricRow) bool {
	descr, ok := row.String("descr")
	if !ok {
		return false
	}
	return ClassifiesAsStorage(descr) || ClassifiesAsMemory(descr)
}
