package poll

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/device_monitor/models"
	"github.com/vpbank/device_monitor/pkg/devicemon/catalog"
	"github.com/vpbank/device_monitor/pkg/devicemon/session"
	"github.com/vpbank/device_monitor/snmp/value"
)

// WalkTable issues one subtree query for the table's base identifier and
// reassembles the flat varbind list into indexed rows.
//
// Row discovery pattern-matches the index column's identifier prefix; each
// discovered index then assembles a row by looking up
// <base>.<column>.<index> for every configured column, leaving missing
// columns absent. The spec's calculate function runs before its filter;
// rows failing the filter are dropped silently.
func WalkTable(conn session.Conn, spec catalog.TableSpec, logger *slog.Logger) ([]models.MetricRow, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	base := normaliseOID(spec.BaseOID)

	pdus, err := conn.Walk(base)
	if err != nil {
		return nil, fmt.Errorf("poll: walk %s: %w", base, err)
	}

	// Flatten to oid → pdu for O(1) column lookup during reassembly.
	flat := make(map[string]gosnmp.SnmpPDU, len(pdus))
	for _, pdu := range pdus {
		flat[normaliseOID(pdu.Name)] = pdu
	}

	// Row indices are exactly the instances present under the index column.
	indexPrefix := fmt.Sprintf("%s.%d.", base, spec.IndexColumn)
	var indices []int
	for oid := range flat {
		if len(oid) <= len(indexPrefix) || oid[:len(indexPrefix)] != indexPrefix {
			continue
		}
		idx, err := strconv.Atoi(oid[len(indexPrefix):])
		if err != nil {
			// Compound or non-integer instance — outside this table shape.
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	rows := make([]models.MetricRow, 0, len(indices))
	for _, idx := range indices {
		row := models.MetricRow{
			Index:  idx,
			Fields: make(map[string]interface{}, len(spec.Columns)),
		}
		for _, col := range spec.Columns {
			pdu, ok := flat[fmt.Sprintf("%s.%d.%d", base, col.Column, idx)]
			if !ok || value.IsErrorPDU(pdu.Type) {
				continue // field stays absent
			}
			v, err := value.Coerce(pdu)
			if err != nil {
				logger.Debug("table value coercion failed",
					"column", col.Name,
					"index", idx,
					"error", err.Error(),
				)
				continue
			}
			row.Fields[col.Name] = v
		}

		if spec.Calculate != nil {
			spec.Calculate(&row)
		}
		if spec.Filter != nil && !spec.Filter(row) {
			continue
		}
		rows = append(rows, row)
	}

	logger.Debug("table walk completed",
		"base", base,
		"pdu_count", len(pdus),
		"row_count", len(rows),
	)
	return rows, nil
}
