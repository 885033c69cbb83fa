// Package poll executes the two query shapes of a collection cycle against
// an open session: batched point queries for scalar groups and subtree walks
// reassembled into indexed rows for table groups. Both are pure
// request/decode stages; failure policy (what a group failure means for the
// cycle) belongs to the collector state machine.
package poll

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/vpbank/device_monitor/pkg/devicemon/catalog"
	"github.com/vpbank/device_monitor/pkg/devicemon/session"
	"github.com/vpbank/device_monitor/snmp/value"
)

// maxOidsPerGet caps how many OIDs one Get batch may carry, matching the
// session's packet limit.
const maxOidsPerGet = 60

// CollectScalars issues one batched query for every OID in specs and decodes
// the response into a name → value map.
//
// Per-value protocol errors (NoSuchObject and friends) make that single field
// absent; the group never fails because one field among many is unsupported
// by the target device. A transport-level error fails the whole group.
func CollectScalars(conn session.Conn, specs []catalog.ScalarSpec, logger *slog.Logger) (map[string]interface{}, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if len(specs) == 0 {
		return map[string]interface{}{}, nil
	}

	// Scalar instances live at <oid>.0.
	specByOID := make(map[string]catalog.ScalarSpec, len(specs))
	oids := make([]string, 0, len(specs))
	for _, spec := range specs {
		inst := normaliseOID(spec.OID) + ".0"
		specByOID[inst] = spec
		oids = append(oids, inst)
	}

	out := make(map[string]interface{}, len(specs))
	for start := 0; start < len(oids); start += maxOidsPerGet {
		end := start + maxOidsPerGet
		if end > len(oids) {
			end = len(oids)
		}

		pdus, err := conn.Get(oids[start:end])
		if err != nil {
			return nil, fmt.Errorf("poll: scalar get: %w", err)
		}

		for _, pdu := range pdus {
			spec, ok := specByOID[normaliseOID(pdu.Name)]
			if !ok {
				continue
			}
			if value.IsErrorPDU(pdu.Type) {
				logger.Debug("scalar unsupported on device",
					"metric", spec.Name,
					"oid", spec.OID,
					"pdu_type", value.TypeString(pdu.Type),
				)
				continue
			}

			v, err := value.Coerce(pdu)
			if err != nil {
				logger.Debug("scalar value coercion failed",
					"metric", spec.Name,
					"error", err.Error(),
				)
				continue
			}
			if spec.Transform != nil {
				v = spec.Transform(v)
				if v == nil {
					continue
				}
			}
			out[spec.Name] = v
		}
	}

	return out, nil
}

// normaliseOID strips a leading dot so OIDs compare in canonical form.
func normaliseOID(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}

// noopWriter discards log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
