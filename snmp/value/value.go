// Package value converts raw gosnmp variable bindings into native Go values.
// It is the single place where protocol-level byte and large-integer
// encodings are decoded; the scalar collector and table walker both build on
// it so every metric in the engine carries one of a small set of native types
// (int64, uint64, float64, string).
package value

import (
	"encoding/hex"
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// PDU type helpers
// ─────────────────────────────────────────────────────────────────────────────

// TypeString returns the human-readable name for a gosnmp Asn1BER type tag.
func TypeString(t gosnmp.Asn1BER) string {
	switch t {
	case gosnmp.Integer:
		return "Integer"
	case gosnmp.OctetString:
		return "OctetString"
	case gosnmp.Null:
		return "Null"
	case gosnmp.ObjectIdentifier:
		return "ObjectIdentifier"
	case gosnmp.IPAddress:
		return "IpAddress"
	case gosnmp.Counter32:
		return "Counter32"
	case gosnmp.Gauge32:
		return "Gauge32"
	case gosnmp.TimeTicks:
		return "TimeTicks"
	case gosnmp.Counter64:
		return "Counter64"
	case gosnmp.Uinteger32:
		return "Unsigned32"
	case gosnmp.OpaqueFloat:
		return "OpaqueFloat"
	case gosnmp.OpaqueDouble:
		return "OpaqueDouble"
	case gosnmp.NoSuchObject:
		return "NoSuchObject"
	case gosnmp.NoSuchInstance:
		return "NoSuchInstance"
	case gosnmp.EndOfMibView:
		return "EndOfMibView"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", uint8(t))
	}
}

// IsErrorPDU returns true when the PDU type signals a retrieval error
// sentinel rather than an actual value. Callers treat such varbinds as
// "field absent" and never fail a whole batch because of them.
func IsErrorPDU(t gosnmp.Asn1BER) bool {
	return t == gosnmp.NoSuchObject || t == gosnmp.NoSuchInstance ||
		t == gosnmp.EndOfMibView || t == gosnmp.Null
}

// ─────────────────────────────────────────────────────────────────────────────
// Coerce — PDU → native Go value
// ─────────────────────────────────────────────────────────────────────────────

// Coerce converts a raw gosnmp PDU into a native Go value driven by the PDU's
// ASN.1 type. The returned value is one of int64, uint64, float64 or string.
func Coerce(pdu gosnmp.SnmpPDU) (interface{}, error) {
	if IsErrorPDU(pdu.Type) {
		return nil, fmt.Errorf("value: PDU type is %s", TypeString(pdu.Type))
	}

	switch pdu.Type {
	case gosnmp.Integer:
		return ToInt64(pdu.Value)
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32, gosnmp.Counter64:
		return ToUint64(pdu.Value)
	case gosnmp.OctetString:
		return toDisplayString(pdu.Value), nil
	case gosnmp.ObjectIdentifier:
		return toOIDString(pdu.Value), nil
	case gosnmp.IPAddress:
		return toIPString(pdu.Value), nil
	case gosnmp.OpaqueFloat:
		if f, ok := pdu.Value.(float32); ok {
			return float64(f), nil
		}
		return ToFloat64(pdu.Value)
	case gosnmp.OpaqueDouble:
		return ToFloat64(pdu.Value)
	default:
		// Unknown type: keep raw bytes if available, else stringify, so the
		// cycle is not broken by an exotic vendor type.
		if b, ok := pdu.Value.([]byte); ok {
			return toDisplayString(b), nil
		}
		return fmt.Sprintf("%v", pdu.Value), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Numeric wideners
// ─────────────────────────────────────────────────────────────────────────────

// ToInt64 converts the raw gosnmp value to int64. gosnmp returns integers as
// int / int32 / int64 depending on the PDU.
func ToInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("uint64 value %d overflows int64", x)
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", v)
	}
}

// ToUint64 converts the raw gosnmp value to uint64.
func ToUint64(v interface{}) (uint64, error) {
	switch x := v.(type) {
	case int:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d cannot be converted to uint64", x)
		}
		return uint64(x), nil
	case int32:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d cannot be converted to uint64", x)
		}
		return uint64(x), nil
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d cannot be converted to uint64", x)
		}
		return uint64(x), nil
	case uint:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to uint64", v)
	}
}

// ToFloat64 widens any numeric type to float64.
func ToFloat64(v interface{}) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// String conversions
// ─────────────────────────────────────────────────────────────────────────────

// toDisplayString converts an OctetString value to a UTF-8 string, stripping
// trailing null bytes that devices sometimes append.
func toDisplayString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strings.TrimRight(x, "\x00")
	case []byte:
		return strings.TrimRight(string(x), "\x00")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toOIDString returns the dotted-decimal OID string in no-leading-dot form.
func toOIDString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strings.TrimPrefix(x, ".")
	case []byte:
		return strings.TrimPrefix(string(x), ".")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toIPString converts an IpAddress value (4/16-byte slice or string) to
// textual notation.
func toIPString(v interface{}) string {
	switch x := v.(type) {
	case string:
		b := []byte(x)
		if len(b) == 4 {
			return net.IP(b).String()
		}
		return x
	case []byte:
		if len(x) == 4 || len(x) == 16 {
			return net.IP(x).String()
		}
		return hex.EncodeToString(x)
	default:
		return fmt.Sprintf("%v", v)
	}
}
