// Package errclass maps raw collection failures onto a fixed taxonomy.
// Classification is pattern-based on the underlying transport error and is
// used only for observability — logging and emitted error events — it never
// changes retry behaviour.
package errclass

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Type is one value of the failure taxonomy.
type Type string

const (
	// Connectivity means the device was unreachable at the transport level.
	Connectivity Type = "connectivity"

	// Authentication means the device rejected the credential.
	Authentication Type = "authentication"

	// Timeout means no response arrived within the configured window.
	Timeout Type = "timeout"

	// UnsupportedOID means a queried identifier does not exist on the device.
	UnsupportedOID Type = "unsupported_oid"

	// Unknown covers everything the patterns below do not recognise.
	Unknown Type = "unknown"
)

// String returns the taxonomy value verbatim, as carried in error events.
func (t Type) String() string { return string(t) }

// authPatterns match gosnmp / USM failure text for rejected credentials.
var authPatterns = []string{
	"authentication",
	"unknown user name",
	"wrong digest",
	"incorrect community",
	"decryption error",
	"unsupported security level",
}

// connectivityPatterns match transport-level unreachability.
var connectivityPatterns = []string{
	"connection refused",
	"no route to host",
	"network is unreachable",
	"host is down",
	"unreachable",
	"no echo reply",
}

// unsupportedPatterns match per-OID absence surfacing as a request error
// (SNMPv1 noSuchName and the v2c error sentinels when they escape as errors).
var unsupportedPatterns = []string{
	"nosuchname",
	"nosuchobject",
	"nosuchinstance",
	"no such object",
	"no such instance",
}

// Classify maps err onto the taxonomy. A nil error classifies as Unknown;
// callers only classify actual failures.
func Classify(err error) Type {
	if err == nil {
		return Unknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}

	msg := strings.ToLower(err.Error())

	for _, p := range authPatterns {
		if strings.Contains(msg, p) {
			return Authentication
		}
	}
	for _, p := range unsupportedPatterns {
		if strings.Contains(msg, p) {
			return UnsupportedOID
		}
	}
	for _, p := range connectivityPatterns {
		if strings.Contains(msg, p) {
			return Connectivity
		}
	}
	// gosnmp reports exhausted retries as "request timeout".
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return Timeout
	}

	return Unknown
}
