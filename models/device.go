// Package models defines the core data structures shared across all layers of
// the device monitor. These types represent the canonical in-memory form of
// everything the collection engine consumes and produces; every other package
// depends on this package and nothing here depends on any other internal
// package.
package models

// DeviceDescriptor is the fully-resolved description of a single monitored
// device, handed to the collection engine by device management. The engine
// treats it as immutable input for the lifetime of a collector; changing a
// device means stopping its collector and starting a new one.
type DeviceDescriptor struct {
	// ID uniquely identifies the device across the process (registry key).
	ID string `yaml:"id"`

	// Address is the management IP address or hostname of the device.
	Address string `yaml:"address"`

	// Port is the UDP port for SNMP requests (default 161).
	Port int `yaml:"port"`

	// Version is the SNMP version: "1", "2c", or "3".
	Version string `yaml:"version"`

	// Community is the shared-secret community string (v1/v2c).
	Community string `yaml:"community"`

	// V3 holds SNMPv3 security parameters. nil for v1/v2c devices.
	V3 *V3Credentials `yaml:"v3"`

	// TimeoutMs is the per-request transport timeout in milliseconds
	// (default 3000). Timeouts are enforced here, not by an external watchdog.
	TimeoutMs int `yaml:"timeout"`

	// Retries is the number of retry attempts on timeout (default 2).
	Retries int `yaml:"retries"`

	// Intervals carries the polling period for each interval tier.
	Intervals IntervalSet `yaml:"intervals"`

	// MaxConsecutiveFailures is the auto-stop threshold: when this many
	// cycle-level failures occur in a row the collector stops itself
	// (default 5).
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
}

// V3Credentials holds a single set of SNMPv3 security parameters.
type V3Credentials struct {
	// Username is the SNMPv3 security name.
	Username string `yaml:"username"`

	// AuthProtocol is one of: noauth, md5, sha, sha224, sha256, sha384, sha512.
	AuthProtocol string `yaml:"auth_protocol"`

	// AuthPassphrase is the passphrase for the chosen auth protocol.
	AuthPassphrase string `yaml:"auth_passphrase"`

	// PrivProtocol is one of: nopriv, des, aes, aes192, aes256, aes192c, aes256c.
	PrivProtocol string `yaml:"priv_protocol"`

	// PrivPassphrase is the passphrase for the chosen privacy protocol.
	PrivPassphrase string `yaml:"priv_passphrase"`
}

// IntervalSet holds the polling period in seconds for each interval tier,
// plus the cadence of the coarse collector-uptime counter.
type IntervalSet struct {
	// FastSec is the fast-tier period (default 30).
	FastSec int `yaml:"fast"`

	// StandardSec is the standard-tier period (default 60).
	StandardSec int `yaml:"standard"`

	// SlowSec is the slow-tier period (default 300).
	SlowSec int `yaml:"slow"`

	// UptimeSec is the collector-uptime counter update period (default 30).
	UptimeSec int `yaml:"uptime"`
}
