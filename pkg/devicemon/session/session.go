// Package session turns a device descriptor into a live, validated SNMP
// session. Opening performs one lightweight identity round trip so transport
// reachability and credential correctness are both proven before the session
// is handed to callers; closing is idempotent so scoped acquisition can
// release on every exit path without double-close concerns.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/device_monitor/models"
)

// identityOID is sysObjectID.0 — the well-known object every SNMP agent must
// answer, queried once at open time to validate the session.
const identityOID = "1.3.6.1.2.1.1.2.0"

// maxOidsPerRequest caps how many OIDs one Get packet may carry.
const maxOidsPerRequest = 60

// ─────────────────────────────────────────────────────────────────────────────
// Conn and Opener contracts
// ─────────────────────────────────────────────────────────────────────────────

// Conn is the protocol surface the collection layers consume. A Conn belongs
// to exactly one in-flight collection cycle and never outlives it.
type Conn interface {
	// Get issues one batched point query and returns the raw varbinds.
	Get(oids []string) ([]gosnmp.SnmpPDU, error)

	// Walk issues a subtree query rooted at root and returns the raw
	// varbinds in lexicographic OID order.
	Walk(root string) ([]gosnmp.SnmpPDU, error)

	// Close releases the transport. Safe to call multiple times.
	Close() error
}

// Opener creates a validated Conn for a device. The production implementation
// is Dialer; tests inject fakes.
type Opener interface {
	Open(ctx context.Context, d models.DeviceDescriptor) (Conn, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Dialer — descriptor → validated session
// ─────────────────────────────────────────────────────────────────────────────

// Dialer is the production Opener backed by gosnmp.
type Dialer struct {
	logger *slog.Logger
}

// NewDialer constructs a Dialer.
func NewDialer(logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Dialer{logger: logger}
}

// Open connects to the device and performs the identity round trip. The
// returned Conn must be closed by the caller on every exit path.
func (d *Dialer) Open(ctx context.Context, desc models.DeviceDescriptor) (Conn, error) {
	g, err := buildClient(desc)
	if err != nil {
		return nil, err
	}
	g.Context = ctx

	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("session: connect %s:%d: %w", desc.Address, desc.Port, err)
	}

	s := &Session{conn: g, version: desc.Version, logger: d.logger}

	started := time.Now()
	if _, err := g.Get([]string{identityOID}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("session: identity check %s: %w", desc.Address, err)
	}

	d.logger.Debug("session opened",
		"device", desc.ID,
		"address", desc.Address,
		"version", desc.Version,
		"identity_rtt_ms", time.Since(started).Milliseconds(),
	)
	return s, nil
}

// buildClient maps a descriptor onto a gosnmp client for SNMP v1, v2c or v3.
func buildClient(desc models.DeviceDescriptor) (*gosnmp.GoSNMP, error) {
	g := &gosnmp.GoSNMP{
		Target:  desc.Address,
		Port:    uint16(desc.Port),
		Timeout: time.Duration(desc.TimeoutMs) * time.Millisecond,
		Retries: desc.Retries,
		MaxOids: maxOidsPerRequest,
	}

	switch desc.Version {
	case "1":
		g.Version = gosnmp.Version1
		g.Community = desc.Community
	case "2c":
		g.Version = gosnmp.Version2c
		g.Community = desc.Community
	case "3":
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		if desc.V3 == nil {
			return nil, fmt.Errorf("session: device %s is v3 but has no credentials", desc.ID)
		}
		g.MsgFlags = v3MsgFlags(*desc.V3)
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 desc.V3.Username,
			AuthenticationProtocol:   mapAuthProto(desc.V3.AuthProtocol),
			AuthenticationPassphrase: desc.V3.AuthPassphrase,
			PrivacyProtocol:          mapPrivProto(desc.V3.PrivProtocol),
			PrivacyPassphrase:        desc.V3.PrivPassphrase,
		}
	default:
		return nil, fmt.Errorf("session: unsupported SNMP version %q", desc.Version)
	}

	return g, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Session
// ─────────────────────────────────────────────────────────────────────────────

// Session is the production Conn wrapping one live gosnmp client.
type Session struct {
	conn    *gosnmp.GoSNMP
	version string
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Get implements Conn. Callers are expected to stay within
// maxOidsPerRequest per call; the scalar collector batches accordingly.
func (s *Session) Get(oids []string) ([]gosnmp.SnmpPDU, error) {
	pkt, err := s.conn.Get(oids)
	if err != nil {
		return nil, err
	}
	return pkt.Variables, nil
}

// Walk implements Conn. SNMPv1 agents get a GetNext walk; v2c and v3 use the
// far cheaper GetBulk variant.
func (s *Session) Walk(root string) ([]gosnmp.SnmpPDU, error) {
	if s.version == "1" {
		return s.conn.WalkAll(root)
	}
	return s.conn.BulkWalkAll(root)
}

// Close implements Conn. Only the first call touches the transport; repeat
// calls return the first call's result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.conn.Conn != nil {
			s.closeErr = s.conn.Conn.Close()
		}
	})
	return s.closeErr
}

// ─────────────────────────────────────────────────────────────────────────────
// SNMPv3 helpers
// ─────────────────────────────────────────────────────────────────────────────

func v3MsgFlags(cred models.V3Credentials) gosnmp.SnmpV3MsgFlags {
	hasAuth := cred.AuthProtocol != "" && !strings.EqualFold(cred.AuthProtocol, "noauth")
	hasPriv := cred.PrivProtocol != "" && !strings.EqualFold(cred.PrivProtocol, "nopriv")

	switch {
	case hasAuth && hasPriv:
		return gosnmp.AuthPriv
	case hasAuth:
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func mapAuthProto(s string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToLower(s) {
	case "md5":
		return gosnmp.MD5
	case "sha":
		return gosnmp.SHA
	case "sha224":
		return gosnmp.SHA224
	case "sha256":
		return gosnmp.SHA256
	case "sha384":
		return gosnmp.SHA384
	case "sha512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func mapPrivProto(s string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToLower(s) {
	case "des":
		return gosnmp.DES
	case "aes":
		return gosnmp.AES
	case "aes192":
		return gosnmp.AES192
	case "aes256":
		return gosnmp.AES256
	case "aes192c":
		return gosnmp.AES192C
	case "aes256c":
		return gosnmp.AES256C
	default:
		return gosnmp.NoPriv
	}
}

// noopWriter discards log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
