// Package probe answers one question ahead of each collection cycle: is the
// device reachable at all? Separating reachability from the protocol session
// lets the collector distinguish a dead host from a live host with broken
// credentials, which classify differently and alert differently.
package probe

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Prober checks basic network reachability of an address and reports the
// round-trip latency on success.
type Prober interface {
	Probe(ctx context.Context, address string) (time.Duration, error)
}

// ICMPProber is the production Prober, sending a single echo request per
// probe. Privileged mode uses raw ICMP sockets; unprivileged mode falls back
// to UDP datagram sockets, which most Linux hosts allow without CAP_NET_RAW
// once net.ipv4.ping_group_range is set.
type ICMPProber struct {
	timeout    time.Duration
	privileged bool
}

// NewICMPProber constructs an ICMPProber. A non-positive timeout defaults to
// two seconds.
func NewICMPProber(timeout time.Duration, privileged bool) *ICMPProber {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ICMPProber{timeout: timeout, privileged: privileged}
}

// Probe implements Prober.
func (p *ICMPProber) Probe(ctx context.Context, address string) (time.Duration, error) {
	pinger, err := probing.NewPinger(address)
	if err != nil {
		return 0, fmt.Errorf("probe: resolve %s: %w", address, err)
	}
	pinger.Count = 1
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(p.privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, fmt.Errorf("probe: %s: %w", address, err)
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("probe: %s: no echo reply within %s", address, p.timeout)
	}
	return stats.AvgRtt, nil
}

// NopProber reports every address as reachable with zero latency. Used when
// reachability probing is disabled and by tests that exercise the protocol
// paths only.
type NopProber struct{}

// Probe implements Prober.
func (NopProber) Probe(context.Context, string) (time.Duration, error) { return 0, nil }
