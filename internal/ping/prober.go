package ping

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/Ch00k/geoping/internal/icmp"
	"github.com/Ch00k/geoping/internal/logging"
	"github.com/Ch00k/geoping/internal/metrics"
)

// Probe defaults
const (
	DefaultProbeCount = 10
	DefaultTimeout    = 500 * time.Millisecond
)

// ProbeOptions configures how a single address is probed
type ProbeOptions struct {
	// Count is the maximum number of echo requests per address
	Count int
	// Timeout bounds each echo request and is also the RTT ceiling
	Timeout time.Duration
}

func (o ProbeOptions) withDefaults() ProbeOptions {
	if o.Count <= 0 {
		o.Count = DefaultProbeCount
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Prober reduces a series of echo probes to one representative RTT
type Prober struct {
	opts     ProbeOptions
	pingers  map[icmp.IPVersion]Pinger
	logger   *zap.SugaredLogger
	recorder *metrics.Recorder
}

// NewProber creates a prober sending probes through the pinger of the
// address's IP version. Addresses of a version without a pinger are skipped.
func NewProber(
	pingers map[icmp.IPVersion]Pinger,
	opts ProbeOptions,
	logger *zap.SugaredLogger,
	recorder *metrics.Recorder,
) *Prober {
	return &Prober{
		opts:     opts.withDefaults(),
		pingers:  pingers,
		logger:   logging.OrNop(logger),
		recorder: recorder,
	}
}

// ParseAddress accepts plain IPv4 and IPv6 literals only
func ParseAddress(addr string) (netip.Addr, bool) {
	ip, err := netip.ParseAddr(addr)
	if err != nil || ip.Zone() != "" {
		return netip.Addr{}, false
	}
	return ip, true
}

// Probe sends up to Count sequential probes to addr and returns the minimum
// RTT in milliseconds. The first timeout ends probing of the address; other
// probe failures are skipped. The result is valid only when at least one
// reply arrived and the minimum is below the timeout.
func (p *Prober) Probe(ctx context.Context, addr string) (float64, bool) {
	ip, ok := ParseAddress(addr)
	if !ok {
		p.logger.Debugw("Skipping invalid address", "address", addr)
		p.recorder.ObserveEndpoint(metrics.EndpointInvalid, 0)
		return 0, false
	}

	pinger, ok := p.pingers[icmp.VersionOf(ip)]
	if !ok {
		p.logger.Debugw("No pinger for address family", "address", addr, "version", icmp.VersionOf(ip))
		p.recorder.ObserveEndpoint(metrics.EndpointInvalid, 0)
		return 0, false
	}

	var minRTT float64
	var replied bool
	for i := 0; i < p.opts.Count; i++ {
		if ctx.Err() != nil {
			break
		}

		d, err := pinger.Ping(ctx, ip, p.opts.Timeout)
		if errors.Is(err, ErrTimeout) {
			p.recorder.ObserveProbe(metrics.ProbeTimeout)
			break
		}
		if err != nil {
			p.recorder.ObserveProbe(metrics.ProbeError)
			continue
		}
		p.recorder.ObserveProbe(metrics.ProbeReply)

		rtt := Milliseconds(d)
		if !replied || rtt < minRTT {
			minRTT = rtt
			replied = true
		}
	}

	if !replied || minRTT >= Milliseconds(p.opts.Timeout) {
		p.recorder.ObserveEndpoint(metrics.EndpointUnreachable, 0)
		return 0, false
	}

	p.recorder.ObserveEndpoint(metrics.EndpointMeasured, minRTT)
	return minRTT, true
}

// Milliseconds converts d to fractional milliseconds
func Milliseconds(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
