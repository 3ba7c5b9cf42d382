package ping

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/Ch00k/geoping/internal/icmp"
)

// ErrTimeout is returned by Pinger.Ping when no reply arrived in time
var ErrTimeout = errors.New("ping timed out")

// Pinger is an interface for ICMP ping operations
type Pinger interface {
	// Ping sends one ICMP echo request and returns the round-trip time.
	// Returns ErrTimeout if no reply arrives within timeout; any other error
	// means the probe failed for a different reason.
	Ping(ctx context.Context, ip netip.Addr, timeout time.Duration) (time.Duration, error)

	// Close cleans up resources
	Close() error
}

// PingerFactory creates Pinger instances
type PingerFactory interface {
	// CreatePinger creates a new Pinger for the specified IP version
	CreatePinger(ipVersion icmp.IPVersion) (Pinger, error)
}

// defaultPingerFactory is the production implementation
type defaultPingerFactory struct{}

// NewDefaultPingerFactory creates a new default pinger factory
func NewDefaultPingerFactory() PingerFactory {
	return &defaultPingerFactory{}
}

// CreatePinger creates a real socket manager
func (f *defaultPingerFactory) CreatePinger(ipVersion icmp.IPVersion) (Pinger, error) {
	return createPlatformPinger(ipVersion)
}
