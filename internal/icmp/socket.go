// Package icmp provides utilities for creating and managing unprivileged ICMP datagram sockets.
package icmp

import (
	"net/netip"

	"go.uber.org/zap"
	"golang.org/x/net/icmp"

	"github.com/Ch00k/geoping/internal/logging"
)

// Network type constants for unprivileged ICMP datagram sockets
const (
	NetworkIPv4 = "udp4"
	NetworkIPv6 = "udp6"
)

// Address constants for listening on all interfaces
const (
	addrIPv4All = "0.0.0.0"
	addrIPv6All = "::"
)

// IPVersion represents the IP protocol version (IPv4 or IPv6).
type IPVersion int

// IP version constants
const (
	IPv4 IPVersion = iota // IPv4 protocol
	IPv6                  // IPv6 protocol
)

func (v IPVersion) String() string {
	switch v {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return "ipv4"
	}
}

// IsIPv6 returns true if the IP version is IPv6.
func (v IPVersion) IsIPv6() bool {
	return v == IPv6
}

// VersionOf returns the IP version used to reach addr. IPv4-mapped IPv6
// addresses are reached over IPv4.
func VersionOf(addr netip.Addr) IPVersion {
	if addr.Unmap().Is4() {
		return IPv4
	}
	return IPv6
}

// Listen creates an unprivileged ICMP datagram socket
// Returns the connection, network type, and error
func Listen(ipVersion IPVersion, logger *zap.SugaredLogger) (*icmp.PacketConn, string, error) {
	logger = logging.OrNop(logger)

	var network, addr string
	if ipVersion.IsIPv6() {
		network = NetworkIPv6
		addr = addrIPv6All
	} else {
		network = NetworkIPv4
		addr = addrIPv4All
	}

	logger.Debugw("Creating ICMP datagram socket", "network", network, "addr", addr)

	c, err := icmp.ListenPacket(network, addr)
	if err != nil {
		logger.Errorw("Failed to create ICMP socket", "network", network, "error", err)
		return nil, "", err
	}

	logger.Debugw("Created ICMP datagram socket", "network", network)
	return c, network, nil
}
