//go:build !windows

package ping

import "github.com/Ch00k/geoping/internal/icmp"

// createPlatformPinger creates a Unix-specific socket manager
func createPlatformPinger(ipVersion icmp.IPVersion) (Pinger, error) {
	return newSocketManager(ipVersion)
}

// Ensure socketManager implements Pinger
var _ Pinger = (*socketManager)(nil)
