//go:build windows

package ping

import "github.com/Ch00k/geoping/internal/icmp"

// createPlatformPinger creates a Windows-specific socket manager
func createPlatformPinger(ipVersion icmp.IPVersion) (Pinger, error) {
	return newWindowsSocketManager(ipVersion)
}

// Ensure windowsSocketManager implements Pinger
var _ Pinger = (*windowsSocketManager)(nil)
