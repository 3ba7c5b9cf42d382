//go:build windows

package ping

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/Ch00k/geoping/internal/icmp"
)

// windowsSocketManager sends echo requests through a Windows ICMP handle
type windowsSocketManager struct {
	handle    icmp.Handle
	ipVersion icmp.IPVersion
	closed    bool
	mu        sync.Mutex
	// inFlight tracks echo calls still running after their caller gave up
	inFlight sync.WaitGroup
}

// newWindowsSocketManager creates a new Windows socket manager for the given IP version
func newWindowsSocketManager(ipVersion icmp.IPVersion) (*windowsSocketManager, error) {
	handle, err := icmp.CreateHandle(ipVersion)
	if err != nil {
		return nil, err
	}
	return &windowsSocketManager{
		handle:    handle,
		ipVersion: ipVersion,
	}, nil
}

type echoResult struct {
	rtt time.Duration
	err error
}

// Ping sends an ICMP echo request and waits for a response
func (m *windowsSocketManager) Ping(ctx context.Context, ip netip.Addr, timeout time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, errors.New("ICMP handle is closed")
	}
	m.inFlight.Add(1)
	m.mu.Unlock()

	resultChan := make(chan echoResult, 1)

	// The syscall blocks until a reply or its own timeout and cannot be cancelled
	go func() {
		defer m.inFlight.Done()
		rtt, err := icmp.SendEcho(m.handle, ip, timeout)
		resultChan <- echoResult{rtt: rtt, err: err}
	}()

	select {
	case r := <-resultChan:
		if errors.Is(r.err, icmp.ErrRequestTimedOut) {
			return 0, ErrTimeout
		}
		return r.rtt, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close waits for running echo calls and closes the ICMP handle
func (m *windowsSocketManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.inFlight.Wait()
	return icmp.CloseHandle(m.handle)
}
