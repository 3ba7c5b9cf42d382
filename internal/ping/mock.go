package ping

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/Ch00k/geoping/internal/icmp"
)

// ErrMockProbeFailed is returned by scripted pingers for negative durations
var ErrMockProbeFailed = errors.New("mock probe failed")

// MockPinger is a mock implementation of Pinger for testing
type MockPinger struct {
	mu            sync.Mutex
	PingFunc      func(ctx context.Context, ip netip.Addr, timeout time.Duration) (time.Duration, error)
	CloseFunc     func() error
	PingCallCount int
	PingCalls     []Call
	Closed        bool
}

// Call records a call to Ping
type Call struct {
	IP      netip.Addr
	Timeout time.Duration
}

// NewMockPinger creates a new mock pinger with default behavior
func NewMockPinger() *MockPinger {
	return &MockPinger{
		PingFunc: func(_ context.Context, _ netip.Addr, _ time.Duration) (time.Duration, error) {
			// Default: return successful ping with 10ms latency
			return 10 * time.Millisecond, nil
		},
		CloseFunc: func() error {
			return nil
		},
		PingCalls: make([]Call, 0),
	}
}

// Ping implements the Pinger interface
func (m *MockPinger) Ping(ctx context.Context, ip netip.Addr, timeout time.Duration) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PingCallCount++
	m.PingCalls = append(m.PingCalls, Call{
		IP:      ip,
		Timeout: timeout,
	})

	if m.PingFunc != nil {
		return m.PingFunc(ctx, ip, timeout)
	}
	return 0, ErrTimeout
}

// Close implements the Pinger interface
func (m *MockPinger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// GetPingCallCount returns the number of times Ping was called
func (m *MockPinger) GetPingCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingCallCount
}

// GetPingCalls returns all recorded Ping calls
func (m *MockPinger) GetPingCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.PingCalls...)
}

// IsClosed returns whether Close was called
func (m *MockPinger) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}

// NewScriptedPinger returns a mock pinger that answers the n-th probe to an
// address with replies[addr][n]. A zero duration means a timeout and a
// negative one a failed probe; probes past the end of the script time out.
func NewScriptedPinger(replies map[string][]time.Duration) *MockPinger {
	m := NewMockPinger()
	sent := make(map[netip.Addr]int)
	m.PingFunc = func(_ context.Context, ip netip.Addr, _ time.Duration) (time.Duration, error) {
		n := sent[ip]
		sent[ip]++
		script := replies[ip.String()]
		switch {
		case n >= len(script) || script[n] == 0:
			return 0, ErrTimeout
		case script[n] < 0:
			return 0, ErrMockProbeFailed
		}
		return script[n], nil
	}
	return m
}

// MockPingerFactory is a mock implementation of PingerFactory for testing
type MockPingerFactory struct {
	mu                  sync.Mutex
	CreatePingerFunc    func(ipVersion icmp.IPVersion) (Pinger, error)
	CreatePingerCalls   []CreatePingerCall
	CreatedPingers      []*MockPinger
	CreatePingerErrFunc func() error
}

// CreatePingerCall records a call to CreatePinger
type CreatePingerCall struct {
	IPVersion icmp.IPVersion
}

// NewMockPingerFactory creates a new mock pinger factory
func NewMockPingerFactory() *MockPingerFactory {
	return &MockPingerFactory{
		CreatePingerCalls: make([]CreatePingerCall, 0),
		CreatedPingers:    make([]*MockPinger, 0),
	}
}

// CreatePinger implements the PingerFactory interface
func (f *MockPingerFactory) CreatePinger(ipVersion icmp.IPVersion) (Pinger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreatePingerCalls = append(f.CreatePingerCalls, CreatePingerCall{
		IPVersion: ipVersion,
	})

	if f.CreatePingerErrFunc != nil {
		if err := f.CreatePingerErrFunc(); err != nil {
			return nil, err
		}
	}

	if f.CreatePingerFunc != nil {
		return f.CreatePingerFunc(ipVersion)
	}

	// Default: create a new mock pinger
	mockPinger := NewMockPinger()
	f.CreatedPingers = append(f.CreatedPingers, mockPinger)
	return mockPinger, nil
}

// GetCreatePingerCalls returns all recorded CreatePinger calls
func (f *MockPingerFactory) GetCreatePingerCalls() []CreatePingerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CreatePingerCall(nil), f.CreatePingerCalls...)
}

// GetCreatedPingers returns all created mock pingers
func (f *MockPingerFactory) GetCreatedPingers() []*MockPinger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockPinger(nil), f.CreatedPingers...)
}
