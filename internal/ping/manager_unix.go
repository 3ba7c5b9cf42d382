//go:build !windows

package ping

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	xicmp "golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/Ch00k/geoping/internal/icmp"
)

const echoPayload = "geoping"

var errPeerMismatch = errors.New("echo reply from unexpected peer")

// pingResponse is an echo reply routed from the reader to the waiting sender
type pingResponse struct {
	peer     netip.Addr
	received time.Time
}

// socketManager manages one shared ICMP socket for an IP version
type socketManager struct {
	conn       *xicmp.PacketConn
	network    string
	protocol   int
	seqCounter atomic.Uint32
	inFlight   sync.Map // map[int]chan pingResponse
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// newSocketManager creates a new socket manager for the given IP version
func newSocketManager(ipVersion icmp.IPVersion) (*socketManager, error) {
	conn, network, err := icmp.Listen(ipVersion, nil)
	if err != nil {
		return nil, err
	}

	var protocol int
	if ipVersion.IsIPv6() {
		protocol = protocolICMPv6
	} else {
		protocol = protocolICMP
	}

	ctx, cancel := context.WithCancel(context.Background())
	mgr := &socketManager{
		conn:     conn,
		network:  network,
		protocol: protocol,
		ctx:      ctx,
		cancel:   cancel,
	}

	// Start reader goroutine
	mgr.wg.Add(1)
	go mgr.reader()

	return mgr, nil
}

// allocateSeq allocates a sequence number. The echo header carries 16 bits,
// so numbers wrap after 65535 in-flight-free allocations.
func (m *socketManager) allocateSeq() int {
	return int(uint16(m.seqCounter.Add(1)))
}

// reader continuously reads ICMP responses and routes them to waiting goroutines
func (m *socketManager) reader() {
	defer m.wg.Done()

	buffer := make([]byte, 1500)
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		// Set a read deadline to periodically check context
		_ = m.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, peer, err := m.conn.ReadFrom(buffer)
		if err != nil {
			// Check if it's a timeout error
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			// Context cancelled or other error
			if m.ctx.Err() != nil {
				return
			}
			continue
		}
		received := time.Now()

		// Parse ICMP message
		msg, err := xicmp.ParseMessage(m.protocol, buffer[:n])
		if err != nil {
			continue
		}

		// Verify it's an echo reply
		var isEchoReply bool
		if m.protocol == protocolICMPv6 {
			isEchoReply = msg.Type == ipv6.ICMPTypeEchoReply
		} else {
			isEchoReply = msg.Type == ipv4.ICMPTypeEchoReply
		}
		if !isEchoReply {
			continue
		}

		// Extract sequence number
		echo, ok := msg.Body.(*xicmp.Echo)
		if !ok {
			continue
		}

		// Extract peer IP
		var peerIP net.IP
		switch addr := peer.(type) {
		case *net.UDPAddr:
			peerIP = addr.IP
		case *net.IPAddr:
			peerIP = addr.IP
		default:
			continue
		}
		peerAddr, ok := netip.AddrFromSlice(peerIP)
		if !ok {
			continue
		}

		// Route to waiting goroutine
		if chInterface, ok := m.inFlight.LoadAndDelete(echo.Seq); ok {
			ch := chInterface.(chan pingResponse)
			select {
			case ch <- pingResponse{peer: peerAddr.Unmap(), received: received}:
			default:
				// Channel full, ignore
			}
		}
	}
}

// Ping sends an ICMP echo request and waits for the matching reply
func (m *socketManager) Ping(ctx context.Context, ip netip.Addr, timeout time.Duration) (time.Duration, error) {
	ip = ip.Unmap()

	// Allocate sequence number
	seq := m.allocateSeq()

	// Create response channel
	respChan := make(chan pingResponse, 1)
	m.inFlight.Store(seq, respChan)
	defer m.inFlight.Delete(seq)

	// Build ICMP message
	var msgType xicmp.Type = ipv4.ICMPTypeEcho
	if m.protocol == protocolICMPv6 {
		msgType = ipv6.ICMPTypeEchoRequest
	}
	msg := xicmp.Message{
		Type: msgType,
		Code: 0,
		Body: &xicmp.Echo{
			ID:   1,
			Seq:  seq,
			Data: []byte(echoPayload),
		},
	}

	msgBytes, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal echo request: %w", err)
	}

	// Unprivileged ICMP sockets take UDP addresses
	dst := net.UDPAddrFromAddrPort(netip.AddrPortFrom(ip, 0))

	// Send ping
	start := time.Now()
	if _, err := m.conn.WriteTo(msgBytes, dst); err != nil {
		return 0, fmt.Errorf("failed to send echo request to %s: %w", ip, err)
	}

	// Wait for response with timeout or context cancellation
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respChan:
		// Verify response came from the correct IP
		if resp.peer != ip {
			return 0, errPeerMismatch
		}
		return resp.received.Sub(start), nil
	case <-timer.C:
		return 0, ErrTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close shuts down the socket manager and waits for reader goroutine to exit
func (m *socketManager) Close() error {
	m.cancel()
	// Close the connection first to unblock the reader immediately
	err := m.conn.Close()
	m.wg.Wait()
	return err
}
