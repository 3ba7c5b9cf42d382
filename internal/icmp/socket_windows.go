//go:build windows

package icmp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	iphlpapi = windows.NewLazyDLL("iphlpapi.dll")

	procIcmpCreateFile  = iphlpapi.NewProc("IcmpCreateFile")
	procIcmpSendEcho    = iphlpapi.NewProc("IcmpSendEcho")
	procIcmpCloseHandle = iphlpapi.NewProc("IcmpCloseHandle")
	procIcmp6CreateFile = iphlpapi.NewProc("Icmp6CreateFile")
	procIcmp6SendEcho2  = iphlpapi.NewProc("Icmp6SendEcho2")
)

const invalidHandleValue = ^uintptr(0)

// EchoPayload is sent as the data of every echo request
var EchoPayload = []byte("geoping")

// ErrRequestTimedOut is returned when no echo reply arrived in time
var ErrRequestTimedOut = errors.New("request timed out")

// Windows IP status codes
const (
	IPSuccess             = 0
	IPBufTooSmall         = 11001
	IPDestNetUnreachable  = 11002
	IPDestHostUnreachable = 11003
	IPDestProtUnreachable = 11004
	IPDestPortUnreachable = 11005
	IPNoResources         = 11006
	IPHWError             = 11008
	IPPacketTooBig        = 11009
	IPReqTimedOut         = 11010
	IPBadReq              = 11011
	IPBadRoute            = 11012
	IPTTLExpiredTransit   = 11013
	IPBadDestination      = 11018
)

// Handle represents a Windows ICMP handle
type Handle uintptr

// IPOptionInformation matches the Windows IP_OPTION_INFORMATION structure
type IPOptionInformation struct {
	TTL         uint8
	TOS         uint8
	Flags       uint8
	OptionsSize uint8
	OptionsData uintptr
}

// IcmpEchoReply matches the Windows ICMP_ECHO_REPLY structure
type IcmpEchoReply struct {
	Address       uint32
	Status        uint32
	RoundTripTime uint32
	DataSize      uint16
	Reserved      uint16
	Data          uintptr
	Options       IPOptionInformation
}

// Icmp6EchoReply matches the Windows ICMPV6_ECHO_REPLY structure
type Icmp6EchoReply struct {
	Address       IPV6AddressEx
	_padding      uint16
	Status        uint32
	RoundTripTime uint32
}

// IPV6AddressEx matches the Windows IPV6_ADDRESS_EX structure
type IPV6AddressEx struct {
	Port     uint16
	FlowInfo uint32
	Addr     [8]uint16
	ScopeID  uint32
}

// SockAddrIn6 matches the Windows SOCKADDR_IN6 structure
type SockAddrIn6 struct {
	Family   uint16
	Port     uint16
	FlowInfo uint32
	Addr     [16]byte
	ScopeID  uint32
}

const afInet6 = 23

// CreateHandle opens an ICMP handle for the IP version
func CreateHandle(ipVersion IPVersion) (Handle, error) {
	proc, name := procIcmpCreateFile, "IcmpCreateFile"
	if ipVersion.IsIPv6() {
		proc, name = procIcmp6CreateFile, "Icmp6CreateFile"
	}

	ret, _, err := proc.Call()
	if ret == invalidHandleValue {
		return 0, fmt.Errorf("%s failed: %w", name, err)
	}
	return Handle(ret), nil
}

// CloseHandle closes an ICMP handle
func CloseHandle(handle Handle) error {
	ret, _, err := procIcmpCloseHandle.Call(uintptr(handle))
	if ret == 0 {
		return fmt.Errorf("IcmpCloseHandle failed: %w", err)
	}
	return nil
}

// SendEcho sends one echo request to addr and blocks until the reply arrives
// or timeout expires. The returned RTT has millisecond resolution: the
// IcmpSendEcho reply only carries RoundTripTime in whole milliseconds.
func SendEcho(handle Handle, addr netip.Addr, timeout time.Duration) (time.Duration, error) {
	addr = addr.Unmap()
	if addr.Is4() {
		return sendEcho4(handle, addr, timeout)
	}
	return sendEcho6(handle, addr, timeout)
}

func sendEcho4(handle Handle, addr netip.Addr, timeout time.Duration) (time.Duration, error) {
	replyBuf := make([]byte, unsafe.Sizeof(IcmpEchoReply{})+uintptr(len(EchoPayload))+8)

	ret, _, err := procIcmpSendEcho.Call(
		uintptr(handle),
		uintptr(IPv4ToUint32(addr)),
		uintptr(unsafe.Pointer(&EchoPayload[0])),
		uintptr(len(EchoPayload)),
		0, // IP options (NULL)
		uintptr(unsafe.Pointer(&replyBuf[0])),
		uintptr(len(replyBuf)),
		uintptr(timeout.Milliseconds()),
	)

	reply := (*IcmpEchoReply)(unsafe.Pointer(&replyBuf[0]))
	if ret == 0 {
		return 0, statusError("IcmpSendEcho", reply.Status, err)
	}
	if reply.Status != IPSuccess {
		return 0, statusError("IcmpSendEcho", reply.Status, nil)
	}
	return time.Duration(reply.RoundTripTime) * time.Millisecond, nil
}

func sendEcho6(handle Handle, addr netip.Addr, timeout time.Duration) (time.Duration, error) {
	// Leave the source as :: to let Windows select it
	var src SockAddrIn6
	src.Family = afInet6

	var dst SockAddrIn6
	dst.Family = afInet6
	dst.Addr = addr.As16()

	replyBuf := make([]byte, unsafe.Sizeof(Icmp6EchoReply{})+uintptr(len(EchoPayload))+8)

	ret, _, err := procIcmp6SendEcho2.Call(
		uintptr(handle),
		0, // Event (NULL for synchronous)
		0, // ApcRoutine (NULL)
		0, // ApcContext (NULL)
		uintptr(unsafe.Pointer(&src)),
		uintptr(unsafe.Pointer(&dst)),
		uintptr(unsafe.Pointer(&EchoPayload[0])),
		uintptr(len(EchoPayload)),
		0, // IP options (NULL)
		uintptr(unsafe.Pointer(&replyBuf[0])),
		uintptr(len(replyBuf)),
		uintptr(timeout.Milliseconds()),
	)

	reply := (*Icmp6EchoReply)(unsafe.Pointer(&replyBuf[0]))
	if ret == 0 {
		return 0, statusError("Icmp6SendEcho2", reply.Status, err)
	}
	if reply.Status != IPSuccess {
		return 0, statusError("Icmp6SendEcho2", reply.Status, nil)
	}
	return time.Duration(reply.RoundTripTime) * time.Millisecond, nil
}

// statusError maps a reply status onto an error. A timed-out request yields
// ErrRequestTimedOut.
func statusError(call string, status uint32, callErr error) error {
	if status == IPReqTimedOut {
		return ErrRequestTimedOut
	}
	var errno syscall.Errno
	if errors.As(callErr, &errno) && uint32(errno) == IPReqTimedOut {
		return ErrRequestTimedOut
	}
	if status != IPSuccess {
		return fmt.Errorf("%s failed: %s", call, StatusText(status))
	}
	return fmt.Errorf("%s failed: %w", call, callErr)
}

// IPv4ToUint32 converts an IPv4 address to the in-memory layout Windows expects
func IPv4ToUint32(addr netip.Addr) uint32 {
	b := addr.Unmap().As4()
	return binary.LittleEndian.Uint32(b[:])
}

// StatusText converts an IP status code to a human-readable string
func StatusText(status uint32) string {
	switch status {
	case IPSuccess:
		return "Success"
	case IPBufTooSmall:
		return "Reply buffer too small"
	case IPDestNetUnreachable:
		return "Destination network unreachable"
	case IPDestHostUnreachable:
		return "Destination host unreachable"
	case IPDestProtUnreachable:
		return "Destination protocol unreachable"
	case IPDestPortUnreachable:
		return "Destination port unreachable"
	case IPNoResources:
		return "Insufficient IP resources"
	case IPHWError:
		return "Hardware error"
	case IPPacketTooBig:
		return "Packet too big"
	case IPReqTimedOut:
		return "Request timed out"
	case IPBadReq:
		return "Bad request"
	case IPBadRoute:
		return "Bad route"
	case IPTTLExpiredTransit:
		return "TTL expired in transit"
	case IPBadDestination:
		return "Bad destination"
	default:
		return fmt.Sprintf("Unknown status: %d", status)
	}
}
