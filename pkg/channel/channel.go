// Package channel owns the UDP socket each nemo process binds: its
// family, its bound local port, and the eight 64-bit event counters spec
// §3 assigns to it.
package channel

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"

	"github.com/higebu/netfd"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// Family distinguishes the two supported address families. The current
// design never holds both open on the same Channel (spec §3).
type Family int

const (
	FamilyV4 Family = 4
	FamilyV6 Family = 6
)

func (f Family) String() string {
	if f == FamilyV6 {
		return "inet6"
	}
	return "inet"
}

// ChannelError identifies the failing setup step, so logs can point at
// bind vs. sockopt vs. buffer-size failures directly (spec §7's Socket
// error kind).
type ChannelError struct {
	Step string
	Err  error
}

func (e *ChannelError) Error() string { return fmt.Sprintf("channel: %s: %v", e.Step, e.Err) }
func (e *ChannelError) Unwrap() error { return e.Err }

// Counters are the eight event counters spec §3 assigns to a Channel.
// They are mutated only by the owning event loop (single-writer, per
// spec §5); the atomic.Uint64 type lets a concurrent info-dump or
// Prometheus poll read a consistent snapshot without a lock.
type Counters struct {
	RecvTotal           atomic.Uint64
	RecvNetworkError    atomic.Uint64
	RecvSizeMismatch    atomic.Uint64
	RecvMagicMismatch   atomic.Uint64
	RecvVersionMismatch atomic.Uint64
	RecvTypeMismatch    atomic.Uint64
	SentTotal           atomic.Uint64
	SentNetworkError    atomic.Uint64
}

// Snapshot is a point-in-time copy of Counters, safe to pass around.
type Snapshot struct {
	RecvTotal, RecvNetworkError, RecvSizeMismatch  uint64
	RecvMagicMismatch, RecvVersionMismatch         uint64
	RecvTypeMismatch, SentTotal, SentNetworkError  uint64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		RecvTotal:           c.RecvTotal.Load(),
		RecvNetworkError:    c.RecvNetworkError.Load(),
		RecvSizeMismatch:    c.RecvSizeMismatch.Load(),
		RecvMagicMismatch:   c.RecvMagicMismatch.Load(),
		RecvVersionMismatch: c.RecvVersionMismatch.Load(),
		RecvTypeMismatch:    c.RecvTypeMismatch.Load(),
		SentTotal:           c.SentTotal.Load(),
		SentNetworkError:    c.SentNetworkError.Load(),
	}
}

// Channel owns one UDP socket, bound to the wildcard address of a single
// family, plus the control-message-capable wrapper packetio needs to
// extract the per-datagram hop limit.
type Channel struct {
	family    Family
	conn      *net.UDPConn
	pc4       *ipv4.PacketConn
	pc6       *ipv6.PacketConn
	localPort uint16

	Counters Counters
}

// Family reports which address family this channel was opened for.
func (c *Channel) Family() Family { return c.family }

// LocalPort returns the port learned at bind time (useful when the
// caller requested port 0).
func (c *Channel) LocalPort() uint16 { return c.localPort }

// Conn exposes the underlying *net.UDPConn, for plain reads and writes
// that bypass the control-message wrappers.
func (c *Channel) Conn() *net.UDPConn { return c.conn }

// Fd returns the socket's raw file descriptor, for pkg/wait to poll
// alongside the signal self-pipe.
func (c *Channel) Fd() int { return netfd.GetFdFromConn(c.conn) }

// IPv4 returns the ipv4 control-message wrapper, nil unless Family() is
// FamilyV4.
func (c *Channel) IPv4() *ipv4.PacketConn { return c.pc4 }

// IPv6 returns the ipv6 control-message wrapper, nil unless Family() is
// FamilyV6.
func (c *Channel) IPv6() *ipv6.PacketConn { return c.pc6 }

func setReuseAddr(network, address string, rc syscall.RawConn) error {
	var sockErr error
	err := rc.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func setBufferSizes(conn *net.UDPConn, rbuf, sbuf int) error {
	if rbuf > 0 {
		if err := conn.SetReadBuffer(rbuf); err != nil {
			return err
		}
	}
	if sbuf > 0 {
		if err := conn.SetWriteBuffer(sbuf); err != nil {
			return err
		}
	}
	return nil
}

// OpenV4 opens an IPv4 UDP socket bound to the wildcard address on port
// (0 is acceptable; the bound port is then queried and recorded). rbuf
// and sbuf are socket buffer sizes in bytes (0 leaves the OS default);
// ttl is the outgoing hop limit.
func OpenV4(port uint16, rbuf, sbuf int, ttl int) (*Channel, error) {
	lc := net.ListenConfig{Control: setReuseAddr}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, &ChannelError{Step: "bind", Err: err}
	}
	conn := pc.(*net.UDPConn)

	if err := setBufferSizes(conn, rbuf, sbuf); err != nil {
		conn.Close()
		return nil, &ChannelError{Step: "setsockopt buffers", Err: err}
	}

	pc4 := ipv4.NewPacketConn(conn)
	if ttl > 0 {
		if err := pc4.SetTTL(ttl); err != nil {
			conn.Close()
			return nil, &ChannelError{Step: "set ttl", Err: err}
		}
	}
	if err := pc4.SetControlMessage(ipv4.FlagTTL, true); err != nil {
		conn.Close()
		return nil, &ChannelError{Step: "enable ttl cmsg", Err: err}
	}

	localPort := uint16(conn.LocalAddr().(*net.UDPAddr).Port)
	return &Channel{family: FamilyV4, conn: conn, pc4: pc4, localPort: localPort}, nil
}

// OpenV6 opens an IPv6-only UDP socket bound to the wildcard address on
// port; hops is the outgoing hop limit.
func OpenV6(port uint16, rbuf, sbuf int, hops int) (*Channel, error) {
	lc := net.ListenConfig{Control: func(network, address string, rc syscall.RawConn) error {
		if err := setReuseAddr(network, address, rc); err != nil {
			return err
		}
		var sockErr error
		err := rc.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1)
		})
		if err != nil {
			return err
		}
		return sockErr
	}}
	pc, err := lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, &ChannelError{Step: "bind", Err: err}
	}
	conn := pc.(*net.UDPConn)

	if err := setBufferSizes(conn, rbuf, sbuf); err != nil {
		conn.Close()
		return nil, &ChannelError{Step: "setsockopt buffers", Err: err}
	}

	pc6 := ipv6.NewPacketConn(conn)
	if hops > 0 {
		if err := pc6.SetHopLimit(hops); err != nil {
			conn.Close()
			return nil, &ChannelError{Step: "set hop limit", Err: err}
		}
	}
	if err := pc6.SetControlMessage(ipv6.FlagHopLimit, true); err != nil {
		conn.Close()
		return nil, &ChannelError{Step: "enable hoplimit cmsg", Err: err}
	}

	localPort := uint16(conn.LocalAddr().(*net.UDPAddr).Port)
	return &Channel{family: FamilyV6, conn: conn, pc6: pc6, localPort: localPort}, nil
}

// Close is best-effort; the caller is expected to log failures.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// BufferSizes returns the current SO_RCVBUF/SO_SNDBUF values, queried
// directly via getsockopt through the raw fd (teacher-style
// SyscallConn.Control use).
func (c *Channel) BufferSizes() (rcv, snd int, err error) {
	rc, err := c.conn.SyscallConn()
	if err != nil {
		return 0, 0, err
	}
	cerr := rc.Control(func(fd uintptr) {
		rcv, err = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF)
		if err != nil {
			return
		}
		snd, err = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF)
	})
	if cerr != nil {
		return 0, 0, cerr
	}
	return rcv, snd, err
}
