//go:build linux

package rawsock

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollSlice bounds a single poll so that ctx is checked regularly.
const pollSlice = 100 * time.Millisecond

// Conn is an AF_PACKET socket bound to one interface and ethertype.
type Conn struct {
	fd        int
	ifindex   int
	etherType uint16
	opts      options

	mu     sync.Mutex
	closed bool
}

func htons(v uint16) uint16 {
	return binary.NativeEndian.Uint16(binary.BigEndian.AppendUint16(nil, v))
}

// Open binds a raw socket on ifname that only sees frames of etherType.
func Open(ifname string, etherType uint16, opts ...Option) (*Conn, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("interface %q: %w", ifname, err)
	}

	proto := htons(etherType)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(proto))
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	c := &Conn{fd: fd, ifindex: iface.Index, etherType: etherType, opts: o}

	sa := &unix.SockaddrLinklayer{Protocol: proto, Ifindex: iface.Index}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", ifname, err)
	}

	if o.promiscuous {
		if err := c.addMembership(unix.PACKET_MR_PROMISC, nil); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	if o.allMulticast {
		if err := c.addMembership(unix.PACKET_MR_ALLMULTI, nil); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	for _, addr := range o.multicast {
		if err := c.addMembership(unix.PACKET_MR_MULTICAST, addr); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	return c, nil
}

func (c *Conn) addMembership(typ uint16, addr net.HardwareAddr) error {
	mreq := unix.PacketMreq{
		Ifindex: int32(c.ifindex),
		Type:    typ,
		Alen:    uint16(len(addr)),
	}
	copy(mreq.Address[:], addr)
	if err := unix.SetsockoptPacketMreq(c.fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
		return fmt.Errorf("packet membership %d %v: %w", typ, addr, err)
	}
	return nil
}

// Send writes one complete frame.
func (c *Conn) Send(frame []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	if c.opts.logger != nil {
		c.opts.logger.Debug("TX: % x", frame)
	}
	n, err := unix.Write(c.fd, frame)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("send: short write %d of %d", n, len(frame))
	}
	return nil
}

// Receive reads one frame into buf. It returns ErrTimeout when nothing
// arrives within timeout, and ctx.Err() once ctx is done.
func (c *Conn) Receive(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if c.isClosed() {
			return 0, ErrClosed
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, ErrTimeout
		}
		if remaining > pollSlice {
			remaining = pollSlice
		}

		ready, err := unix.Poll(fds, int(remaining.Milliseconds())+1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poll: %w", err)
		}
		if ready == 0 {
			continue
		}

		n, _, err := unix.Recvfrom(c.fd, buf, unix.MSG_DONTWAIT)
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("receive: %w", err)
		}
		if c.opts.logger != nil {
			c.opts.logger.Debug("RX: % x", buf[:n])
		}
		return n, nil
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}
