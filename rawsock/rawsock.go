// Package rawsock sends and receives whole Ethernet frames of one ethertype
// on a named interface.
package rawsock

import (
	"errors"
	"net"

	"github.com/slonegd/goose61850/logger"
)

var (
	ErrTimeout     = errors.New("receive timeout")
	ErrUnsupported = errors.New("raw sockets are not supported on this platform")
	ErrClosed      = errors.New("socket closed")
)

// MaxFrameSize is an untagged Ethernet frame without FCS.
const MaxFrameSize = 1514

type options struct {
	logger       logger.Logger
	promiscuous  bool
	allMulticast bool
	multicast    []net.HardwareAddr
}

// Option configures Open.
type Option func(*options)

// WithLogger traces every frame as a hex dump.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPromiscuous puts the interface in promiscuous mode while the socket is open.
func WithPromiscuous() Option {
	return func(o *options) {
		o.promiscuous = true
	}
}

// WithAllMulticast receives every multicast frame.
func WithAllMulticast() Option {
	return func(o *options) {
		o.allMulticast = true
	}
}

// WithMulticast joins the given multicast MAC groups.
func WithMulticast(addrs ...net.HardwareAddr) Option {
	return func(o *options) {
		o.multicast = append(o.multicast, addrs...)
	}
}
