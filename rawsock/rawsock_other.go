//go:build !linux

package rawsock

import (
	"context"
	"time"
)

type Conn struct{}

func Open(ifname string, etherType uint16, opts ...Option) (*Conn, error) {
	return nil, ErrUnsupported
}

func (c *Conn) Send(frame []byte) error {
	return ErrUnsupported
}

func (c *Conn) Receive(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	return 0, ErrUnsupported
}

func (c *Conn) Close() error {
	return nil
}
