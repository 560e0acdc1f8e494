package internal

import (
	"context"
	"io"
	"net"
	"time"
)

// Transport is the duplex byte stream a Conn runs over. A net.Conn satisfies it.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Dialer opens transports, it is the transport factory of Connect
type Dialer interface {
	Dial(ctx context.Context, address string) (Transport, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context, address string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, address string) (Transport, error) {
	return f(ctx, address)
}

// TCPDialer dials plain tcp connections
type TCPDialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration
}

func (d TCPDialer) Dial(ctx context.Context, address string) (Transport, error) {
	nd := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
