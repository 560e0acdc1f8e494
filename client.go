package client

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/jsp-lqk/metapipe-redis/internal"
	"github.com/jsp-lqk/metapipe-redis/internal/resp"
)

type (
	// Response is a decoded reply: status, integer, bulk string, null, error or array
	Response = resp.Value
	// ResponseFuture resolves with the reply of a single command
	ResponseFuture = internal.Future[resp.Value]
	// BatchFuture resolves with one reply per command of a batch
	BatchFuture = internal.Future[[]resp.Value]
	// ReplyError is an error reply of the server for one command
	ReplyError = resp.ReplyError
	// Transport is the byte stream a connection runs over, a net.Conn satisfies it
	Transport = internal.Transport
	// Dialer opens transports
	Dialer = internal.Dialer
	// DialerFunc adapts a function to Dialer
	DialerFunc = internal.DialerFunc
	// TCPDialer dials plain tcp connections
	TCPDialer = internal.TCPDialer
	// State is the lifecycle stage of a connection
	State = internal.State
)

const (
	Connecting = internal.Connecting
	Ready      = internal.Ready
	Closing    = internal.Closing
	Closed     = internal.Closed
)

var (
	// ErrQueueFull fails a request sent while MaxWaitingHandlers requests are waiting
	ErrQueueFull = internal.ErrQueueFull
	// ErrClosed fails requests on a closed connection
	ErrClosed = internal.ErrClosed
	// ErrDesync is reported when the server sent a reply nobody asked for
	ErrDesync = internal.ErrDesync
	// ErrProtocol is reported when the server sent malformed bytes
	ErrProtocol = resp.ErrProtocol
)

// Connection is one multiplexed connection to a redis server. It is safe for
// concurrent use; requests from all callers share the connection and are
// answered in the order they were sent.
type Connection struct {
	conn *internal.Conn
	opts Options
	log  *zap.Logger
}

// Dial connects to opts.Address over tcp
func Dial(ctx context.Context, opts Options) (*Connection, error) {
	timeout := opts.withDefaults().DialTimeout
	return Connect(ctx, TCPDialer{Timeout: timeout, KeepAlive: 30 * time.Second}, opts)
}

// Connect opens a transport with dialer, retrying failed dials up to
// opts.ConnectRetries times, then authenticates and selects the database.
// The returned connection is Ready.
func Connect(ctx context.Context, dialer Dialer, opts Options) (*Connection, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	log := opts.Logger.With(zap.String("addr", opts.Address))

	var conn *internal.Conn
	dial := func() error {
		c, err := internal.Open(ctx, dialer, opts.target())
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(opts.ConnectRetries)), ctx)
	err := backoff.RetryNotify(dial, policy, func(err error, next time.Duration) {
		log.Debug("dial failed, retrying", zap.Error(err), zap.Duration("backoff", next))
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Handshake(ctx, opts.handshake()); err != nil {
		return nil, fmt.Errorf("handshake with %s: %w", opts.Address, err)
	}
	log.Debug("connected", zap.Int("db", opts.DB), zap.Int("max_waiting", opts.MaxWaitingHandlers))
	return &Connection{conn: conn, opts: opts, log: log}, nil
}

// Addr returns the address the connection was opened to
func (c *Connection) Addr() string {
	return c.opts.Address
}

func (c *Connection) State() State {
	return c.conn.State()
}

// Waiting returns the number of requests waiting for a reply
func (c *Connection) Waiting() int {
	return c.conn.Waiting()
}

// Send queues cmd without waiting for the network. The future fails right
// away with ErrQueueFull when the waiting queue is full, and with the
// connection error if the connection fails before the reply arrives. An
// error reply of the server is a successful Response of kind error.
func (c *Connection) Send(cmd Command) *ResponseFuture {
	return c.conn.Send(cmd)
}

// Batch writes cmds as one uninterrupted burst, which is what MULTI/EXEC
// needs. The future resolves with exactly len(cmds) replies in order, or
// fails as a whole when the connection fails before all of them arrived.
func (c *Connection) Batch(cmds []Command) *BatchFuture {
	return c.conn.Batch(cmds)
}

// Do sends cmd and waits for its reply. Error replies are returned both as
// the Response and as a *ReplyError.
func (c *Connection) Do(ctx context.Context, cmd Command) (Response, error) {
	v, err := c.Send(cmd).Wait(ctx)
	if err != nil {
		return v, err
	}
	return v, v.Err()
}

// DoBatch sends cmds as a batch and waits for the replies. Error replies are
// left in place, only connection failures are returned as error.
func (c *Connection) DoBatch(ctx context.Context, cmds ...Command) ([]Response, error) {
	return c.Batch(cmds).Wait(ctx)
}

// ExceptionHandler replaces the handler of connection level failures:
// transport errors, malformed replies and replies nobody asked for. It is
// invoked at most once and never for errors scoped to one request.
func (c *Connection) ExceptionHandler(h func(error)) *Connection {
	c.conn.SetExceptionHandler(h)
	return c
}

// EndHandler replaces the handler invoked once the connection is closed,
// whatever the reason
func (c *Connection) EndHandler(h func()) *Connection {
	c.conn.SetEndHandler(h)
	return c
}

// Close rejects new requests, lets waiting ones finish for up to
// Options.CloseTimeout and closes the transport. It is safe to call from the
// exception and end handlers.
func (c *Connection) Close() error {
	return c.conn.Close()
}
