package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jsp-lqk/metapipe-redis/internal/resp"
)

// State is the lifecycle stage of a Conn
type State int32

const (
	Connecting State = iota
	Ready
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Closing:
		return "closing"
	default:
		return "closed"
	}
}

// Conn multiplexes concurrent requests onto one transport. Requests are
// written in the order they were queued and replies are matched to them in
// the same order.
type Conn struct {
	ConnectionTarget
	transport Transport
	log       *zap.Logger

	mu          sync.Mutex
	state       State
	queue       *Queue
	outbox      []byte
	onException func(error)
	onEnd       func()

	wake      chan struct{}
	stopped   chan struct{}
	drained   chan struct{}
	drainOnce sync.Once
	done      sync.WaitGroup
}

// Open dials address and starts the read and write loops. The returned Conn
// is Connecting until Handshake succeeds.
func Open(ctx context.Context, dialer Dialer, target ConnectionTarget) (*Conn, error) {
	target = target.withDefaults()
	transport, err := dialer.Dial(ctx, target.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target.Address, err)
	}
	return NewConn(transport, target), nil
}

// NewConn starts a Conn over an already established transport
func NewConn(transport Transport, target ConnectionTarget) *Conn {
	target = target.withDefaults()
	c := &Conn{
		ConnectionTarget: target,
		transport:        transport,
		log:              target.Logger.With(zap.String("addr", target.Address)),
		state:            Connecting,
		queue:            NewQueue(target.MaxWaiting),
		wake:             make(chan struct{}, 1),
		stopped:          make(chan struct{}),
		drained:          make(chan struct{}),
	}
	c.done.Add(2)
	go c.writeLoop()
	go c.readLoop()
	c.log.Debug("connection opened")
	return c
}

// Handshake sends cmds as one batch and fails on the first error reply.
// On failure the connection is closed without notifying handlers.
func (c *Conn) Handshake(ctx context.Context, cmds []resp.Command) error {
	if len(cmds) > 0 {
		replies, err := c.Batch(cmds).Wait(ctx)
		if err == nil {
			for i, r := range replies {
				if rerr := r.Err(); rerr != nil {
					err = fmt.Errorf("%s: %w", cmds[i].Name(), rerr)
					break
				}
			}
		}
		if err != nil {
			_ = c.teardown(err, false)
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connecting {
		return ErrClosed
	}
	c.state = Ready
	if c.HeartbeatInterval > 0 {
		c.done.Add(1)
		go c.heartbeat()
	}
	return nil
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Waiting returns the number of requests waiting for a reply
func (c *Conn) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// SetExceptionHandler replaces the handler of connection level errors. It is
// called at most once, when the connection fails.
func (c *Conn) SetExceptionHandler(h func(error)) {
	c.mu.Lock()
	c.onException = h
	c.mu.Unlock()
}

// SetEndHandler replaces the handler called once the connection is closed
func (c *Conn) SetEndHandler(h func()) {
	c.mu.Lock()
	c.onEnd = h
	c.mu.Unlock()
}

// Send queues cmd and returns a future resolved with its reply
func (c *Conn) Send(cmd resp.Command) *Future[resp.Value] {
	f := NewFuture[resp.Value]()
	r := newRequest(cmd.Name(), 1, func(replies []resp.Value, err error) {
		if err != nil {
			f.resolve(resp.Value{}, err)
			return
		}
		f.resolve(replies[0], nil)
	})
	if err := c.submit(r, 1, func(b []byte) []byte {
		return resp.AppendCommand(b, cmd)
	}); err != nil {
		f.resolve(resp.Value{}, err)
	}
	return f
}

// Batch writes cmds back to back as a single unit and returns a future
// resolved with one reply per command
func (c *Conn) Batch(cmds []resp.Command) *Future[[]resp.Value] {
	f := NewFuture[[]resp.Value]()
	if len(cmds) == 0 {
		f.resolve([]resp.Value{}, nil)
		return f
	}
	names := make([]string, len(cmds))
	for i, cmd := range cmds {
		names[i] = cmd.Name()
	}
	r := newRequest(strings.Join(names, ","), len(cmds), func(replies []resp.Value, err error) {
		f.resolve(replies, err)
	})
	if err := c.submit(r, len(cmds), func(b []byte) []byte {
		for _, cmd := range cmds {
			b = resp.AppendCommand(b, cmd)
		}
		return b
	}); err != nil {
		f.resolve(nil, err)
	}
	return f
}

// submit queues r and its encoded bytes in one step, so the write order
// always matches the queue order
func (c *Conn) submit(r *Request, commands int, encode func([]byte) []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connecting && c.state != Ready {
		return ErrClosed
	}
	if err := c.queue.Enqueue(r); err != nil {
		c.Observer.Rejected()
		return err
	}
	c.outbox = encode(c.outbox)
	c.Observer.Sent(commands)
	c.Observer.Waiting(1)
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) writeLoop() {
	defer c.done.Done()
	var buf []byte
	for {
		select {
		case <-c.wake:
		case <-c.stopped:
			return
		}
		c.mu.Lock()
		buf, c.outbox = c.outbox, buf[:0]
		c.mu.Unlock()
		if len(buf) == 0 {
			continue
		}
		if _, err := c.transport.Write(buf); err != nil {
			c.fail(fmt.Errorf("write to %s: %w", c.Address, err))
			return
		}
	}
}

func (c *Conn) readLoop() {
	defer c.done.Done()
	buf := make([]byte, c.ReadBufferSize)
	decoder := resp.NewDecoder(c.MaxBulkLength)
	for {
		n, err := c.transport.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
			if !c.dispatch(decoder) {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			c.fail(fmt.Errorf("read from %s: %w", c.Address, err))
			return
		}
	}
}

// dispatch hands every complete reply to the queue, it returns false once
// the connection failed
func (c *Conn) dispatch(decoder *resp.Decoder) bool {
	for {
		v, err := decoder.Next()
		if errors.Is(err, resp.ErrIncomplete) {
			return true
		}
		if err != nil {
			c.fail(err)
			return false
		}
		c.mu.Lock()
		before := c.queue.Len()
		err = c.queue.Deliver(v)
		waiting := c.queue.Len()
		if waiting != before {
			c.Observer.Waiting(waiting - before)
		}
		draining := c.state == Closing && waiting == 0
		c.mu.Unlock()
		if err != nil {
			c.fail(fmt.Errorf("%w: %s", err, v))
			return false
		}
		if draining {
			c.drainOnce.Do(func() { close(c.drained) })
		}
	}
}

func (c *Conn) heartbeat() {
	defer c.done.Done()
	ticker := time.NewTicker(c.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-c.stopped:
			return
		}
		f := c.Send(resp.NewCommand("PING"))
		select {
		case <-f.Done():
			if _, err := f.Result(); err != nil {
				c.log.Debug("heartbeat failed", zap.Error(err))
			}
		case <-c.stopped:
			return
		}
	}
}

// Close stops accepting requests, waits up to CloseTimeout for the waiting
// ones to be answered, closes the transport and waits for the background
// goroutines. Requests still waiting fail with ErrClosed. Calling Close on a
// connection that is already closing or closed returns at once, so handlers
// may call it.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == Closing || c.state == Closed {
		c.mu.Unlock()
		return nil
	}
	c.state = Closing
	waiting := c.queue.Len()
	c.mu.Unlock()

	var err error
	if waiting > 0 {
		timer := time.NewTimer(c.CloseTimeout)
		select {
		case <-c.drained:
		case <-c.stopped:
		case <-timer.C:
			c.mu.Lock()
			name, age, ok := c.queue.Oldest()
			c.mu.Unlock()
			if ok {
				err = fmt.Errorf("close %s: %s still waiting after %s", c.Address, name, age.Round(time.Millisecond))
			}
		}
		timer.Stop()
	}
	err = multierr.Append(err, c.teardown(ErrClosed, false))
	c.done.Wait()
	return err
}

// fail tears the connection down after a transport or protocol error
func (c *Conn) fail(err error) {
	_ = c.teardown(err, true)
}

// teardown moves the connection to Closed exactly once: every waiting
// request is resolved with cause, the transport is closed and handlers are
// notified
func (c *Conn) teardown(cause error, fatal bool) error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return nil
	}
	c.state = Closed
	failed := c.queue.Fail(cause)
	if failed > 0 {
		c.Observer.Waiting(-failed)
	}
	c.outbox = nil
	onException, onEnd := c.onException, c.onEnd
	c.mu.Unlock()

	close(c.stopped)
	err := c.transport.Close()
	if fatal {
		c.Observer.Failed()
		c.log.Warn("connection failed", zap.Error(cause), zap.Int("failed_requests", failed))
		c.notify(func() {
			if onException != nil {
				onException(cause)
			}
		})
	} else {
		c.log.Debug("connection closed", zap.Int("failed_requests", failed))
	}
	c.notify(func() {
		if onEnd != nil {
			onEnd()
		}
	})
	return err
}

// notify runs a user handler without letting it crash the calling loop
func (c *Conn) notify(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			c.log.Error("connection handler panicked", zap.Any("panic", p))
		}
	}()
	fn()
}

// Wait blocks until the background goroutines exited
func (c *Conn) Wait() {
	c.done.Wait()
}
