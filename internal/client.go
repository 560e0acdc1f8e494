package internal

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jsp-lqk/metapipe-redis/internal/resp"
)

var (
	// ErrQueueFull rejects a request because MaxWaiting requests are already
	// waiting for a reply. Callers match on its exact message.
	ErrQueueFull = errors.New("Redis waiting Queue is full")

	// ErrClosed fails requests sent to, or still pending on, a closed connection
	ErrClosed = errors.New("connection closed")

	// ErrDesync reports a reply that arrived while no request was waiting
	ErrDesync = errors.New("reply received with no outstanding request")
)

// ConnectionTarget holds everything a Conn needs besides its transport
type ConnectionTarget struct {
	Address string
	// MaxWaiting bounds the number of requests waiting for a reply, 0 means unbounded
	MaxWaiting        int
	ReadBufferSize    int
	MaxBulkLength     int64
	CloseTimeout      time.Duration
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
	Observer          Observer
}

const (
	defaultReadBufferSize = 16 * 1024
	defaultCloseTimeout   = time.Second
)

func (t ConnectionTarget) withDefaults() ConnectionTarget {
	if t.ReadBufferSize <= 0 {
		t.ReadBufferSize = defaultReadBufferSize
	}
	if t.MaxBulkLength <= 0 {
		t.MaxBulkLength = resp.DefaultMaxBulkLength
	}
	if t.CloseTimeout <= 0 {
		t.CloseTimeout = defaultCloseTimeout
	}
	if t.Logger == nil {
		t.Logger = zap.NewNop()
	}
	if t.Observer == nil {
		t.Observer = nopObserver{}
	}
	return t
}

// Request is one entry of the waiting queue. A batch is a single Request
// expecting one reply per command.
type Request struct {
	name     string
	expect   int
	replies  []resp.Value
	enqueued time.Time
	sink     func(replies []resp.Value, err error)
}

func newRequest(name string, expect int, sink func([]resp.Value, error)) *Request {
	return &Request{name: name, expect: expect, sink: sink}
}

// Observer receives connection events, it backs the metrics of the client.
// Calls are made while the connection lock is held and must not block.
type Observer interface {
	Sent(commands int)
	Rejected()
	Failed()
	// Waiting reports a change of the number of waiting requests
	Waiting(delta int)
}

type nopObserver struct{}

func (nopObserver) Sent(int)    {}
func (nopObserver) Rejected()   {}
func (nopObserver) Failed()     {}
func (nopObserver) Waiting(int) {}
