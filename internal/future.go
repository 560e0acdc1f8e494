package internal

import (
	"context"
	"sync/atomic"
)

// Future is the single-assignment result of a request
type Future[T any] struct {
	done     chan struct{}
	resolved atomic.Bool
	val      T
	err      error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Failed returns an already resolved future holding err
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	var zero T
	f.resolve(zero, err)
	return f
}

// resolve assigns the result. Only the first call has any effect.
func (f *Future[T]) resolve(v T, err error) bool {
	if !f.resolved.CompareAndSwap(false, true) {
		return false
	}
	f.val, f.err = v, err
	close(f.done)
	return true
}

// Done is closed once the result is available
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result blocks until the future is resolved
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

// Wait blocks until the future is resolved or ctx is done. Giving up on the
// wait does not cancel the request; it is still resolved later.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete runs fn in a new goroutine once the future is resolved
func (f *Future[T]) OnComplete(fn func(T, error)) {
	go func() {
		<-f.done
		fn(f.val, f.err)
	}()
}
