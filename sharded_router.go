package client

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/dgryski/go-jump"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// ShardedRouter spreads keys over several connections with jump consistent
// hashing. Adding a shard at the end moves only 1/n of the keys.
type ShardedRouter struct {
	conns []*Connection
}

// ShardedConnect connects to every address with the same options. If one
// connection fails the ones already opened are closed.
func ShardedConnect(ctx context.Context, dialer Dialer, opts Options, addrs ...string) (*ShardedRouter, error) {
	if len(addrs) == 0 {
		return nil, errors.New("no shard addresses")
	}
	conns := make([]*Connection, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range addrs {
		i, o := i, opts
		o.Address = addr
		g.Go(func() error {
			c, err := Connect(gctx, dialer, o)
			conns[i] = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		for _, c := range conns {
			if c != nil {
				_ = c.Close()
			}
		}
		return nil, err
	}
	return NewShardedRouter(conns...), nil
}

func NewShardedRouter(conns ...*Connection) *ShardedRouter {
	return &ShardedRouter{conns: conns}
}

func keyHash(s string) uint64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(s))
	return hasher.Sum64()
}

func (r *ShardedRouter) Route(key string) *Connection {
	i := jump.Hash(keyHash(key), len(r.conns))
	return r.conns[i]
}

// Send routes cmd by its first argument. Commands without a key go to the
// first shard.
func (r *ShardedRouter) Send(cmd Command) *ResponseFuture {
	key, ok := cmd.Key()
	if !ok {
		return r.conns[0].Send(cmd)
	}
	return r.Route(key).Send(cmd)
}

// DoAll runs cmd on every shard and returns the replies in shard order
func (r *ShardedRouter) DoAll(ctx context.Context, cmd Command) ([]Response, error) {
	replies := make([]Response, len(r.conns))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range r.conns {
		i, c := i, c
		g.Go(func() error {
			v, err := c.Do(gctx, cmd)
			replies[i] = v
			return err
		})
	}
	return replies, g.Wait()
}

func (r *ShardedRouter) Close() error {
	var err error
	for _, c := range r.conns {
		err = multierr.Append(err, c.Close())
	}
	return err
}
