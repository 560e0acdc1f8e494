//go:build integration

package client

import (
	"context"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
)

const totalKeys = 10000

func seed(b *testing.B, c *Connection) {
	for i := 0; i < totalKeys; i++ {
		c.Send(Cmd(SET, fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i)))
	}
	if _, err := c.Do(context.Background(), Cmd(PING)); err != nil {
		b.Fatalf("Failed to set initial data in redis: %v", err)
	}
}

func BenchmarkGoRedisGet(b *testing.B) {
	ctx, addr := setupRedis(b)
	c, err := Dial(ctx, Options{Address: addr})
	if err != nil {
		b.Fatal(err)
	}
	seed(b, c)
	_ = c.Close()

	rdb := redis.NewClient(&redis.Options{Addr: addr, PoolSize: 50})
	defer rdb.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := fmt.Sprintf("key%d", i%totalKeys)
			if err := rdb.Get(ctx, key).Err(); err != nil {
				b.Fatalf("Failed to get key %s: %v", key, err)
			}
			i++
		}
	})
}

func BenchmarkMetapipeGet(b *testing.B) {
	ctx, addr := setupRedis(b)
	c, err := Dial(ctx, Options{Address: addr})
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()
	seed(b, c)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := fmt.Sprintf("key%d", i%totalKeys)
			if _, err := c.Do(ctx, Cmd(GET, key)); err != nil {
				b.Fatalf("Failed to get key %s: %v", key, err)
			}
			i++
		}
	})
}
