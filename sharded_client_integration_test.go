//go:build integration

package client

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardedRedis(t *testing.T) {
	ctx, addr1 := setupRedis(t)
	_, addr2 := setupRedis(t)

	r, err := ShardedConnect(ctx, TCPDialer{}, Options{MaxWaitingHandlers: 1000}, addr1, addr2)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for i := 0; i < 200; i++ {
		v, err := r.Send(Cmd(SET, fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i))).Result()
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, "OK", v.String())
	}

	sizes, err := r.DoAll(ctx, Cmd(DBSIZE))
	if err != nil {
		t.Fatal(err)
	}
	var total int64
	for _, s := range sizes {
		n, err := s.Int()
		assert.NoError(t, err)
		assert.Greater(t, n, int64(0), "Expected every shard to own keys")
		total += n
	}
	assert.Equal(t, int64(200), total)

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("key-%d", i)
		v, err := r.Route(key).Do(ctx, Cmd(GET, key))
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, fmt.Sprintf("value-%d", i), v.String())
	}
}
