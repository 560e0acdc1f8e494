package internal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsp-lqk/metapipe-redis/internal/resp"
)

type recorded struct {
	replies []resp.Value
	err     error
	calls   int
}

func recordingRequest(name string, expect int) (*Request, *recorded) {
	rec := &recorded{}
	return newRequest(name, expect, func(replies []resp.Value, err error) {
		rec.replies, rec.err = replies, err
		rec.calls++
	}), rec
}

func TestQueueDeliversInOrder(t *testing.T) {
	q := NewQueue(0)
	first, r1 := recordingRequest("GET", 1)
	second, r2 := recordingRequest("SET", 1)
	require.NoError(t, q.Enqueue(first))
	require.NoError(t, q.Enqueue(second))
	assert.Equal(t, 2, q.Len())

	require.NoError(t, q.Deliver(resp.MakeBulk([]byte("a"))))
	assert.Equal(t, 1, r1.calls)
	assert.Equal(t, 0, r2.calls)
	require.NoError(t, q.Deliver(resp.MakeStatus("OK")))

	assert.Equal(t, []resp.Value{resp.MakeBulk([]byte("a"))}, r1.replies)
	assert.Equal(t, []resp.Value{resp.MakeStatus("OK")}, r2.replies)
	assert.Equal(t, 0, q.Len())
}

func TestQueueRejectsWhenFull(t *testing.T) {
	q := NewQueue(2)
	for i := 0; i < 2; i++ {
		r, _ := recordingRequest("PING", 1)
		require.NoError(t, q.Enqueue(r))
	}
	rejected, rec := recordingRequest("PING", 1)
	err := q.Enqueue(rejected)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, "Redis waiting Queue is full", err.Error())
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 0, rec.calls)

	require.NoError(t, q.Deliver(resp.MakeStatus("PONG")))
	assert.NoError(t, q.Enqueue(rejected))
}

func TestQueueBatchEntryCollectsAllReplies(t *testing.T) {
	q := NewQueue(1)
	batch, rec := recordingRequest("MULTI,SET,EXEC", 3)
	require.NoError(t, q.Enqueue(batch))

	require.NoError(t, q.Deliver(resp.MakeStatus("OK")))
	require.NoError(t, q.Deliver(resp.MakeStatus("QUEUED")))
	assert.Equal(t, 0, rec.calls)
	// a partially answered batch still occupies its slot
	assert.Equal(t, 1, q.Len())
	other, _ := recordingRequest("PING", 1)
	assert.ErrorIs(t, q.Enqueue(other), ErrQueueFull)

	require.NoError(t, q.Deliver(resp.MakeArray(resp.MakeStatus("OK"))))
	assert.Equal(t, 1, rec.calls)
	assert.Len(t, rec.replies, 3)
	assert.Equal(t, 0, q.Len())
}

func TestQueueDesync(t *testing.T) {
	q := NewQueue(0)
	assert.ErrorIs(t, q.Deliver(resp.MakeStatus("OK")), ErrDesync)
}

func TestQueueFailResolvesEveryRequestOnce(t *testing.T) {
	q := NewQueue(0)
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		require.NoError(t, q.Enqueue(newRequest(name, 2, func(replies []resp.Value, err error) {
			order = append(order, name+":"+err.Error())
		})))
	}
	require.NoError(t, q.Deliver(resp.MakeStatus("OK")))

	cause := errors.New("boom")
	assert.Equal(t, 3, q.Fail(cause))
	assert.Equal(t, []string{"a:boom", "b:boom", "c:boom"}, order)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Fail(cause))
}

func TestQueueOldest(t *testing.T) {
	q := NewQueue(0)
	_, _, ok := q.Oldest()
	assert.False(t, ok)

	a, _ := recordingRequest("GET", 1)
	b, _ := recordingRequest("SET", 1)
	require.NoError(t, q.Enqueue(a))
	require.NoError(t, q.Enqueue(b))

	for i := 0; i < 3; i++ {
		name, _, ok := q.Oldest()
		assert.True(t, ok)
		assert.Equal(t, "GET", name)
		assert.Equal(t, 2, q.Len())
	}
	// peeking keeps the order intact
	require.NoError(t, q.Deliver(resp.MakeNull()))
	name, _, _ := q.Oldest()
	assert.Equal(t, "SET", name)
}
