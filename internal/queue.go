package internal

import (
	"time"

	"github.com/edwingeng/deque/v2"

	"github.com/jsp-lqk/metapipe-redis/internal/resp"
)

// Queue holds requests in send order and hands every decoded reply to the
// oldest unanswered one. It is not safe for concurrent use; Conn guards it
// with its mutex.
type Queue struct {
	max int
	// head is the oldest request once it has received part of its replies
	head    *Request
	waiting *deque.Deque[*Request]
}

func NewQueue(max int) *Queue {
	return &Queue{max: max, waiting: deque.NewDeque[*Request]()}
}

// Len returns the number of requests waiting for a reply
func (q *Queue) Len() int {
	n := q.waiting.Len()
	if q.head != nil {
		n++
	}
	return n
}

// Oldest describes the request that has been waiting the longest
func (q *Queue) Oldest() (name string, age time.Duration, ok bool) {
	r := q.head
	if r == nil {
		if r, ok = q.waiting.Back(); !ok {
			return "", 0, false
		}
	}
	return r.name, time.Since(r.enqueued), true
}

// Enqueue appends r, or leaves the queue untouched and returns ErrQueueFull
// when max requests are already waiting
func (q *Queue) Enqueue(r *Request) error {
	if q.max > 0 && q.Len() >= q.max {
		return ErrQueueFull
	}
	r.enqueued = time.Now()
	r.replies = make([]resp.Value, 0, r.expect)
	q.waiting.PushFront(r)
	return nil
}

// Deliver correlates v with the oldest request and resolves it once all of
// its replies arrived. A reply with nothing waiting returns ErrDesync.
func (q *Queue) Deliver(v resp.Value) error {
	if q.head == nil {
		if q.waiting.Len() == 0 {
			return ErrDesync
		}
		q.head = q.waiting.PopBack()
	}
	r := q.head
	r.replies = append(r.replies, v)
	if len(r.replies) < r.expect {
		return nil
	}
	q.head = nil
	r.sink(r.replies, nil)
	return nil
}

// Fail resolves every waiting request with err, oldest first, and empties
// the queue. It returns the number of failed requests.
func (q *Queue) Fail(err error) int {
	n := 0
	if q.head != nil {
		q.head.sink(nil, err)
		q.head = nil
		n++
	}
	for q.waiting.Len() > 0 {
		q.waiting.PopBack().sink(nil, err)
		n++
	}
	return n
}
