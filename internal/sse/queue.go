// ABOUTME: Bounded FIFO of outbound messages for one session, evicting the oldest when full.
// ABOUTME: A one-slot notify channel wakes the session loop when something is pushed.

package sse

import "sync"

type queue struct {
	mu     sync.Mutex
	items  [][]byte
	max    int
	notify chan struct{}
	closed bool
}

func newQueue(limit int) *queue {
	if limit <= 0 {
		limit = 1
	}
	return &queue{
		max:    limit,
		notify: make(chan struct{}, 1),
	}
}

// push appends msg and reports how many older messages were evicted to make
// room. It reports false, keeping nothing, once the queue is closed.
func (q *queue) push(msg []byte) (int, bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, false
	}
	dropped := 0
	for len(q.items) >= q.max {
		q.items[0] = nil
		q.items = q.items[1:]
		dropped++
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped, true
}

// close rejects later pushes and returns whatever was still pending.
func (q *queue) close() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	out := q.items
	q.items = nil
	return out
}

// drain removes and returns every queued message in FIFO order.
func (q *queue) drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
