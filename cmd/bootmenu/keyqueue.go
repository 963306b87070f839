package main

import (
	"context"
	"sync"
	"time"
)

// KeyQueue is a bounded FIFO of logical key events.
//
// Push never blocks: when the queue is full the event is dropped. Pop blocks
// until an event arrives, the timeout elapses or ctx is done. Every waiter is
// woken on push by closing and replacing the wake channel.
type KeyQueue struct {
	mu       sync.Mutex
	items    []KeyEvent
	capacity int
	wake     chan struct{}
	dropped  uint64
}

// NewKeyQueue returns a queue holding at most capacity events.
func NewKeyQueue(capacity int) *KeyQueue {
	if capacity <= 0 {
		capacity = keyQueueCapacity
	}
	return &KeyQueue{
		items:    make([]KeyEvent, 0, capacity),
		capacity: capacity,
		wake:     make(chan struct{}),
	}
}

// Push appends ev and reports whether it was accepted.
func (q *KeyQueue) Push(ev KeyEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		q.dropped++
		return false
	}
	q.items = append(q.items, ev)

	close(q.wake)
	q.wake = make(chan struct{})
	return true
}

// Pop returns the oldest event. ok is false if no event arrived before the
// timeout or ctx was canceled. A non-positive timeout only checks the queue.
func (q *KeyQueue) Pop(ctx context.Context, timeout time.Duration) (ev KeyEvent, ok bool) {
	var timer *time.Timer
	var expired <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev = q.items[0]
			copy(q.items, q.items[1:])
			q.items = q.items[:len(q.items)-1]
			q.mu.Unlock()
			return ev, true
		}
		wake := q.wake
		q.mu.Unlock()

		if expired == nil {
			return KeyEvent{}, false
		}

		select {
		case <-wake:
		case <-expired:
			return KeyEvent{}, false
		case <-ctx.Done():
			return KeyEvent{}, false
		}
	}
}

// Clear discards all pending events.
func (q *KeyQueue) Clear() {
	q.mu.Lock()
	q.items = q.items[:0]
	q.mu.Unlock()
}

func (q *KeyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many events were rejected because the queue was full.
func (q *KeyQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
