package export

import (
	"context"
	"sync"
)

// Queue is a bounded FIFO of points awaiting delivery.
//
// Put blocks while the queue is full; Take blocks while it is empty. PushFront
// puts a point back at the head without blocking and may push the length one
// past capacity.
type Queue struct {
	mu      sync.Mutex
	data    []QueuedPoint
	cap     int
	changed chan struct{}
}

// NewQueue creates a queue that holds at most capacity points.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		data:    make([]QueuedPoint, 0, capacity),
		cap:     capacity,
		changed: make(chan struct{}),
	}
}

// Put appends p, waiting for space until ctx is done.
func (q *Queue) Put(ctx context.Context, p QueuedPoint) error {
	for {
		q.mu.Lock()
		if len(q.data) < q.cap {
			q.data = append(q.data, p)
			q.signalLocked()
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Take removes and returns the head, waiting for a point until ctx is done.
func (q *Queue) Take(ctx context.Context) (QueuedPoint, error) {
	for {
		q.mu.Lock()
		if len(q.data) > 0 {
			p := q.data[0]
			q.data[0] = QueuedPoint{}
			q.data = q.data[1:]
			q.signalLocked()
			q.mu.Unlock()
			return p, nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return QueuedPoint{}, ctx.Err()
		case <-wait:
		}
	}
}

// PushFront puts p back at the head of the queue.
func (q *Queue) PushFront(p QueuedPoint) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data = append(q.data, QueuedPoint{})
	copy(q.data[1:], q.data)
	q.data[0] = p
	q.signalLocked()
}

// Len returns the number of queued points.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

// Cap returns the configured capacity.
func (q *Queue) Cap() int { return q.cap }

// signalLocked wakes every waiter. Caller must hold q.mu.
func (q *Queue) signalLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
