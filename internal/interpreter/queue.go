package interpreter

import (
	"sync"
	"sync/atomic"
	"time"
)

// Queue is an unbounded FIFO of events with many producers and a single
// consumer. The two stream readers push; the driver pops.
//
// Unlike a buffered channel a push never blocks, so a slow consumer can
// never stall the subprocess writing to its pipes.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	head   int
	notify chan struct{} // buffered(1), signalled on every push

	pushed atomic.Int64
	popped atomic.Int64
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends an event. Safe for concurrent use.
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.pushed.Add(1)

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the oldest event without blocking.
func (q *Queue) TryPop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return Event{}, false
	}
	ev := q.items[q.head]
	q.items[q.head] = Event{}
	q.head++

	// Reclaim the backing array once it has been fully consumed.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	q.popped.Add(1)
	return ev, true
}

// PopWait waits up to timeout for an event. Only one goroutine may wait.
func (q *Queue) PopWait(timeout time.Duration) (Event, bool) {
	if ev, ok := q.TryPop(); ok {
		return ev, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.notify:
			if ev, ok := q.TryPop(); ok {
				return ev, true
			}
		case <-timer.C:
			return q.TryPop()
		}
	}
}

// Discard drops every queued event and returns how many were dropped.
func (q *Queue) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items) - q.head
	q.items = q.items[:0]
	q.head = 0
	q.popped.Add(int64(n))
	return n
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Stats returns the total number of events pushed and consumed.
func (q *Queue) Stats() (pushed, popped int64) {
	return q.pushed.Load(), q.popped.Load()
}
