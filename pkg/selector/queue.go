package selector

import (
	"sync"
)

// Queue hands events from a host callback that must never block, such as a
// DevTools listener or a UI thread, to the goroutine reading Events.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	wake   chan struct{}
	out    chan Event
}

// NewQueue starts the delivery goroutine
func NewQueue() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
	}
	go q.pump()
	return q
}

// Push enqueues ev; it is dropped after Close
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.signal()
}

// Close ends the stream; undelivered events are dropped
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Events is the ordered output channel
func (q *Queue) Events() <-chan Event { return q.out }

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pump delivers queued events in order and closes out once closed and drained
func (q *Queue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		ev := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		for delivered := false; !delivered; {
			select {
			case q.out <- ev:
				delivered = true
			case <-q.wake:
				q.mu.Lock()
				closed := q.closed
				q.mu.Unlock()
				if closed {
					return
				}
			}
		}
	}
}
