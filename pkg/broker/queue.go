package broker

import (
	"context"
	"encoding/json"
	"sync"
)

type eventKind int

const (
	eventConnector eventKind = iota
	eventCommand
)

// event is one item of the inbound queue: either a connector event or a host command
type event struct {
	kind eventKind

	// connector events
	name       string
	generation uint64
	payload    json.RawMessage
	err        error

	// host commands
	command func(ctx context.Context) error
	reply   chan error
}

// queue is an unbounded FIFO drained by a single goroutine.
// Producers never block, so connector callbacks can push from any goroutine.
type queue struct {
	mu     sync.Mutex
	items  []event
	notify chan struct{}
	closed bool
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

// push appends ev; it returns false once the queue is closed
func (q *queue) push(ev event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// pop blocks until an event is available or ctx ends
func (q *queue) pop(ctx context.Context) (event, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = event{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return event{}, false
		case <-q.notify:
		}
	}
}

// close rejects further pushes and returns the events never drained
func (q *queue) close() []event {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := q.items
	q.items = nil
	return rest
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
