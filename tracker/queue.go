package tracker

import "sync"

// Queue is the ordered buffer of events awaiting delivery.
type Queue struct {
	mu     sync.Mutex
	events []Event
}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends an event and returns the new length.
func (q *Queue) Enqueue(event Event) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
	return len(q.events)
}

// Drain removes and returns every queued event in order.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.events
	q.events = nil
	return drained
}

// PushFront restores events ahead of anything queued since they were drained.
func (q *Queue) PushFront(events []Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	restored := make([]Event, 0, len(events)+len(q.events))
	restored = append(restored, events...)
	q.events = append(restored, q.events...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Snapshot returns a copy of the queued events, preserving order.
func (q *Queue) Snapshot() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Event(nil), q.events...)
}
