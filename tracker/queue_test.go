package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func names(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.URL)
	}
	return out
}

func TestQueue_EnqueueDrain(t *testing.T) {
	q := NewQueue()
	assert.Equal(t, 1, q.Enqueue(Event{URL: "a"}))
	assert.Equal(t, 2, q.Enqueue(Event{URL: "b"}))

	assert.Equal(t, []string{"a", "b"}, names(q.Drain()))
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain())
}

func TestQueue_PushFrontKeepsOrder(t *testing.T) {
	q := NewQueue()
	q.Enqueue(Event{URL: "a"})
	q.Enqueue(Event{URL: "b"})
	drained := q.Drain()

	q.Enqueue(Event{URL: "late"})
	q.PushFront(drained)

	assert.Equal(t, []string{"a", "b", "late"}, names(q.Snapshot()))
}

func TestQueue_PushFrontEmpty(t *testing.T) {
	q := NewQueue()
	q.Enqueue(Event{URL: "a"})
	q.PushFront(nil)
	assert.Equal(t, 1, q.Len())
}
