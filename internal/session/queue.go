package session

import "github.com/sonroyaalmerol/kumavoice/internal/track"

// Queue is a FIFO of pending tracks. It has no locking of its own; the owning
// session mutates it only while holding its mutex.
type Queue struct {
	items []track.Request
}

func (q *Queue) Enqueue(t track.Request) int {
	q.items = append(q.items, t)
	return len(q.items)
}

// Dequeue pops the front track. ok is false when the queue is empty.
func (q *Queue) Dequeue() (track.Request, bool) {
	if len(q.items) == 0 {
		return track.Request{}, false
	}
	t := q.items[0]
	q.items[0] = track.Request{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return t, true
}

func (q *Queue) Clear() {
	q.items = nil
}

func (q *Queue) Len() int {
	return len(q.items)
}

// Items returns a copy for display.
func (q *Queue) Items() []track.Request {
	out := make([]track.Request, len(q.items))
	copy(out, q.items)
	return out
}
