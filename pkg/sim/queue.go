package sim

import (
	"container/heap"
	"errors"
	"fmt"
)

// ErrEmptyQueue signals normal exhaustion of the event queue.
var ErrEmptyQueue = errors.New("sim: event queue empty")

// ErrNonMonotonicTime signals an attempt to schedule an event before
// the current clock. That is queue-key corruption and aborts the run.
var ErrNonMonotonicTime = errors.New("sim: schedule time before clock")

type queueItem struct {
	ev  Event
	seq uint64
}

type eventHeap []queueItem

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].ev.Time != h[j].ev.Time {
		return h[i].ev.Time < h[j].ev.Time
	}
	// FIFO among equal times keeps runs reproducible.
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// EventQueue is a time-ordered priority queue that also owns the
// simulation clock. The clock only advances when an event is popped
// and always equals the time of the most recently popped event.
type EventQueue struct {
	h   eventHeap
	seq uint64
	now float64
}

func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Now returns the current clock value.
func (q *EventQueue) Now() float64 { return q.now }

func (q *EventQueue) Len() int { return len(q.h) }

// Schedule inserts an event keyed by (time, insertion sequence).
func (q *EventQueue) Schedule(ev Event) error {
	if ev.Time < q.now {
		return fmt.Errorf("%w: %v < %v", ErrNonMonotonicTime, ev.Time, q.now)
	}
	heap.Push(&q.h, queueItem{ev: ev, seq: q.seq})
	q.seq++
	return nil
}

// Pop removes and returns the earliest event, advancing the clock.
func (q *EventQueue) Pop() (Event, error) {
	if len(q.h) == 0 {
		return Event{}, ErrEmptyQueue
	}
	item := heap.Pop(&q.h).(queueItem)
	q.now = item.ev.Time
	return item.ev, nil
}

// PeekTime returns the next event's time without removing it.
func (q *EventQueue) PeekTime() (float64, error) {
	if len(q.h) == 0 {
		return 0, ErrEmptyQueue
	}
	return q.h[0].ev.Time, nil
}
