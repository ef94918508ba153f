package session

import (
	"sync"
	"time"
)

// EventQueue holds callbacks produced off the caller's goroutine until the
// caller dispatches them. Actions run in the order they were scheduled.
type EventQueue struct {
	mu      sync.Mutex
	pending []func()
	signal  chan struct{}
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{signal: make(chan struct{}, 1)}
}

// Schedule appends action. It is safe to call from any goroutine.
func (q *EventQueue) Schedule(action func()) {
	q.mu.Lock()
	q.pending = append(q.pending, action)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of actions waiting to run.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Dispatch runs queued actions for up to budget. It waits for actions while
// budget remains, so Dispatch(interval) doubles as the idle sleep of a poll
// loop. Dispatch(0) runs what is already queued and returns.
func (q *EventQueue) Dispatch(budget time.Duration) {
	start := time.Now()
	remaining := budget
	for remaining >= 0 && q.wait(remaining) {
		q.drain()
		remaining = budget - time.Since(start)
	}
}

func (q *EventQueue) wait(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-q.signal:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-q.signal:
		return true
	case <-timer.C:
		return false
	}
}

// Flush runs queued actions, and whatever they schedule in turn, until the
// queue is empty.
func (q *EventQueue) Flush() {
	for q.Len() > 0 {
		q.drain()
	}
}

// drain runs everything queued so far. Actions run outside the lock, so an
// action may schedule more work.
func (q *EventQueue) drain() {
	q.mu.Lock()
	actions := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, action := range actions {
		action()
	}
}
