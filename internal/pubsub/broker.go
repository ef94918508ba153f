package pubsub

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 64

type subscription[T any] struct {
	ch     chan Event[T]
	topics []Topic
}

func (s *subscription[T]) wants(topic Topic) bool {
	return len(s.topics) == 0 || slices.Contains(s.topics, topic)
}

// Broker fans published events out to live subscriptions. A subscriber whose
// buffer is full misses the event; the miss is counted in Dropped.
type Broker[T any] struct {
	mu      sync.RWMutex
	subs    map[*subscription[T]]struct{}
	closed  bool
	size    int
	dropped atomic.Uint64
	now     func() time.Time
}

// NewBroker creates a broker whose subscriptions buffer 64 events.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a broker with a custom per-subscription buffer.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	return &Broker[T]{
		subs: make(map[*subscription[T]]struct{}),
		size: max(size, 1),
		now:  time.Now,
	}
}

// Subscribe returns a channel receiving events for the given topics, or for
// every topic when none are given. The channel is closed once ctx is done or
// the broker is closed.
func (b *Broker[T]) Subscribe(ctx context.Context, topics ...Topic) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription[T]{ch: make(chan Event[T], b.size), topics: slices.Clone(topics)}
	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subs[sub] = struct{}{}

	context.AfterFunc(ctx, func() { b.remove(sub) })
	return sub.ch
}

func (b *Broker[T]) remove(sub *subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers payload to matching subscribers without blocking.
func (b *Broker[T]) Publish(topic Topic, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed || len(b.subs) == 0 {
		return
	}

	ev := Event[T]{Topic: topic, Payload: payload, Timestamp: b.now()}
	for sub := range b.subs {
		if !sub.wants(topic) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was
// full.
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscription. Later publishes are ignored and later
// subscriptions are returned already closed.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
