// Package events fans notifications out to subscribed listeners.
package events

import "sync"

type Kind uint8

const (
	IndexChanged Kind = iota + 1
	RepositoryAdded
)

func (k Kind) String() string {
	switch k {
	case IndexChanged:
		return "index-changed"
	case RepositoryAdded:
		return "repository-added"
	default:
		return "unknown"
	}
}

type Event[T any] struct {
	Kind    Kind
	Subject T
}

type Listener[T any] func(Event[T])

// Broadcaster is a listener set safe for concurrent use. Listeners are called
// synchronously on the publishing goroutine, in no particular order.
type Broadcaster[T any] struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]Listener[T]
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{listeners: map[uint64]Listener[T]{}}
}

type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the listener. Calling it more than once is harmless.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

func (b *Broadcaster[T]) Subscribe(fn Listener[T]) *Subscription {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[id] = fn
	b.mu.Unlock()

	return &Subscription{cancel: func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}}
}

// Publish delivers ev to a snapshot of the current listeners, so listeners may
// subscribe or unsubscribe while being notified.
func (b *Broadcaster[T]) Publish(ev Event[T]) {
	b.mu.RLock()
	snapshot := make([]Listener[T], 0, len(b.listeners))
	for _, fn := range b.listeners {
		snapshot = append(snapshot, fn)
	}
	b.mu.RUnlock()

	for _, fn := range snapshot {
		fn(ev)
	}
}

func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
