package events

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus for tests and single-instance runs.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewMemoryBus builds an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[chan Event]struct{})}
}

// Publish delivers the event to every live subscriber. Subscribers that
// cannot keep up have the event dropped rather than blocking the mutation
// path.
func (b *MemoryBus) Publish(_ context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub <- e:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber removed when ctx is cancelled.
func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	sub := make(chan Event, 16)
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		close(sub)
	}()
	return sub, nil
}
