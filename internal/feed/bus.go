package feed

import (
	"context"
	"sync"
)

// Bus is an in-process Feed. Publish delivers synchronously on the caller's goroutine.
type Bus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]Handler
}

var _ Feed = (*Bus)(nil)

// NewBus creates an empty in-process feed.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string]map[int]Handler),
	}
}

// Subscribe registers handler for events of entityID.
func (b *Bus) Subscribe(_ context.Context, entityID string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	if b.handlers[entityID] == nil {
		b.handlers[entityID] = make(map[int]Handler)
	}

	b.handlers[entityID][id] = handler

	return &busSubscription{bus: b, entityID: entityID, id: id}, nil
}

// Publish delivers event to every handler subscribed to its entity.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.handlers[event.EntityID]))

	for _, h := range b.handlers[event.EntityID] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ctx, event)
	}
}

// Subscribers returns the number of handlers registered for entityID.
func (b *Bus) Subscribers(entityID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.handlers[entityID])
}

type busSubscription struct {
	bus      *Bus
	entityID string
	id       int
}

func (s *busSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.handlers[s.entityID], s.id)

	if len(s.bus.handlers[s.entityID]) == 0 {
		delete(s.bus.handlers, s.entityID)
	}

	return nil
}
