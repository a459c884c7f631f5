package events

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// Handler consumes one event inside the caller's transaction.
type Handler func(ctx context.Context, tx *gorm.DB, evt Event) error

type subscription struct {
	name    string
	handler Handler
}

// Bus is the in-process publish/subscribe table. Handlers run sequentially in
// registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]subscription
}

func NewBus() *Bus {
	return &Bus{handlers: map[Type][]subscription{}}
}

// Subscribe registers fn for the variant E.
func Subscribe[E Event](b *Bus, name string, fn func(ctx context.Context, tx *gorm.DB, evt E) error) {
	var zero E
	t := zero.Type()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], subscription{
		name: name,
		handler: func(ctx context.Context, tx *gorm.DB, evt Event) error {
			typed, ok := evt.(E)
			if !ok {
				return fmt.Errorf("%w: %s handler got %T", ErrPermanent, t, evt)
			}
			return fn(ctx, tx, typed)
		},
	})
}

// Dispatch runs every handler registered for evt and stops at the first failure.
func (b *Bus) Dispatch(ctx context.Context, tx *gorm.DB, evt Event) error {
	b.mu.RLock()
	subs := b.handlers[evt.Type()]
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.handler(ctx, tx, evt); err != nil {
			return fmt.Errorf("%s: %w", sub.name, err)
		}
	}
	return nil
}

// Subscribers returns handler names registered for t.
func (b *Bus) Subscribers(t Type) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.handlers[t]))
	for _, sub := range b.handlers[t] {
		names = append(names, sub.name)
	}
	return names
}
