package domain

import (
	"context"

	"github.com/smallbiznis/journeys/internal/events"
	"gorm.io/gorm"
)

// Publisher dispatches an event to in-process subscribers and appends it to
// the outbox, both inside tx.
type Publisher interface {
	Publish(ctx context.Context, tx *gorm.DB, evt events.Event) error
}

// Processor redelivers pending envelopes.
type Processor interface {
	ProcessBatch(ctx context.Context, maxSize int) (int, error)
	ProcessPendingMessages(ctx context.Context) (int, error)
}
