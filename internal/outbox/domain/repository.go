package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Append(ctx context.Context, db *gorm.DB, envelope *Envelope) error
	// ListPending returns up to limit pending envelopes, oldest first.
	ListPending(ctx context.Context, db *gorm.DB, limit int) ([]Envelope, error)
	MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	// MarkFailed charges one attempt and dead-letters the envelope when the
	// failure is permanent or the attempt budget is spent. It is one statement.
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, failure Failure) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Envelope, error)
	CountPending(ctx context.Context, db *gorm.DB) (int64, error)
}
