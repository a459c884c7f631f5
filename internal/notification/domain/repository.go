package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIfAbsent reports false when the user already has a fallback for the source event.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, notification *FallbackNotification) (bool, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]FallbackNotification, error)
	// ListPending pages unprocessed fallbacks with id greater than afterID, oldest first.
	ListPending(ctx context.Context, db *gorm.DB, userID, afterID snowflake.ID, limit int) ([]FallbackNotification, error)
	// MarkProcessed acknowledges the user's own fallbacks and returns how many changed.
	MarkProcessed(ctx context.Context, db *gorm.DB, userID snowflake.ID, ids []snowflake.ID, at time.Time) (int64, error)
}
