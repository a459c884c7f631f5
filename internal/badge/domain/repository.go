package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByUserAndDate(ctx context.Context, db *gorm.DB, userID snowflake.ID, awardDate time.Time) (*DailyDistanceBadge, error)
	// InsertIfAbsent reports false when a badge for the same user and date already exists.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, badge *DailyDistanceBadge) (bool, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]DailyDistanceBadge, error)
}
