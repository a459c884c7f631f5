package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DistanceTotal is the sum over non-deleted journeys in a time window.
type DistanceTotal struct {
	TotalKm decimal.Decimal
	Count   int64
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, journey *Journey) error
	Save(ctx context.Context, db *gorm.DB, journey *Journey) error
	// FindByID includes soft-deleted journeys and returns nil when the row is missing.
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Journey, error)
	SumDistance(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, from, to time.Time) (DistanceTotal, error)
	MarkDailyGoalAchieved(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	InsertFavorite(ctx context.Context, db *gorm.DB, favorite *JourneyFavorite) error
	FavoritedBy(ctx context.Context, db *gorm.DB, journeyID snowflake.ID) ([]snowflake.ID, error)
}
