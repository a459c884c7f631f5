package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts the period row or overwrites its totals.
	Upsert(ctx context.Context, db *gorm.DB, row *MonthlyUserDistance) error
	Find(ctx context.Context, db *gorm.DB, userID snowflake.ID, year, month int) (*MonthlyUserDistance, error)
}
