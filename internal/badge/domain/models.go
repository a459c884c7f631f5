package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// DailyDistanceBadge records that a user reached the daily goal on AwardDate.
// At most one exists per (user, date).
type DailyDistanceBadge struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	UserID          snowflake.ID    `gorm:"not null;uniqueIndex:ux_daily_distance_badges_user_date,priority:1"`
	JourneyID       snowflake.ID    `gorm:"not null"`
	AwardDate       time.Time       `gorm:"type:date;not null;uniqueIndex:ux_daily_distance_badges_user_date,priority:2"`
	TotalDistanceKm decimal.Decimal `gorm:"type:decimal(9,2);not null"`
	CreatedAt       time.Time       `gorm:"not null"`
}

func (DailyDistanceBadge) TableName() string { return "daily_distance_badges" }
