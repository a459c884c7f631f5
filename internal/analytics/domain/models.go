package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// MonthlyUserDistance is recomputed from the journeys table on every change.
type MonthlyUserDistance struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	UserID          snowflake.ID    `gorm:"not null;uniqueIndex:ux_monthly_user_distances_period,priority:1"`
	Year            int             `gorm:"not null;uniqueIndex:ux_monthly_user_distances_period,priority:2"`
	Month           int             `gorm:"not null;uniqueIndex:ux_monthly_user_distances_period,priority:3"`
	TotalDistanceKm decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	JourneyCount    int64           `gorm:"not null"`
	CreatedAt       time.Time       `gorm:"not null"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

func (MonthlyUserDistance) TableName() string { return "monthly_user_distances" }

type Period struct {
	UserID snowflake.ID
	Year   int
	Month  time.Month
}

// PeriodOf returns the UTC calendar month containing t.
func PeriodOf(userID snowflake.ID, t time.Time) Period {
	utc := t.UTC()
	return Period{UserID: userID, Year: utc.Year(), Month: utc.Month()}
}

// Bounds returns the half-open UTC range [start, end) of the month.
func (p Period) Bounds() (time.Time, time.Time) {
	start := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
