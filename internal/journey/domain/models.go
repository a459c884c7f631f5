package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/journeys/internal/events"
)

type TransportType string

const (
	TransportCar        TransportType = "Car"
	TransportBus        TransportType = "Bus"
	TransportTrain      TransportType = "Train"
	TransportBicycle    TransportType = "Bicycle"
	TransportWalk       TransportType = "Walk"
	TransportMotorcycle TransportType = "Motorcycle"
	TransportAirplane   TransportType = "Airplane"
	TransportShip       TransportType = "Ship"
	TransportOther      TransportType = "Other"
	TransportWalking    TransportType = "Walking"
)

func (t TransportType) Valid() bool {
	switch t {
	case TransportCar, TransportBus, TransportTrain, TransportBicycle, TransportWalk,
		TransportMotorcycle, TransportAirplane, TransportShip, TransportOther, TransportWalking:
		return true
	}
	return false
}

// Journey is a recorded trip owned by one user.
type Journey struct {
	ID                  snowflake.ID    `gorm:"primaryKey"`
	OwnerID             snowflake.ID    `gorm:"not null;index:ix_journeys_owner_start,priority:1"`
	Name                string          `gorm:"type:varchar(200);not null"`
	Description         string          `gorm:"type:text"`
	StartLocation       string          `gorm:"type:varchar(200);not null"`
	StartTime           time.Time       `gorm:"not null;index:ix_journeys_owner_start,priority:2"`
	ArrivalLocation     string          `gorm:"type:varchar(200);not null"`
	ArrivalTime         time.Time       `gorm:"not null"`
	TransportType       TransportType   `gorm:"type:varchar(32);not null"`
	DistanceKm          decimal.Decimal `gorm:"type:decimal(7,2);not null"`
	IsPublic            bool            `gorm:"not null;default:false"`
	RouteDataURL        string          `gorm:"column:route_data_url;type:varchar(500)"`
	IsDeleted           bool            `gorm:"not null;default:false"`
	IsDailyGoalAchieved bool            `gorm:"not null;default:false"`
	CreatedAt           time.Time       `gorm:"not null"`
	UpdatedAt           time.Time       `gorm:"not null"`
}

func (Journey) TableName() string { return "journeys" }

// Snapshot copies the fields consumers need into an event payload.
func (j Journey) Snapshot() *events.JourneySnapshot {
	return &events.JourneySnapshot{
		ID:          j.ID,
		OwnerID:     j.OwnerID,
		Name:        j.Name,
		StartTime:   j.StartTime.UTC(),
		ArrivalTime: j.ArrivalTime.UTC(),
		DistanceKm:  j.DistanceKm,
		IsDeleted:   j.IsDeleted,
	}
}

type JourneyFavorite struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_journey_favorites_user_journey,priority:1"`
	JourneyID snowflake.ID `gorm:"not null;uniqueIndex:ux_journey_favorites_user_journey,priority:2;index"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (JourneyFavorite) TableName() string { return "journey_favorites" }

// MaxDistanceKm is the largest value a decimal(7,2) column holds.
var MaxDistanceKm = decimal.RequireFromString("99999.99")

// NormalizeDistance rounds to two decimals and rejects negative or oversized values.
func NormalizeDistance(d decimal.Decimal) (decimal.Decimal, error) {
	rounded := d.Round(2)
	if rounded.IsNegative() {
		return decimal.Zero, ErrInvalidDistance
	}
	if rounded.GreaterThan(MaxDistanceKm) {
		return decimal.Zero, ErrInvalidDistance
	}
	return rounded, nil
}
