package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateJourneyRequest struct {
	OwnerID         snowflake.ID
	Name            string
	Description     string
	StartLocation   string
	StartTime       time.Time
	ArrivalLocation string
	ArrivalTime     time.Time
	TransportType   TransportType
	DistanceKm      decimal.Decimal
	IsPublic        bool
	RouteDataURL    string
}

// UpdateJourneyRequest replaces the mutable fields of a journey.
type UpdateJourneyRequest struct {
	Name            string
	Description     string
	StartLocation   string
	StartTime       time.Time
	ArrivalLocation string
	ArrivalTime     time.Time
	TransportType   TransportType
	DistanceKm      decimal.Decimal
	IsPublic        bool
	RouteDataURL    string
}

// Service is the write side that raises journey events.
type Service interface {
	Create(ctx context.Context, req CreateJourneyRequest) (Journey, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateJourneyRequest) (Journey, error)
	Delete(ctx context.Context, id snowflake.ID) error
	// Get returns ErrNotFound for missing and soft-deleted journeys.
	Get(ctx context.Context, id snowflake.ID) (Journey, error)
	Favorite(ctx context.Context, userID, journeyID snowflake.ID) error
}
