package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/journeys/internal/analytics/domain"
	"github.com/smallbiznis/journeys/internal/clock"
	"github.com/smallbiznis/journeys/internal/events"
	journeydomain "github.com/smallbiznis/journeys/internal/journey/domain"
	"github.com/smallbiznis/journeys/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const subscriberName = "analytics.monthly_distance"

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Journeys journeydomain.Repository
}

type Aggregator struct {
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	journeys journeydomain.Repository
}

func New(p Params) *Aggregator {
	return &Aggregator{
		log:      p.Log.Named("analytics.monthly"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		journeys: p.Journeys,
	}
}

func Register(bus *events.Bus, a *Aggregator) {
	events.Subscribe(bus, subscriberName, func(ctx context.Context, tx *gorm.DB, evt events.JourneyCreated) error {
		return a.Refresh(ctx, tx, evt.JourneyID, evt.OwnerID, evt.Journey, nil)
	})
	events.Subscribe(bus, subscriberName, func(ctx context.Context, tx *gorm.DB, evt events.JourneyUpdated) error {
		return a.Refresh(ctx, tx, evt.JourneyID, evt.OwnerID, evt.Journey, evt.PreviousStartTime)
	})
	events.Subscribe(bus, subscriberName, func(ctx context.Context, tx *gorm.DB, evt events.JourneyDeleted) error {
		return a.Refresh(ctx, tx, evt.JourneyID, evt.OwnerID, evt.Journey, nil)
	})
}

// Refresh recomputes every month the journey touches. When the journey moved,
// previousStart names the month it left.
func (a *Aggregator) Refresh(ctx context.Context, tx *gorm.DB, journeyID, ownerID snowflake.ID, snapshot *events.JourneySnapshot, previousStart *time.Time) error {
	journey, err := a.journeys.FindByID(ctx, tx, journeyID)
	if err != nil {
		return fmt.Errorf("find journey: %w", err)
	}

	var periods []domain.Period
	switch {
	case journey != nil:
		periods = append(periods, domain.PeriodOf(journey.OwnerID, journey.StartTime))
		ownerID = journey.OwnerID
	case snapshot != nil:
		periods = append(periods, domain.PeriodOf(snapshot.OwnerID, snapshot.StartTime))
		ownerID = snapshot.OwnerID
	}
	if previousStart != nil && ownerID != 0 {
		prev := domain.PeriodOf(ownerID, *previousStart)
		if len(periods) == 0 || periods[0] != prev {
			periods = append(periods, prev)
		}
	}
	if len(periods) == 0 {
		logger.WithContext(ctx, a.log).Warn("journey not resolvable, skipping monthly aggregate",
			zap.String("journey_id", journeyID.String()))
		return nil
	}

	for _, period := range periods {
		if err := a.Recompute(ctx, tx, period); err != nil {
			return err
		}
	}
	return nil
}

// Recompute sums all non-deleted journeys in the period and upserts the row.
func (a *Aggregator) Recompute(ctx context.Context, tx *gorm.DB, period domain.Period) error {
	start, end := period.Bounds()
	total, err := a.journeys.SumDistance(ctx, tx, period.UserID, start, end)
	if err != nil {
		return fmt.Errorf("sum monthly distance: %w", err)
	}

	now := a.clock.Now()
	row := domain.MonthlyUserDistance{
		ID:              a.genID.Generate(),
		UserID:          period.UserID,
		Year:            period.Year,
		Month:           int(period.Month),
		TotalDistanceKm: total.TotalKm,
		JourneyCount:    total.Count,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.repo.Upsert(ctx, tx, &row); err != nil {
		return fmt.Errorf("upsert monthly distance: %w", err)
	}
	return nil
}
