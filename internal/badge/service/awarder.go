package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/journeys/internal/badge/domain"
	"github.com/smallbiznis/journeys/internal/clock"
	"github.com/smallbiznis/journeys/internal/config"
	"github.com/smallbiznis/journeys/internal/events"
	journeydomain "github.com/smallbiznis/journeys/internal/journey/domain"
	"github.com/smallbiznis/journeys/internal/observability/logger"
	"github.com/smallbiznis/journeys/internal/observability/metrics"
	outboxdomain "github.com/smallbiznis/journeys/internal/outbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const subscriberName = "badge.daily_distance"

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Journeys  journeydomain.Repository
	Publisher outboxdomain.Publisher
	Rewards   *config.RewardsConfigHolder
	Metrics   *metrics.Metrics `optional:"true"`
}

// Awarder grants a DailyDistanceBadge the first time a user's journeys for a
// calendar day reach the daily goal.
type Awarder struct {
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	journeys  journeydomain.Repository
	publisher outboxdomain.Publisher
	rewards   *config.RewardsConfigHolder
	metrics   *metrics.Metrics
}

func New(p Params) *Awarder {
	rewards := p.Rewards
	if rewards == nil {
		rewards = config.NewStaticRewardsConfigHolder(config.DefaultRewardsConfig())
	}
	return &Awarder{
		log:       p.Log.Named("badge.awarder"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		journeys:  p.Journeys,
		publisher: p.Publisher,
		rewards:   rewards,
		metrics:   p.Metrics,
	}
}

func Register(bus *events.Bus, a *Awarder) {
	events.Subscribe(bus, subscriberName, func(ctx context.Context, tx *gorm.DB, evt events.JourneyCreated) error {
		return a.Evaluate(ctx, tx, evt.JourneyID, evt.Journey)
	})
	events.Subscribe(bus, subscriberName, func(ctx context.Context, tx *gorm.DB, evt events.JourneyUpdated) error {
		return a.Evaluate(ctx, tx, evt.JourneyID, evt.Journey)
	})
}

// Evaluate checks the journey's day and awards the badge when the goal is met.
// Safe to call any number of times for the same journey.
func (a *Awarder) Evaluate(ctx context.Context, tx *gorm.DB, journeyID snowflake.ID, snapshot *events.JourneySnapshot) error {
	journey, err := a.resolve(ctx, tx, journeyID, snapshot)
	if err != nil {
		return err
	}
	log := logger.WithContext(ctx, a.log).With(zap.String("journey_id", journeyID.String()))
	if journey == nil {
		log.Warn("journey not found, skipping badge evaluation")
		return nil
	}
	if journey.IsDeleted {
		return nil
	}

	rewards := a.rewards.Get()
	dayStart, dayEnd, awardDate := dayWindow(journey.StartTime, rewards.Timezone)

	existing, err := a.repo.FindByUserAndDate(ctx, tx, journey.OwnerID, awardDate)
	if err != nil {
		return fmt.Errorf("find badge: %w", err)
	}
	if existing != nil {
		return nil
	}

	total, err := a.journeys.SumDistance(ctx, tx, journey.OwnerID, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("sum daily distance: %w", err)
	}
	if total.TotalKm.LessThan(rewards.DailyGoalKm) {
		return nil
	}

	now := a.clock.Now()
	badge := domain.DailyDistanceBadge{
		ID:              a.genID.Generate(),
		UserID:          journey.OwnerID,
		JourneyID:       journey.ID,
		AwardDate:       awardDate,
		TotalDistanceKm: total.TotalKm,
		CreatedAt:       now,
	}
	created, err := a.repo.InsertIfAbsent(ctx, tx, &badge)
	if err != nil {
		return fmt.Errorf("insert badge: %w", err)
	}
	if !created {
		return nil
	}

	if err := a.journeys.MarkDailyGoalAchieved(ctx, tx, journey.ID); err != nil {
		return fmt.Errorf("flag journey: %w", err)
	}
	err = a.publisher.Publish(ctx, tx, events.DailyGoalAchieved{
		Metadata:            events.NewMetadata(now),
		JourneyID:           journey.ID,
		UserID:              journey.OwnerID,
		TotalDistanceForDay: total.TotalKm,
		Date:                awardDate.Format(events.DateLayout),
	})
	if err != nil {
		return err
	}

	a.metrics.RecordBadgeAwarded(ctx)
	log.Info("daily distance badge awarded",
		zap.String("user_id", journey.OwnerID.String()),
		zap.String("date", awardDate.Format(events.DateLayout)),
		zap.String("total_km", total.TotalKm.StringFixed(2)),
	)
	return nil
}

// resolve prefers the stored row and falls back to the snapshot when the row
// is not visible.
func (a *Awarder) resolve(ctx context.Context, tx *gorm.DB, journeyID snowflake.ID, snapshot *events.JourneySnapshot) (*journeydomain.Journey, error) {
	journey, err := a.journeys.FindByID(ctx, tx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("find journey: %w", err)
	}
	if journey != nil {
		return journey, nil
	}
	if snapshot == nil {
		return nil, nil
	}
	return &journeydomain.Journey{
		ID:         snapshot.ID,
		OwnerID:    snapshot.OwnerID,
		StartTime:  snapshot.StartTime,
		DistanceKm: snapshot.DistanceKm,
		IsDeleted:  snapshot.IsDeleted,
	}, nil
}

// dayWindow returns the UTC bounds of the calendar day containing t in loc,
// and that day as a UTC midnight date.
func dayWindow(t time.Time, loc *time.Location) (time.Time, time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	awardDate := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return start.UTC(), end.UTC(), awardDate
}
