package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/journeys/internal/analytics/domain"
	"github.com/smallbiznis/journeys/internal/analytics/repository"
	"github.com/smallbiznis/journeys/internal/clock"
	"github.com/smallbiznis/journeys/internal/events"
	journeydomain "github.com/smallbiznis/journeys/internal/journey/domain"
	journeyrepository "github.com/smallbiznis/journeys/internal/journey/repository"
	journeyservice "github.com/smallbiznis/journeys/internal/journey/service"
	outboxdomain "github.com/smallbiznis/journeys/internal/outbox/domain"
	"github.com/smallbiznis/journeys/internal/outbox/processor"
	"github.com/smallbiznis/journeys/internal/outbox/publisher"
	outboxrepository "github.com/smallbiznis/journeys/internal/outbox/repository"
	"github.com/smallbiznis/journeys/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db         *gorm.DB
	clock      *clock.FakeClock
	journeys   journeydomain.Service
	aggregator *Aggregator
	repo       domain.Repository
	processor  *processor.Processor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.NewTest(t)
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&journeydomain.Journey{}, &domain.MonthlyUserDistance{}, &outboxdomain.Envelope{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC))
	bus := events.NewBus()
	outboxRepo := outboxrepository.Provide()
	journeyRepo := journeyrepository.Provide()
	pub := publisher.New(publisher.Params{Log: zap.NewNop(), GenID: node, Bus: bus, Repo: outboxRepo, Clock: fake})

	env := &testEnv{db: conn, clock: fake, repo: repository.Provide()}
	env.aggregator = New(Params{Log: zap.NewNop(), GenID: node, Clock: fake, Repo: env.repo, Journeys: journeyRepo})
	Register(bus, env.aggregator)
	env.journeys = journeyservice.New(journeyservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: fake, Repo: journeyRepo, Publisher: pub,
	})
	env.processor = processor.New(processor.Params{DB: conn, Log: zap.NewNop(), Bus: bus, Repo: outboxRepo, Clock: fake})
	return env
}

func (env *testEnv) create(t *testing.T, owner snowflake.ID, start time.Time, km string) journeydomain.Journey {
	t.Helper()
	journey, err := env.journeys.Create(context.Background(), journeydomain.CreateJourneyRequest{
		OwnerID:         owner,
		Name:            "Trip",
		StartLocation:   "A",
		StartTime:       start,
		ArrivalLocation: "B",
		ArrivalTime:     start.Add(time.Hour),
		TransportType:   journeydomain.TransportTrain,
		DistanceKm:      decimal.RequireFromString(km),
	})
	require.NoError(t, err)
	env.clock.Advance(time.Second)
	return journey
}

func (env *testEnv) period(t *testing.T, owner snowflake.ID, year, month int) *domain.MonthlyUserDistance {
	t.Helper()
	row, err := env.repo.Find(context.Background(), env.db, owner, year, month)
	require.NoError(t, err)
	return row
}

func TestAggregateTracksCreatesAndDeletes(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, 7, time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC), "10.25")
	second := env.create(t, 7, time.Date(2025, 4, 28, 8, 0, 0, 0, time.UTC), "4.75")
	env.create(t, 7, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), "3")

	april := env.period(t, 7, 2025, 4)
	require.NotNil(t, april)
	assert.True(t, april.TotalDistanceKm.Equal(decimal.NewFromInt(15)), april.TotalDistanceKm.String())
	assert.Equal(t, int64(2), april.JourneyCount)

	require.NoError(t, env.journeys.Delete(context.Background(), second.ID))
	april = env.period(t, 7, 2025, 4)
	assert.True(t, april.TotalDistanceKm.Equal(decimal.RequireFromString("10.25")))
	assert.Equal(t, int64(1), april.JourneyCount)

	may := env.period(t, 7, 2025, 5)
	require.NotNil(t, may)
	assert.Equal(t, int64(1), may.JourneyCount)
}

func TestAggregateRecomputesBothMonthsOnMove(t *testing.T) {
	env := newTestEnv(t)
	journey := env.create(t, 7, time.Date(2025, 4, 30, 22, 0, 0, 0, time.UTC), "8")

	moved := time.Date(2025, 5, 3, 9, 0, 0, 0, time.UTC)
	_, err := env.journeys.Update(context.Background(), journey.ID, journeydomain.UpdateJourneyRequest{
		Name:            "Trip",
		StartLocation:   "A",
		StartTime:       moved,
		ArrivalLocation: "B",
		ArrivalTime:     moved.Add(time.Hour),
		TransportType:   journeydomain.TransportTrain,
		DistanceKm:      decimal.NewFromInt(8),
	})
	require.NoError(t, err)

	april := env.period(t, 7, 2025, 4)
	require.NotNil(t, april)
	assert.True(t, april.TotalDistanceKm.IsZero())
	assert.Equal(t, int64(0), april.JourneyCount)

	may := env.period(t, 7, 2025, 5)
	require.NotNil(t, may)
	assert.True(t, may.TotalDistanceKm.Equal(decimal.NewFromInt(8)))
}

func TestRecomputeIsIdempotentUnderReplay(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, 7, time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC), "12.5")
	env.create(t, 7, time.Date(2025, 4, 4, 8, 0, 0, 0, time.UTC), "7.5")
	before := env.period(t, 7, 2025, 4)
	require.NotNil(t, before)

	_, err := env.processor.ProcessPendingMessages(context.Background())
	require.NoError(t, err)

	period := domain.PeriodOf(7, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, env.aggregator.Recompute(context.Background(), env.db, period))
	require.NoError(t, env.aggregator.Recompute(context.Background(), env.db, period))

	after := env.period(t, 7, 2025, 4)
	assert.Equal(t, before.ID, after.ID)
	assert.True(t, before.TotalDistanceKm.Equal(after.TotalDistanceKm))
	assert.Equal(t, before.JourneyCount, after.JourneyCount)
	assert.True(t, after.TotalDistanceKm.Equal(decimal.NewFromInt(20)))

	var rows int64
	require.NoError(t, env.db.Model(&domain.MonthlyUserDistance{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestPeriodBounds(t *testing.T) {
	start, end := domain.PeriodOf(1, time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)).Bounds()
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), end)
}
