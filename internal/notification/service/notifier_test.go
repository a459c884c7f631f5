package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/journeys/internal/clock"
	"github.com/smallbiznis/journeys/internal/config"
	"github.com/smallbiznis/journeys/internal/events"
	journeydomain "github.com/smallbiznis/journeys/internal/journey/domain"
	journeyrepository "github.com/smallbiznis/journeys/internal/journey/repository"
	journeyservice "github.com/smallbiznis/journeys/internal/journey/service"
	"github.com/smallbiznis/journeys/internal/lock"
	"github.com/smallbiznis/journeys/internal/notification/domain"
	"github.com/smallbiznis/journeys/internal/notification/repository"
	outboxdomain "github.com/smallbiznis/journeys/internal/outbox/domain"
	"github.com/smallbiznis/journeys/internal/outbox/processor"
	"github.com/smallbiznis/journeys/internal/outbox/publisher"
	outboxrepository "github.com/smallbiznis/journeys/internal/outbox/repository"
	"github.com/smallbiznis/journeys/internal/realtime"
	"github.com/smallbiznis/journeys/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) SendToUser(ctx context.Context, userID, method string, payload any) error {
	args := m.Called(ctx, userID, method, payload)
	return args.Error(0)
}

const (
	owner snowflake.ID = 7
	userA snowflake.ID = 8
	userB snowflake.ID = 9
)

type testEnv struct {
	db        *gorm.DB
	journeys  journeydomain.Service
	repo      domain.Repository
	processor *processor.Processor
	channel   *mockChannel
	journey   journeydomain.Journey
}

func newTestEnv(t *testing.T, locker *lock.Locker) *testEnv {
	t.Helper()
	conn, err := db.NewTest(t)
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&journeydomain.Journey{},
		&journeydomain.JourneyFavorite{},
		&domain.FallbackNotification{},
		&outboxdomain.Envelope{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 4, 24, 12, 0, 0, 0, time.UTC))
	bus := events.NewBus()
	outboxRepo := outboxrepository.Provide()
	journeyRepo := journeyrepository.Provide()
	pub := publisher.New(publisher.Params{Log: zap.NewNop(), GenID: node, Bus: bus, Repo: outboxRepo, Clock: fake})

	env := &testEnv{db: conn, repo: repository.Provide(), channel: &mockChannel{}}
	notifier := New(Params{
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Repo:     env.repo,
		Journeys: journeyRepo,
		Channel:  env.channel,
		Config:   config.Config{Realtime: config.RealtimeConfig{DedupeTTL: time.Minute}},
		Locker:   locker,
	})
	Register(bus, notifier)

	env.journeys = journeyservice.New(journeyservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: fake, Repo: journeyRepo, Publisher: pub,
	})
	env.processor = processor.New(processor.Params{DB: conn, Log: zap.NewNop(), Bus: bus, Repo: outboxRepo, Clock: fake})

	start := time.Date(2025, 4, 24, 8, 0, 0, 0, time.UTC)
	env.journey, err = env.journeys.Create(context.Background(), journeydomain.CreateJourneyRequest{
		OwnerID:         owner,
		Name:            "Coastal ride",
		StartLocation:   "A",
		StartTime:       start,
		ArrivalLocation: "B",
		ArrivalTime:     start.Add(time.Hour),
		TransportType:   journeydomain.TransportBicycle,
		DistanceKm:      decimal.NewFromInt(30),
	})
	require.NoError(t, err)
	require.NoError(t, env.journeys.Favorite(context.Background(), userA, env.journey.ID))
	require.NoError(t, env.journeys.Favorite(context.Background(), userB, env.journey.ID))
	return env
}

func (env *testEnv) rename(t *testing.T, name string) {
	t.Helper()
	j := env.journey
	_, err := env.journeys.Update(context.Background(), j.ID, journeydomain.UpdateJourneyRequest{
		Name:            name,
		StartLocation:   j.StartLocation,
		StartTime:       j.StartTime,
		ArrivalLocation: j.ArrivalLocation,
		ArrivalTime:     j.ArrivalTime,
		TransportType:   j.TransportType,
		DistanceKm:      j.DistanceKm,
	})
	require.NoError(t, err)
}

func TestOfflineUserGetsSingleFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	env.channel.On("SendToUser", mock.Anything, userA.String(), "JourneyUpdated", mock.Anything).Return(nil)
	env.channel.On("SendToUser", mock.Anything, userB.String(), "JourneyUpdated", mock.Anything).Return(realtime.ErrUserOffline)

	env.rename(t, "Coastal ride v2")
	_, err := env.processor.ProcessPendingMessages(context.Background())
	require.NoError(t, err)

	fallbacksA, err := env.repo.ListByUser(context.Background(), env.db, userA)
	require.NoError(t, err)
	assert.Empty(t, fallbacksA)

	fallbacksB, err := env.repo.ListByUser(context.Background(), env.db, userB)
	require.NoError(t, err)
	require.Len(t, fallbacksB, 1)
	assert.Equal(t, domain.TypeFallbackNotification, fallbacksB[0].EventType)
	assert.Nil(t, fallbacksB[0].ProcessedAt)

	var payload domain.FallbackPayload
	require.NoError(t, json.Unmarshal(fallbacksB[0].Payload, &payload))
	assert.Equal(t, userB, payload.UserID)
	assert.Equal(t, env.journey.ID, payload.JourneyID)
	assert.Equal(t, "JourneyUpdated", payload.MessageType)
	assert.Equal(t, "Coastal ride v2", payload.JourneyName)

	var total int64
	require.NoError(t, env.db.Model(&domain.FallbackNotification{}).Count(&total).Error)
	assert.Equal(t, int64(1), total)

	notice, ok := env.channel.Calls[0].Arguments.Get(3).(domain.JourneyNotice)
	require.True(t, ok)
	assert.Equal(t, env.journey.ID.String(), notice.ID)
	assert.Equal(t, "Coastal ride v2", notice.Name)
}

func TestDeleteNotifiesFavoritingUsers(t *testing.T) {
	env := newTestEnv(t, nil)
	env.channel.On("SendToUser", mock.Anything, mock.Anything, "JourneyDeleted", mock.Anything).Return(nil)

	require.NoError(t, env.journeys.Delete(context.Background(), env.journey.ID))

	env.channel.AssertCalled(t, "SendToUser", mock.Anything, userA.String(), "JourneyDeleted", mock.Anything)
	env.channel.AssertCalled(t, "SendToUser", mock.Anything, userB.String(), "JourneyDeleted", mock.Anything)
	env.channel.AssertNumberOfCalls(t, "SendToUser", 2)
}

func TestNoFavoritesIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.db.Where("1 = 1").Delete(&journeydomain.JourneyFavorite{}).Error)

	env.rename(t, "Quiet ride")
	env.channel.AssertNotCalled(t, "SendToUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDedupeSuppressesRedeliveredPush(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := newTestEnv(t, lock.NewLocker(client))
	env.channel.On("SendToUser", mock.Anything, userA.String(), "JourneyUpdated", mock.Anything).Return(nil)
	env.channel.On("SendToUser", mock.Anything, userB.String(), "JourneyUpdated", mock.Anything).Return(realtime.ErrUserOffline)

	env.rename(t, "Coastal ride v3")
	_, err := env.processor.ProcessPendingMessages(context.Background())
	require.NoError(t, err)

	// A was reached once; B's failed attempt released its key so redelivery retried it.
	env.channel.AssertNumberOfCalls(t, "SendToUser", 3)

	fallbacksB, err := env.repo.ListByUser(context.Background(), env.db, userB)
	require.NoError(t, err)
	assert.Len(t, fallbacksB, 1)
}
