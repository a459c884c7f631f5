package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/journeys/internal/outbox/domain"
	"github.com/smallbiznis/journeys/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest(t)
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Envelope{}))
	return conn
}

func appendEnvelope(t *testing.T, conn *gorm.DB, id int64, createdAt time.Time) {
	t.Helper()
	err := Provide().Append(context.Background(), conn, &domain.Envelope{
		ID:            snowflake.ID(id),
		EventType:     "JourneyCreated",
		Payload:       datatypes.JSON(`{"eventId":"e"}`),
		CorrelationID: "01HZX",
		Headers:       datatypes.JSONMap{"correlation_id": "01HZX"},
		CreatedAt:     createdAt,
	})
	require.NoError(t, err)
}

func TestListPendingOrdersByCreatedAt(t *testing.T) {
	conn := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	base := time.Date(2025, 4, 24, 9, 0, 0, 0, time.UTC)

	appendEnvelope(t, conn, 3, base.Add(2*time.Second))
	appendEnvelope(t, conn, 1, base)
	appendEnvelope(t, conn, 2, base.Add(time.Second))
	require.NoError(t, repo.MarkDelivered(ctx, conn, 2, base.Add(time.Minute)))

	pending, err := repo.ListPending(ctx, conn, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, snowflake.ID(1), pending[0].ID)
	assert.Equal(t, snowflake.ID(3), pending[1].ID)
	assert.Equal(t, "01HZX", pending[0].Headers["correlation_id"])

	limited, err := repo.ListPending(ctx, conn, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, snowflake.ID(1), limited[0].ID)

	count, err := repo.CountPending(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMarkFailedSpendsBudget(t *testing.T) {
	conn := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 4, 24, 9, 0, 0, 0, time.UTC)
	appendEnvelope(t, conn, 1, now)

	for attempt := 1; attempt <= 3; attempt++ {
		require.NoError(t, repo.MarkFailed(ctx, conn, 1, domain.Failure{
			Message:     "transient: boom",
			MaxAttempts: 3,
			At:          now,
		}))
		env, err := repo.FindByID(ctx, conn, 1)
		require.NoError(t, err)
		require.NotNil(t, env)
		assert.Equal(t, attempt, env.RetryCount)
		require.NotNil(t, env.LastError)
		assert.Equal(t, "transient: boom", *env.LastError)
		assert.Equal(t, attempt == 3, !env.Pending())
	}

	err := repo.MarkFailed(ctx, conn, 1, domain.Failure{Message: "again", MaxAttempts: 3, At: now})
	assert.ErrorIs(t, err, domain.ErrNotPending)

	env, err := repo.FindByID(ctx, conn, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, env.RetryCount)
	assert.True(t, env.DeadLettered())
}

func TestMarkFailedPermanentDeadLettersImmediately(t *testing.T) {
	conn := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 4, 24, 9, 0, 0, 0, time.UTC)
	appendEnvelope(t, conn, 1, now)

	require.NoError(t, repo.MarkFailed(ctx, conn, 1, domain.Failure{
		Message:     "permanent: unknown_event_type",
		Permanent:   true,
		MaxAttempts: 3,
		At:          now,
	}))

	env, err := repo.FindByID(ctx, conn, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, env.RetryCount)
	assert.True(t, env.DeadLettered())
}

func TestMarkDeliveredClearsLastError(t *testing.T) {
	conn := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2025, 4, 24, 9, 0, 0, 0, time.UTC)
	appendEnvelope(t, conn, 1, now)

	require.NoError(t, repo.MarkFailed(ctx, conn, 1, domain.Failure{Message: "boom", MaxAttempts: 3, At: now}))
	require.NoError(t, repo.MarkDelivered(ctx, conn, 1, now.Add(time.Second)))

	env, err := repo.FindByID(ctx, conn, 1)
	require.NoError(t, err)
	assert.False(t, env.Pending())
	assert.False(t, env.DeadLettered())
	assert.Nil(t, env.LastError)
	assert.Equal(t, 1, env.RetryCount)

	assert.ErrorIs(t, repo.MarkDelivered(ctx, conn, 1, now), domain.ErrNotPending)

	missing, err := repo.FindByID(ctx, conn, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMarkFailedIsSingleStatementOnPostgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	now := time.Date(2025, 4, 24, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE outbox_messages
		 SET processed_at = CASE WHEN $1 OR retry_count + 1 >= $2 THEN $3 ELSE NULL END,
		     last_error = $4,
		     retry_count = retry_count + 1
		 WHERE id = $5 AND processed_at IS NULL`)).
		WithArgs(false, 3, now, "transient: boom", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = Provide().MarkFailed(context.Background(), conn, 7, domain.Failure{
		Message:     "transient: boom",
		MaxAttempts: 3,
		At:          now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, domain.OutcomeRetry, domain.OutcomeOf(0, domain.Failure{MaxAttempts: 3}))
	assert.Equal(t, domain.OutcomeRetry, domain.OutcomeOf(1, domain.Failure{MaxAttempts: 3}))
	assert.Equal(t, domain.OutcomeDeadLettered, domain.OutcomeOf(2, domain.Failure{MaxAttempts: 3}))
	assert.Equal(t, domain.OutcomeDeadLettered, domain.OutcomeOf(0, domain.Failure{MaxAttempts: 3, Permanent: true}))
}
