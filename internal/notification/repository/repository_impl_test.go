package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/journeys/internal/notification/domain"
	"github.com/smallbiznis/journeys/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestListPendingAndMarkProcessed(t *testing.T) {
	conn, err := db.NewTest(t)
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.FallbackNotification{}))
	r := Provide()
	ctx := context.Background()
	now := time.Date(2025, 4, 24, 8, 0, 0, 0, time.UTC)

	for i, userID := range []snowflake.ID{7, 7, 7, 8} {
		inserted, err := r.InsertIfAbsent(ctx, conn, &domain.FallbackNotification{
			ID:            snowflake.ID(i + 1),
			EventType:     domain.TypeFallbackNotification,
			SourceEventID: "evt-" + snowflake.ID(i+1).String(),
			UserID:        userID,
			Payload:       datatypes.JSON(`{}`),
			CreatedAt:     now,
		})
		require.NoError(t, err)
		require.True(t, inserted)
	}

	page, err := r.ListPending(ctx, conn, 7, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, snowflake.ID(1), page[0].ID)

	page, err = r.ListPending(ctx, conn, 7, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, snowflake.ID(3), page[0].ID)

	// user 8's row is not touched by user 7's ack
	changed, err := r.MarkProcessed(ctx, conn, 7, []snowflake.ID{1, 4}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	changed, err = r.MarkProcessed(ctx, conn, 7, []snowflake.ID{1}, now)
	require.NoError(t, err)
	assert.Zero(t, changed)

	page, err = r.ListPending(ctx, conn, 7, 0, 10)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	page, err = r.ListPending(ctx, conn, 8, 0, 10)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestInsertIfAbsentIgnoresDuplicateEventUser(t *testing.T) {
	conn, err := db.NewTest(t)
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.FallbackNotification{}))
	r := Provide()

	row := func(id snowflake.ID) *domain.FallbackNotification {
		return &domain.FallbackNotification{
			ID:            id,
			EventType:     domain.TypeFallbackNotification,
			SourceEventID: "evt-1",
			UserID:        7,
			Payload:       datatypes.JSON(`{}`),
			CreatedAt:     time.Now().UTC(),
		}
	}
	inserted, err := r.InsertIfAbsent(context.Background(), conn, row(1))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = r.InsertIfAbsent(context.Background(), conn, row(2))
	require.NoError(t, err)
	assert.False(t, inserted)
}
