package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinnedRow struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func TestNewTestSurvivesDiscardedConnection(t *testing.T) {
	conn, err := NewTest(t)
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&pinnedRow{}))
	require.NoError(t, conn.Create(&pinnedRow{ID: 1, Name: "kept"}).Error)

	sqlDB, err := conn.DB()
	require.NoError(t, err)

	// Cancelling a live transaction makes database/sql drop the only pooled
	// connection.
	ctx, cancel := context.WithCancel(context.Background())
	tx, err := sqlDB.BeginTx(ctx, nil)
	require.NoError(t, err)
	cancel()
	assert.Error(t, tx.Commit())

	var rows []pinnedRow
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "kept", rows[0].Name)
}
