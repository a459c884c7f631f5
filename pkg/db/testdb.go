package db

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

// NewTest opens an isolated in-memory sqlite database that lives until tb
// finishes.
//
// A shared-cache memory database is dropped when its last connection closes,
// and database/sql discards a connection whose context was cancelled mid
// transaction. A separate idle anchor connection keeps the schema alive
// across such discards.
func NewTest(tb testing.TB) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:journeys_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))

	anchor, err := sql.Open(sqlite.DriverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := anchor.Ping(); err != nil {
		anchor.Close()
		return nil, fmt.Errorf("pin test database: %w", err)
	}
	anchor.SetConnMaxIdleTime(0)

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		anchor.Close()
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		anchor.Close()
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	tb.Cleanup(func() {
		sqlDB.Close()
		anchor.Close()
	})
	return conn, nil
}
