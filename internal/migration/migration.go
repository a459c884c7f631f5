package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	analyticsdomain "github.com/smallbiznis/journeys/internal/analytics/domain"
	badgedomain "github.com/smallbiznis/journeys/internal/badge/domain"
	journeydomain "github.com/smallbiznis/journeys/internal/journey/domain"
	notificationdomain "github.com/smallbiznis/journeys/internal/notification/domain"
	outboxdomain "github.com/smallbiznis/journeys/internal/outbox/domain"
	userstatusdomain "github.com/smallbiznis/journeys/internal/userstatus/domain"
	"gorm.io/gorm"
)

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&userstatusdomain.User{},
		&journeydomain.Journey{},
		&journeydomain.JourneyFavorite{},
		&outboxdomain.Envelope{},
		&badgedomain.DailyDistanceBadge{},
		&analyticsdomain.MonthlyUserDistance{},
		&notificationdomain.FallbackNotification{},
		&userstatusdomain.StatusAudit{},
	}
}

// Migrate brings the schema up to date. Postgres uses the embedded SQL
// migrations; other dialects fall back to AutoMigrate.
func Migrate(conn *gorm.DB, dbType string) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if !strings.EqualFold(dbType, "postgres") {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	src, err := newSource()
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

func newSource() (source.Driver, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	driver, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return driver, nil
}
