package db

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/journeys/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect picks the gorm driver for DATABASE_TYPE. Every dialect stores
// timestamps in UTC.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.DBType) {
	case "postgres":
		return postgres.Open(fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
		)), nil
	case "mysql":
		return mysql.Open(fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName,
		)), nil
	case "sqlite":
		return sqlite.Open(sqliteFile(cfg.DBName)), nil
	}
	return nil, fmt.Errorf("unsupported database type %q", cfg.DBType)
}

func sqliteFile(name string) string {
	switch {
	case name == "":
		return "journeys.db"
	case strings.HasSuffix(name, ".db"), strings.HasPrefix(name, "file:"):
		return name
	}
	return name + ".db"
}
