package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, at time.Time) error
	InsertAuditIfAbsent(ctx context.Context, db *gorm.DB, audit *StatusAudit) (bool, error)
	ListAudits(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]StatusAudit, error)
}
