package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive      Status = "Active"
	StatusSuspended   Status = "Suspended"
	StatusDeactivated Status = "Deactivated"
)

// ParseStatus accepts a status name in any letter case. Unknown names are
// returned unchanged so Valid rejects them.
func ParseStatus(raw string) Status {
	raw = strings.TrimSpace(raw)
	for _, s := range []Status{StatusActive, StatusSuspended, StatusDeactivated} {
		if strings.EqualFold(raw, string(s)) {
			return s
		}
	}
	return Status(raw)
}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusDeactivated:
		return true
	}
	return false
}

type User struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Email     string       `gorm:"type:varchar(255);not null;uniqueIndex"`
	UserName  string       `gorm:"type:varchar(100);not null"`
	Status    Status       `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time    `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// StatusAudit is written once per UserStatusChanged event.
type StatusAudit struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	EventID   string       `gorm:"type:varchar(64);not null;uniqueIndex"`
	UserID    snowflake.ID `gorm:"not null;index"`
	OldStatus string       `gorm:"type:varchar(32);not null"`
	NewStatus string       `gorm:"type:varchar(32);not null"`
	ChangedBy *snowflake.ID
	Reason    string    `gorm:"type:text"`
	ChangedAt time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (StatusAudit) TableName() string { return "user_status_audits" }
