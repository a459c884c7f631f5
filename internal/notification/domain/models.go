package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const TypeFallbackNotification = "FallbackNotification"

// FallbackNotification stores a realtime message that could not be pushed so
// an out-of-band channel can deliver it later. One row per source event and user.
type FallbackNotification struct {
	ID            snowflake.ID   `gorm:"primaryKey"`
	EventType     string         `gorm:"type:varchar(100);not null"`
	SourceEventID string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_notification_fallbacks_event_user,priority:1"`
	UserID        snowflake.ID   `gorm:"not null;uniqueIndex:ux_notification_fallbacks_event_user,priority:2;index"`
	Payload       datatypes.JSON `gorm:"not null"`
	CreatedAt     time.Time      `gorm:"not null;index"`
	ProcessedAt   *time.Time
	RetryCount    int     `gorm:"not null;default:0"`
	LastError     *string `gorm:"type:text"`
}

func (FallbackNotification) TableName() string { return "notification_fallbacks" }

type FallbackPayload struct {
	UserID      snowflake.ID `json:"userId"`
	JourneyID   snowflake.ID `json:"journeyId"`
	JourneyName string       `json:"journeyName,omitempty"`
	MessageType string       `json:"messageType"`
	Timestamp   time.Time    `json:"timestamp"`
}

// JourneyNotice is the realtime payload for journey changes.
type JourneyNotice struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}
