package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Envelope is one serialized domain event plus its delivery bookkeeping.
// It is pending while ProcessedAt is nil and terminal afterwards.
type Envelope struct {
	ID            snowflake.ID   `gorm:"primaryKey"`
	EventType     string         `gorm:"type:varchar(100);not null"`
	Payload       datatypes.JSON `gorm:"not null"`
	CorrelationID string         `gorm:"type:varchar(50)"`
	Headers       datatypes.JSONMap
	CreatedAt     time.Time  `gorm:"not null;index:ix_outbox_messages_pending,priority:2"`
	ProcessedAt   *time.Time `gorm:"index:ix_outbox_messages_pending,priority:1"`
	RetryCount    int        `gorm:"not null;default:0"`
	LastError     *string    `gorm:"type:text"`
}

func (Envelope) TableName() string { return "outbox_messages" }

func (e Envelope) Pending() bool { return e.ProcessedAt == nil }

// DeadLettered reports a terminal envelope that was never delivered.
func (e Envelope) DeadLettered() bool { return e.ProcessedAt != nil && e.LastError != nil }

// Failure describes one failed delivery attempt.
type Failure struct {
	Message     string
	Permanent   bool
	MaxAttempts int
	At          time.Time
}

// Outcome is the state an envelope reached after one attempt.
type Outcome string

const (
	OutcomeDelivered    Outcome = "delivered"
	OutcomeRetry        Outcome = "retry"
	OutcomeDeadLettered Outcome = "dead_letter"
	OutcomeSkipped      Outcome = "skipped"
)

// OutcomeOf returns what MarkFailed does to an envelope that has failed
// retryCount times before this attempt.
func OutcomeOf(retryCount int, f Failure) Outcome {
	if f.Permanent || retryCount+1 >= f.MaxAttempts {
		return OutcomeDeadLettered
	}
	return OutcomeRetry
}
