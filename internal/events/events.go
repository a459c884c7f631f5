// Package events defines the domain events emitted by journey writes and the
// in-process bus that fans them out to consumers.
package events

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type is the discriminator stored with every serialized event.
type Type string

const (
	TypeJourneyCreated    Type = "JourneyCreated"
	TypeJourneyUpdated    Type = "JourneyUpdated"
	TypeJourneyDeleted    Type = "JourneyDeleted"
	TypeDailyGoalAchieved Type = "DailyGoalAchieved"
	TypeUserStatusChanged Type = "UserStatusChanged"
)

const DateLayout = "2006-01-02"

var (
	ErrUnknownType      = errors.New("unknown_event_type")
	ErrMalformedPayload = errors.New("malformed_event_payload")
	// ErrPermanent marks a handler failure that will not succeed on retry.
	ErrPermanent = errors.New("permanent_event_failure")
)

// Event is implemented only by the variants in this package.
type Event interface {
	Type() Type
	Meta() Metadata
	validate() error
}

type Metadata struct {
	EventID    string    `json:"eventId"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewMetadata(now time.Time) Metadata {
	return Metadata{EventID: uuid.NewString(), OccurredAt: now.UTC()}
}

func (m Metadata) Meta() Metadata { return m }

func (m Metadata) validate() error {
	if m.EventID == "" {
		return errors.New("eventId is required")
	}
	return nil
}

// JourneySnapshot is the journey state at the time the event was raised.
type JourneySnapshot struct {
	ID          snowflake.ID    `json:"id"`
	OwnerID     snowflake.ID    `json:"ownerId"`
	Name        string          `json:"name"`
	StartTime   time.Time       `json:"startTime"`
	ArrivalTime time.Time       `json:"arrivalTime"`
	DistanceKm  decimal.Decimal `json:"distanceKm"`
	IsDeleted   bool            `json:"isDeleted"`
}

type JourneyCreated struct {
	Metadata
	JourneyID snowflake.ID     `json:"journeyId"`
	OwnerID   snowflake.ID     `json:"ownerId"`
	Journey   *JourneySnapshot `json:"journey,omitempty"`
}

func (JourneyCreated) Type() Type { return TypeJourneyCreated }

func (e JourneyCreated) validate() error {
	return errors.Join(e.Metadata.validate(), requireID("journeyId", e.JourneyID), requireID("ownerId", e.OwnerID))
}

type JourneyUpdated struct {
	Metadata
	JourneyID snowflake.ID     `json:"journeyId"`
	OwnerID   snowflake.ID     `json:"ownerId"`
	Journey   *JourneySnapshot `json:"journey,omitempty"`
	// PreviousStartTime is set when the update moved the journey in time.
	PreviousStartTime *time.Time `json:"previousStartTime,omitempty"`
}

func (JourneyUpdated) Type() Type { return TypeJourneyUpdated }

func (e JourneyUpdated) validate() error {
	return errors.Join(e.Metadata.validate(), requireID("journeyId", e.JourneyID), requireID("ownerId", e.OwnerID))
}

type JourneyDeleted struct {
	Metadata
	JourneyID snowflake.ID     `json:"journeyId"`
	OwnerID   snowflake.ID     `json:"ownerId"`
	Journey   *JourneySnapshot `json:"journey,omitempty"`
}

func (JourneyDeleted) Type() Type { return TypeJourneyDeleted }

func (e JourneyDeleted) validate() error {
	return errors.Join(e.Metadata.validate(), requireID("journeyId", e.JourneyID), requireID("ownerId", e.OwnerID))
}

type DailyGoalAchieved struct {
	Metadata
	JourneyID           snowflake.ID    `json:"journeyId"`
	UserID              snowflake.ID    `json:"userId"`
	TotalDistanceForDay decimal.Decimal `json:"totalDistanceForDay"`
	Date                string          `json:"date"`
}

func (DailyGoalAchieved) Type() Type { return TypeDailyGoalAchieved }

func (e DailyGoalAchieved) validate() error {
	var dateErr error
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		dateErr = errors.New("date must be YYYY-MM-DD")
	}
	return errors.Join(e.Metadata.validate(), requireID("journeyId", e.JourneyID), requireID("userId", e.UserID), dateErr)
}

type UserStatusChanged struct {
	Metadata
	UserID    snowflake.ID  `json:"userId"`
	OldStatus string        `json:"oldStatus"`
	NewStatus string        `json:"newStatus"`
	ChangedBy *snowflake.ID `json:"changedBy,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

func (UserStatusChanged) Type() Type { return TypeUserStatusChanged }

func (e UserStatusChanged) validate() error {
	var statusErr error
	if e.NewStatus == "" {
		statusErr = errors.New("newStatus is required")
	}
	return errors.Join(e.Metadata.validate(), requireID("userId", e.UserID), statusErr)
}

func requireID(field string, id snowflake.ID) error {
	if id == 0 {
		return errors.New(field + " is required")
	}
	return nil
}

// Validate reports whether evt carries the fields consumers rely on.
func Validate(evt Event) error {
	if evt == nil {
		return errors.New("event is nil")
	}
	return evt.validate()
}
