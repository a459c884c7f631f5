package events

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var occurredAt = time.Date(2025, 4, 24, 9, 30, 0, 0, time.UTC)

func sampleEvents() []Event {
	changedBy := snowflake.ID(9)
	previous := occurredAt.Add(-48 * time.Hour)
	snapshot := &JourneySnapshot{
		ID:          11,
		OwnerID:     7,
		Name:        "Commute",
		StartTime:   occurredAt,
		ArrivalTime: occurredAt.Add(time.Hour),
		DistanceKm:  decimal.RequireFromString("12.50"),
	}
	return []Event{
		JourneyCreated{Metadata: NewMetadata(occurredAt), JourneyID: 11, OwnerID: 7, Journey: snapshot},
		JourneyUpdated{Metadata: NewMetadata(occurredAt), JourneyID: 11, OwnerID: 7, Journey: snapshot, PreviousStartTime: &previous},
		JourneyDeleted{Metadata: NewMetadata(occurredAt), JourneyID: 11, OwnerID: 7},
		DailyGoalAchieved{Metadata: NewMetadata(occurredAt), JourneyID: 11, UserID: 7, TotalDistanceForDay: decimal.RequireFromString("25.00"), Date: "2025-04-24"},
		UserStatusChanged{Metadata: NewMetadata(occurredAt), UserID: 7, OldStatus: "Active", NewStatus: "Suspended", ChangedBy: &changedBy, Reason: "abuse"},
	}
}

func TestEveryTypeHasDecoderAndSample(t *testing.T) {
	samples := map[Type]bool{}
	for _, evt := range sampleEvents() {
		samples[evt.Type()] = true
	}
	for _, typ := range []Type{TypeJourneyCreated, TypeJourneyUpdated, TypeJourneyDeleted, TypeDailyGoalAchieved, TypeUserStatusChanged} {
		_, ok := decoders[typ]
		assert.True(t, ok, "missing decoder for %s", typ)
		assert.True(t, samples[typ], "missing sample for %s", typ)
	}
	assert.Len(t, Types(), len(samples))
}

func TestEncodeDecodeIsEquivalent(t *testing.T) {
	for _, evt := range sampleEvents() {
		t.Run(string(evt.Type()), func(t *testing.T) {
			payload, err := Encode(evt)
			require.NoError(t, err)

			decoded, err := Decode(string(evt.Type()), payload)
			require.NoError(t, err)
			assert.Equal(t, evt.Type(), decoded.Type())
			assert.Equal(t, evt.Meta().EventID, decoded.Meta().EventID)
			assert.True(t, evt.Meta().OccurredAt.Equal(decoded.Meta().OccurredAt))

			again, err := Encode(decoded)
			require.NoError(t, err)
			assert.JSONEq(t, string(payload), string(again))
		})
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := Decode("JourneyShared", []byte(`{}`))
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode(string(TypeJourneyCreated), []byte(`{"journeyId":`))
	assert.True(t, errors.Is(err, ErrMalformedPayload))

	_, err = Decode(string(TypeJourneyCreated), []byte(`{"eventId":"x"}`))
	assert.True(t, errors.Is(err, ErrMalformedPayload), "missing ids must not decode")

	_, err = Decode(string(TypeDailyGoalAchieved), []byte(`{"eventId":"x","journeyId":"1","userId":"2","date":"24/04/2025"}`))
	assert.True(t, errors.Is(err, ErrMalformedPayload))
}

func TestEncodeRejectsInvalidEvent(t *testing.T) {
	_, err := Encode(JourneyCreated{Metadata: NewMetadata(occurredAt)})
	assert.True(t, errors.Is(err, ErrMalformedPayload))
}

func TestSnowflakeIDsEncodeAsStrings(t *testing.T) {
	payload, err := Encode(JourneyDeleted{Metadata: Metadata{EventID: "e1", OccurredAt: occurredAt}, JourneyID: 11, OwnerID: 7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"eventId":"e1","occurredAt":"2025-04-24T09:30:00Z","journeyId":"11","ownerId":"7"}`, string(payload))
}
