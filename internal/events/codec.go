package events

import (
	"encoding/json"
	"fmt"
	"sort"
)

type decodeFunc func(payload []byte) (Event, error)

// decoders is the dispatch table from stored tag to typed decoder.
var decoders = map[Type]decodeFunc{
	TypeJourneyCreated:    decodeAs[JourneyCreated],
	TypeJourneyUpdated:    decodeAs[JourneyUpdated],
	TypeJourneyDeleted:    decodeAs[JourneyDeleted],
	TypeDailyGoalAchieved: decodeAs[DailyGoalAchieved],
	TypeUserStatusChanged: decodeAs[UserStatusChanged],
}

func decodeAs[E Event](payload []byte) (Event, error) {
	var evt E
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := evt.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return evt, nil
}

// Encode serializes evt for storage in an outbox envelope.
func Encode(evt Event) ([]byte, error) {
	if err := Validate(evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, ok := decoders[evt.Type()]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, evt.Type())
	}
	return json.Marshal(evt)
}

// Decode resolves tag and deserializes payload into the matching variant.
func Decode(tag string, payload []byte) (Event, error) {
	decode, ok := decoders[Type(tag)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	return decode(payload)
}

// Types lists every known event tag in stable order.
func Types() []Type {
	out := make([]Type, 0, len(decoders))
	for t := range decoders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
