package processor

import (
	"errors"

	"github.com/smallbiznis/journeys/internal/events"
	"github.com/smallbiznis/journeys/pkg/db"
)

// Classifier reports whether a delivery failure can never succeed on retry.
type Classifier func(err error) bool

// IsPermanent treats unresolvable or undecodable envelopes and handler errors
// wrapping events.ErrPermanent as permanent. Lock and serialization failures
// stay transient even when a handler wrapped them.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if db.IsRetryableErr(err) {
		return false
	}
	return errors.Is(err, events.ErrUnknownType) ||
		errors.Is(err, events.ErrMalformedPayload) ||
		errors.Is(err, events.ErrPermanent)
}
