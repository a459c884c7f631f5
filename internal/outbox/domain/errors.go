package domain

import "errors"

// ErrNotPending is returned when a status update finds the envelope already terminal.
var ErrNotPending = errors.New("outbox_envelope_not_pending")
