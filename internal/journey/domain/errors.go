package domain

import "errors"

var (
	ErrNotFound          = errors.New("journey_not_found")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidDistance   = errors.New("invalid_distance")
	ErrInvalidTimeRange  = errors.New("invalid_time_range")
	ErrInvalidTransport  = errors.New("invalid_transport_type")
	ErrInvalidOwner      = errors.New("invalid_owner")
	ErrAlreadyDeleted    = errors.New("journey_deleted")
	ErrAlreadyFavorited  = errors.New("journey_already_favorited")
	ErrCannotFavoriteOwn = errors.New("cannot_favorite_own_journey")
)
