package domain

import "errors"

var (
	ErrUserNotFound  = errors.New("user_not_found")
	ErrInvalidStatus = errors.New("invalid_user_status")
)
