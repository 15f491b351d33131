package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrValidation         = errors.New("validation error")
	ErrTooManyInflight    = errors.New("too many in-flight jobs")
	ErrLimitExceeded      = errors.New("monthly generation limit exceeded")
	ErrInvalidState       = errors.New("invalid job state")
	ErrConfiguration      = errors.New("configuration error")
	ErrDuplicateOperation = errors.New("duplicate operation")
)
