package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidCardID           = errors.New("invalid card id")
	ErrActionSourceUnavailable = errors.New("action source unavailable")
	ErrInvalidSnapshot         = errors.New("invalid snapshot")
)
