package domain

import "errors"

var (
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidCardID      = errors.New("invalid card id")
	ErrInvalidTrackedList = errors.New("invalid tracked list")
)
