package model

import "errors"

// Sentinel kinds for domain validation errors.
var (
	ErrInvalidFeedback        = errors.New("invalid feedback")
	ErrInvalidCapacityProfile = errors.New("invalid capacity profile")
	ErrInvalidEvent           = errors.New("invalid event")
	ErrEventClosed            = errors.New("event no longer accepts feedback")
)
