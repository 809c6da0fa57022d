package service

import "errors"

var (
	// ErrNotStarted is returned by operations called before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrStopped is returned by Start once the service has been stopped.
	ErrStopped = errors.New("service stopped")
)
