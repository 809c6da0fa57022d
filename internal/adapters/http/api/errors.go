package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/crowdpulse/internal/adapters/publish"
	"github.com/okian/crowdpulse/internal/adapters/repository"
	"github.com/okian/crowdpulse/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
)

// Error carries the handler operation and the kind an error maps to.
type Error struct {
	Op   string
	Kind error
	Err  error
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind wraps err as kind, raised by op.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap wraps err raised by op, classifying it from the domain errors it wraps.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kindOf(err), Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func kindOf(err error) error {
	switch {
	case errors.Is(err, model.ErrInvalidEvent),
		errors.Is(err, model.ErrInvalidFeedback),
		errors.Is(err, model.ErrInvalidCapacityProfile):
		return ErrBadRequest
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, publish.ErrNoSnapshot):
		return ErrNotFound
	case errors.Is(err, model.ErrEventClosed):
		return ErrConflict
	default:
		return ErrInternal
	}
}

// statusOf maps an error to its HTTP status and response code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "event_closed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
