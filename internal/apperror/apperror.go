// internal/apperror/apperror.go
package apperror

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the lobby and game engines. Test with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyJoined       = errors.New("already joined")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidTrackIndex   = errors.New("invalid track index")
	ErrAlreadyAnswered     = errors.New("already answered")
	ErrIndexOutOfRange     = errors.New("index out of range")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMissingChannel      = errors.New("missing channel")
	ErrValidation          = errors.New("validation error")

	// ErrConflict is returned by storage on a unique-constraint violation.
	ErrConflict = errors.New("conflict")
)

// AppError pairs one of the sentinel kinds with a human readable message.
type AppError struct {
	Err     error
	Message string
	Field   string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

func AlreadyJoined(resource string) *AppError {
	return &AppError{
		Err:     ErrAlreadyJoined,
		Message: fmt.Sprintf("user already joined this %s", resource),
	}
}

// Forbidden means the caller is not allowed to act on the entity, usually because
// they are not one of its participants.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func Validation(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

func InvalidTrackIndex(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidTrackIndex,
		Message: message,
	}
}

func AlreadyAnswered(trackIndex int) *AppError {
	return &AppError{
		Err:     ErrAlreadyAnswered,
		Message: fmt.Sprintf("track %d was already answered", trackIndex),
	}
}

func IndexOutOfRange(trackIndex, length int) *AppError {
	return &AppError{
		Err:     ErrIndexOutOfRange,
		Message: fmt.Sprintf("track index %d out of range (game has %d tracks)", trackIndex, length),
	}
}

// Upstream wraps a catalog failure. The cause is kept in the message only; callers
// match on ErrUpstreamUnavailable.
func Upstream(cause error) *AppError {
	return &AppError{
		Err:     ErrUpstreamUnavailable,
		Message: fmt.Sprintf("music catalog unavailable: %v", cause),
	}
}

func MissingChannel(key string) *AppError {
	return &AppError{
		Err:     ErrMissingChannel,
		Message: fmt.Sprintf("no fan-out channel for %s", key),
	}
}

// Kind returns the machine readable name of the first sentinel found in err's chain,
// or "INTERNAL" when err carries none of them.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAlreadyJoined):
		return "ALREADY_JOINED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrInvalidTrackIndex):
		return "INVALID_TRACK_INDEX"
	case errors.Is(err, ErrAlreadyAnswered):
		return "ALREADY_ANSWERED"
	case errors.Is(err, ErrIndexOutOfRange):
		return "INDEX_OUT_OF_RANGE"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "UPSTREAM_UNAVAILABLE"
	case errors.Is(err, ErrMissingChannel):
		return "MISSING_CHANNEL"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	}
	return "INTERNAL"
}
