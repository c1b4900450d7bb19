package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound is returned when no user exists for the supplied identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidDuration rejects negative, non-finite or over-long durations.
	ErrInvalidDuration = errors.New("invalid activity duration")
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrActivityInProgress is returned when a user already has a running activity.
	ErrActivityInProgress = errors.New("activity already in progress")
	// ErrNoActivityInProgress is returned when a stop is requested but nothing is running.
	ErrNoActivityInProgress = errors.New("no activity in progress")
	// ErrInvalidSettings rejects out-of-range settings updates.
	ErrInvalidSettings = errors.New("invalid settings")
)

// ValidationError reports a request field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
