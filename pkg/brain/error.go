package brain

import "errors"

var (
	// ErrNoResult is returned when the model answers "NONE" or nothing.
	ErrNoResult = errors.New("no result")

	// ErrNotConfigured is returned when no thinker is available.
	ErrNotConfigured = errors.New("thinker not configured")
)
