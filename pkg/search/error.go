package search

import "errors"

var (
	// ErrNoStore is returned when the keyword backend is built without a store.
	ErrNoStore = errors.New("keyword search requires a store")

	// ErrUnavailable is returned by a backend asked to search while it
	// cannot serve.
	ErrUnavailable = errors.New("search backend unavailable")
)
