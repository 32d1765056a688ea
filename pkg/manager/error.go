package manager

import "errors"

var (
	// ErrNoStore is returned by New without a store.
	ErrNoStore = errors.New("memory manager requires a store")

	// ErrDuplicate is returned by AddMemory when a live memory of the same
	// type already holds the same content.
	ErrDuplicate = errors.New("duplicate memory")

	// ErrNoSession is returned by session operations called before
	// StartSession.
	ErrNoSession = errors.New("no active session")
)
