package storage

// ErrNotFound is returned when a record doesn't exist in the store.
type ErrNotFound struct {
	// Kind names the entity table, e.g. "memory" or "episode".
	Kind string
	ID   string
}

func (e ErrNotFound) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "record"
	}
	if e.ID == "" {
		return kind + " not found"
	}

	return kind + " not found: " + e.ID
}
