package embeddings

import "errors"

// ErrEmptyText is returned for blank input. No provider is called.
var ErrEmptyText = errors.New("empty text")
