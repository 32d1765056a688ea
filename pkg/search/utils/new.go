// Package searchutils builds the active search backend.
package searchutils

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/search/apiembed"
	"github.com/papercomputeco/mnemo/pkg/search/fts"
	"github.com/papercomputeco/mnemo/pkg/search/vectorsearch"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

type NewBackendOpts struct {
	// Kind is "fts5", "vector" or "api_embedding". Empty selects fts5.
	Kind string

	// Store backs the keyword backend and the API embedding scan.
	Store storage.Driver

	// Index backs the vector backend.
	Index vectorsearch.Index

	APIProvider   string
	APIKey        string
	APIModel      string
	APIBaseURL    string
	APIDimensions int

	Logger *slog.Logger
}

// NewBackend returns the requested backend when it can serve, and the
// keyword backend otherwise. It only fails when the keyword backend has no
// store, or the API embedding client cannot be built.
func NewBackend(o *NewBackendOpts) (search.Backend, error) {
	l := o.Logger
	if l == nil {
		l = logger.Nop()
	}

	switch kind := NormalizeKind(o.Kind); kind {
	case search.TypeVector:
		if o.Index != nil {
			b := vectorsearch.New(o.Index)
			if b.Available() {
				l.Info("using vector search backend")
				return b, nil
			}
		}
		l.Warn("vector index not available, falling back to keyword search")

	case search.TypeAPIEmbedding:
		if strings.TrimSpace(o.APIKey) != "" && o.Store != nil {
			b, err := apiembed.New(apiembed.Config{
				Store:      o.Store,
				Cache:      o.Store,
				Provider:   o.APIProvider,
				APIKey:     o.APIKey,
				Model:      o.APIModel,
				BaseURL:    o.APIBaseURL,
				Dimensions: o.APIDimensions,
				Logger:     l,
			})
			if err != nil {
				return nil, fmt.Errorf("creating api embedding backend: %w", err)
			}
			if b.Available() {
				l.Info("using api embedding search backend", "provider", o.APIProvider, "model", b.Model())
				return b, nil
			}
		}
		l.Warn("api embedding not available, falling back to keyword search")

	case search.TypeFTS5:
	default:
		l.Warn("unknown search backend, falling back to keyword search", "kind", o.Kind)
	}

	if o.Store == nil {
		return nil, search.ErrNoStore
	}
	l.Debug("using keyword search backend")
	return fts.New(o.Store)
}

// NormalizeKind maps backend aliases onto the search.Type constants.
func NormalizeKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "fts", "fts5", "keyword":
		return search.TypeFTS5
	case "vector", "chromadb", "chroma":
		return search.TypeVector
	case "api_embedding", "api", "embedding":
		return search.TypeAPIEmbedding
	default:
		return kind
	}
}
