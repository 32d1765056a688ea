// Package ollama implements embeddings.Embedder against a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/vector"
)

const (
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultBaseURL        = "http://localhost:11434"

	defaultTimeout = 2 * time.Minute
)

// EmbedderConfig configures an Embedder. Zero values fall back to the
// package defaults.
type EmbedderConfig struct {
	BaseURL string
	Model   string

	// Dimensions, when non-zero, asks models that support it for vectors of
	// this size.
	Dimensions int

	Timeout time.Duration
}

// Embedder calls Ollama's /api/embed endpoint.
type Embedder struct {
	endpoint   string
	model      string
	dimensions int
	client     *http.Client
}

var _ embeddings.Embedder = (*Embedder)(nil)

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`

	// Truncate lets Ollama cut memories longer than the model's context
	// instead of rejecting them.
	Truncate   bool `json:"truncate"`
	Dimensions int  `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Embedder{
		endpoint:   strings.TrimRight(base, "/") + "/api/embed",
		model:      model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// Embed returns the embedding of text. Failures wrap vector.ErrEmbedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, embeddings.ErrEmptyText
	}

	body, err := json.Marshal(embedRequest{
		Model:      e.model,
		Input:      text,
		Truncate:   true,
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", vector.ErrEmbedding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", vector.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama unreachable: %v", vector.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: ollama returned status %d: %s", vector.ErrEmbedding, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", vector.ErrEmbedding, err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", vector.ErrEmbedding)
	}
	return out.Embeddings[0], nil
}

func (e *Embedder) Model() string {
	return e.model
}

func (e *Embedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
