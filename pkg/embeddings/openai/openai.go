// Package openai implements pkg/embeddings' Embedder for OpenAI-compatible
// /embeddings APIs, including DashScope's compatible mode.
package openai

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
	ProviderOpenAI    = "openai"
	ProviderDashScope = "dashscope"

	DefaultOpenAIModel    = "text-embedding-3-small"
	DefaultDashScopeModel = "text-embedding-v3"

	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultDashScopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
)

// DefaultModel returns the default embedding model for provider.
func DefaultModel(provider string) string {
	if strings.EqualFold(provider, ProviderDashScope) {
		return DefaultDashScopeModel
	}
	return DefaultOpenAIModel
}

// DefaultBaseURL returns the default API base URL for provider.
func DefaultBaseURL(provider string) string {
	if strings.EqualFold(provider, ProviderDashScope) {
		return DefaultDashScopeBaseURL
	}
	return DefaultOpenAIBaseURL
}

// EmbedderConfig holds configuration for the OpenAI-compatible embedder.
type EmbedderConfig struct {
	// Provider selects defaults: "openai" (default) or "dashscope".
	Provider string

	// BaseURL overrides the provider's API base URL.
	BaseURL string

	// APIKey is sent as a bearer token. Required.
	APIKey string

	// Model overrides the provider's default model.
	Model string

	// Dimensions, when non-zero, asks the API for vectors of this size.
	Dimensions int

	Timeout time.Duration
}

// Embedder calls an OpenAI-compatible embeddings endpoint.
type Embedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

type embedRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewEmbedder creates an embedder. It fails when no API key is configured.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s embedding API key is required", providerName(cfg.Provider))
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL(cfg.Provider)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel(cfg.Provider)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Embedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      model,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, embeddings.ErrEmptyText
	}

	body, err := json.Marshal(embedRequest{
		Model:      e.model,
		Input:      text,
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", vector.ErrEmbedding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", vector.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", vector.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: embeddings API returned status %d: %s", vector.ErrEmbedding, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", vector.ErrEmbedding, err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", vector.ErrEmbedding)
	}

	return out.Data[0].Embedding, nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.model
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	return nil
}

func providerName(provider string) string {
	if provider == "" {
		return ProviderOpenAI
	}
	return provider
}

var _ embeddings.Embedder = (*Embedder)(nil)
