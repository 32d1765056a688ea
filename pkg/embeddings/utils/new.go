// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/embeddings/ollama"
	"github.com/papercomputeco/mnemo/pkg/embeddings/openai"
)

type NewEmbedderOpts struct {
	// ProviderType is one of "ollama", "openai" or "dashscope".
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
	Dimensions   int
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case "ollama":
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	case openai.ProviderOpenAI, openai.ProviderDashScope:
		return openai.NewEmbedder(openai.EmbedderConfig{
			Provider:   o.ProviderType,
			BaseURL:    o.TargetURL,
			APIKey:     o.APIKey,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}

// ModelName returns the model an embedder built from o will use, for
// embedding cache keys.
func ModelName(o *NewEmbedderOpts) string {
	if o.Model != "" {
		return o.ProviderType + "/" + o.Model
	}
	switch o.ProviderType {
	case "ollama":
		return "ollama/" + ollama.DefaultEmbeddingModel
	default:
		return o.ProviderType + "/" + openai.DefaultModel(o.ProviderType)
	}
}
