// Package brainutils builds a brain.Thinker from configuration.
package brainutils

import (
	"fmt"
	"os"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/brain"
	"github.com/papercomputeco/mnemo/pkg/brain/anthropic"
	"github.com/papercomputeco/mnemo/pkg/brain/ollama"
	"github.com/papercomputeco/mnemo/pkg/brain/openai"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderNone      = "none"
)

type NewThinkerOpts struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewThinker builds a thinker. The API key resolves from the options first,
// then from ANTHROPIC_API_KEY or OPENAI_API_KEY. Provider "none" or "" yields
// a nil thinker and no error; the engine then runs on its deterministic
// fallbacks.
func NewThinker(o *NewThinkerOpts) (brain.Thinker, error) {
	provider := strings.ToLower(strings.TrimSpace(o.Provider))

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = apiKeyFromEnv(provider)
	}

	switch provider {
	case "", ProviderNone:
		return nil, nil
	case ProviderAnthropic:
		t, err := anthropic.New(anthropic.Config{APIKey: apiKey, Model: o.Model, BaseURL: o.BaseURL})
		if err != nil {
			return nil, err
		}
		return t, nil
	case ProviderOpenAI:
		t, err := openai.New(openai.Config{APIKey: apiKey, Model: o.Model, BaseURL: o.BaseURL})
		if err != nil {
			return nil, err
		}
		return t, nil
	case ProviderOllama:
		return ollama.New(ollama.Config{BaseURL: o.BaseURL, Model: o.Model}), nil
	default:
		return nil, fmt.Errorf("unsupported brain provider: %s", o.Provider)
	}
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}
