package config

import (
	"fmt"
	"strings"
)

// presets tune the defaults for a provider. Each receives a fresh default
// config.
var presets = []struct {
	name  string
	apply func(c *Config)
}{
	{"offline", func(*Config) {}},
	{"anthropic", func(c *Config) {
		c.Brain.Provider = "anthropic"
	}},
	{"openai", func(c *Config) {
		c.Brain.Provider = "openai"
		c.Search.Backend = "api_embedding"
		c.Search.APIProvider = "openai"
	}},
	{"ollama", func(c *Config) {
		c.Brain.Provider = "ollama"
		c.Brain.BaseURL = "http://localhost:11434"
		c.Search.Backend = "vector"
		c.Embedding.Model = "nomic-embed-text"
	}},
}

// PresetConfig returns the defaults adjusted for the named preset. Names are
// case-insensitive.
func PresetConfig(name string) (*Config, error) {
	for _, p := range presets {
		if strings.EqualFold(p.name, name) {
			cfg := NewDefaultConfig()
			p.apply(cfg)
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
}

// ValidPresetNames lists the preset names accepted by PresetConfig.
func ValidPresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.name
	}
	return names
}
