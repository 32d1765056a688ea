package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent mnemo configuration stored as config.toml
// in the .mnemo/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Search      SearchConfig      `toml:"search"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Brain       BrainConfig       `toml:"brain"`
	Memory      MemoryConfig      `toml:"memory"`
	Lifecycle   LifecycleConfig   `toml:"lifecycle"`
}

// StorageConfig holds the memory database settings.
type StorageConfig struct {
	// SQLitePath defaults to memory.db inside the .mnemo/ directory.
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// SearchConfig selects the active search backend. The api_* fields only
// apply to the api_embedding backend.
type SearchConfig struct {
	Backend       string `toml:"backend,omitempty"`
	APIProvider   string `toml:"api_provider,omitempty"`
	APIModel      string `toml:"api_model,omitempty"`
	APIBaseURL    string `toml:"api_base_url,omitempty"`
	APIKey        string `toml:"api_key,omitempty"`
	APIDimensions uint   `toml:"api_dimensions,omitempty"`
}

// VectorStoreConfig holds vector store settings for the vector backend.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
}

// EmbeddingConfig holds embedding provider settings for the vector backend.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// BrainConfig holds the language model used for extraction and review.
type BrainConfig struct {
	Provider string `toml:"provider,omitempty"`
	Model    string `toml:"model,omitempty"`
	BaseURL  string `toml:"base_url,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
	Timeout  string `toml:"timeout,omitempty"`
}

// TimeoutDuration parses Timeout, returning zero when it is unset or invalid.
func (b BrainConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(b.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// MemoryConfig holds memory manager settings.
type MemoryConfig struct {
	// IdentityDir holds MEMORY.md. Defaults to the .mnemo/ directory.
	IdentityDir   string `toml:"identity_dir,omitempty"`
	Persona       string `toml:"persona,omitempty"`
	MaxTokens     uint   `toml:"max_tokens,omitempty"`
	MinTurnLength uint   `toml:"min_turn_length,omitempty"`
	Workers       uint   `toml:"workers,omitempty"`
}

// LifecycleConfig holds consolidation settings.
type LifecycleConfig struct {
	// Schedule is the cron expression used by "mnemo consolidate --schedule".
	Schedule string `toml:"schedule,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),

	"search.backend":        stringKey(func(c *Config) *string { return &c.Search.Backend }),
	"search.api_provider":   stringKey(func(c *Config) *string { return &c.Search.APIProvider }),
	"search.api_model":      stringKey(func(c *Config) *string { return &c.Search.APIModel }),
	"search.api_base_url":   stringKey(func(c *Config) *string { return &c.Search.APIBaseURL }),
	"search.api_key":        stringKey(func(c *Config) *string { return &c.Search.APIKey }),
	"search.api_dimensions": uintKey("search.api_dimensions", func(c *Config) *uint { return &c.Search.APIDimensions }),

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"vector_store.api_key":    stringKey(func(c *Config) *string { return &c.VectorStore.APIKey }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.api_key":    stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),

	"brain.provider": stringKey(func(c *Config) *string { return &c.Brain.Provider }),
	"brain.model":    stringKey(func(c *Config) *string { return &c.Brain.Model }),
	"brain.base_url": stringKey(func(c *Config) *string { return &c.Brain.BaseURL }),
	"brain.api_key":  stringKey(func(c *Config) *string { return &c.Brain.APIKey }),
	"brain.timeout": {
		get: func(c *Config) string { return c.Brain.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for brain.timeout: %w", err)
			}
			c.Brain.Timeout = v
			return nil
		},
	},

	"memory.identity_dir":    stringKey(func(c *Config) *string { return &c.Memory.IdentityDir }),
	"memory.persona":         stringKey(func(c *Config) *string { return &c.Memory.Persona }),
	"memory.max_tokens":      uintKey("memory.max_tokens", func(c *Config) *uint { return &c.Memory.MaxTokens }),
	"memory.min_turn_length": uintKey("memory.min_turn_length", func(c *Config) *uint { return &c.Memory.MinTurnLength }),
	"memory.workers":         uintKey("memory.workers", func(c *Config) *uint { return &c.Memory.Workers }),

	"lifecycle.schedule": stringKey(func(c *Config) *string { return &c.Lifecycle.Schedule }),
}

// orderedKeys lists configKeys in TOML section order.
var orderedKeys = []string{
	"storage.sqlite_path",
	"search.backend",
	"search.api_provider",
	"search.api_model",
	"search.api_base_url",
	"search.api_key",
	"search.api_dimensions",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.collection",
	"vector_store.api_key",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.api_key",
	"embedding.dimensions",
	"brain.provider",
	"brain.model",
	"brain.base_url",
	"brain.api_key",
	"brain.timeout",
	"memory.identity_dir",
	"memory.persona",
	"memory.max_tokens",
	"memory.min_turn_length",
	"memory.workers",
	"lifecycle.schedule",
}

// secretKeys are masked by "mnemo config list".
var secretKeys = map[string]bool{
	"search.api_key":       true,
	"vector_store.api_key": true,
	"embedding.api_key":    true,
	"brain.api_key":        true,
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}
