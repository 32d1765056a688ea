package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag describes a CLI flag that overrides one config key. Commands refer to
// flags by registry key so "--sqlite" means the same thing on "mnemo search"
// and "mnemo consolidate".
type Flag struct {
	Name      string
	Shorthand string

	// ViperKey is the dotted config key the flag overrides.
	ViperKey    string
	Description string
}

// FlagSet maps registry keys to flags.
type FlagSet map[string]Flag

// Registry keys.
const (
	FlagSQLite          = "sqlite"
	FlagSearchBackend   = "search-backend"
	FlagVectorStoreProv = "vector-store-provider"
	FlagVectorStoreTgt  = "vector-store-target"
	FlagEmbeddingProv   = "embedding-provider"
	FlagEmbeddingTgt    = "embedding-target"
	FlagEmbeddingModel  = "embedding-model"
	FlagEmbeddingDims   = "embedding-dimensions"
	FlagBrainProvider   = "brain-provider"
	FlagBrainModel      = "brain-model"
	FlagIdentityDir     = "identity-dir"
	FlagPersona         = "persona"
	FlagMaxTokens       = "max-tokens"
	FlagSchedule        = "schedule"
)

// Registry holds the flags shared by mnemo commands.
var Registry = FlagSet{
	FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the memory database (default: .mnemo/memory.db)"},
	FlagSearchBackend:   {Name: "search-backend", Shorthand: "b", ViperKey: "search.backend", Description: "Search backend (fts5, vector, api_embedding)"},
	FlagVectorStoreProv: {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store provider (sqlite-vec, chromem, chroma, qdrant)"},
	FlagVectorStoreTgt:  {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector store URL or path"},
	FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama, openai, dashscope)"},
	FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	FlagEmbeddingModel:  {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	FlagEmbeddingDims:   {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding dimensionality"},
	FlagBrainProvider:   {Name: "brain-provider", ViperKey: "brain.provider", Description: "Language model provider (anthropic, openai, ollama, none)"},
	FlagBrainModel:      {Name: "brain-model", ViperKey: "brain.model", Description: "Language model name"},
	FlagIdentityDir:     {Name: "identity-dir", ViperKey: "memory.identity_dir", Description: "Directory holding MEMORY.md (default: the .mnemo directory)"},
	FlagPersona:         {Name: "persona", ViperKey: "memory.persona", Description: "Persona used to boost matching memories"},
	FlagMaxTokens:       {Name: "max-tokens", ViperKey: "memory.max_tokens", Description: "Token budget of the ranked context section"},
	FlagSchedule:        {Name: "schedule", ViperKey: "lifecycle.schedule", Description: "Cron expression for scheduled consolidation"},
}

// EngineFlags are the registry keys every command that opens the memory
// engine registers.
var EngineFlags = []string{
	FlagSQLite,
	FlagSearchBackend,
	FlagVectorStoreProv,
	FlagVectorStoreTgt,
	FlagEmbeddingProv,
	FlagEmbeddingTgt,
	FlagEmbeddingModel,
	FlagEmbeddingDims,
	FlagBrainProvider,
	FlagBrainModel,
	FlagIdentityDir,
	FlagPersona,
	FlagMaxTokens,
}

// AddFlags registers the given registry keys on cmd. Every flag is a string
// whose default is the config default for its key; viper parses numeric keys
// on the way into the Config. Flags already on cmd are left alone.
func AddFlags(cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	defaults := NewDefaultConfig()
	for _, key := range registryKeys {
		def, ok := fs[key]
		if !ok || cmd.Flags().Lookup(def.Name) != nil {
			continue
		}

		var value string
		if info, ok := configKeys[def.ViperKey]; ok {
			value = info.get(defaults)
		}
		cmd.Flags().StringP(def.Name, def.Shorthand, value, def.Description)
	}
}

// BindRegisteredFlags connects flags already on cmd to their viper keys so
// they take part in the precedence chain (flag > env > config file > default).
// Call it after InitViper and after flag parsing.
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, key := range registryKeys {
		def, ok := fs[key]
		if !ok {
			continue
		}
		if f := cmd.Flags().Lookup(def.Name); f != nil {
			_ = v.BindPFlag(def.ViperKey, f)
		}
	}
}
