package config

const (
	defaultSearchBackend  = "fts5"
	defaultAPIProvider    = "openai"
	defaultVectorProvider = "sqlite-vec"
	defaultCollection     = "memories"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultBrainProvider = "none"
	defaultBrainTimeout  = "30s"

	defaultMaxTokens     = 700
	defaultMinTurnLength = 10
	defaultWorkers       = 1

	// Every day at 03:00 local time.
	defaultSchedule = "0 3 * * *"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Search: SearchConfig{
			Backend:     defaultSearchBackend,
			APIProvider: defaultAPIProvider,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Brain: BrainConfig{
			Provider: defaultBrainProvider,
			Timeout:  defaultBrainTimeout,
		},
		Memory: MemoryConfig{
			MaxTokens:     defaultMaxTokens,
			MinTurnLength: defaultMinTurnLength,
			Workers:       defaultWorkers,
		},
		Lifecycle: LifecycleConfig{
			Schedule: defaultSchedule,
		},
	}
}
