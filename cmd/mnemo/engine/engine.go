// Package engine opens the memory engine for mnemo commands from the
// resolved configuration: flags, MNEMO_ environment variables, config.toml
// and defaults, in that order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	brainutils "github.com/papercomputeco/mnemo/pkg/brain/utils"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
	"github.com/papercomputeco/mnemo/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/mnemo/pkg/embeddings/utils"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/manager"
	"github.com/papercomputeco/mnemo/pkg/search"
	searchutils "github.com/papercomputeco/mnemo/pkg/search/utils"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlite"
	"github.com/papercomputeco/mnemo/pkg/vector"
	vectorutils "github.com/papercomputeco/mnemo/pkg/vector/utils"
)

// Engine is an open memory manager together with the settings it was built
// from.
type Engine struct {
	Manager *manager.Manager
	Config  *config.Config

	// Dir is the resolved .mnemo/ directory.
	Dir    string
	Logger *slog.Logger

	index   *vector.Index
	logFile io.Closer
}

// AddFlags registers the engine flags on cmd.
func AddFlags(cmd *cobra.Command) {
	config.AddFlags(cmd, config.Registry, config.EngineFlags)
}

// Settings resolves the configuration and the .mnemo/ directory for cmd.
func Settings(cmd *cobra.Command) (*config.Config, string, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, "", err
	}
	config.BindRegisteredFlags(v, cmd, config.Registry, config.EngineFlags)
	config.BindRegisteredFlags(v, cmd, config.Registry, []string{config.FlagSchedule})

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, "", fmt.Errorf("resolving config: %w", err)
	}

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving mnemo directory: %w", err)
	}
	return cfg, dir, nil
}

// NewLogger builds the CLI logger: pretty output on a terminal, text
// otherwise, always on stderr so stdout stays parseable. When cmd has a
// --log-file, records are also appended to it as JSON at debug level; the
// returned closer closes that file and is nil otherwise.
func NewLogger(cmd *cobra.Command) (*slog.Logger, io.Closer, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	l := logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(term.IsTerminal(int(os.Stderr.Fd()))),
		logger.WithWriter(os.Stderr),
	)

	path, _ := cmd.Flags().GetString("log-file")
	if path == "" {
		return l, nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(
		logger.WithJSON(true),
		logger.WithLevel(slog.LevelDebug),
		logger.WithWriter(f),
	)
	return logger.Multi(l, file), f, nil
}

// Open builds the store, search backend and thinker from cmd's settings and
// starts a memory manager on them.
func Open(ctx context.Context, cmd *cobra.Command) (*Engine, error) {
	cfg, dir, err := Settings(cmd)
	if err != nil {
		return nil, err
	}
	l, logFile, err := NewLogger(cmd)
	if err != nil {
		return nil, err
	}
	e := &Engine{Config: cfg, Dir: dir, Logger: l, logFile: logFile}

	dbPath := ResolveSQLitePath(cfg.Storage.SQLitePath, dir)
	store, err := sqlite.Open(dbPath, sqlite.WithLogger(e.Logger))
	if err != nil {
		e.closeLogFile()
		return nil, fmt.Errorf("opening memory database %s: %w", dbPath, err)
	}
	e.Logger.Debug("opened memory database", "path", dbPath)

	backend, err := e.newBackend(store)
	if err != nil {
		_ = store.Close()
		e.closeLogFile()
		return nil, err
	}

	thinker, err := brainutils.NewThinker(&brainutils.NewThinkerOpts{
		Provider: cfg.Brain.Provider,
		Model:    cfg.Brain.Model,
		APIKey:   cfg.Brain.APIKey,
		BaseURL:  cfg.Brain.BaseURL,
	})
	if err != nil {
		e.closeIndex()
		_ = store.Close()
		e.closeLogFile()
		return nil, fmt.Errorf("creating thinker: %w", err)
	}

	identityDir := cfg.Memory.IdentityDir
	if identityDir == "" {
		identityDir = dir
	}

	e.Manager, err = manager.New(ctx, manager.Config{
		Store:         store,
		Backend:       backend,
		Thinker:       thinker,
		Timeout:       cfg.Brain.TimeoutDuration(),
		IdentityDir:   identityDir,
		Persona:       cfg.Memory.Persona,
		MaxTokens:     int(cfg.Memory.MaxTokens),
		MinTurnLength: int(cfg.Memory.MinTurnLength),
		Workers:       cfg.Memory.Workers,
		Logger:        e.Logger,
	})
	if err != nil {
		e.closeIndex()
		_ = store.Close()
		e.closeLogFile()
		return nil, fmt.Errorf("starting memory manager: %w", err)
	}
	return e, nil
}

// newBackend builds the configured search backend. A vector index that
// cannot be built is logged and left out, so the factory falls back to
// keyword search.
func (e *Engine) newBackend(store *sqlite.Store) (search.Backend, error) {
	cfg := e.Config
	opts := &searchutils.NewBackendOpts{
		Kind:          cfg.Search.Backend,
		Store:         store,
		APIProvider:   cfg.Search.APIProvider,
		APIKey:        cfg.Search.APIKey,
		APIModel:      cfg.Search.APIModel,
		APIBaseURL:    cfg.Search.APIBaseURL,
		APIDimensions: int(cfg.Search.APIDimensions),
		Logger:        e.Logger,
	}

	if searchutils.NormalizeKind(cfg.Search.Backend) == search.TypeVector {
		index, err := e.newIndex(store)
		if err != nil {
			e.Logger.Warn("vector index unavailable", "error", err)
		} else {
			e.index = index
			opts.Index = index
		}
	}

	backend, err := searchutils.NewBackend(opts)
	if err != nil {
		e.closeIndex()
		return nil, fmt.Errorf("creating search backend: %w", err)
	}
	return backend, nil
}

func (e *Engine) newIndex(store *sqlite.Store) (*vector.Index, error) {
	cfg := e.Config
	embedderOpts := &embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       cfg.Embedding.APIKey,
		Dimensions:   int(cfg.Embedding.Dimensions),
	}
	embedder, err := embeddingutils.NewEmbedder(embedderOpts)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	cached, err := embeddings.NewCache(embeddings.CacheConfig{
		Embedder: embedder,
		Model:    embeddingutils.ModelName(embedderOpts),
		Store:    store,
		Logger:   e.Logger,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}

	driver, err := vectorutils.NewVectorDriver(&vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		TargetURL:    vectorTarget(cfg.VectorStore.Provider, cfg.VectorStore.Target, e.Dir),
		Collection:   cfg.VectorStore.Collection,
		Dimensions:   cfg.Embedding.Dimensions,
		APIKey:       cfg.VectorStore.APIKey,
		Logger:       e.Logger,
	})
	if err != nil {
		_ = cached.Close()
		return nil, fmt.Errorf("creating vector driver: %w", err)
	}

	return vector.NewIndex(vector.IndexConfig{
		Embedder: cached,
		Driver:   driver,
		Logger:   e.Logger,
	}), nil
}

// vectorTarget places embedded vector stores inside the .mnemo/ directory
// when no target is configured.
func vectorTarget(provider, target, dir string) string {
	if target != "" {
		return target
	}
	switch provider {
	case "sqlite-vec", "sqlitevec":
		return filepath.Join(dir, "vectors.db")
	case "chromem":
		return filepath.Join(dir, "chromem")
	default:
		return ""
	}
}

func (e *Engine) closeIndex() {
	if e.index != nil {
		if err := e.index.Close(); err != nil {
			e.Logger.Warn("closing vector index failed", "error", err)
		}
		e.index = nil
	}
}

func (e *Engine) closeLogFile() {
	if e.logFile != nil {
		_ = e.logFile.Close()
		e.logFile = nil
	}
}

// Close stops the manager, which closes the search backend and the store,
// then the vector index and the log file.
func (e *Engine) Close() error {
	var err error
	if e.Manager != nil {
		err = e.Manager.Close()
	}
	if e.index != nil {
		err = errors.Join(err, e.index.Close())
		e.index = nil
	}
	if e.logFile != nil {
		err = errors.Join(err, e.logFile.Close())
		e.logFile = nil
	}
	return err
}
