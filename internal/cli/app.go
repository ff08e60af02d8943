package cli

import (
	"fmt"

	"docrag/config"
	"docrag/internal/adapter/analyzer"
	"docrag/internal/adapter/cache"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/indexstore"
	"docrag/internal/adapter/store"
	"docrag/internal/logger"
	"docrag/internal/usecase"
)

// app holds the collaborators shared by the commands of one invocation.
type app struct {
	cfg   *config.Config
	store *store.BoltStore
	index *indexstore.FileStore
	cache *cache.IndexCache
}

// openApp opens the project store, applying pending schema migrations.
// The bbolt file lock is held until Close.
func openApp() (*app, error) {
	cfg := GetConfig()
	dir := GetRootDir()

	if err := config.EnsureDataDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.NewBoltStore(config.StoreDBPath(dir), cfg.LockTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to open store (is another docrag process running?): %w", err)
	}

	migration, err := st.CheckMigration(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to check migration: %w", err)
	}
	if migration.NeedsMigration {
		logger.Info("running schema migration: %s", migration.Reason)
		if err := st.Migrate(); err != nil {
			st.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	return &app{
		cfg:   cfg,
		store: st,
		index: indexstore.NewFileStore(config.IndexDir(dir), cfg.Store.KeepGenerations),
		cache: cache.NewIndexCache(cfg.CacheTTL()),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) buildUseCase() (*usecase.BuildIndexUseCase, error) {
	embedder, err := embedding.New(a.cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return usecase.NewBuildIndexUseCase(a.store, embedder, a.index, a.cache, usecase.BuildOptions{
		ChunkSize:    a.cfg.Index.ChunkSize,
		ChunkOverlap: a.cfg.Index.ChunkOverlap,
		BatchSize:    a.cfg.Embedding.BatchSize,
	}), nil
}

func (a *app) retrieveUseCase() (*usecase.RetrieveUseCase, error) {
	embedder, err := embedding.New(a.cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	packer := usecase.NewPackUseCase(analyzer.NewTokenizer())
	return usecase.NewRetrieveUseCase(a.store, embedder, a.index, a.cache, packer, usecase.RetrieveOptions{
		TopK:               a.cfg.Retrieve.TopK,
		AllowModelMismatch: a.cfg.Retrieve.AllowModelMismatch,
		TokenBudget:        a.cfg.Pack.TokenBudget,
	}), nil
}
