package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"docrag/internal/adapter/chunker"
	"docrag/internal/domain"
)

// DirName is the per-project data directory holding the store and index.
const DirName = ".docrag"

// Config holds all configuration for docrag.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Pack      PackConfig      `yaml:"pack"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IndexConfig holds chunking configuration. Sizes are in characters.
type IndexConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

type RetrieveConfig struct {
	TopK               int  `yaml:"top_k"`
	AllowModelMismatch bool `yaml:"allow_model_mismatch"` // warn instead of failing
	CacheTTLSeconds    int  `yaml:"cache_ttl_seconds"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "openai", "mock"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"` // OpenAI-compatible endpoint, e.g. Ollama
	Dimension int    `yaml:"dimension"` // mock provider only
	BatchSize int    `yaml:"batch_size"`
}

type StoreConfig struct {
	KeepGenerations    int `yaml:"keep_generations"`
	LockTimeoutSeconds int `yaml:"lock_timeout_seconds"`
}

type PackConfig struct {
	TokenBudget int `yaml:"token_budget"`
}

type IngestConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			ChunkSize:    1200,
			ChunkOverlap: 150,
		},
		Retrieve: RetrieveConfig{
			TopK:            5,
			CacheTTLSeconds: 300,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 256,
			BatchSize: 64,
		},
		Store: StoreConfig{
			KeepGenerations:    2,
			LockTimeoutSeconds: 5,
		},
		Pack: PackConfig{
			TokenBudget: 3000,
		},
		Ingest: IngestConfig{
			Includes: []string{"**/*.txt", "**/*.md"},
			Excludes: []string{"**/.git/**", "**/node_modules/**", "**/" + DirName + "/**"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir looks for docrag.yaml, then .docrag/config.yaml.
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "docrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, DirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if err := chunker.Validate(c.Index.ChunkSize, c.Index.ChunkOverlap); err != nil {
		return err
	}
	if c.Retrieve.TopK <= 0 {
		return &domain.ConfigError{Field: "retrieve.top_k", Reason: "must be positive"}
	}
	if c.Embedding.Model == "" {
		return &domain.ConfigError{Field: "embedding.model", Reason: "must be set"}
	}
	if c.Embedding.BatchSize <= 0 {
		return &domain.ConfigError{Field: "embedding.batch_size", Reason: "must be positive"}
	}
	if c.Store.KeepGenerations < 1 {
		return &domain.ConfigError{Field: "store.keep_generations", Reason: "must be at least 1"}
	}
	return nil
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Retrieve.CacheTTLSeconds) * time.Second
}

func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Store.LockTimeoutSeconds) * time.Second
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StoreDBPath returns the path to the bbolt database.
func StoreDBPath(dir string) string {
	return filepath.Join(dir, DirName, "store.db")
}

// IndexDir returns the directory holding index generations.
func IndexDir(dir string) string {
	return filepath.Join(dir, DirName, "index")
}

// EnsureDataDir ensures the .docrag directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DirName), 0755)
}
