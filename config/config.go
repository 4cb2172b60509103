// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads normdoc settings from a YAML file, a .env file and
// NORMDOC_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/normdoc/ai"
	"github.com/poiesic/normdoc/chunker"
	"github.com/poiesic/normdoc/embedding"
	"github.com/poiesic/normdoc/parser"
	"github.com/poiesic/normdoc/reindex"
	"github.com/poiesic/normdoc/search"
)

// Backend names.
const (
	RelationalSQLite   = "sqlite"
	RelationalPostgres = "postgres"
	VectorBadger       = "badger"
	VectorPgvector     = "pgvector"
)

// StorageConfig selects and configures the relational and vector stores.
type StorageConfig struct {
	Relational  string `yaml:"relational"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	Vector      string `yaml:"vector"`
	BadgerPath  string `yaml:"badger_path"`
	InMemory    bool   `yaml:"in_memory"`
	Collection  string `yaml:"collection"`
}

// EmbeddingConfig configures the embedding provider and generator.
type EmbeddingConfig struct {
	Host              string        `yaml:"host"`
	Model             string        `yaml:"model"`
	Token             string        `yaml:"token"`
	Dimensions        int           `yaml:"dimensions"`
	BatchSize         int           `yaml:"batch_size"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// ChunkingConfig bounds chunk sizes, in words.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// ParserConfig limits text extraction.
type ParserConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxFileSize int64         `yaml:"max_file_size"`
}

// SearchConfig tunes hybrid ranking.
type SearchConfig struct {
	DefaultLimit        int     `yaml:"default_limit"`
	LexicalWeight       float64 `yaml:"lexical_weight"`
	CandidateMultiplier int     `yaml:"candidate_multiplier"`
}

// IngestionConfig sizes the background upload pool.
type IngestionConfig struct {
	Workers int `yaml:"workers"`
}

// ReindexConfig configures reindex runs.
type ReindexConfig struct {
	Workers         int           `yaml:"workers"`
	ContinueOnError bool          `yaml:"continue_on_error"`
	TaskRetention   time.Duration `yaml:"task_retention"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address string `yaml:"address"`
	Mode    string `yaml:"mode"`
}

// Config is the root configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Parser    ParserConfig    `yaml:"parser"`
	Search    SearchConfig    `yaml:"search"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Reindex   ReindexConfig   `yaml:"reindex"`
	Server    ServerConfig    `yaml:"server"`
}

// DefaultDataDir returns ~/.normdoc, or .normdoc when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".normdoc"
	}
	return filepath.Join(home, ".normdoc")
}

// Default returns the default configuration: embedded stores under
// DefaultDataDir and a local OpenAI-compatible embedding server.
func Default() *Config {
	dir := DefaultDataDir()
	aiDefaults := ai.DefaultConfig()
	reindexDefaults := reindex.DefaultConfig()

	return &Config{
		Storage: StorageConfig{
			Relational: RelationalSQLite,
			SQLitePath: filepath.Join(dir, "normdoc.db"),
			Vector:     VectorBadger,
			BadgerPath: filepath.Join(dir, "vectors"),
			Collection: "chunks",
		},
		Embedding: EmbeddingConfig{
			Host:       aiDefaults.EmbeddingHost,
			Model:      aiDefaults.EmbeddingModel,
			Token:      aiDefaults.EmbeddingToken,
			Dimensions: aiDefaults.Dimensions,
			BatchSize:  embedding.DefaultBatchSize,
			Timeout:    embedding.DefaultTimeout,
			MaxRetries: embedding.DefaultMaxAttempts,
			RetryDelay: embedding.DefaultRetryDelay,
		},
		Chunking: ChunkingConfig{
			Size:    chunker.DefaultChunkSize,
			Overlap: chunker.DefaultOverlap,
		},
		Parser: ParserConfig{
			Timeout:     parser.DefaultTimeout,
			MaxFileSize: parser.DefaultMaxFileSize,
		},
		Search: SearchConfig{
			DefaultLimit:        10,
			LexicalWeight:       search.DefaultLexicalWeight,
			CandidateMultiplier: search.DefaultCandidateMultiplier,
		},
		Ingestion: IngestionConfig{
			Workers: reindexDefaults.Workers,
		},
		Reindex: ReindexConfig{
			Workers:         reindexDefaults.Workers,
			ContinueOnError: reindexDefaults.ContinueOnError,
			TaskRetention:   reindexDefaults.Retention,
		},
		Server: ServerConfig{
			Address: ":8080",
			Mode:    "release",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies .env files
// and NORMDOC_* environment overrides. A missing file yields the defaults.
// When envFiles is empty, ./.env is loaded if it exists.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	applyEnv(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	s := c.Storage
	switch s.Relational {
	case RelationalSQLite:
		check(s.SQLitePath != "", "storage.sqlite_path is required")
	case RelationalPostgres:
		check(s.PostgresDSN != "", "storage.postgres_dsn is required for postgres")
	default:
		check(false, "storage.relational must be %q or %q, got %q", RelationalSQLite, RelationalPostgres, s.Relational)
	}
	switch s.Vector {
	case VectorBadger:
		check(s.InMemory || s.BadgerPath != "", "storage.badger_path is required unless in_memory is set")
	case VectorPgvector:
		check(s.PostgresDSN != "", "storage.postgres_dsn is required for pgvector")
	default:
		check(false, "storage.vector must be %q or %q, got %q", VectorBadger, VectorPgvector, s.Vector)
	}
	check(s.Collection != "", "storage.collection is required")

	e := c.Embedding
	check(e.Host != "", "embedding.host is required")
	check(e.Model != "", "embedding.model is required")
	check(e.Dimensions >= 0, "embedding.dimensions cannot be negative")
	check(e.BatchSize > 0, "embedding.batch_size must be positive")
	check(e.Timeout > 0, "embedding.timeout must be positive")
	check(e.MaxRetries >= 1, "embedding.max_retries must be at least 1")
	check(e.RetryDelay >= 0, "embedding.retry_delay cannot be negative")
	check(e.RequestsPerSecond >= 0, "embedding.requests_per_second cannot be negative")

	check(c.Chunking.Size > 0, "chunking.size must be positive")
	check(c.Chunking.Overlap >= 0 && c.Chunking.Overlap < c.Chunking.Size,
		"chunking.overlap must be in [0, size)")

	check(c.Parser.Timeout > 0, "parser.timeout must be positive")
	check(c.Parser.MaxFileSize > 0, "parser.max_file_size must be positive")

	check(c.Search.DefaultLimit > 0 && c.Search.DefaultLimit <= search.MaxLimit,
		"search.default_limit must be in [1, %d]", search.MaxLimit)
	check(c.Search.LexicalWeight >= 0 && c.Search.LexicalWeight <= search.MaxLexicalWeight,
		"search.lexical_weight must be in [0, %g]", search.MaxLexicalWeight)
	check(c.Search.CandidateMultiplier >= 1, "search.candidate_multiplier must be at least 1")

	check(c.Ingestion.Workers >= 1, "ingestion.workers must be at least 1")
	check(c.Reindex.Workers >= 1, "reindex.workers must be at least 1")
	check(c.Reindex.TaskRetention > 0, "reindex.task_retention must be positive")

	check(c.Server.Address != "", "server.address is required")
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		check(false, "server.mode must be debug, release or test, got %q", c.Server.Mode)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// AI returns the provider configuration.
func (c *Config) AI() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithEmbeddingToken(c.Embedding.Token),
		ai.WithDimensions(c.Embedding.Dimensions),
	)
}

// ReindexOptions returns the orchestrator configuration.
func (c *Config) ReindexOptions() *reindex.Config {
	rc := reindex.DefaultConfig()
	rc.Workers = c.Reindex.Workers
	rc.ContinueOnError = c.Reindex.ContinueOnError
	rc.Retention = c.Reindex.TaskRetention
	return rc
}
