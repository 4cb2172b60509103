package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvDBPath         = "NORMDOC_DB_PATH"
	EnvPostgresDSN    = "NORMDOC_POSTGRES_DSN"
	EnvBadgerPath     = "NORMDOC_BADGER_PATH"
	EnvEmbeddingHost  = "NORMDOC_EMBEDDING_HOST"
	EnvEmbeddingModel = "NORMDOC_EMBEDDING_MODEL"
	EnvEmbeddingToken = "NORMDOC_EMBEDDING_TOKEN"
	EnvEmbeddingDims  = "NORMDOC_EMBEDDING_DIMENSIONS"
	EnvEmbeddingRPS   = "NORMDOC_EMBEDDING_RPS"
	EnvReindexRetain  = "NORMDOC_REINDEX_RETENTION"
	EnvHTTPAddr       = "NORMDOC_HTTP_ADDR"
)

// loadDotEnv loads the given .env files into the process environment without
// overriding variables that are already set. With no files, ./.env is loaded
// when present.
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading env files: %w", err)
	}
	return nil
}

// applyEnv overrides cfg from lookup. Unparseable numeric values are ignored
// and left to Validate.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str(EnvDBPath, &cfg.Storage.SQLitePath)
	str(EnvBadgerPath, &cfg.Storage.BadgerPath)
	str(EnvPostgresDSN, &cfg.Storage.PostgresDSN)
	str(EnvEmbeddingHost, &cfg.Embedding.Host)
	str(EnvEmbeddingModel, &cfg.Embedding.Model)
	str(EnvEmbeddingToken, &cfg.Embedding.Token)
	str(EnvHTTPAddr, &cfg.Server.Address)

	if v, ok := lookup(EnvEmbeddingDims); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimensions = n
		}
	}
	if v, ok := lookup(EnvEmbeddingRPS); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Embedding.RequestsPerSecond = f
		}
	}
	if v, ok := lookup(EnvReindexRetain); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reindex.TaskRetention = d
		}
	}
}
