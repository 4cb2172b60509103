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

// Package normdoc ingests normative documents (standards, codes, regulations)
// into a relational store and a vector index and answers hybrid search
// queries over them.
//
// KnowledgeBase wires the configured stores, the embedding provider and the
// pipeline components together:
//
//	cfg, _ := config.Load("normdoc.yaml")
//	kb, err := normdoc.Open(ctx, cfg)
//	if err != nil { ... }
//	defer kb.Close()
//
//	res, _ := kb.Upload(ctx, ingestion.UploadRequest{Filename: "gost-12345.pdf", Content: data})
//	hits, _ := kb.Search(ctx, "compressive strength", core.SearchFilter{}, 10)
package normdoc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poiesic/normdoc/ai"
	"github.com/poiesic/normdoc/ai/openai"
	"github.com/poiesic/normdoc/chunker"
	"github.com/poiesic/normdoc/config"
	"github.com/poiesic/normdoc/embedding"
	"github.com/poiesic/normdoc/ingestion"
	"github.com/poiesic/normdoc/parser"
	"github.com/poiesic/normdoc/reindex"
	"github.com/poiesic/normdoc/search"
	"github.com/poiesic/normdoc/storage"
	"github.com/poiesic/normdoc/storage/badger"
	"github.com/poiesic/normdoc/storage/postgres"
	"github.com/poiesic/normdoc/storage/sqlite"
)

// KnowledgeBase is the assembled ingestion and retrieval system.
type KnowledgeBase struct {
	cfg          *config.Config
	docs         storage.DocumentStore
	vectors      storage.VectorStore
	provider     ai.Provider
	pipeline     *ingestion.Pipeline
	searcher     *search.Searcher
	orchestrator *reindex.Orchestrator
	closers      []namedCloser
	logger       *slog.Logger
}

type namedCloser struct {
	name  string
	close func() error
}

// Option configures a KnowledgeBase.
type Option func(*options)

type options struct {
	provider ai.Provider
	docs     storage.DocumentStore
	vectors  storage.VectorStore
	progress io.Writer
	logger   *slog.Logger
}

// WithProvider uses provider instead of the OpenAI-compatible provider built
// from the embedding config. The knowledge base closes it on Close.
func WithProvider(provider ai.Provider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithStores uses already open stores instead of the configured backends.
// The caller keeps ownership of them.
func WithStores(docs storage.DocumentStore, vectors storage.VectorStore) Option {
	return func(o *options) {
		o.docs = docs
		o.vectors = vectors
	}
}

// WithReindexProgress writes reindex progress lines to w.
func WithReindexProgress(w io.Writer) Option {
	return func(o *options) {
		o.progress = w
	}
}

// WithLogger sets a custom logger for every component.
// If not provided, slog.Default() will be used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open validates cfg, opens the configured stores and provider and builds the
// pipeline, searcher and reindex orchestrator.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*KnowledgeBase, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	kb := &KnowledgeBase{cfg: cfg, logger: o.logger}
	if err := kb.open(ctx, o); err != nil {
		kb.Close()
		return nil, err
	}
	return kb, nil
}

func (kb *KnowledgeBase) open(ctx context.Context, o *options) error {
	if o.docs != nil && o.vectors != nil {
		kb.docs, kb.vectors = o.docs, o.vectors
	} else if err := kb.openStores(ctx); err != nil {
		return err
	}

	kb.provider = o.provider
	if kb.provider == nil {
		aiCfg := kb.cfg.AI()
		if err := aiCfg.Validate(); err != nil {
			return err
		}
		provider, err := openai.NewProvider(aiCfg)
		if err != nil {
			return fmt.Errorf("creating embedding provider: %w", err)
		}
		kb.provider = provider
	}
	kb.closers = append(kb.closers, namedCloser{"embedding provider", kb.provider.Close})

	e := kb.cfg.Embedding
	generator, err := embedding.NewGenerator(kb.provider.Embedder(),
		embedding.WithBatchSize(e.BatchSize),
		embedding.WithTimeout(e.Timeout),
		embedding.WithRetry(e.MaxRetries, e.RetryDelay),
		embedding.WithRateLimit(e.RequestsPerSecond),
		embedding.WithDimensions(e.Dimensions),
		embedding.WithLogger(kb.logger),
	)
	if err != nil {
		return fmt.Errorf("creating embedding generator: %w", err)
	}
	ps, err := parser.New(
		parser.WithTimeout(kb.cfg.Parser.Timeout),
		parser.WithMaxFileSize(kb.cfg.Parser.MaxFileSize),
		parser.WithLogger(kb.logger),
	)
	if err != nil {
		return fmt.Errorf("creating parser: %w", err)
	}
	ch, err := chunker.New(
		chunker.WithChunkSize(kb.cfg.Chunking.Size),
		chunker.WithOverlap(kb.cfg.Chunking.Overlap),
	)
	if err != nil {
		return fmt.Errorf("creating chunker: %w", err)
	}

	kb.pipeline, err = ingestion.NewPipeline(kb.docs, kb.vectors, kb.provider,
		ingestion.WithPoolSize(kb.cfg.Ingestion.Workers),
		ingestion.WithParser(ps),
		ingestion.WithChunker(ch),
		ingestion.WithGenerator(generator),
		ingestion.WithLogger(kb.logger),
	)
	if err != nil {
		return fmt.Errorf("creating ingestion pipeline: %w", err)
	}

	kb.searcher, err = search.NewSearcher(kb.docs, kb.vectors, generator,
		search.WithLexicalWeight(float32(kb.cfg.Search.LexicalWeight)),
		search.WithCandidateMultiplier(kb.cfg.Search.CandidateMultiplier),
		search.WithLogger(kb.logger),
	)
	if err != nil {
		return fmt.Errorf("creating searcher: %w", err)
	}

	reindexOpts := []reindex.Option{
		reindex.WithConfig(kb.cfg.ReindexOptions()),
		reindex.WithLogger(kb.logger),
	}
	if o.progress != nil {
		reindexOpts = append(reindexOpts, reindex.WithProgress(o.progress))
	}
	kb.orchestrator, err = reindex.NewOrchestrator(kb.docs, kb.pipeline, reindexOpts...)
	if err != nil {
		return fmt.Errorf("creating reindex orchestrator: %w", err)
	}
	return nil
}

// openStores opens the configured backends. A postgres pool is shared when
// both stores use it.
func (kb *KnowledgeBase) openStores(ctx context.Context) error {
	s := kb.cfg.Storage

	var pool *pgxpool.Pool
	pgPool := func() (*pgxpool.Pool, error) {
		if pool != nil {
			return pool, nil
		}
		p, err := postgres.Connect(ctx, s.PostgresDSN)
		if err != nil {
			return nil, err
		}
		pool = p
		kb.closers = append(kb.closers, namedCloser{"postgres pool", func() error {
			p.Close()
			return nil
		}})
		return p, nil
	}

	switch s.Relational {
	case config.RelationalPostgres:
		p, err := pgPool()
		if err != nil {
			return err
		}
		kb.docs = postgres.NewDocumentStore(p)
	default:
		docs, err := sqlite.NewDocumentStore(s.SQLitePath)
		if err != nil {
			return err
		}
		kb.docs = docs
		kb.closers = append(kb.closers, namedCloser{"document store", docs.Close})
	}

	switch s.Vector {
	case config.VectorPgvector:
		p, err := pgPool()
		if err != nil {
			return err
		}
		kb.vectors = postgres.NewVectorStore(p, s.Collection)
	default:
		backend, err := badger.OpenBackend(s.BadgerPath, s.InMemory)
		if err != nil {
			return fmt.Errorf("opening vector store: %w", err)
		}
		kb.closers = append(kb.closers, namedCloser{"badger backend", backend.Close})
		kb.vectors = badger.NewVectorStore(backend, s.Collection)
	}
	return nil
}

// Close stops background work and closes everything Open opened, in reverse
// order.
func (kb *KnowledgeBase) Close() error {
	if kb.orchestrator != nil {
		kb.orchestrator.Close()
	}
	if kb.pipeline != nil {
		kb.pipeline.Release()
	}

	var errs []error
	for i := len(kb.closers) - 1; i >= 0; i-- {
		c := kb.closers[i]
		if err := c.close(); err != nil {
			kb.logger.Error("error closing "+c.name, "err", err)
			errs = append(errs, err)
		}
	}
	kb.closers = nil
	return errors.Join(errs...)
}

// Config returns the configuration the knowledge base was opened with.
func (kb *KnowledgeBase) Config() *config.Config {
	return kb.cfg
}

// DocumentStore returns the relational store.
func (kb *KnowledgeBase) DocumentStore() storage.DocumentStore {
	return kb.docs
}

// VectorStore returns the vector store.
func (kb *KnowledgeBase) VectorStore() storage.VectorStore {
	return kb.vectors
}

// Pipeline returns the ingestion pipeline.
func (kb *KnowledgeBase) Pipeline() *ingestion.Pipeline {
	return kb.pipeline
}

// Searcher returns the hybrid searcher.
func (kb *KnowledgeBase) Searcher() *search.Searcher {
	return kb.searcher
}

// Orchestrator returns the reindex orchestrator.
func (kb *KnowledgeBase) Orchestrator() *reindex.Orchestrator {
	return kb.orchestrator
}
