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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/normdoc/ai"
	"github.com/poiesic/normdoc/chunker"
	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/embedding"
	"github.com/poiesic/normdoc/metadata"
	"github.com/poiesic/normdoc/parser"
	"github.com/poiesic/normdoc/persistence"
	"github.com/poiesic/normdoc/storage"
	"github.com/poiesic/normdoc/vectorindex"
)

// Pipeline orchestrates the ingestion and processing of documents.
type Pipeline struct {
	docs        storage.DocumentStore
	parser      *parser.Parser
	extractor   *metadata.Extractor
	chunker     *chunker.Chunker
	generator   *embedding.Generator
	coordinator *persistence.Coordinator
	indexer     *vectorindex.Indexer
	pool        *ants.Pool
	inflight    sync.WaitGroup
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithParser replaces the default parser.
func WithParser(ps *parser.Parser) Option {
	return func(p *Pipeline) error {
		p.parser = ps
		return nil
	}
}

// WithExtractor replaces the default metadata extractor.
func WithExtractor(e *metadata.Extractor) Option {
	return func(p *Pipeline) error {
		p.extractor = e
		return nil
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *chunker.Chunker) Option {
	return func(p *Pipeline) error {
		p.chunker = c
		return nil
	}
}

// WithGenerator replaces the embedding generator built from the provider.
func WithGenerator(g *embedding.Generator) Option {
	return func(p *Pipeline) error {
		p.generator = g
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline. Components not supplied
// through options are built with their defaults.
func NewPipeline(
	docs storage.DocumentStore,
	vectors storage.VectorStore,
	provider ai.Provider,
	opts ...Option,
) (*Pipeline, error) {
	if docs == nil {
		return nil, ErrDocumentStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	p := &Pipeline{
		docs:   docs,
		logger: slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	if err := p.fillDefaults(vectors, provider); err != nil {
		p.Release()
		return nil, err
	}
	p.logger = p.logger.With("component", "ingestion")
	return p, nil
}

func (p *Pipeline) fillDefaults(vectors storage.VectorStore, provider ai.Provider) error {
	var err error
	if p.pool == nil {
		poolSize := max(runtime.NumCPU()/2, 1)
		if p.pool, err = ants.NewPool(poolSize); err != nil {
			return err
		}
	}
	if p.parser == nil {
		if p.parser, err = parser.New(parser.WithLogger(p.logger)); err != nil {
			return err
		}
	}
	if p.extractor == nil {
		p.extractor = metadata.NewExtractor()
	}
	if p.chunker == nil {
		if p.chunker, err = chunker.New(); err != nil {
			return err
		}
	}
	if p.generator == nil {
		if p.generator, err = embedding.NewGenerator(provider.Embedder(), embedding.WithLogger(p.logger)); err != nil {
			return err
		}
	}
	if p.coordinator, err = persistence.NewCoordinator(p.docs, persistence.WithLogger(p.logger)); err != nil {
		return err
	}
	p.indexer, err = vectorindex.NewIndexer(p.docs, vectors, vectorindex.WithLogger(p.logger))
	return err
}

// UploadRequest is one file handed to the pipeline.
type UploadRequest struct {
	Filename    string
	Content     []byte
	FileType    string // Derived from Filename when empty
	Category    string // Declared category; the extracted one is used when empty
	ProjectCode string
}

// UploadResult acknowledges an upload.
type UploadResult struct {
	Document  *core.Document
	Duplicate bool // The content was already known; no new record was created
}

// Upload stores a new document in the uploaded state and processes it in the
// background. Input that can be rejected without parsing (empty, too large,
// unsupported type) is returned as an error and stores nothing.
func (p *Pipeline) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	result, process, err := p.admit(ctx, req)
	if err != nil || !process {
		return result, err
	}

	doc := *result.Document
	content := req.Content
	p.inflight.Add(1)
	err = p.pool.Submit(func() {
		defer p.inflight.Done()
		if err := p.process(context.Background(), &doc, content); err != nil {
			p.logger.Debug("background processing finished with error", "document_id", doc.Id, "err", err)
		}
	})
	if err != nil {
		p.inflight.Done()
		cause := fmt.Errorf("%w: %w", ErrPipelineClosed, err)
		if markErr := p.coordinator.MarkFailed(ctx, doc.Id, cause); markErr != nil {
			p.logger.Warn("could not mark document failed", "document_id", doc.Id, "err", markErr)
		}
		return nil, cause
	}
	return result, nil
}

// Ingest runs the whole pipeline for one file on the caller's goroutine and
// returns the document in its final state. A vector index failure is logged
// and reflected in the document's vector state but is not returned.
func (p *Pipeline) Ingest(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	result, process, err := p.admit(ctx, req)
	if err != nil || !process {
		return result, err
	}
	doc := result.Document
	if err := p.process(ctx, doc, req.Content); err != nil && !errors.Is(err, core.ErrVectorIndexUnavailable) {
		return result, err
	}
	return result, nil
}

// admit validates the request, deduplicates it and creates the document row.
// process reports whether the document still needs to run the pipeline.
func (p *Pipeline) admit(ctx context.Context, req UploadRequest) (result *UploadResult, process bool, err error) {
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, false, core.ErrEmptyFilename
	}
	if len(req.Content) == 0 {
		return nil, false, core.ErrEmptyContent
	}
	if int64(len(req.Content)) > p.parser.MaxFileSize() {
		return nil, false, fmt.Errorf("%w: %d bytes", core.ErrFileTooLarge, len(req.Content))
	}
	fileType := req.FileType
	if fileType == "" {
		fileType = parser.FileType(filename)
	}
	if !parser.Supported(fileType) {
		return nil, false, fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, fileType)
	}

	hash := core.ContentHash(req.Content)
	existing, reprocess, err := p.existing(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, reprocess, nil
	}

	doc := &core.Document{
		Id:          core.NewID(),
		Filename:    filename,
		FileType:    strings.ToLower(strings.TrimPrefix(fileType, ".")),
		Size:        int64(len(req.Content)),
		ContentHash: hash,
		Category:    strings.TrimSpace(req.Category),
		ProjectCode: strings.TrimSpace(req.ProjectCode),
		Type:        core.TypeOther,
		Status:      core.StatusUploaded,
		VectorState: core.VectorPending,
	}
	if err := p.docs.CreateDocument(ctx, doc); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Lost a race with an identical upload.
			if existing, _, lookupErr := p.existing(ctx, hash); lookupErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	p.logger.Info("document uploaded", "document_id", doc.Id, "filename", doc.Filename, "size", doc.Size)
	return &UploadResult{Document: doc}, true, nil
}

// existing looks up a document by content hash and returns nil if there is
// none. A failed document is reset to uploaded and reported with reprocess
// set so that the caller processes it again.
func (p *Pipeline) existing(ctx context.Context, hash string) (result *UploadResult, reprocess bool, err error) {
	doc, err := p.docs.GetDocumentByHash(ctx, hash)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if doc.Status == core.StatusFailed {
		if err := p.docs.SetStatus(ctx, doc.Id, core.StatusUploaded, ""); err != nil {
			return nil, false, err
		}
		doc.Status = core.StatusUploaded
		doc.StatusError = ""
		reprocess = true
		p.logger.Info("reprocessing failed document on re-upload", "document_id", doc.Id)
	}
	return &UploadResult{Document: doc, Duplicate: true}, reprocess, nil
}

// Wait blocks until all background processing has finished.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

// Release waits for background processing and releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.inflight.Wait()
	if p.pool != nil {
		p.pool.Release()
	}
}
