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

package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/retry"
	"github.com/poiesic/normdoc/storage"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 200 * time.Millisecond
)

// Indexer writes chunk vectors to the vector store and tracks the result on
// the document's vector state.
type Indexer struct {
	docs        storage.DocumentStore
	vectors     storage.VectorStore
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer) error

// WithRetry sets the attempts and base backoff for vector store writes.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(ix *Indexer) error {
		if maxAttempts < 1 {
			return retry.ErrInvalidMaxAttempts
		}
		ix.maxAttempts = maxAttempts
		ix.retryDelay = baseDelay
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
		return nil
	}
}

// NewIndexer creates an Indexer.
func NewIndexer(docs storage.DocumentStore, vectors storage.VectorStore, opts ...Option) (*Indexer, error) {
	if docs == nil {
		return nil, ErrDocumentStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	ix := &Indexer{
		docs:        docs,
		vectors:     vectors,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}
	ix.logger = ix.logger.With("component", "vectorindex")
	return ix, nil
}

// Index replaces the vectors of doc with one record per chunk. vectors[i]
// belongs to chunks[i]. The chunks must already be committed.
//
// On failure the document's vector state becomes failed and the returned
// error wraps core.ErrVectorIndexUnavailable.
func (ix *Indexer) Index(ctx context.Context, doc *core.Document, chunks []core.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks, %d vectors", ErrVectorCountMismatch, len(chunks), len(vectors))
	}

	records := make([]*core.VectorRecord, len(chunks))
	for i := range chunks {
		records[i] = &core.VectorRecord{
			ChunkId: chunks[i].Id,
			Vector:  vectors[i],
			Payload: core.VectorPayload{
				DocumentId:   doc.Id,
				ChunkIndex:   chunks[i].Index,
				Category:     doc.Category,
				DocumentType: doc.Type,
				ProjectCode:  doc.ProjectCode,
			},
		}
	}

	err := retry.Do(ctx, func(ctx context.Context) error {
		if err := ix.vectors.DeleteByDocument(ctx, doc.Id); err != nil {
			return err
		}
		return ix.vectors.Upsert(ctx, records...)
	}, ix.maxAttempts, ix.retryDelay)
	if err != nil {
		ix.logger.Error("vector indexing failed", "document_id", doc.Id, "stage", "index", "err", err)
		ix.setState(ctx, doc, core.VectorFailed)
		return fmt.Errorf("%w: %w", core.ErrVectorIndexUnavailable, err)
	}

	if err := ix.docs.SetVectorState(ctx, doc.Id, core.VectorIndexed); err != nil {
		return fmt.Errorf("recording vector state: %w", err)
	}
	doc.VectorState = core.VectorIndexed
	ix.logger.Debug("indexed document", "document_id", doc.Id, "vectors", len(records))
	return nil
}

// Remove deletes every vector of a document and resets its vector state to
// pending. Unknown documents are not an error.
func (ix *Indexer) Remove(ctx context.Context, documentID core.ID) error {
	if err := ix.vectors.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("%w: %w", core.ErrVectorIndexUnavailable, err)
	}
	err := ix.docs.SetVectorState(ctx, documentID, core.VectorPending)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("recording vector state: %w", err)
	}
	return nil
}

func (ix *Indexer) setState(ctx context.Context, doc *core.Document, state core.VectorIndexState) {
	if err := ix.docs.SetVectorState(context.WithoutCancel(ctx), doc.Id, state); err != nil {
		ix.logger.Warn("could not record vector state", "document_id", doc.Id, "state", state, "err", err)
		return
	}
	doc.VectorState = state
}
