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

package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/storage"
)

// Coordinator performs all multi-row writes for documents and chunks.
type Coordinator struct {
	store  storage.DocumentStore
	locks  *keyedMutex
	logger *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewCoordinator creates a Coordinator writing to store.
func NewCoordinator(store storage.DocumentStore, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	c := &Coordinator{
		store:  store,
		locks:  newKeyedMutex(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "persistence")
	return c, nil
}

// Lock acquires the write lock for a document and returns its release
// function. Release is idempotent.
func (c *Coordinator) Lock(id core.ID) (unlock func()) {
	return c.locks.lock(id)
}

// Persist writes doc, its pages and its chunks atomically and marks the
// document completed. A nil pages slice keeps the stored pages. Existing chunks
// are replaced. The caller must hold the document lock.
//
// On success doc reflects the committed row. On failure nothing from this call
// is visible, the document is marked failed in a separate write and the
// returned error wraps ErrPersistFailed.
func (c *Coordinator) Persist(ctx context.Context, doc *core.Document, pages []core.Page, chunks []core.Chunk) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	if err := core.ValidateChunks(doc.Id, chunks); err != nil {
		c.fail(ctx, doc, err)
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	next := *doc
	next.Status = core.StatusCompleted
	next.StatusError = ""
	next.ChunkCount = len(chunks)
	next.TokenCount = 0
	for i := range chunks {
		next.TokenCount += chunks[i].TokenCount
	}
	// Vectors for the replaced chunks are stale until the indexer runs.
	next.VectorState = core.VectorPending
	next.UpdatedAt = time.Now().UTC()

	start := time.Now()
	err := c.store.WithTransaction(ctx, func(tx storage.DocumentTx) error {
		if err := tx.UpsertDocument(ctx, &next); err != nil {
			return fmt.Errorf("upserting document: %w", err)
		}
		if pages != nil {
			if err := tx.ReplacePages(ctx, next.Id, pages); err != nil {
				return fmt.Errorf("replacing pages: %w", err)
			}
		}
		if err := tx.DeleteChunks(ctx, next.Id); err != nil {
			return fmt.Errorf("deleting chunks: %w", err)
		}
		if err := tx.InsertChunks(ctx, chunks); err != nil {
			return fmt.Errorf("inserting chunks: %w", err)
		}
		return tx.SetStatus(ctx, next.Id, core.StatusCompleted, "")
	})
	if err != nil {
		c.fail(ctx, doc, err)
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	*doc = next
	c.logger.Debug("persisted document",
		"document_id", doc.Id,
		"chunks", doc.ChunkCount,
		"tokens", doc.TokenCount,
		"elapsed", time.Since(start))
	return nil
}

// MarkProcessing commits the processing status for a document.
func (c *Coordinator) MarkProcessing(ctx context.Context, id core.ID) error {
	if err := c.store.SetStatus(ctx, id, core.StatusProcessing, ""); err != nil {
		return translate(err, id)
	}
	return nil
}

// MarkFailed commits the failed status with cause as detail. The write is
// made even if ctx is already cancelled so that no document is left in
// processing.
func (c *Coordinator) MarkFailed(ctx context.Context, id core.ID, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	if err := c.store.SetStatus(context.WithoutCancel(ctx), id, core.StatusFailed, detail); err != nil {
		return translate(err, id)
	}
	return nil
}

// MarkFailedWithPages commits extracted pages together with the failed
// status, so a document that failed after parsing can be reindexed without
// the original upload. With no pages it behaves like MarkFailed.
func (c *Coordinator) MarkFailedWithPages(ctx context.Context, id core.ID, pages []core.Page, cause error) error {
	if len(pages) == 0 {
		return c.MarkFailed(ctx, id, cause)
	}
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	ctx = context.WithoutCancel(ctx)
	err := c.store.WithTransaction(ctx, func(tx storage.DocumentTx) error {
		if err := tx.SetStatus(ctx, id, core.StatusFailed, detail); err != nil {
			return err
		}
		return tx.ReplacePages(ctx, id, pages)
	})
	if err != nil {
		return translate(err, id)
	}
	return nil
}

// fail records a failed persist on the stored row and on doc.
func (c *Coordinator) fail(ctx context.Context, doc *core.Document, cause error) {
	c.logger.Error("persist failed", "document_id", doc.Id, "stage", "persist", "err", cause)
	if err := c.MarkFailed(ctx, doc.Id, cause); err != nil {
		c.logger.Warn("could not mark document failed", "document_id", doc.Id, "err", err)
		return
	}
	doc.Status = core.StatusFailed
	doc.StatusError = cause.Error()
}

func translate(err error, id core.ID) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	return err
}
