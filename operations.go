package normdoc

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/ingestion"
	"github.com/poiesic/normdoc/reindex"
	"github.com/poiesic/normdoc/storage"
)

// Upload stores a document and processes it in the background.
func (kb *KnowledgeBase) Upload(ctx context.Context, req ingestion.UploadRequest) (*ingestion.UploadResult, error) {
	return kb.pipeline.Upload(ctx, req)
}

// Ingest processes a document on the calling goroutine.
func (kb *KnowledgeBase) Ingest(ctx context.Context, req ingestion.UploadRequest) (*ingestion.UploadResult, error) {
	return kb.pipeline.Ingest(ctx, req)
}

// Wait blocks until background uploads have been processed.
func (kb *KnowledgeBase) Wait() {
	kb.pipeline.Wait()
}

// Search runs a hybrid search. A non-positive k uses the configured default limit.
func (kb *KnowledgeBase) Search(ctx context.Context, query string, filter core.SearchFilter, k int) ([]*core.SearchResult, error) {
	if k <= 0 {
		k = kb.cfg.Search.DefaultLimit
	}
	return kb.searcher.Search(ctx, query, filter, k)
}

// Document returns a document by ID.
func (kb *KnowledgeBase) Document(ctx context.Context, id core.ID) (*core.Document, error) {
	doc, err := kb.docs.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	return doc, err
}

// Documents lists documents matching filter.
func (kb *KnowledgeBase) Documents(ctx context.Context, filter core.DocumentFilter) ([]*core.Document, error) {
	return kb.docs.ListDocuments(ctx, filter)
}

// Statistics returns aggregate counts from both stores.
func (kb *KnowledgeBase) Statistics(ctx context.Context) (*core.Statistics, error) {
	stats, err := kb.docs.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	if stats.Vectors, err = kb.vectors.Count(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrVectorIndexUnavailable, err)
	}
	return stats, nil
}

// Reindex reindexes the requested documents and blocks until done.
func (kb *KnowledgeBase) Reindex(ctx context.Context, req reindex.Request) (*reindex.Summary, error) {
	return kb.orchestrator.Run(ctx, req)
}

// StartReindex starts a background reindex and returns its task ID.
func (kb *KnowledgeBase) StartReindex(ctx context.Context, req reindex.Request) (core.ID, error) {
	return kb.orchestrator.Start(ctx, req)
}

// ReindexStatus returns a snapshot of a reindex task.
func (kb *KnowledgeBase) ReindexStatus(id core.ID) (*core.ReindexTask, error) {
	return kb.orchestrator.Status(id)
}

// ReindexTasks returns all tracked reindex tasks.
func (kb *KnowledgeBase) ReindexTasks() []*core.ReindexTask {
	return kb.orchestrator.Tasks()
}

// CancelReindex stops a reindex task from launching further documents.
func (kb *KnowledgeBase) CancelReindex(id core.ID) error {
	return kb.orchestrator.Cancel(id)
}

// Watch uploads files that appear in dir until ctx is done.
func (kb *KnowledgeBase) Watch(ctx context.Context, dir string, opts ...ingestion.WatcherOption) error {
	return ingestion.NewWatcher(kb.pipeline, dir, opts...).Run(ctx)
}
