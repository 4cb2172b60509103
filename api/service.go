package api

import (
	"context"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/ingestion"
	"github.com/poiesic/normdoc/reindex"
)

// Service is the knowledge base surface the handlers drive.
// *normdoc.KnowledgeBase satisfies it.
type Service interface {
	Upload(ctx context.Context, req ingestion.UploadRequest) (*ingestion.UploadResult, error)
	Document(ctx context.Context, id core.ID) (*core.Document, error)
	Documents(ctx context.Context, filter core.DocumentFilter) ([]*core.Document, error)
	Search(ctx context.Context, query string, filter core.SearchFilter, k int) ([]*core.SearchResult, error)
	Reindex(ctx context.Context, req reindex.Request) (*reindex.Summary, error)
	StartReindex(ctx context.Context, req reindex.Request) (core.ID, error)
	ReindexStatus(id core.ID) (*core.ReindexTask, error)
	ReindexTasks() []*core.ReindexTask
	CancelReindex(id core.ID) error
	Statistics(ctx context.Context) (*core.Statistics, error)
}
