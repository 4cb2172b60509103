package reindex

import (
	"context"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/storage"
)

const (
	// DefaultPageSize is the default number of documents to fetch per query
	DefaultPageSize = 100
)

// DocumentIterator pages through stored documents in upload order.
type DocumentIterator struct {
	docs     storage.DocumentStore
	filter   core.DocumentFilter
	pageSize int
}

// NewDocumentIterator creates a new document iterator. Limit and Offset of
// filter are managed by the iterator.
func NewDocumentIterator(docs storage.DocumentStore, filter core.DocumentFilter, pageSize int) *DocumentIterator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	filter.Limit = 0
	filter.Offset = 0
	return &DocumentIterator{
		docs:     docs,
		filter:   filter,
		pageSize: pageSize,
	}
}

// ForEach calls fn for each page of documents.
// Iteration stops on first error from fn or when all documents are visited.
// Context cancellation is checked between pages.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]*core.Document) error) error {
	filter := it.filter
	filter.Limit = it.pageSize
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := it.docs.ListDocuments(ctx, filter)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < it.pageSize {
			return nil
		}
		filter.Offset += len(page)
	}
}

// IDs collects the IDs of every matching document.
func (it *DocumentIterator) IDs(ctx context.Context) ([]core.ID, error) {
	var ids []core.ID
	err := it.ForEach(ctx, func(docs []*core.Document) error {
		for _, d := range docs {
			ids = append(ids, d.Id)
		}
		return nil
	})
	return ids, err
}
