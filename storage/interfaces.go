package storage

import (
	"context"

	"github.com/poiesic/normdoc/core"
)

// DocumentTx is the transactional scope handed to DocumentStore.WithTransaction.
// It must not be used after the callback returns.
type DocumentTx interface {
	// UpsertDocument inserts the document or replaces the mutable columns of an
	// existing row with the same ID.
	UpsertDocument(ctx context.Context, doc *core.Document) error

	// ReplacePages deletes all stored pages of the document and inserts pages.
	ReplacePages(ctx context.Context, documentID core.ID, pages []core.Page) error

	// DeleteChunks removes every chunk owned by the document.
	DeleteChunks(ctx context.Context, documentID core.ID) error

	// InsertChunks inserts chunks in sequence order.
	InsertChunks(ctx context.Context, chunks []core.Chunk) error

	// SetStatus updates the processing status and status detail.
	SetStatus(ctx context.Context, documentID core.ID, status core.DocumentStatus, detail string) error
}

// DocumentStore is the relational store for documents, their extracted pages
// and their chunks. Implementations must be thread-safe.
type DocumentStore interface {
	// CreateDocument inserts a new document.
	// Returns ErrDuplicateKey if a document with the same content hash exists.
	CreateDocument(ctx context.Context, doc *core.Document) error

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// GetDocumentByHash retrieves a document by content hash.
	// Returns ErrNotFound if no document has the hash.
	GetDocumentByHash(ctx context.Context, hash string) (*core.Document, error)

	// ListDocuments returns documents matching filter ordered by upload time.
	ListDocuments(ctx context.Context, filter core.DocumentFilter) ([]*core.Document, error)

	// ListPages returns the stored pages of a document in page order.
	ListPages(ctx context.Context, documentID core.ID) ([]core.Page, error)

	// ListChunks returns the chunks of a document in sequence order.
	ListChunks(ctx context.Context, documentID core.ID) ([]core.Chunk, error)

	// GetChunks retrieves chunks by ID. Missing IDs are skipped.
	GetChunks(ctx context.Context, ids ...core.ID) ([]core.Chunk, error)

	// SetStatus commits a status change on its own.
	// Returns ErrNotFound if the document doesn't exist.
	SetStatus(ctx context.Context, id core.ID, status core.DocumentStatus, detail string) error

	// SetVectorState commits a vector index state change on its own.
	SetVectorState(ctx context.Context, id core.ID, state core.VectorIndexState) error

	// WithTransaction runs fn in a single transaction. The transaction commits
	// if fn returns nil and rolls back otherwise, including on panic.
	WithTransaction(ctx context.Context, fn func(tx DocumentTx) error) error

	// Statistics returns aggregate document, chunk and token counts.
	// The Vectors field is left for the vector store to fill.
	Statistics(ctx context.Context) (*core.Statistics, error)

	// Close releases the underlying connection pool.
	Close() error
}

// VectorStore stores chunk embeddings and answers nearest-neighbour queries.
// Vectors are expected to be unit length; similarity is the dot product.
type VectorStore interface {
	// Upsert inserts or replaces vector records keyed by chunk ID.
	Upsert(ctx context.Context, records ...*core.VectorRecord) error

	// Delete removes vector records by chunk ID. Missing IDs are ignored.
	Delete(ctx context.Context, chunkIDs ...core.ID) error

	// DeleteByDocument removes every vector owned by the document.
	DeleteByDocument(ctx context.Context, documentID core.ID) error

	// Search returns up to limit matches satisfying filter, ordered by score
	// descending.
	Search(ctx context.Context, vector []float32, filter core.SearchFilter, limit int) ([]core.VectorMatch, error)

	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}
