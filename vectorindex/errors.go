package vectorindex

import "errors"

var (
	// ErrDocumentStoreRequired is returned when no document store is provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrVectorStoreRequired is returned when no vector store is provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrVectorCountMismatch is returned when chunks and vectors differ in length.
	ErrVectorCountMismatch = errors.New("vector count does not match chunk count")
)
