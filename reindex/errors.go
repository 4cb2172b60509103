package reindex

import "errors"

var (
	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrProcessorRequired is returned when a document processor is not provided.
	ErrProcessorRequired = errors.New("document processor required")

	// ErrOrchestratorClosed is returned when a reindex is requested after Close.
	ErrOrchestratorClosed = errors.New("orchestrator closed")

	// ErrCancelled is recorded on tasks stopped by Cancel.
	ErrCancelled = errors.New("reindex cancelled")
)
