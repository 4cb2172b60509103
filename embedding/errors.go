package embedding

import "errors"

var (
	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrDimensionMismatch indicates the provider returned a vector of an
	// unexpected size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrZeroVector indicates the provider returned an all-zero vector, which
	// cannot be normalized.
	ErrZeroVector = errors.New("zero embedding vector")

	// ErrResultMismatch indicates a batch call returned the wrong number of vectors.
	ErrResultMismatch = errors.New("embedding result count mismatch")
)
