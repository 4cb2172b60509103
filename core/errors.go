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

package core

import "errors"

// Input errors. These are permanent: retrying the same bytes cannot succeed.
var (
	// ErrUnsupportedFormat indicates the file type has no parser.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrCorruptDocument indicates the file is truncated or malformed.
	ErrCorruptDocument = errors.New("corrupt document")

	// ErrExtractionTimeout indicates text extraction exceeded its deadline.
	ErrExtractionTimeout = errors.New("extraction timeout")

	// ErrFileTooLarge indicates the upload exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// Provider errors. These are retryable.
var (
	// ErrEmbeddingProviderUnavailable indicates the embedding provider could not
	// serve a request after all retries.
	ErrEmbeddingProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrEmbeddingTimeout indicates an embedding call exceeded its deadline.
	ErrEmbeddingTimeout = errors.New("embedding timeout")

	// ErrVectorIndexUnavailable indicates the vector store rejected a write.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")
)

// Lookup and validation errors.
var (
	// ErrDocumentNotFound indicates no document has the requested ID.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrTaskNotFound indicates no reindex task has the requested ID.
	ErrTaskNotFound = errors.New("reindex task not found")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidQuery indicates a search request failed validation.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrEmptyContent indicates empty file content or chunk text.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyFilename indicates the document filename is empty.
	ErrEmptyFilename = errors.New("filename cannot be empty")

	// ErrNonContiguousChunks indicates chunk indices are not 0..n-1 in order.
	ErrNonContiguousChunks = errors.New("chunk indices must be contiguous")
)
