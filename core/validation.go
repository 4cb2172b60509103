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

import (
	"fmt"
	"strings"
)

// ValidateDocument validates a Document before it is written.
//
// Validation rules:
//   - ID must be set
//   - Filename must not be empty
//   - ContentHash must be set
//
// NOT validated (populated by the pipeline):
//   - Type, Number, Year (metadata extraction may leave them empty)
//   - TokenCount, ChunkCount
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.Id == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidDocument)
	}
	if strings.TrimSpace(doc.Filename) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyFilename)
	}
	if doc.ContentHash == "" {
		return fmt.Errorf("%w: content hash is empty", ErrInvalidDocument)
	}
	return nil
}

// ValidateChunks checks that chunks belong to documentID, are non-empty and
// carry contiguous sequence indices starting at zero.
func ValidateChunks(documentID ID, chunks []Chunk) error {
	for i := range chunks {
		c := &chunks[i]
		if c.DocumentId != documentID {
			return fmt.Errorf("%w: chunk %d belongs to %q", ErrInvalidChunk, i, c.DocumentId)
		}
		if c.Index != i {
			return fmt.Errorf("%w: %w: position %d has index %d", ErrInvalidChunk, ErrNonContiguousChunks, i, c.Index)
		}
		if strings.TrimSpace(c.Content) == "" {
			return fmt.Errorf("%w: %w: index %d", ErrInvalidChunk, ErrEmptyContent, i)
		}
	}
	return nil
}
