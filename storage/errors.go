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

package storage

import "errors"

// Errors shared by the document and vector stores. Backends wrap them with
// the driver error so callers can test with errors.Is.
var (
	// ErrNotFound is returned when no document, page set or chunk matches the ID.
	ErrNotFound = errors.New("not found in store")

	// ErrDuplicateKey is returned when a document's content hash is already stored.
	ErrDuplicateKey = errors.New("duplicate content hash")

	// ErrTransactionFailed wraps a failed begin or commit of a document transaction.
	ErrTransactionFailed = errors.New("document transaction failed")

	// ErrStorageClosed is returned by any call on a closed store.
	ErrStorageClosed = errors.New("store closed")

	// ErrInvalidQuery is returned for a non-positive search limit or a missing store parameter.
	ErrInvalidQuery = errors.New("invalid store query")

	// ErrSerializationFailed wraps failures encoding vector records or chunk hierarchy paths.
	ErrSerializationFailed = errors.New("record encoding failed")

	// ErrTruncatedData is returned for a vector blob whose length is not a
	// whole number of float32 values.
	ErrTruncatedData = errors.New("truncated vector blob")
)
