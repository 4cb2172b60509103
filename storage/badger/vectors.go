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

package badger

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/storage"
)

// DefaultCollection is used when no collection name is given.
const DefaultCollection = "normdoc"

// VectorStore implements storage.VectorStore for BadgerDB.
// Search is an exact brute-force scan over the collection.
type VectorStore struct {
	backend    *Backend
	collection string
	ownBackend bool
}

var _ storage.VectorStore = (*VectorStore)(nil)

// newVectorStore is the internal constructor returning the concrete type.
func newVectorStore(backend *Backend, collection string) *VectorStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &VectorStore{
		backend:    backend,
		collection: collection,
	}
}

// NewVectorStore creates a vector store on an open backend.
// The backend stays owned by the caller.
func NewVectorStore(backend *Backend, collection string) storage.VectorStore {
	return newVectorStore(backend, collection)
}

// OpenVectorStore opens a backend at path and returns a vector store that
// closes the backend on Close.
func OpenVectorStore(path, collection string) (storage.VectorStore, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	vs := newVectorStore(backend, collection)
	vs.ownBackend = true
	return vs, nil
}

// Close closes the backend if the store owns it.
func (s *VectorStore) Close() error {
	if s.ownBackend {
		return s.backend.Close()
	}
	return nil
}

// Upsert writes vector records and their document index entries. Large
// documents span several badger transactions; callers that need all-or-nothing
// semantics track completion themselves.
func (s *VectorStore) Upsert(ctx context.Context, records ...*core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return s.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, record := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			record.Collection = s.collection
			value, err := storage.MarshalVectorRecord(record)
			if err != nil {
				return err
			}
			if err := wb.Set(makeVectorKey(s.collection, record.ChunkId), value); err != nil {
				return err
			}
			indexKey := makeDocIndexKey(s.collection, record.Payload.DocumentId, record.ChunkId)
			if err := wb.Set(indexKey, []byte(vectorDocIndexVal)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes vector records by chunk ID.
func (s *VectorStore) Delete(ctx context.Context, chunkIDs ...core.ID) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	// Resolve owning documents first so the index entries can be removed too.
	owners := make(map[core.ID]core.ID, len(chunkIDs))
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range chunkIDs {
			record, err := readVectorRecord(tx, makeVectorKey(s.collection, id))
			if err != nil {
				return err
			}
			if record != nil {
				owners[id] = record.Payload.DocumentId
			}
		}
		return nil
	}, false)
	if err != nil {
		return err
	}
	if len(owners) == 0 {
		return nil
	}

	return s.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for id, documentID := range owners {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := wb.Delete(makeVectorKey(s.collection, id)); err != nil {
				return err
			}
			if err := wb.Delete(makeDocIndexKey(s.collection, documentID, id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteByDocument removes every vector indexed under the document.
func (s *VectorStore) DeleteByDocument(ctx context.Context, documentID core.ID) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	prefix := makeDocIndexPrefix(s.collection, documentID)

	var chunkIDs []core.ID
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			chunkIDs = append(chunkIDs, chunkIDFromKey(prefix, iter.Item().KeyCopy(nil)))
		}
		return nil
	}, false)
	if err != nil {
		return err
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	return s.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, id := range chunkIDs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := wb.Delete(makeVectorKey(s.collection, id)); err != nil {
				return err
			}
			if err := wb.Delete(makeDocIndexKey(s.collection, documentID, id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Search scans the collection and returns the best matches for vector.
func (s *VectorStore) Search(ctx context.Context, vector []float32, filter core.SearchFilter, limit int) ([]core.VectorMatch, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	prefix := makeVectorPrefix(s.collection)
	var results []core.VectorMatch

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()

			var record *core.VectorRecord
			err := item.Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalVectorRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(record.Vector) == 0 || !filter.Matches(record.Payload) {
				continue
			}

			results = append(results, core.VectorMatch{
				ChunkId: chunkIDFromKey(prefix, item.KeyCopy(nil)),
				Score:   dotProduct(vector, record.Vector),
				Payload: record.Payload,
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, compareMatches)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of vectors in the collection.
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	if s.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeVectorPrefix(s.collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// readVectorRecord reads a record, returning nil, nil if the key is absent.
func readVectorRecord(tx *badger.Txn, key []byte) (*core.VectorRecord, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var record *core.VectorRecord
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalVectorRecord(val)
		return err
	})
	return record, err
}

// compareMatches orders by score descending, then chunk index and document ID
// ascending, so equal scores always come back in the same order.
func compareMatches(a, b core.VectorMatch) int {
	if a.Score > b.Score {
		return -1
	}
	if a.Score < b.Score {
		return 1
	}
	if a.Payload.ChunkIndex != b.Payload.ChunkIndex {
		return a.Payload.ChunkIndex - b.Payload.ChunkIndex
	}
	if c := strings.Compare(string(a.Payload.DocumentId), string(b.Payload.DocumentId)); c != 0 {
		return c
	}
	return strings.Compare(string(a.ChunkId), string(b.ChunkId))
}
