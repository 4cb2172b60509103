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

// Package storage provides the storage abstraction layer for normdoc.
//
// Two stores back the knowledge base:
//
//   - DocumentStore: the relational store holding documents, extracted pages
//     and chunks. Only the persistence coordinator writes to it.
//   - VectorStore: the vector index holding one embedding per chunk, keyed by
//     chunk ID. Only the vector indexer writes to it.
//
// Backends live in sub-packages:
//
//   - storage/sqlite: embedded DocumentStore (modernc.org/sqlite)
//   - storage/postgres: DocumentStore and VectorStore on PostgreSQL with pgvector
//   - storage/badger: embedded VectorStore (BadgerDB)
//
// # Constructor Return Type Pattern
//
// Public constructors return the storage interface so callers cannot couple to
// a backend:
//
//	docs, err := sqlite.NewDocumentStore(path)   // returns storage.DocumentStore
//	vecs, err := badger.NewVectorStore(backend)  // returns storage.VectorStore
//
// # Transactions
//
// DocumentStore.WithTransaction hands the callback a DocumentTx bound to one
// connection. The connection is released on every exit path. A transaction
// never spans calls to the embedding provider or the vector store.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package storage
