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

// Package persistence is the sole writer of document, page and chunk rows.
//
// A Coordinator persists the outcome of one pipeline run as a single
// transaction: the document record, its extracted pages, the replacement chunk
// set and the terminal status. If any write fails the transaction is rolled
// back and the failed status is committed separately, so readers never see a
// partial chunk set or a document stuck in processing.
//
// Writers of the same document are serialised with a per-document lock:
//
//	unlock := coordinator.Lock(doc.Id)
//	defer unlock()
//
// Persist takes the lock itself; callers that run several stages for one
// document (persist, then index) hold it across the stages instead.
package persistence
