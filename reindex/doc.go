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

// Package reindex re-runs chunking, embedding, persistence and indexing for
// stored documents, e.g. after a chunking or embedding model change, and
// reconciles documents whose vector state is failed.
//
// An Orchestrator offers two modes over the same execution: Run blocks and
// returns a Summary, Start returns a task ID immediately. Either way the task
// is recorded in a Registry, where Status can poll it and Cancel can stop it.
// Cancellation stops launching new documents; documents already in flight
// finish their pipeline so that none is left half written.
//
// Documents are processed on a bounded worker pool. A failing document is
// recorded on the task and, unless ContinueOnError is disabled, the run moves
// on to the next one.
package reindex
