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

// Package search provides hybrid vector and lexical retrieval over chunks.
//
// The Searcher embeds the query, asks the vector store for nearest-neighbour
// candidates restricted by the metadata filter, loads the candidate chunks and
// their documents, and re-ranks them with a weighted combination:
//
//	score = (1 - w) * vector + w * lexical
//
// where lexical is the share of query terms (after stop-word filtering) found
// in the chunk text, its headings and its document's number and title. The
// vector signal dominates; a lexical weight of zero gives pure vector ranking.
//
// Equal scores are ordered by chunk sequence index, then document ID, so the
// same query against an unchanged index always yields the same order.
package search
