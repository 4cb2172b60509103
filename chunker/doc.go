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

// Package chunker splits page-structured text into overlapping, bounded
// chunks annotated with page, section and subsection provenance.
//
// Text is segmented into sentences, which are packed into chunks until the
// word budget is reached. The trailing sentences of a chunk, up to the
// overlap budget, are repeated at the start of the next one. When the last
// sentence alone exceeds the overlap budget its trailing words are carried
// instead, so chunk i+1 always starts with the tail of chunk i. Section
// changes start a fresh chunk without overlap; page changes flush the current
// chunk but keep the overlap, since text flows across pages.
//
// Chunking is a pure function of its input: the sequence can be ranged over
// any number of times and always yields the same chunks.
package chunker
