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

// Package ingestion turns uploaded files into searchable chunks.
//
// A Pipeline runs each document through the stages
//
//	parse → classify → chunk → embed → persist → index
//
// sequentially, while different documents are processed concurrently on a
// bounded worker pool. Upload acknowledges immediately with the stored
// document in the uploaded state and continues in the background; Ingest runs
// the same stages on the caller's goroutine. Every failure ends in a terminal
// status: input and provider errors mark the document failed, while a vector
// index failure leaves it completed with its vector state failed.
//
// Byte-identical uploads are deduplicated by content hash. Re-uploading the
// content of a failed document processes it again.
//
// A Watcher feeds files dropped into a directory to Upload.
package ingestion
