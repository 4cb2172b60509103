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

import "time"

// TaskStatus is the state of a reindex task.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
)

// DocumentError records a document that failed during a reindex.
type DocumentError struct {
	DocumentId ID     `json:"document_id"`
	Filename   string `json:"filename,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Error      string `json:"error"`
}

// ReindexTask is a snapshot of a reindex run. Only the reindex orchestrator
// mutates tasks; everything else receives copies.
type ReindexTask struct {
	Id              ID              `json:"id"`
	Status          TaskStatus      `json:"status"`
	TotalDocuments  int             `json:"total_documents"`
	ProcessedCount  int             `json:"processed_count"`
	CurrentDocument ID              `json:"current_document,omitempty"`
	ChunksCreated   int             `json:"chunks_created"`
	TokensIndexed   int             `json:"tokens_indexed"`
	Cancelled       bool            `json:"cancelled,omitempty"`
	Error           string          `json:"error,omitempty"`
	Errors          []DocumentError `json:"errors,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	FinishedAt      time.Time       `json:"finished_at,omitzero"`
}

// Finished reports whether the task reached a terminal status.
func (t *ReindexTask) Finished() bool {
	return t.Status == TaskCompleted || t.Status == TaskError
}

// Clone returns a deep copy of the task.
func (t *ReindexTask) Clone() *ReindexTask {
	c := *t
	if t.Errors != nil {
		c.Errors = make([]DocumentError, len(t.Errors))
		copy(c.Errors, t.Errors)
	}
	return &c
}
