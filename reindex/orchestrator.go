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

package reindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/ingestion"
	"github.com/poiesic/normdoc/storage"
)

// Config holds configuration for reindex runs.
type Config struct {
	// Workers is the number of documents processed concurrently
	Workers int

	// ContinueOnError keeps a run going after a document fails
	ContinueOnError bool

	// PageSize is the number of documents listed per query when no IDs are given
	PageSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// Retention is how long finished tasks stay queryable
	Retention time.Duration

	// GCInterval is how often expired tasks are evicted; zero disables the loop
	GCInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:         max(runtime.NumCPU()/2, 1),
		ContinueOnError: true,
		PageSize:        DefaultPageSize,
		ReportInterval:  1,
		Retention:       DefaultRetention,
		GCInterval:      10 * time.Minute,
	}
}

// Processor re-runs the ingestion stages after parsing for one document.
// *ingestion.Pipeline satisfies it.
type Processor interface {
	ReprocessDocument(ctx context.Context, id core.ID) (*core.Document, error)
}

// Request selects the documents to reindex. When DocumentIds is empty every
// document matching Filter is reindexed.
type Request struct {
	DocumentIds []core.ID
	Filter      core.DocumentFilter
}

// Summary is the outcome of a finished reindex.
type Summary struct {
	TaskId             core.ID              `json:"task_id"`
	Status             core.TaskStatus      `json:"status"`
	TotalDocuments     int                  `json:"total_documents"`
	DocumentsProcessed int                  `json:"documents_processed"`
	ChunksCreated      int                  `json:"chunks_created"`
	TokensIndexed      int                  `json:"tokens_indexed"`
	Errors             []core.DocumentError `json:"errors"`
	Cancelled          bool                 `json:"cancelled,omitempty"`
	Elapsed            time.Duration        `json:"elapsed"`
}

func summarize(task *core.ReindexTask) *Summary {
	errs := task.Errors
	if errs == nil {
		errs = []core.DocumentError{}
	}
	return &Summary{
		TaskId:             task.Id,
		Status:             task.Status,
		TotalDocuments:     task.TotalDocuments,
		DocumentsProcessed: task.ProcessedCount,
		ChunksCreated:      task.ChunksCreated,
		TokensIndexed:      task.TokensIndexed,
		Errors:             errs,
		Cancelled:          task.Cancelled,
		Elapsed:            task.FinishedAt.Sub(task.StartedAt),
	}
}

// Orchestrator runs reindex tasks.
type Orchestrator struct {
	docs      storage.DocumentStore
	processor Processor
	registry  *Registry
	config    *Config
	pool      *ants.Pool
	progress  io.Writer
	logger    *slog.Logger

	mu      sync.Mutex
	closed  bool
	running sync.WaitGroup
	stopGC  context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithConfig replaces the default configuration.
func WithConfig(config *Config) Option {
	return func(o *Orchestrator) error {
		if config == nil {
			return nil
		}
		c := *config
		if c.Workers < 1 {
			c.Workers = 1
		}
		if c.PageSize <= 0 {
			c.PageSize = DefaultPageSize
		}
		o.config = &c
		return nil
	}
}

// WithRegistry shares a task registry between orchestrators.
func WithRegistry(registry *Registry) Option {
	return func(o *Orchestrator) error {
		o.registry = registry
		return nil
	}
}

// WithProgress writes a progress line for each run to w (typically os.Stderr).
func WithProgress(w io.Writer) Option {
	return func(o *Orchestrator) error {
		o.progress = w
		return nil
	}
}

// WithLogger sets a custom logger for the orchestrator.
// If not provided, slog.Default() will be used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates an orchestrator that lists documents from docs and
// hands each one to processor.
func NewOrchestrator(docs storage.DocumentStore, processor Processor, opts ...Option) (*Orchestrator, error) {
	if docs == nil {
		return nil, ErrDocumentStoreRequired
	}
	if processor == nil {
		return nil, ErrProcessorRequired
	}

	o := &Orchestrator{
		docs:      docs,
		processor: processor,
		config:    DefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "reindex")
	if o.registry == nil {
		o.registry = NewRegistry(o.config.Retention)
	}

	pool, err := ants.NewPool(o.config.Workers)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	o.pool = pool

	gcCtx, stop := context.WithCancel(context.Background())
	o.stopGC = stop
	if o.config.GCInterval > 0 {
		go o.registry.RunGC(gcCtx, o.config.GCInterval)
	}
	return o, nil
}

// Registry returns the task registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Start launches a reindex in the background and returns its task ID.
// The task outlives ctx; stop it with Cancel.
func (o *Orchestrator) Start(ctx context.Context, req Request) (core.ID, error) {
	e, err := o.start(context.WithoutCancel(ctx), req)
	if err != nil {
		return "", err
	}
	return e.task.Id, nil
}

// Run reindexes and blocks until the task finishes. Cancelling ctx cancels
// the task; documents already in flight still complete before Run returns.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Summary, error) {
	// The task context derives from ctx so cancellation reaches the launch
	// loop before it can take another document.
	e, err := o.start(ctx, req)
	if err != nil {
		return nil, err
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		o.cancel(e)
		<-e.done
	}

	summary := summarize(o.registry.snapshot(e))
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, e.err
}

// start registers a task whose context derives from parent and runs it.
func (o *Orchestrator) start(parent context.Context, req Request) (*entry, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrOrchestratorClosed
	}
	o.running.Add(1)
	o.mu.Unlock()

	taskCtx, cancel := context.WithCancel(parent)
	e := o.registry.create(cancel)
	go func() {
		defer o.running.Done()
		defer close(e.done)
		defer cancel()
		e.err = o.execute(taskCtx, e.task.Id, req)
	}()
	return e, nil
}

// Status returns a snapshot of the task.
func (o *Orchestrator) Status(id core.ID) (*core.ReindexTask, error) {
	return o.registry.Get(id)
}

// Tasks returns snapshots of all tracked tasks.
func (o *Orchestrator) Tasks() []*core.ReindexTask {
	return o.registry.List()
}

// Cancel stops the task from launching further documents. Cancelling a
// finished task is a no-op.
func (o *Orchestrator) Cancel(id core.ID) error {
	e, ok := o.registry.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrTaskNotFound, id)
	}
	o.cancel(e)
	return nil
}

func (o *Orchestrator) cancel(e *entry) {
	o.registry.update(e.task.Id, func(t *core.ReindexTask) {
		if !t.Finished() {
			t.Cancelled = true
		}
	})
	e.cancel()
}

// Wait blocks until the task finishes or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, id core.ID) (*core.ReindexTask, error) {
	e, ok := o.registry.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrTaskNotFound, id)
	}
	select {
	case <-e.done:
		return o.registry.snapshot(e), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close cancels running tasks, waits for their in-flight documents and
// releases the worker pool.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	for _, task := range o.registry.List() {
		if !task.Finished() {
			if e, ok := o.registry.lookup(task.Id); ok {
				o.cancel(e)
			}
		}
	}
	o.running.Wait()
	o.stopGC()
	o.pool.Release()
}

// outcome is one finished document, sent from the workers to the collector.
type outcome struct {
	id  core.ID
	doc *core.Document
	err error
}

func (o *Orchestrator) execute(ctx context.Context, taskID core.ID, req Request) error {
	logger := o.logger.With("task", taskID)

	ids, err := o.resolve(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			o.finish(taskID, ErrCancelled)
			return ErrCancelled
		}
		err = fmt.Errorf("listing documents: %w", err)
		o.finish(taskID, err)
		return err
	}
	o.registry.update(taskID, func(t *core.ReindexTask) {
		t.TotalDocuments = len(ids)
	})
	logger.Info("reindex started", "documents", len(ids), "workers", o.config.Workers)

	var tracker *ProgressReporter
	if o.progress != nil {
		tracker = NewProgressReporter(o.progress, len(ids), o.config.ReportInterval)
	}

	results := make(chan outcome)
	halt := make(chan struct{})
	collected := make(chan error, 1)
	go func() {
		var firstErr error
		for r := range results {
			o.record(taskID, r)
			if tracker != nil {
				tracker.Observe(r.id, r.doc, r.err)
			}
			if r.err != nil {
				logger.Warn("document failed", "document", r.id, "stage", ingestion.Stage(r.err), "error", r.err)
				if !o.config.ContinueOnError && firstErr == nil {
					firstErr = fmt.Errorf("document %s: %w", r.id, r.err)
					close(halt)
				}
			}
		}
		collected <- firstErr
	}()

	// In-flight documents run on a context that ignores cancellation so a
	// cancelled task never leaves a document between stores.
	work := context.WithoutCancel(ctx)
	sem := make(chan struct{}, o.config.Workers)
	var wg sync.WaitGroup
	var submitErr error

launch:
	for _, id := range ids {
		select {
		case <-ctx.Done():
			break launch
		case <-halt:
			break launch
		case sem <- struct{}{}:
		}
		// Cancellation or a halt may have raced the semaphore.
		if ctx.Err() != nil || isClosed(halt) {
			<-sem
			break
		}

		wg.Add(1)
		err := o.pool.Submit(func() {
			defer wg.Done()
			defer func() { <-sem }()
			o.registry.update(taskID, func(t *core.ReindexTask) {
				t.CurrentDocument = id
			})
			doc, err := o.processor.ReprocessDocument(work, id)
			results <- outcome{id: id, doc: doc, err: err}
		})
		if err != nil {
			wg.Done()
			<-sem
			submitErr = fmt.Errorf("submitting document %s: %w", id, err)
			break
		}
	}

	wg.Wait()
	close(results)
	firstErr := <-collected
	if tracker != nil {
		tracker.Finish()
	}

	var final error
	switch {
	case submitErr != nil:
		final = submitErr
	case firstErr != nil:
		final = firstErr
	case ctx.Err() != nil:
		final = ErrCancelled
	}
	o.finish(taskID, final)

	task, _ := o.registry.Get(taskID)
	if task != nil {
		logger.Info("reindex finished",
			"status", task.Status,
			"processed", task.ProcessedCount,
			"total", task.TotalDocuments,
			"chunks", task.ChunksCreated,
			"tokens", task.TokensIndexed,
			"errors", len(task.Errors),
			"cancelled", task.Cancelled)
	}
	return final
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// resolve returns the IDs to process in order.
func (o *Orchestrator) resolve(ctx context.Context, req Request) ([]core.ID, error) {
	if len(req.DocumentIds) > 0 {
		seen := make(map[core.ID]struct{}, len(req.DocumentIds))
		ids := make([]core.ID, 0, len(req.DocumentIds))
		for _, id := range req.DocumentIds {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return ids, nil
	}
	return NewDocumentIterator(o.docs, req.Filter, o.config.PageSize).IDs(ctx)
}

// record folds one document outcome into the task.
func (o *Orchestrator) record(taskID core.ID, r outcome) {
	o.registry.update(taskID, func(t *core.ReindexTask) {
		t.ProcessedCount++
		if r.doc != nil && r.doc.Status == core.StatusCompleted {
			t.ChunksCreated += r.doc.ChunkCount
			t.TokensIndexed += r.doc.TokenCount
		}
		if r.err != nil {
			de := core.DocumentError{
				DocumentId: r.id,
				Stage:      ingestion.Stage(r.err),
				Error:      r.err.Error(),
			}
			if r.doc != nil {
				de.Filename = r.doc.Filename
			}
			t.Errors = append(t.Errors, de)
		}
	})
}

// finish moves the task to its terminal status.
func (o *Orchestrator) finish(taskID core.ID, err error) {
	o.registry.update(taskID, func(t *core.ReindexTask) {
		t.CurrentDocument = ""
		t.FinishedAt = o.registry.now()
		switch {
		case err == nil:
			t.Status = core.TaskCompleted
		case errors.Is(err, ErrCancelled):
			t.Status = core.TaskError
			t.Cancelled = true
			t.Error = err.Error()
		default:
			t.Status = core.TaskError
			t.Error = err.Error()
		}
	})
}
