package reindex

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/normdoc/core"
)

const (
	// DefaultRetention is how long finished tasks stay queryable.
	DefaultRetention = time.Hour
)

// Registry holds reindex tasks keyed by ID. Running tasks are never evicted;
// finished tasks are removed by GC once their retention window has passed.
type Registry struct {
	mu        sync.RWMutex
	tasks     map[core.ID]*entry
	retention time.Duration
	now       func() time.Time
}

type entry struct {
	task   *core.ReindexTask
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewRegistry creates a registry. A non-positive retention uses DefaultRetention.
func NewRegistry(retention time.Duration) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{
		tasks:     make(map[core.ID]*entry),
		retention: retention,
		now:       time.Now,
	}
}

// create registers a new running task.
func (r *Registry) create(cancel context.CancelFunc) *entry {
	now := r.now()
	e := &entry{
		task: &core.ReindexTask{
			Id:        core.NewID(),
			Status:    core.TaskRunning,
			StartedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.tasks[e.task.Id] = e
	r.mu.Unlock()
	return e
}

// update applies fn to the live task under the registry lock.
func (r *Registry) update(id core.ID, fn func(*core.ReindexTask)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok {
		return
	}
	fn(e.task)
	e.task.UpdatedAt = r.now()
}

func (r *Registry) lookup(id core.ID) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[id]
	return e, ok
}

func (r *Registry) snapshot(e *entry) *core.ReindexTask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.task.Clone()
}

// Get returns a snapshot of the task.
func (r *Registry) Get(id core.ID) (*core.ReindexTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[id]
	if !ok {
		return nil, core.ErrTaskNotFound
	}
	return e.task.Clone(), nil
}

// List returns snapshots of all tasks, oldest first.
func (r *Registry) List() []*core.ReindexTask {
	r.mu.RLock()
	tasks := make([]*core.ReindexTask, 0, len(r.tasks))
	for _, e := range r.tasks {
		tasks = append(tasks, e.task.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(tasks, func(a, b *core.ReindexTask) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Id, b.Id)
	})
	return tasks
}

// GC removes finished tasks whose retention window has passed and returns the
// number removed.
func (r *Registry) GC() int {
	cutoff := r.now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.tasks {
		if e.task.Finished() && e.task.FinishedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed++
		}
	}
	return removed
}

// RunGC calls GC every interval until ctx is done.
func (r *Registry) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.GC()
		}
	}
}

// Len returns the number of tracked tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
