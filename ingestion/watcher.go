package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/poiesic/normdoc/parser"
)

// DefaultSettleDelay is how long a file must stay unchanged before upload.
const DefaultSettleDelay = 500 * time.Millisecond

// Watcher uploads supported files created or written in a directory.
// Hidden files, directories and unsupported types are ignored. Existing files
// are uploaded when Run starts; deduplication makes rescans harmless.
type Watcher struct {
	pipeline    *Pipeline
	dir         string
	category    string
	projectCode string
	settle      time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithCategory sets the declared category of watched uploads.
func WithCategory(category string) WatcherOption {
	return func(w *Watcher) {
		w.category = category
	}
}

// WithProjectCode sets the project code of watched uploads.
func WithProjectCode(code string) WatcherOption {
	return func(w *Watcher) {
		w.projectCode = code
	}
}

// WithSettleDelay sets how long writes must pause before a file is uploaded.
func WithSettleDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.settle = d
	}
}

// NewWatcher creates a Watcher for dir feeding pipeline.
func NewWatcher(pipeline *Pipeline, dir string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		pipeline: pipeline,
		dir:      dir,
		settle:   DefaultSettleDelay,
		logger:   pipeline.logger.With("watch", dir),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches the directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.scan(ctx)
	w.logger.Info("watching directory")

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.handleEvent(event); ok {
				w.schedule(ctx, path)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)
		}
	}
}

// handleEvent returns the path to upload for an event, if any.
func (w *Watcher) handleEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	return event.Name, eligible(event.Name)
}

func eligible(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return parser.Supported(parser.FileType(path))
}

func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("initial scan failed", "err", err)
		return
	}
	for _, entry := range entries {
		path := filepath.Join(w.dir, entry.Name())
		if eligible(path) {
			w.upload(ctx, path)
		}
	}
}

// schedule uploads path once it has been quiet for the settle delay.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() == nil {
			w.upload(ctx, path)
		}
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) upload(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("reading file failed", "path", path, "err", err)
		return
	}
	result, err := w.pipeline.Upload(ctx, UploadRequest{
		Filename:    filepath.Base(path),
		Content:     content,
		Category:    w.category,
		ProjectCode: w.projectCode,
	})
	if err != nil {
		w.logger.Warn("upload failed", "path", path, "err", err)
		return
	}
	if result.Duplicate {
		w.logger.Debug("file already ingested", "path", path, "document_id", result.Document.Id)
		return
	}
	w.logger.Info("file queued", "path", path, "document_id", result.Document.Id)
}
