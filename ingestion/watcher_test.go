package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/normdoc/core"
)

func TestWatcher_HandleEvent(t *testing.T) {
	e := newEnv(t)
	dir := t.TempDir()
	w := NewWatcher(e.pipeline, dir)

	file := filepath.Join(dir, "gost.txt")
	require.NoError(t, os.WriteFile(file, []byte("text"), 0644))
	hidden := filepath.Join(dir, ".gost.txt")
	require.NoError(t, os.WriteFile(hidden, []byte("text"), 0644))
	unsupported := filepath.Join(dir, "image.png")
	require.NoError(t, os.WriteFile(unsupported, []byte("png"), 0644))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want bool
	}{
		{"create", file, fsnotify.Create, true},
		{"write", file, fsnotify.Write, true},
		{"write and chmod", file, fsnotify.Write | fsnotify.Chmod, true},
		{"chmod only", file, fsnotify.Chmod, false},
		{"remove", file, fsnotify.Remove, false},
		{"hidden", hidden, fsnotify.Create, false},
		{"unsupported", unsupported, fsnotify.Create, false},
		{"directory", sub, fsnotify.Create, false},
		{"vanished", filepath.Join(dir, "gone.txt"), fsnotify.Create, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := w.handleEvent(fsnotify.Event{Name: tt.path, Op: tt.op})
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, tt.path, path)
			}
		})
	}
}

func TestWatcher_Run(t *testing.T) {
	e := newEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("Present before the watch."), 0644))

	w := NewWatcher(e.pipeline, dir, WithCategory("corporate"), WithProjectCode("P-7"), WithSettleDelay(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	completed := func(n int) func() bool {
		return func() bool {
			docs, err := e.docs.ListDocuments(context.Background(), core.DocumentFilter{Status: core.StatusCompleted})
			return err == nil && len(docs) == n
		}
	}
	require.Eventually(t, completed(1), 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dropped.md"), []byte("# Dropped\n\nArrived later."), 0644))
	require.Eventually(t, completed(2), 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	docs, err := e.docs.ListDocuments(context.Background(), core.DocumentFilter{})
	require.NoError(t, err)
	for _, d := range docs {
		assert.Equal(t, "corporate", d.Category)
		assert.Equal(t, "P-7", d.ProjectCode)
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	e := newEnv(t)
	w := NewWatcher(e.pipeline, filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, w.Run(context.Background()))
}
