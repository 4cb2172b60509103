package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/storage"
	"github.com/poiesic/normdoc/storage/sqlite"
)

var errDiskFull = errors.New("disk full")

// faultStore fails InsertChunks after writing the first half of the batch.
type faultStore struct {
	storage.DocumentStore
	fail atomic.Bool
}

func (f *faultStore) WithTransaction(ctx context.Context, fn func(tx storage.DocumentTx) error) error {
	return f.DocumentStore.WithTransaction(ctx, func(tx storage.DocumentTx) error {
		if f.fail.Load() {
			return fn(&faultTx{DocumentTx: tx})
		}
		return fn(tx)
	})
}

type faultTx struct {
	storage.DocumentTx
}

func (f *faultTx) InsertChunks(ctx context.Context, chunks []core.Chunk) error {
	if err := f.DocumentTx.InsertChunks(ctx, chunks[:len(chunks)/2]); err != nil {
		return err
	}
	return errDiskFull
}

func newStore(t *testing.T) *faultStore {
	t.Helper()
	s, err := sqlite.NewDocumentStore(filepath.Join(t.TempDir(), "normdoc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return &faultStore{DocumentStore: s}
}

func uploaded(t *testing.T, store storage.DocumentStore, id core.ID) *core.Document {
	t.Helper()
	doc := &core.Document{
		Id:          id,
		Filename:    "gost.txt",
		FileType:    "txt",
		Size:        100,
		ContentHash: "hash-" + string(id),
		Category:    "standard",
		Type:        core.TypeStandard,
		Status:      core.StatusUploaded,
	}
	require.NoError(t, store.CreateDocument(context.Background(), doc))
	return doc
}

func chunks(id core.ID, n int) []core.Chunk {
	out := make([]core.Chunk, n)
	for i := range out {
		out[i] = core.Chunk{
			Id:         core.ChunkID(id, i),
			DocumentId: id,
			Index:      i,
			Page:       1,
			Content:    "walls shall resist fire",
			TokenCount: 4,
		}
	}
	return out
}

func TestNewCoordinator(t *testing.T) {
	_, err := NewCoordinator(nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	c, err := NewCoordinator(newStore(t), WithLogger(nil))
	require.NoError(t, err)
	assert.NotNil(t, c.logger)
}

func TestPersist_Commits(t *testing.T) {
	store := newStore(t)
	c, err := NewCoordinator(store)
	require.NoError(t, err)
	ctx := context.Background()

	doc := uploaded(t, store, "doc-1")
	require.NoError(t, c.MarkProcessing(ctx, doc.Id))

	pages := []core.Page{{Number: 1, Text: "one"}, {Number: 2, Text: "two"}}
	require.NoError(t, c.Persist(ctx, doc, pages, chunks(doc.Id, 4)))

	assert.Equal(t, core.StatusCompleted, doc.Status)
	assert.Equal(t, 4, doc.ChunkCount)
	assert.Equal(t, 16, doc.TokenCount)
	assert.Equal(t, core.VectorPending, doc.VectorState)

	got, err := store.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Equal(t, 4, got.ChunkCount)

	stored, err := store.ListChunks(ctx, doc.Id)
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	storedPages, err := store.ListPages(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, pages, storedPages)
}

func TestPersist_ReplacesChunksAndKeepsPages(t *testing.T) {
	store := newStore(t)
	c, err := NewCoordinator(store)
	require.NoError(t, err)
	ctx := context.Background()

	doc := uploaded(t, store, "doc-1")
	pages := []core.Page{{Number: 1, Text: "one"}}
	require.NoError(t, c.Persist(ctx, doc, pages, chunks(doc.Id, 5)))
	require.NoError(t, c.Persist(ctx, doc, nil, chunks(doc.Id, 2)))

	stored, err := store.ListChunks(ctx, doc.Id)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	storedPages, err := store.ListPages(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, pages, storedPages)
}

func TestPersist_FailureMidInsertLeavesNoChunks(t *testing.T) {
	store := newStore(t)
	c, err := NewCoordinator(store)
	require.NoError(t, err)
	ctx := context.Background()

	doc := uploaded(t, store, "doc-1")
	require.NoError(t, c.MarkProcessing(ctx, doc.Id))

	store.fail.Store(true)
	err = c.Persist(ctx, doc, []core.Page{{Number: 1, Text: "one"}}, chunks(doc.Id, 6))
	require.ErrorIs(t, err, ErrPersistFailed)
	require.ErrorIs(t, err, errDiskFull)

	stored, err := store.ListChunks(ctx, doc.Id)
	require.NoError(t, err)
	assert.Empty(t, stored, "no partial chunk set is visible")

	got, err := store.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Contains(t, got.StatusError, "disk full")
	assert.Zero(t, got.ChunkCount)
	assert.Equal(t, core.StatusFailed, doc.Status)
}

func TestPersist_FailureKeepsPreviousChunks(t *testing.T) {
	store := newStore(t)
	c, err := NewCoordinator(store)
	require.NoError(t, err)
	ctx := context.Background()

	doc := uploaded(t, store, "doc-1")
	require.NoError(t, c.Persist(ctx, doc, nil, chunks(doc.Id, 3)))

	store.fail.Store(true)
	require.Error(t, c.Persist(ctx, doc, nil, chunks(doc.Id, 8)))

	stored, err := store.ListChunks(ctx, doc.Id)
	require.NoError(t, err)
	assert.Len(t, stored, 3, "rollback restores the previous chunk set")
}

func TestPersist_InvalidChunks(t *testing.T) {
	store := newStore(t)
	c, err := NewCoordinator(store)
	require.NoError(t, err)
	ctx := context.Background()

	doc := uploaded(t, store, "doc-1")
	bad := chunks(doc.Id, 3)
	bad[2].Index = 7

	err = c.Persist(ctx, doc, nil, bad)
	require.ErrorIs(t, err, core.ErrNonContiguousChunks)

	got, err := store.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
}

func TestPersist_InvalidDocument(t *testing.T) {
	c, err := NewCoordinator(newStore(t))
	require.NoError(t, err)

	err = c.Persist(context.Background(), &core.Document{Id: "x"}, nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidDocument)
}

func TestMarkFailed_CancelledContext(t *testing.T) {
	store := newStore(t)
	c, err := NewCoordinator(store)
	require.NoError(t, err)

	doc := uploaded(t, store, "doc-1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, c.MarkFailed(ctx, doc.Id, errors.New("cancelled upstream")))

	got, err := store.GetDocument(context.Background(), doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Equal(t, "cancelled upstream", got.StatusError)
}

func TestMarkFailedWithPages(t *testing.T) {
	store := newStore(t)
	c, err := NewCoordinator(store)
	require.NoError(t, err)
	ctx := context.Background()

	doc := uploaded(t, store, "doc-1")
	pages := []core.Page{{Number: 1, Text: "kept for reindex"}}
	require.NoError(t, c.MarkFailedWithPages(ctx, doc.Id, pages, core.ErrEmbeddingTimeout))

	got, err := store.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Equal(t, core.ErrEmbeddingTimeout.Error(), got.StatusError)

	stored, err := store.ListPages(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, pages, stored)

	err = c.MarkFailedWithPages(ctx, "missing", pages, core.ErrEmbeddingTimeout)
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)
}

func TestMarkProcessing_Missing(t *testing.T) {
	c, err := NewCoordinator(newStore(t))
	require.NoError(t, err)

	err = c.MarkProcessing(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)
}

func TestLock_SerialisesOneDocument(t *testing.T) {
	c, err := NewCoordinator(newStore(t))
	require.NoError(t, err)

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := c.Lock("doc-1")
			defer unlock()
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Zero(t, c.locks.held(), "lock entries are released")
}

func TestLock_IndependentDocuments(t *testing.T) {
	c, err := NewCoordinator(newStore(t))
	require.NoError(t, err)

	unlockA := c.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := c.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
	unlockA()
	assert.Zero(t, c.locks.held())
}
