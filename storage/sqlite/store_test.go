package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *DocumentStore {
	s, err := openDocumentStore(filepath.Join(t.TempDir(), "normdoc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newDoc(id core.ID, hash string) *core.Document {
	return &core.Document{
		Id:          id,
		Filename:    string(id) + ".txt",
		FileType:    "txt",
		Size:        42,
		ContentHash: hash,
		Category:    "standard",
		Type:        core.TypeStandard,
		Status:      core.StatusUploaded,
	}
}

func chunksFor(doc core.ID, n int) []core.Chunk {
	chunks := make([]core.Chunk, n)
	for i := range chunks {
		chunks[i] = core.Chunk{
			Id:            core.ChunkID(doc, i),
			DocumentId:    doc,
			Index:         i,
			Page:          i + 1,
			Section:       "1 Scope",
			Content:       "chunk text",
			TokenCount:    2,
			HierarchyPath: []string{"1 Scope"},
		}
	}
	return chunks
}

func TestNewDocumentStore(t *testing.T) {
	t.Run("creates database and directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "normdoc.db")
		s, err := NewDocumentStore(path)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	})

	t.Run("reopening skips applied migrations", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "normdoc.db")
		s, err := NewDocumentStore(path)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		s, err = NewDocumentStore(path)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := NewDocumentStore("")
		assert.Error(t, err)
	})
}

func TestCreateAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := newDoc("doc-1", "hash-1")
	require.NoError(t, s.CreateDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1.txt", got.Filename)
	assert.Equal(t, core.StatusUploaded, got.Status)
	assert.Equal(t, core.VectorPending, got.VectorState)
	assert.Equal(t, core.TypeStandard, got.Type)
	assert.WithinDuration(t, doc.UploadedAt, got.UploadedAt, time.Second)

	byHash, err := s.GetDocumentByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, core.ID("doc-1"), byHash.Id)

	_, err = s.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetDocumentByHash(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateDocument_DuplicateHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDocument(ctx, newDoc("doc-1", "same")))
	err := s.CreateDocument(ctx, newDoc("doc-2", "same"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	docs, err := s.ListDocuments(ctx, core.DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestCreateDocument_Invalid(t *testing.T) {
	s := newTestStore(t)
	err := s.CreateDocument(context.Background(), &core.Document{Id: "x"})
	assert.ErrorIs(t, err, core.ErrInvalidDocument)
}

func TestWithTransaction_Commit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, newDoc("doc-1", "h")))

	err := s.WithTransaction(ctx, func(tx storage.DocumentTx) error {
		doc := newDoc("doc-1", "h")
		doc.Status = core.StatusCompleted
		doc.ChunkCount = 3
		doc.TokenCount = 6
		if err := tx.UpsertDocument(ctx, doc); err != nil {
			return err
		}
		if err := tx.ReplacePages(ctx, "doc-1", []core.Page{{Number: 1, Text: "one"}, {Number: 2, Text: "two"}}); err != nil {
			return err
		}
		if err := tx.DeleteChunks(ctx, "doc-1"); err != nil {
			return err
		}
		return tx.InsertChunks(ctx, chunksFor("doc-1", 3))
	})
	require.NoError(t, err)

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Equal(t, 3, got.ChunkCount)

	pages, err := s.ListPages(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "two", pages[1].Text)

	chunks, err := s.ListChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, []string{"1 Scope"}, c.HierarchyPath)
	}
}

func TestWithTransaction_RollbackLeavesNoChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, newDoc("doc-1", "h")))

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(tx storage.DocumentTx) error {
		if err := tx.InsertChunks(ctx, chunksFor("doc-1", 2)); err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, "doc-1", core.StatusCompleted, ""); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	chunks, err := s.ListChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusUploaded, got.Status)
}

func TestWithTransaction_RollbackOnPanic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, newDoc("doc-1", "h")))

	assert.Panics(t, func() {
		_ = s.WithTransaction(ctx, func(tx storage.DocumentTx) error {
			if err := tx.InsertChunks(ctx, chunksFor("doc-1", 1)); err != nil {
				return err
			}
			panic("mid-transaction")
		})
	})

	chunks, err := s.ListChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// The connection is usable again after the panic.
	require.NoError(t, s.SetStatus(ctx, "doc-1", core.StatusFailed, "panic"))
}

func TestGetChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, newDoc("doc-1", "h")))
	require.NoError(t, s.WithTransaction(ctx, func(tx storage.DocumentTx) error {
		return tx.InsertChunks(ctx, chunksFor("doc-1", 3))
	}))

	chunks, err := s.GetChunks(ctx, core.ChunkID("doc-1", 2), core.ChunkID("doc-1", 0), "unknown")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 2, chunks[1].Index)

	none, err := s.GetChunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSetStatusAndVectorState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, newDoc("doc-1", "h")))

	require.NoError(t, s.SetStatus(ctx, "doc-1", core.StatusFailed, "corrupt document"))
	require.NoError(t, s.SetVectorState(ctx, "doc-1", core.VectorFailed))

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Equal(t, "corrupt document", got.StatusError)
	assert.Equal(t, core.VectorFailed, got.VectorState)
	assert.False(t, got.VectorIndexed())

	assert.ErrorIs(t, s.SetStatus(ctx, "missing", core.StatusFailed, ""), storage.ErrNotFound)
	assert.ErrorIs(t, s.SetVectorState(ctx, "missing", core.VectorIndexed), storage.ErrNotFound)
}

func TestListDocuments_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newDoc("a", "ha")
	b := newDoc("b", "hb")
	b.Category = "code"
	b.Type = core.TypeCode
	c := newDoc("c", "hc")
	c.Status = core.StatusFailed
	for _, d := range []*core.Document{a, b, c} {
		require.NoError(t, s.CreateDocument(ctx, d))
	}

	all, err := s.ListDocuments(ctx, core.DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	codes, err := s.ListDocuments(ctx, core.DocumentFilter{Category: "code"})
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, core.ID("b"), codes[0].Id)

	failed, err := s.ListDocuments(ctx, core.DocumentFilter{Status: core.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, core.ID("c"), failed[0].Id)

	typed, err := s.ListDocuments(ctx, core.DocumentFilter{Type: core.TypeStandard})
	require.NoError(t, err)
	assert.Len(t, typed, 2)

	page, err := s.ListDocuments(ctx, core.DocumentFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestStatistics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := newDoc("doc-1", "h")
	require.NoError(t, s.CreateDocument(ctx, doc))
	require.NoError(t, s.CreateDocument(ctx, newDoc("doc-2", "h2")))
	require.NoError(t, s.WithTransaction(ctx, func(tx storage.DocumentTx) error {
		doc.Status = core.StatusCompleted
		doc.TokenCount = 10
		doc.ChunkCount = 2
		doc.VectorState = core.VectorIndexed
		if err := tx.UpsertDocument(ctx, doc); err != nil {
			return err
		}
		return tx.InsertChunks(ctx, chunksFor("doc-1", 2))
	}))

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 10, stats.Tokens)
	assert.Equal(t, 1, stats.IndexedDocuments)
	assert.Equal(t, 1, stats.DocumentsByStatus["completed"])
	assert.Equal(t, 1, stats.DocumentsByStatus["uploaded"])
}
