package vectorindex

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/storage"
	"github.com/poiesic/normdoc/storage/badger"
	"github.com/poiesic/normdoc/storage/sqlite"
)

type unavailableStore struct {
	storage.VectorStore
	upserts int
}

func (u *unavailableStore) Upsert(ctx context.Context, records ...*core.VectorRecord) error {
	u.upserts++
	return errors.New("connection refused")
}

type fixture struct {
	docs    storage.DocumentStore
	vectors storage.VectorStore
	doc     *core.Document
	chunks  []core.Chunk
	vecs    [][]float32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	docs, err := sqlite.NewDocumentStore(filepath.Join(t.TempDir(), "normdoc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	vectors, err := badger.NewMemoryVectorStore()
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	doc := &core.Document{
		Id:          "doc-1",
		Filename:    "sp.txt",
		FileType:    "txt",
		ContentHash: "h1",
		Category:    "code",
		Type:        core.TypeCode,
		ProjectCode: "P-1",
		Status:      core.StatusCompleted,
	}
	require.NoError(t, docs.CreateDocument(context.Background(), doc))

	f := &fixture{docs: docs, vectors: vectors, doc: doc}
	for i := range 3 {
		f.chunks = append(f.chunks, core.Chunk{Id: core.ChunkID(doc.Id, i), DocumentId: doc.Id, Index: i, Content: "x"})
		v := make([]float32, 3)
		v[i] = 1
		f.vecs = append(f.vecs, v)
	}
	return f
}

func TestNewIndexer(t *testing.T) {
	f := newFixture(t)

	_, err := NewIndexer(nil, f.vectors)
	assert.ErrorIs(t, err, ErrDocumentStoreRequired)

	_, err = NewIndexer(f.docs, nil)
	assert.ErrorIs(t, err, ErrVectorStoreRequired)

	_, err = NewIndexer(f.docs, f.vectors, WithRetry(0, 0))
	assert.Error(t, err)
}

func TestIndex(t *testing.T) {
	f := newFixture(t)
	ix, err := NewIndexer(f.docs, f.vectors)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ix.Index(ctx, f.doc, f.chunks, f.vecs))
	assert.Equal(t, core.VectorIndexed, f.doc.VectorState)

	got, err := f.docs.GetDocument(ctx, f.doc.Id)
	require.NoError(t, err)
	assert.True(t, got.VectorIndexed())

	n, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	matches, err := f.vectors.Search(ctx, []float32{0, 1, 0}, core.SearchFilter{ProjectCode: "P-1"}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, f.chunks[1].Id, matches[0].ChunkId)
	assert.Equal(t, core.TypeCode, matches[0].Payload.DocumentType)
	assert.Equal(t, "code", matches[0].Payload.Category)
}

func TestIndex_DropsFormerVectors(t *testing.T) {
	f := newFixture(t)
	ix, err := NewIndexer(f.docs, f.vectors)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ix.Index(ctx, f.doc, f.chunks, f.vecs))
	require.NoError(t, ix.Index(ctx, f.doc, f.chunks[:1], f.vecs[:1]))

	n, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "no orphaned vectors for removed chunks")
}

func TestIndex_CountMismatch(t *testing.T) {
	f := newFixture(t)
	ix, err := NewIndexer(f.docs, f.vectors)
	require.NoError(t, err)

	err = ix.Index(context.Background(), f.doc, f.chunks, f.vecs[:2])
	assert.ErrorIs(t, err, ErrVectorCountMismatch)
}

func TestIndex_UnavailableKeepsRelationalData(t *testing.T) {
	f := newFixture(t)
	broken := &unavailableStore{VectorStore: f.vectors}
	ix, err := NewIndexer(f.docs, broken, WithRetry(2, time.Millisecond))
	require.NoError(t, err)
	ctx := context.Background()

	err = ix.Index(ctx, f.doc, f.chunks, f.vecs)
	require.ErrorIs(t, err, core.ErrVectorIndexUnavailable)
	assert.Equal(t, 2, broken.upserts)
	assert.Equal(t, core.VectorFailed, f.doc.VectorState)

	got, err := f.docs.GetDocument(ctx, f.doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status, "relational commit is not rolled back")
	assert.Equal(t, core.VectorFailed, got.VectorState)
	assert.False(t, got.VectorIndexed())
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ix, err := NewIndexer(f.docs, f.vectors)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ix.Index(ctx, f.doc, f.chunks, f.vecs))
	require.NoError(t, ix.Remove(ctx, f.doc.Id))

	n, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.docs.GetDocument(ctx, f.doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.VectorPending, got.VectorState)

	require.NoError(t, ix.Remove(ctx, "unknown"))
}
