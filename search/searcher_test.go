package search

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/normdoc/ai/mock"
	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/storage"
	"github.com/poiesic/normdoc/storage/badger"
	"github.com/poiesic/normdoc/storage/sqlite"
)

// queryFunc adapts a function to QueryEmbedder.
type queryFunc func(ctx context.Context, text string) ([]float32, error)

func (f queryFunc) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

func hashEmbedder() QueryEmbedder {
	return queryFunc(func(_ context.Context, text string) ([]float32, error) {
		return mock.HashVector(text, mock.DefaultDimensions), nil
	})
}

func fixedEmbedder(v ...float32) QueryEmbedder {
	return queryFunc(func(context.Context, string) ([]float32, error) { return v, nil })
}

type index struct {
	docs    storage.DocumentStore
	vectors storage.VectorStore
}

func newIndex(t *testing.T) *index {
	t.Helper()
	docs, err := sqlite.NewDocumentStore(filepath.Join(t.TempDir(), "normdoc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })
	vectors, err := badger.NewMemoryVectorStore()
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })
	return &index{docs: docs, vectors: vectors}
}

type entry struct {
	content string
	vector  []float32 // HashVector of content when nil
}

func (ix *index) add(t *testing.T, doc *core.Document, entries ...entry) {
	t.Helper()
	ctx := context.Background()
	doc.ContentHash = "hash-" + string(doc.Id)
	doc.Filename = string(doc.Id) + ".txt"
	doc.Status = core.StatusCompleted
	require.NoError(t, ix.docs.CreateDocument(ctx, doc))

	chunks := make([]core.Chunk, len(entries))
	for i, e := range entries {
		chunks[i] = core.Chunk{
			Id:         core.ChunkID(doc.Id, i),
			DocumentId: doc.Id,
			Index:      i,
			Page:       1,
			Section:    "1 Scope",
			Content:    e.content,
			TokenCount: 1,
		}
		v := e.vector
		if v == nil {
			v = mock.HashVector(e.content, mock.DefaultDimensions)
		}
		require.NoError(t, ix.vectors.Upsert(ctx, &core.VectorRecord{
			ChunkId: chunks[i].Id,
			Vector:  v,
			Payload: core.VectorPayload{
				DocumentId:   doc.Id,
				ChunkIndex:   i,
				Category:     doc.Category,
				DocumentType: doc.Type,
				ProjectCode:  doc.ProjectCode,
			},
		}))
	}
	require.NoError(t, ix.docs.WithTransaction(ctx, func(tx storage.DocumentTx) error {
		return tx.InsertChunks(ctx, chunks)
	}))
}

func TestNewSearcher(t *testing.T) {
	ix := newIndex(t)

	t.Run("valid configuration", func(t *testing.T) {
		s, err := NewSearcher(ix.docs, ix.vectors, hashEmbedder())
		require.NoError(t, err)
		assert.Equal(t, float32(DefaultLexicalWeight), s.lexicalWeight)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		s, err := NewSearcher(ix.docs, ix.vectors, hashEmbedder(), WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, s.logger)
	})

	t.Run("missing collaborators", func(t *testing.T) {
		_, err := NewSearcher(nil, ix.vectors, hashEmbedder())
		assert.Equal(t, ErrDocumentStoreRequired, err)
		_, err = NewSearcher(ix.docs, nil, hashEmbedder())
		assert.Equal(t, ErrVectorStoreRequired, err)
		_, err = NewSearcher(ix.docs, ix.vectors, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})

	t.Run("invalid lexical weight", func(t *testing.T) {
		_, err := NewSearcher(ix.docs, ix.vectors, hashEmbedder(), WithLexicalWeight(0.8))
		assert.ErrorIs(t, err, ErrInvalidWeight)
	})
}

func TestSearch_InvalidQuery(t *testing.T) {
	ix := newIndex(t)
	s, err := NewSearcher(ix.docs, ix.vectors, hashEmbedder())
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "   ", core.SearchFilter{}, 5)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)

	_, err = s.Search(context.Background(), "walls", core.SearchFilter{}, 0)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

func TestSearch_EmptyIndex(t *testing.T) {
	ix := newIndex(t)
	s, err := NewSearcher(ix.docs, ix.vectors, hashEmbedder())
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "fire resistance", core.SearchFilter{}, 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearch_RanksAndHydrates(t *testing.T) {
	ix := newIndex(t)
	ix.add(t, &core.Document{Id: "gost", Category: "standard", Type: core.TypeStandard, Number: "12345", Year: 2020, Title: "Concrete"},
		entry{content: "concrete mixtures for load bearing walls"},
		entry{content: "fire resistance of load bearing walls"},
	)
	ix.add(t, &core.Document{Id: "sp", Category: "code", Type: core.TypeCode},
		entry{content: "ventilation of residential buildings"},
	)

	s, err := NewSearcher(ix.docs, ix.vectors, hashEmbedder())
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "fire resistance of load bearing walls", core.SearchFilter{}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	top := results[0]
	assert.Equal(t, core.ChunkID("gost", 1), top.Chunk.Id)
	assert.Equal(t, "gost.txt", top.Document.Filename)
	assert.Equal(t, 1, top.Chunk.Page)
	assert.Equal(t, "1 Scope", top.Chunk.Section)
	assert.InDelta(t, 1.0, top.VectorScore, 1e-5)
	assert.InDelta(t, 1.0, top.LexicalScore, 1e-5)
	assert.InDelta(t, 1.0, top.Score, 1e-5)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	t.Run("metadata filter", func(t *testing.T) {
		results, err := s.Search(context.Background(), "walls", core.SearchFilter{Category: "code"}, 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, core.ID("sp"), results[0].Document.Id)
	})

	t.Run("filter matching nothing", func(t *testing.T) {
		results, err := s.Search(context.Background(), "walls", core.SearchFilter{ProjectCode: "nope"}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("document number counts as a lexical term", func(t *testing.T) {
		results, err := s.Search(context.Background(), "12345", core.SearchFilter{}, 3)
		require.NoError(t, err)
		for _, r := range results {
			if r.Document.Id == "gost" {
				assert.InDelta(t, 1.0, r.LexicalScore, 1e-6)
			} else {
				assert.Zero(t, r.LexicalScore)
			}
		}
	})
}

func TestSearch_LexicalWeightReranks(t *testing.T) {
	ix := newIndex(t)
	ix.add(t, &core.Document{Id: "doc", Category: "standard"},
		entry{content: "unrelated wording entirely", vector: []float32{1, 0}},
		entry{content: "fire resistance requirements", vector: []float32{0.9, 0.43588989}},
	)

	pure, err := NewSearcher(ix.docs, ix.vectors, fixedEmbedder(1, 0), WithLexicalWeight(0))
	require.NoError(t, err)
	results, err := pure.Search(context.Background(), "fire resistance", core.SearchFilter{}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Chunk.Index)
	assert.Zero(t, results[0].LexicalScore)

	hybrid, err := NewSearcher(ix.docs, ix.vectors, fixedEmbedder(1, 0), WithLexicalWeight(0.5))
	require.NoError(t, err)
	results, err = hybrid.Search(context.Background(), "fire resistance", core.SearchFilter{}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Chunk.Index)
	assert.InDelta(t, 0.95, results[0].Score, 1e-5)
	assert.InDelta(t, 0.5, results[1].Score, 1e-5)
}

func TestSearch_TieBreakIsStable(t *testing.T) {
	ix := newIndex(t)
	same := entry{content: "identical text", vector: []float32{1, 0}}
	ix.add(t, &core.Document{Id: "c"}, same)
	ix.add(t, &core.Document{Id: "a"}, entry{content: "other", vector: []float32{0, 1}}, same)
	ix.add(t, &core.Document{Id: "b"}, same)

	s, err := NewSearcher(ix.docs, ix.vectors, fixedEmbedder(1, 0))
	require.NoError(t, err)

	var first []core.ID
	for i := range 5 {
		results, err := s.Search(context.Background(), "identical text", core.SearchFilter{}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		order := []core.ID{results[0].Chunk.Id, results[1].Chunk.Id, results[2].Chunk.Id}
		if i == 0 {
			first = order
			continue
		}
		assert.Equal(t, first, order)
	}
	assert.Equal(t, []core.ID{core.ChunkID("b", 0), core.ChunkID("c", 0), core.ChunkID("a", 1)}, first)
}

func TestSearch_EmbedderError(t *testing.T) {
	ix := newIndex(t)
	boom := errors.New("provider down")
	s, err := NewSearcher(ix.docs, ix.vectors, queryFunc(func(context.Context, string) ([]float32, error) {
		return nil, boom
	}))
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "walls", core.SearchFilter{}, 3)
	assert.ErrorIs(t, err, boom)
}

type recordingMonitor struct {
	started  string
	matches  int
	hydrated int
	lexical  int
	finished int
}

func (m *recordingMonitor) Start(query string, _ core.SearchFilter)      { m.started = query }
func (m *recordingMonitor) AfterVectorSearch(matches []core.VectorMatch) { m.matches = len(matches) }
func (m *recordingMonitor) AfterHydration(chunks []core.Chunk)           { m.hydrated = len(chunks) }
func (m *recordingMonitor) LexicalHit(_ *core.SearchResult)              { m.lexical++ }
func (m *recordingMonitor) Finish(results []*core.SearchResult)          { m.finished = len(results) }

func TestSearchWithMonitor(t *testing.T) {
	ix := newIndex(t)
	ix.add(t, &core.Document{Id: "doc"},
		entry{content: "walls and floors"},
		entry{content: "roof drainage"},
	)
	s, err := NewSearcher(ix.docs, ix.vectors, hashEmbedder(), WithCandidateMultiplier(2))
	require.NoError(t, err)

	m := &recordingMonitor{}
	results, err := s.SearchWithMonitor(context.Background(), "walls", core.SearchFilter{}, 1, m)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "walls", m.started)
	assert.Equal(t, 2, m.matches)
	assert.Equal(t, 2, m.hydrated)
	assert.Equal(t, 1, m.lexical)
	assert.Equal(t, 1, m.finished)

	// LogMonitor satisfies the same hooks.
	_, err = s.SearchWithMonitor(context.Background(), "walls", core.SearchFilter{}, 1, NewLogMonitor(slog.Default()))
	require.NoError(t, err)
}

func TestTokenizeAndFilter(t *testing.T) {
	assert.Equal(t, []string{"fire", "resistance", "walls"}, tokenizeAndFilter("The fire resistance of (walls)"))
	assert.Equal(t, []string{"требования", "стенам"}, tokenizeAndFilter("Требования к стенам."))
	assert.Equal(t, []string{"12345-2020"}, tokenizeAndFilter("«12345-2020»"))
	assert.Equal(t, []string{"walls", "fire"}, queryTerms("walls fire walls"))
	assert.InDelta(t, 0.5, coverage([]string{"walls", "roof"}, "Walls only"), 1e-6)
	assert.Zero(t, coverage(nil, "anything"))
}
