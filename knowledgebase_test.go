package normdoc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/normdoc/ai/mock"
	"github.com/poiesic/normdoc/api"
	"github.com/poiesic/normdoc/config"
	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/ingestion"
	"github.com/poiesic/normdoc/reindex"
)

var _ api.Service = (*KnowledgeBase)(nil)

const gostText = "GOST 12345-2020\nConcrete mixtures. Specifications\n\n" +
	"1 Scope\n\nThis standard applies to concrete mixtures for load bearing walls. " +
	"It sets requirements for strength and durability.\f" +
	"2 Requirements\n\n2.1 Strength\n\nCompressive strength shall be tested at 28 days. " +
	"Samples are cured under normal conditions.\f" +
	"3 Acceptance\n\nEach batch is accepted by the manufacturer's quality department."

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "normdoc.db")
	cfg.Storage.InMemory = true
	cfg.Embedding.Dimensions = 0
	cfg.Embedding.RetryDelay = time.Millisecond
	cfg.Chunking.Size = 20
	cfg.Chunking.Overlap = 5
	cfg.Ingestion.Workers = 2
	cfg.Reindex.Workers = 2
	return cfg
}

func openTest(t *testing.T) *KnowledgeBase {
	t.Helper()
	kb, err := Open(context.Background(), testConfig(t), WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	t.Cleanup(func() { kb.Close() })
	return kb
}

func TestOpen(t *testing.T) {
	t.Run("embedded stores", func(t *testing.T) {
		kb := openTest(t)
		assert.NotNil(t, kb.DocumentStore())
		assert.NotNil(t, kb.VectorStore())
		assert.NotNil(t, kb.Pipeline())
		assert.NotNil(t, kb.Searcher())
		assert.NotNil(t, kb.Orchestrator())
		assert.NotNil(t, kb.Config())
	})

	t.Run("on-disk badger", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.InMemory = false
		cfg.Storage.BadgerPath = filepath.Join(t.TempDir(), "vectors")
		kb, err := Open(context.Background(), cfg, WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		require.NoError(t, kb.Close())
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Chunking.Overlap = cfg.Chunking.Size
		_, err := Open(context.Background(), cfg, WithProvider(mock.NewMockProvider()))
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("vector path is a file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.InMemory = false
		cfg.Storage.BadgerPath = filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(cfg.Storage.BadgerPath, []byte("x"), 0o644))

		kb, err := Open(context.Background(), cfg, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, kb)
	})
}

func TestKnowledgeBase_IngestAndSearch(t *testing.T) {
	kb := openTest(t)
	ctx := context.Background()

	res, err := kb.Ingest(ctx, ingestion.UploadRequest{Filename: "gost-12345.txt", Content: []byte(gostText)})
	require.NoError(t, err)
	doc := res.Document
	assert.Equal(t, core.StatusCompleted, doc.Status)
	assert.Equal(t, core.TypeStandard, doc.Type)

	stored, err := kb.Document(ctx, doc.Id)
	require.NoError(t, err)
	assert.True(t, stored.VectorIndexed())

	_, err = kb.Document(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)

	results, err := kb.Search(ctx, "compressive strength tested at 28 days", core.SearchFilter{}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	top := results[0]
	assert.Equal(t, doc.Id, top.Document.Id)
	assert.Positive(t, top.Chunk.Page)
	assert.Contains(t, top.Chunk.Content, "Compressive strength")

	stats, err := kb.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, stats.Chunks, stats.Vectors)

	listed, err := kb.Documents(ctx, core.DocumentFilter{Status: core.StatusCompleted})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestKnowledgeBase_Upload(t *testing.T) {
	kb := openTest(t)
	ctx := context.Background()

	res, err := kb.Upload(ctx, ingestion.UploadRequest{Filename: "gost.txt", Content: []byte(gostText)})
	require.NoError(t, err)
	assert.Equal(t, core.StatusUploaded, res.Document.Status)

	kb.Wait()
	doc, err := kb.Document(ctx, res.Document.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, doc.Status)
}

func TestKnowledgeBase_Reindex(t *testing.T) {
	kb := openTest(t)
	ctx := context.Background()

	res, err := kb.Ingest(ctx, ingestion.UploadRequest{Filename: "gost.txt", Content: []byte(gostText)})
	require.NoError(t, err)

	summary, err := kb.Reindex(ctx, reindex.Request{})
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, summary.Status)
	assert.Equal(t, 1, summary.DocumentsProcessed)
	assert.Equal(t, res.Document.ChunkCount, summary.ChunksCreated)

	id, err := kb.StartReindex(ctx, reindex.Request{DocumentIds: []core.ID{res.Document.Id}})
	require.NoError(t, err)
	task, err := kb.Orchestrator().Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, summary.ChunksCreated, task.ChunksCreated)

	status, err := kb.ReindexStatus(id)
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, status.Status)
	assert.Len(t, kb.ReindexTasks(), 2)
	assert.NoError(t, kb.CancelReindex(id))
}

func TestKnowledgeBase_HTTP(t *testing.T) {
	kb := openTest(t)
	ctx := context.Background()
	_, err := kb.Ingest(ctx, ingestion.UploadRequest{Filename: "gost.txt", Content: []byte(gostText)})
	require.NoError(t, err)

	router := api.NewRouter(kb, gin.TestMode)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"batch acceptance","limit":3}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "gost.txt")

	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"documents":1`)
}

func TestKnowledgeBase_Close(t *testing.T) {
	provider := mock.NewMockProvider().(*mock.MockProvider)
	kb, err := Open(context.Background(), testConfig(t), WithProvider(provider))
	require.NoError(t, err)

	require.NoError(t, kb.Close())
	assert.True(t, provider.Closed())
	require.NoError(t, kb.Close(), "second close is a no-op")
}
