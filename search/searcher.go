package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/storage"
)

const (
	DefaultLexicalWeight       = 0.2
	MaxLexicalWeight           = 0.5
	DefaultCandidateMultiplier = 4
	MaxLimit                   = 100
)

// QueryEmbedder turns query text into a unit vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher provides hybrid search over indexed chunks.
type Searcher struct {
	docs                storage.DocumentStore
	vectors             storage.VectorStore
	embedder            QueryEmbedder
	lexicalWeight       float32
	candidateMultiplier int
	logger              *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLexicalWeight sets the weight of the lexical signal. Zero disables it.
func WithLexicalWeight(weight float32) Option {
	return func(s *Searcher) error {
		if weight < 0 || weight > MaxLexicalWeight {
			return fmt.Errorf("%w: %v", ErrInvalidWeight, weight)
		}
		s.lexicalWeight = weight
		return nil
	}
}

// WithCandidateMultiplier sets how many vector candidates are fetched per
// requested result before re-ranking.
func WithCandidateMultiplier(n int) Option {
	return func(s *Searcher) error {
		s.candidateMultiplier = max(n, 1)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	docs storage.DocumentStore,
	vectors storage.VectorStore,
	embedder QueryEmbedder,
	opts ...Option,
) (*Searcher, error) {
	if docs == nil {
		return nil, ErrDocumentStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		docs:                docs,
		vectors:             vectors,
		embedder:            embedder,
		lexicalWeight:       DefaultLexicalWeight,
		candidateMultiplier: DefaultCandidateMultiplier,
		logger:              slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")

	return s, nil
}

// Search returns up to k chunks ranked for query. No match is an empty
// result, not an error.
func (s *Searcher) Search(ctx context.Context, query string, filter core.SearchFilter, k int) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, filter, k, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, filter core.SearchFilter, k int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", core.ErrInvalidQuery)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", core.ErrInvalidQuery)
	}
	k = min(k, MaxLimit)

	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query, filter)

	// 1. Nearest neighbours within the filter
	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	terms := queryTerms(query)
	candidates := k
	if s.lexicalWeight > 0 && len(terms) > 0 {
		candidates = k * s.candidateMultiplier
	}
	matches, err := s.vectors.Search(ctx, embedding, filter, candidates)
	if err != nil {
		s.logger.Error("error querying vector store", "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrVectorIndexUnavailable, err)
	}
	monitor.AfterVectorSearch(matches)

	if len(matches) == 0 {
		monitor.Finish(nil)
		return []*core.SearchResult{}, nil
	}

	// 2. Load chunks and their documents
	ids := make([]core.ID, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkId
	}
	chunks, err := s.docs.GetChunks(ctx, ids...)
	if err != nil {
		s.logger.Error("error retrieving chunks", "count", len(ids), "err", err)
		return nil, err
	}
	monitor.AfterHydration(chunks)

	byID := make(map[core.ID]*core.Chunk, len(chunks))
	for i := range chunks {
		byID[chunks[i].Id] = &chunks[i]
	}
	documents := make(map[core.ID]*core.Document)

	// 3. Score
	results := make([]*core.SearchResult, 0, len(matches))
	for _, match := range matches {
		chunk, ok := byID[match.ChunkId]
		if !ok {
			s.logger.Debug("vector without chunk row", "chunk_id", match.ChunkId)
			continue
		}
		doc, err := s.document(ctx, documents, chunk.DocumentId)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}

		result := &core.SearchResult{
			Chunk:       chunk,
			Document:    doc,
			VectorScore: match.Score,
			Score:       match.Score,
		}
		if s.lexicalWeight > 0 {
			result.LexicalScore = coverage(terms, chunk.Content, chunk.Section, chunk.Subsection,
				doc.Title, doc.Number, yearText(doc.Year))
			result.Score = (1-s.lexicalWeight)*match.Score + s.lexicalWeight*result.LexicalScore
			if result.LexicalScore > 0 {
				monitor.LexicalHit(result)
			}
		}
		results = append(results, result)
	}

	slices.SortStableFunc(results, compareResults)
	if len(results) > k {
		results = results[:k]
	}
	monitor.Finish(results)

	return results, nil
}

// document returns the chunk's document from cache or the store. A document
// removed since indexing yields nil.
func (s *Searcher) document(ctx context.Context, cache map[core.ID]*core.Document, id core.ID) (*core.Document, error) {
	if doc, ok := cache[id]; ok {
		return doc, nil
	}
	doc, err := s.docs.GetDocument(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		s.logger.Debug("vector for unknown document", "document_id", id)
		doc = nil
	}
	cache[id] = doc
	return doc, nil
}

func compareResults(a, b *core.SearchResult) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Chunk.Index, b.Chunk.Index); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Chunk.DocumentId, b.Chunk.DocumentId); c != 0 {
		return c
	}
	return cmp.Compare(a.Chunk.Id, b.Chunk.Id)
}

func yearText(year int) string {
	if year == 0 {
		return ""
	}
	return strconv.Itoa(year)
}
