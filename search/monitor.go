package search

import (
	"log/slog"

	"github.com/poiesic/normdoc/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, filter core.SearchFilter)
	AfterVectorSearch(matches []core.VectorMatch)
	AfterHydration(chunks []core.Chunk)
	LexicalHit(result *core.SearchResult)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ core.SearchFilter)    {}
func (n *noopMonitor) AfterVectorSearch(_ []core.VectorMatch) {}
func (n *noopMonitor) AfterHydration(_ []core.Chunk)          {}
func (n *noopMonitor) LexicalHit(_ *core.SearchResult)        {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)          {}

// LogMonitor reports each search stage at debug level.
type LogMonitor struct {
	logger *slog.Logger
}

var _ SearchMonitor = (*LogMonitor)(nil)

// NewLogMonitor creates a monitor writing to logger, or slog.Default() if nil.
func NewLogMonitor(logger *slog.Logger) *LogMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMonitor{logger: logger.With("component", "search")}
}

func (m *LogMonitor) Start(query string, filter core.SearchFilter) {
	m.logger.Debug("search started", "query", query,
		"category", filter.Category, "document_type", filter.DocumentType, "project_code", filter.ProjectCode)
}

func (m *LogMonitor) AfterVectorSearch(matches []core.VectorMatch) {
	m.logger.Debug("vector candidates", "count", len(matches))
}

func (m *LogMonitor) AfterHydration(chunks []core.Chunk) {
	m.logger.Debug("chunks loaded", "count", len(chunks))
}

func (m *LogMonitor) LexicalHit(result *core.SearchResult) {
	m.logger.Debug("lexical hit", "chunk_id", result.Chunk.Id, "lexical", result.LexicalScore)
}

func (m *LogMonitor) Finish(results []*core.SearchResult) {
	m.logger.Debug("search finished", "results", len(results))
}
