package api

import (
	"time"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/reindex"
)

// DocumentResponse describes a stored document.
type DocumentResponse struct {
	Id            core.ID               `json:"id"`
	Filename      string                `json:"filename"`
	FileType      string                `json:"file_type"`
	Size          int64                 `json:"size"`
	Category      string                `json:"category"`
	ProjectCode   string                `json:"project_code,omitempty"`
	Type          core.DocumentType     `json:"type"`
	Number        string                `json:"number,omitempty"`
	Year          int                   `json:"year,omitempty"`
	Title         string                `json:"title,omitempty"`
	Status        core.DocumentStatus   `json:"status"`
	Error         string                `json:"error,omitempty"`
	TokenCount    int                   `json:"token_count"`
	ChunkCount    int                   `json:"chunk_count"`
	VectorState   core.VectorIndexState `json:"vector_state"`
	VectorIndexed bool                  `json:"vector_indexed"`
	UploadedAt    time.Time             `json:"uploaded_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func newDocumentResponse(d *core.Document) DocumentResponse {
	return DocumentResponse{
		Id:            d.Id,
		Filename:      d.Filename,
		FileType:      d.FileType,
		Size:          d.Size,
		Category:      d.Category,
		ProjectCode:   d.ProjectCode,
		Type:          d.Type,
		Number:        d.Number,
		Year:          d.Year,
		Title:         d.Title,
		Status:        d.Status,
		Error:         d.StatusError,
		TokenCount:    d.TokenCount,
		ChunkCount:    d.ChunkCount,
		VectorState:   d.VectorState,
		VectorIndexed: d.VectorIndexed(),
		UploadedAt:    d.UploadedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// UploadResponse acknowledges an upload.
type UploadResponse struct {
	Id        core.ID             `json:"id"`
	Status    core.DocumentStatus `json:"status"`
	Duplicate bool                `json:"duplicate,omitempty"`
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Query        string            `json:"query" binding:"required"`
	Limit        int               `json:"limit"`
	Category     string            `json:"category"`
	DocumentType core.DocumentType `json:"document_type"`
	ProjectCode  string            `json:"project_code"`
}

// SearchHit is one ranked chunk with its provenance.
type SearchHit struct {
	ChunkId        core.ID           `json:"chunk_id"`
	DocumentId     core.ID           `json:"document_id"`
	Filename       string            `json:"filename"`
	DocumentTitle  string            `json:"document_title,omitempty"`
	DocumentNumber string            `json:"document_number,omitempty"`
	DocumentType   core.DocumentType `json:"document_type"`
	ChunkIndex     int               `json:"chunk_index"`
	Page           int               `json:"page"`
	Section        string            `json:"section,omitempty"`
	Subsection     string            `json:"subsection,omitempty"`
	HierarchyPath  []string          `json:"hierarchy_path,omitempty"`
	Content        string            `json:"content"`
	Score          float32           `json:"score"`
	VectorScore    float32           `json:"vector_score"`
	LexicalScore   float32           `json:"lexical_score"`
}

func newSearchHit(r *core.SearchResult) SearchHit {
	h := SearchHit{
		ChunkId:       r.Chunk.Id,
		DocumentId:    r.Chunk.DocumentId,
		ChunkIndex:    r.Chunk.Index,
		Page:          r.Chunk.Page,
		Section:       r.Chunk.Section,
		Subsection:    r.Chunk.Subsection,
		HierarchyPath: r.Chunk.HierarchyPath,
		Content:       r.Chunk.Content,
		Score:         r.Score,
		VectorScore:   r.VectorScore,
		LexicalScore:  r.LexicalScore,
	}
	if r.Document != nil {
		h.Filename = r.Document.Filename
		h.DocumentTitle = r.Document.Title
		h.DocumentNumber = r.Document.Number
		h.DocumentType = r.Document.Type
	}
	return h
}

// SearchResponse is the body returned by POST /v1/search.
type SearchResponse struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
}

// ReindexRequest is the body of POST /v1/reindex. An empty body reindexes
// every document asynchronously.
type ReindexRequest struct {
	DocumentIds []core.ID           `json:"document_ids"`
	Status      core.DocumentStatus `json:"status"`
	Category    string              `json:"category"`
	Mode        string              `json:"mode"`
}

func (r ReindexRequest) toRequest() reindex.Request {
	return reindex.Request{
		DocumentIds: r.DocumentIds,
		Filter: core.DocumentFilter{
			Status:   r.Status,
			Category: r.Category,
		},
	}
}

// ReindexAccepted acknowledges an asynchronous reindex.
type ReindexAccepted struct {
	TaskId core.ID         `json:"task_id"`
	Status core.TaskStatus `json:"status"`
}
