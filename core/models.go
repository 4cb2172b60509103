package core

import (
	"time"
)

// ID identifies documents, chunks and reindex tasks.
// Document and task IDs are random UUIDs; chunk IDs are derived from their
// owning document and sequence index (see ChunkID).
type ID string

// String returns the ID as a plain string.
func (id ID) String() string {
	return string(id)
}

// DocumentStatus is the processing state of a document.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether no further pipeline work is pending for the status.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DocumentType is the normative class of a document.
type DocumentType string

const (
	TypeStandard   DocumentType = "standard"
	TypeCode       DocumentType = "code"
	TypeRegulation DocumentType = "regulation"
	TypeCorporate  DocumentType = "corporate"
	TypeOther      DocumentType = "other"
)

// CategoryOther is the category assigned when nothing better is known.
const CategoryOther = "other"

// VectorIndexState tracks whether a document's current chunks are present in
// the vector store.
type VectorIndexState string

const (
	// VectorPending means chunks were never indexed or a reindex is underway.
	VectorPending VectorIndexState = "pending"
	// VectorIndexed means every current chunk has a vector record.
	VectorIndexed VectorIndexState = "indexed"
	// VectorFailed means the last indexing attempt failed after the relational
	// commit; the document is eligible for reindex.
	VectorFailed VectorIndexState = "failed"
)

// Document is the relational record for one uploaded file.
type Document struct {
	Id          ID
	Filename    string
	FileType    string
	Size        int64
	ContentHash string
	Category    string
	ProjectCode string
	Type        DocumentType
	Number      string // Document number, e.g. "12345" for GOST 12345-2020
	Year        int    // Issuing year, 0 when unknown
	Title       string
	Status      DocumentStatus
	StatusError string
	TokenCount  int
	ChunkCount  int
	VectorState VectorIndexState
	UploadedAt  time.Time
	UpdatedAt   time.Time
}

// VectorIndexed reports whether all current chunks of the document have vectors.
func (d *Document) VectorIndexed() bool {
	return d.VectorState == VectorIndexed
}

// Page is one logical page of extracted text.
type Page struct {
	Number int
	Text   string
}

// ParsedDocument is the output of the parser.
type ParsedDocument struct {
	FileType string
	Pages    []Page
}

// Text joins all pages with blank lines.
func (p *ParsedDocument) Text() string {
	n := 0
	for _, page := range p.Pages {
		n += len(page.Text) + 2
	}
	buf := make([]byte, 0, n)
	for i, page := range p.Pages {
		if i > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, page.Text...)
	}
	return string(buf)
}

// Chunk is a bounded, provenance-tagged slice of a document's text.
type Chunk struct {
	Id            ID
	DocumentId    ID
	Index         int // Sequence index within the document, starting at 0
	Page          int
	Section       string
	Subsection    string
	Content       string
	TokenCount    int
	HierarchyPath []string
}

// VectorPayload holds the chunk metadata stored next to a vector so the
// vector store can filter without a relational round trip.
type VectorPayload struct {
	DocumentId   ID           `json:"document_id"`
	ChunkIndex   int          `json:"chunk_index"`
	Category     string       `json:"category,omitempty"`
	DocumentType DocumentType `json:"document_type,omitempty"`
	ProjectCode  string       `json:"project_code,omitempty"`
}

// VectorRecord is a chunk embedding as stored in the vector store.
type VectorRecord struct {
	ChunkId    ID
	Collection string
	Vector     []float32
	Payload    VectorPayload
}

// VectorMatch is a nearest-neighbour hit returned by the vector store.
type VectorMatch struct {
	ChunkId ID
	Score   float32
	Payload VectorPayload
}

// SearchFilter restricts search to matching documents. Empty fields match all.
type SearchFilter struct {
	Category     string       `json:"category,omitempty"`
	DocumentType DocumentType `json:"document_type,omitempty"`
	ProjectCode  string       `json:"project_code,omitempty"`
}

// Matches reports whether a vector payload satisfies the filter.
func (f SearchFilter) Matches(p VectorPayload) bool {
	if f.Category != "" && f.Category != p.Category {
		return false
	}
	if f.DocumentType != "" && f.DocumentType != p.DocumentType {
		return false
	}
	if f.ProjectCode != "" && f.ProjectCode != p.ProjectCode {
		return false
	}
	return true
}

// SearchResult is a ranked chunk with its document provenance.
type SearchResult struct {
	Chunk        *Chunk
	Document     *Document
	Score        float32
	VectorScore  float32
	LexicalScore float32
}

// DocumentFilter selects documents when listing.
type DocumentFilter struct {
	Status   DocumentStatus
	Category string
	Type     DocumentType
	Limit    int
	Offset   int
}

// Statistics holds aggregate counts across the knowledge base.
type Statistics struct {
	Documents         int            `json:"documents"`
	Chunks            int            `json:"chunks"`
	Vectors           int            `json:"vectors"`
	Tokens            int            `json:"tokens"`
	IndexedDocuments  int            `json:"indexed_documents"`
	DocumentsByStatus map[string]int `json:"documents_by_status"`
}

// Classification is the metadata extractor's best-effort reading of a
// document. Number is empty and Year is 0 when unknown.
type Classification struct {
	Type     DocumentType
	Category string
	Number   string
	Year     int
	Title    string
	Rule     string // Name of the rule that matched, empty for the default
}
