package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/storage"
)

const documentColumns = `id, filename, file_type, size, content_hash, category, project_code,
	doc_type, doc_number, doc_year, title, status, status_error, token_count, chunk_count,
	vector_state, uploaded_at, updated_at`

const chunkColumns = `id, document_id, seq, page, section, subsection, content, token_count, hierarchy_path`

const insertDocument = `INSERT INTO documents (` + documentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

// execer is satisfied by *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DocumentStore implements storage.DocumentStore on PostgreSQL.
type DocumentStore struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore wraps an existing pool. Closing the store leaves the pool
// open.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// OpenDocumentStore connects to connString and owns the resulting pool.
func OpenDocumentStore(ctx context.Context, connString string) (*DocumentStore, error) {
	pool, err := Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &DocumentStore{pool: pool, ownsPool: true}, nil
}

// Close closes the pool if the store opened it.
func (s *DocumentStore) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

// CreateDocument inserts a new document row.
func (s *DocumentStore) CreateDocument(ctx context.Context, doc *core.Document) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	stamp(doc)
	_, err := s.pool.Exec(ctx, insertDocument, documentArgs(doc)...)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: content hash %s", storage.ErrDuplicateKey, doc.ContentHash)
	}
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	return scanDocument(s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, string(id)))
}

// GetDocumentByHash retrieves a document by content hash.
func (s *DocumentStore) GetDocumentByHash(ctx context.Context, hash string) (*core.Document, error) {
	return scanDocument(s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE content_hash = $1`, hash))
}

// ListDocuments returns documents matching filter, oldest first.
func (s *DocumentStore) ListDocuments(ctx context.Context, filter core.DocumentFilter) ([]*core.Document, error) {
	var where []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, column+" = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.Category != "" {
		add("category", filter.Category)
	}
	if filter.Type != "" {
		add("doc_type", string(filter.Type))
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY uploaded_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}
	defer rows.Close()

	var docs []*core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListPages returns stored pages in page order.
func (s *DocumentStore) ListPages(ctx context.Context, documentID core.ID) ([]core.Page, error) {
	rows, err := s.pool.Query(ctx, `SELECT page_number, content FROM document_pages
		WHERE document_id = $1 ORDER BY page_number`, string(documentID))
	if err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	defer rows.Close()

	var pages []core.Page
	for rows.Next() {
		var p core.Page
		if err := rows.Scan(&p.Number, &p.Text); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// ListChunks returns a document's chunks in sequence order.
func (s *DocumentStore) ListChunks(ctx context.Context, documentID core.ID) ([]core.Chunk, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE document_id = $1 ORDER BY seq`, string(documentID))
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	return scanChunks(rows)
}

// GetChunks retrieves chunks by ID, skipping unknown IDs.
func (s *DocumentStore) GetChunks(ctx context.Context, ids ...core.ID) ([]core.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE id = ANY($1) ORDER BY document_id, seq`, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	return scanChunks(rows)
}

// SetStatus commits a status change.
func (s *DocumentStore) SetStatus(ctx context.Context, id core.ID, status core.DocumentStatus, detail string) error {
	return setStatus(ctx, s.pool, id, status, detail)
}

// SetVectorState commits a vector index state change.
func (s *DocumentStore) SetVectorState(ctx context.Context, id core.ID, state core.VectorIndexState) error {
	tag, err := s.pool.Exec(ctx, `UPDATE documents SET vector_state = $1, updated_at = $2 WHERE id = $3`,
		string(state), time.Now().UTC(), string(id))
	if err != nil {
		return fmt.Errorf("failed to update vector state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Statistics returns aggregate counts.
func (s *DocumentStore) Statistics(ctx context.Context) (*core.Statistics, error) {
	stats := &core.Statistics{DocumentsByStatus: make(map[string]int)}

	err := s.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(token_count), 0),
		COUNT(*) FILTER (WHERE vector_state = $1) FROM documents`, string(core.VectorIndexed)).
		Scan(&stats.Documents, &stats.Tokens, &stats.IndexedDocuments)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.Chunks); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.DocumentsByStatus[status] = n
	}
	return stats, rows.Err()
}

// WithTransaction runs fn inside a single transaction.
func (s *DocumentStore) WithTransaction(ctx context.Context, fn func(tx storage.DocumentTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", storage.ErrTransactionFailed, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&documentTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing transaction: %w", storage.ErrTransactionFailed, err)
	}
	return nil
}

type documentTx struct {
	tx pgx.Tx
}

var _ storage.DocumentTx = (*documentTx)(nil)

func (t *documentTx) UpsertDocument(ctx context.Context, doc *core.Document) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	stamp(doc)
	_, err := t.tx.Exec(ctx, insertDocument+` ON CONFLICT (id) DO UPDATE SET
		filename = EXCLUDED.filename, file_type = EXCLUDED.file_type, size = EXCLUDED.size,
		content_hash = EXCLUDED.content_hash, category = EXCLUDED.category,
		project_code = EXCLUDED.project_code, doc_type = EXCLUDED.doc_type,
		doc_number = EXCLUDED.doc_number, doc_year = EXCLUDED.doc_year, title = EXCLUDED.title,
		status = EXCLUDED.status, status_error = EXCLUDED.status_error,
		token_count = EXCLUDED.token_count, chunk_count = EXCLUDED.chunk_count,
		vector_state = EXCLUDED.vector_state, updated_at = EXCLUDED.updated_at`, documentArgs(doc)...)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: content hash %s", storage.ErrDuplicateKey, doc.ContentHash)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (t *documentTx) ReplacePages(ctx context.Context, documentID core.ID, pages []core.Page) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM document_pages WHERE document_id = $1`, string(documentID)); err != nil {
		return fmt.Errorf("failed to delete pages: %w", err)
	}
	if len(pages) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range pages {
		batch.Queue(`INSERT INTO document_pages (document_id, page_number, content) VALUES ($1, $2, $3)`,
			string(documentID), p.Number, p.Text)
	}
	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	for _, p := range pages {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert page %d: %w", p.Number, err)
		}
	}
	return br.Close()
}

func (t *documentTx) DeleteChunks(ctx context.Context, documentID core.ID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, string(documentID)); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (t *documentTx) InsertChunks(ctx context.Context, chunks []core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range chunks {
		c := &chunks[i]
		path := c.HierarchyPath
		if path == nil {
			path = []string{}
		}
		batch.Queue(`INSERT INTO chunks (`+chunkColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			string(c.Id), string(c.DocumentId), c.Index, c.Page, c.Section, c.Subsection,
			c.Content, c.TokenCount, path)
	}
	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunks[i].Index, err)
		}
	}
	return br.Close()
}

func (t *documentTx) SetStatus(ctx context.Context, documentID core.ID, status core.DocumentStatus, detail string) error {
	return setStatus(ctx, t.tx, documentID, status, detail)
}

func setStatus(ctx context.Context, db execer, id core.ID, status core.DocumentStatus, detail string) error {
	tag, err := db.Exec(ctx, `UPDATE documents SET status = $1, status_error = $2, updated_at = $3 WHERE id = $4`,
		string(status), detail, time.Now().UTC(), string(id))
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func stamp(doc *core.Document) {
	now := time.Now().UTC()
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}
	doc.UpdatedAt = now
	if doc.Category == "" {
		doc.Category = core.CategoryOther
	}
	if doc.Type == "" {
		doc.Type = core.TypeOther
	}
	if doc.Status == "" {
		doc.Status = core.StatusUploaded
	}
	if doc.VectorState == "" {
		doc.VectorState = core.VectorPending
	}
}

func documentArgs(doc *core.Document) []any {
	return []any{
		string(doc.Id), doc.Filename, doc.FileType, doc.Size, doc.ContentHash, doc.Category, doc.ProjectCode,
		string(doc.Type), doc.Number, doc.Year, doc.Title, string(doc.Status), doc.StatusError, doc.TokenCount,
		doc.ChunkCount, string(doc.VectorState), doc.UploadedAt, doc.UpdatedAt,
	}
}

func scanDocument(row pgx.Row) (*core.Document, error) {
	var doc core.Document
	var id, docType, status, vectorState string
	err := row.Scan(&id, &doc.Filename, &doc.FileType, &doc.Size, &doc.ContentHash, &doc.Category,
		&doc.ProjectCode, &docType, &doc.Number, &doc.Year, &doc.Title, &status, &doc.StatusError,
		&doc.TokenCount, &doc.ChunkCount, &vectorState, &doc.UploadedAt, &doc.UpdatedAt)
	if err != nil {
		if err = notFound(err); err == storage.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	doc.Id = core.ID(id)
	doc.Type = core.DocumentType(docType)
	doc.Status = core.DocumentStatus(status)
	doc.VectorState = core.VectorIndexState(vectorState)
	return &doc, nil
}

func scanChunks(rows pgx.Rows) ([]core.Chunk, error) {
	defer rows.Close()

	var chunks []core.Chunk
	for rows.Next() {
		var c core.Chunk
		var id, docID string
		if err := rows.Scan(&id, &docID, &c.Index, &c.Page, &c.Section, &c.Subsection,
			&c.Content, &c.TokenCount, &c.HierarchyPath); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Id = core.ID(id)
		c.DocumentId = core.ID(docID)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
