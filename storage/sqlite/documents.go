package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/storage"
)

const documentColumns = `id, filename, file_type, size, content_hash, category, project_code,
	doc_type, doc_number, doc_year, title, status, status_error, token_count, chunk_count,
	vector_state, uploaded_at, updated_at`

const chunkColumns = `id, document_id, seq, page, section, subsection, content, token_count, hierarchy_path`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateDocument inserts a new document row.
func (s *DocumentStore) CreateDocument(ctx context.Context, doc *core.Document) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	now := time.Now().UTC()
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, documentArgs(doc)...)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: content hash %s", storage.ErrDuplicateKey, doc.ContentHash)
	}
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, string(id))
	return scanDocument(row)
}

// GetDocumentByHash retrieves a document by content hash.
func (s *DocumentStore) GetDocumentByHash(ctx context.Context, hash string) (*core.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE content_hash = ?`, hash)
	return scanDocument(row)
}

// ListDocuments returns documents matching filter, oldest first.
func (s *DocumentStore) ListDocuments(ctx context.Context, filter core.DocumentFilter) ([]*core.Document, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Type != "" {
		where = append(where, "doc_type = ?")
		args = append(args, string(filter.Type))
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY uploaded_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
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
	rows, err := s.db.QueryContext(ctx, `SELECT page_number, content FROM document_pages
		WHERE document_id = ? ORDER BY page_number`, string(documentID))
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer rows.Close()

	var pages []core.Page
	for rows.Next() {
		var p core.Page
		if err := rows.Scan(&p.Number, &p.Text); err != nil {
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// ListChunks returns a document's chunks in sequence order.
func (s *DocumentStore) ListChunks(ctx context.Context, documentID core.ID) ([]core.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE document_id = ? ORDER BY seq`, string(documentID))
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	return scanChunks(rows)
}

// GetChunks retrieves chunks by ID, skipping unknown IDs.
func (s *DocumentStore) GetChunks(ctx context.Context, ids ...core.ID) ([]core.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks
		WHERE id IN (`+placeholders+`) ORDER BY document_id, seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	return scanChunks(rows)
}

// SetStatus commits a status change outside any other transaction.
func (s *DocumentStore) SetStatus(ctx context.Context, id core.ID, status core.DocumentStatus, detail string) error {
	return setStatus(ctx, s.db, id, status, detail)
}

// SetVectorState commits a vector index state change.
func (s *DocumentStore) SetVectorState(ctx context.Context, id core.ID, state core.VectorIndexState) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET vector_state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().UTC(), string(id))
	if err != nil {
		return fmt.Errorf("updating vector state: %w", err)
	}
	return requireRow(res)
}

// Statistics returns aggregate counts.
func (s *DocumentStore) Statistics(ctx context.Context) (*core.Statistics, error) {
	stats := &core.Statistics{DocumentsByStatus: make(map[string]int)}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(token_count), 0),
		COALESCE(SUM(CASE WHEN vector_state = ? THEN 1 ELSE 0 END), 0) FROM documents`, string(core.VectorIndexed))
	if err := row.Scan(&stats.Documents, &stats.Tokens, &stats.IndexedDocuments); err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.Chunks); err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		stats.DocumentsByStatus[status] = n
	}
	return stats, rows.Err()
}

// documentTx implements storage.DocumentTx over a *sql.Tx.
type documentTx struct {
	tx *sql.Tx
}

var _ storage.DocumentTx = (*documentTx)(nil)

// UpsertDocument inserts or updates the document row.
func (t *documentTx) UpsertDocument(ctx context.Context, doc *core.Document) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	now := time.Now().UTC()
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}
	doc.UpdatedAt = now

	args := documentArgs(doc)
	// content_hash is UNIQUE as well, so update in place before inserting.
	res, err := t.tx.ExecContext(ctx, `UPDATE documents SET
			filename = ?, file_type = ?, size = ?, content_hash = ?, category = ?, project_code = ?,
			doc_type = ?, doc_number = ?, doc_year = ?, title = ?, status = ?, status_error = ?,
			token_count = ?, chunk_count = ?, vector_state = ?, updated_at = ?
		WHERE id = ?`, append(args[1:16:16], args[17], args[0])...)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: content hash %s", storage.ErrDuplicateKey, doc.ContentHash)
	}
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}

	_, err = t.tx.ExecContext(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: content hash %s", storage.ErrDuplicateKey, doc.ContentHash)
	}
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// ReplacePages swaps the stored pages of a document.
func (t *documentTx) ReplacePages(ctx context.Context, documentID core.ID, pages []core.Page) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM document_pages WHERE document_id = ?`, string(documentID)); err != nil {
		return fmt.Errorf("deleting pages: %w", err)
	}
	if len(pages) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `INSERT INTO document_pages (document_id, page_number, content) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range pages {
		if _, err := stmt.ExecContext(ctx, string(documentID), p.Number, p.Text); err != nil {
			return fmt.Errorf("saving page %d: %w", p.Number, err)
		}
	}
	return nil
}

// DeleteChunks removes a document's chunks.
func (t *documentTx) DeleteChunks(ctx context.Context, documentID core.ID) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, string(documentID)); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// InsertChunks inserts chunks with one prepared statement.
func (t *documentTx) InsertChunks(ctx context.Context, chunks []core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx, `INSERT INTO chunks (`+chunkColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		c := &chunks[i]
		path, err := json.Marshal(c.HierarchyPath)
		if err != nil {
			return fmt.Errorf("%w: hierarchy path: %w", storage.ErrSerializationFailed, err)
		}
		if _, err := stmt.ExecContext(ctx, string(c.Id), string(c.DocumentId), c.Index, c.Page,
			c.Section, c.Subsection, c.Content, c.TokenCount, string(path)); err != nil {
			return fmt.Errorf("saving chunk %d: %w", c.Index, err)
		}
	}
	return nil
}

// SetStatus updates the status within the transaction.
func (t *documentTx) SetStatus(ctx context.Context, documentID core.ID, status core.DocumentStatus, detail string) error {
	return setStatus(ctx, t.tx, documentID, status, detail)
}

func setStatus(ctx context.Context, q queryer, id core.ID, status core.DocumentStatus, detail string) error {
	res, err := q.ExecContext(ctx, `UPDATE documents SET status = ?, status_error = ?, updated_at = ? WHERE id = ?`,
		string(status), detail, time.Now().UTC(), string(id))
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func documentArgs(doc *core.Document) []any {
	category := doc.Category
	if category == "" {
		category = core.CategoryOther
	}
	docType := doc.Type
	if docType == "" {
		docType = core.TypeOther
	}
	status := doc.Status
	if status == "" {
		status = core.StatusUploaded
	}
	vectorState := doc.VectorState
	if vectorState == "" {
		vectorState = core.VectorPending
	}
	return []any{
		string(doc.Id), doc.Filename, doc.FileType, doc.Size, doc.ContentHash, category, doc.ProjectCode,
		string(docType), doc.Number, doc.Year, doc.Title, string(status), doc.StatusError, doc.TokenCount,
		doc.ChunkCount, string(vectorState), doc.UploadedAt, doc.UpdatedAt,
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*core.Document, error) {
	var doc core.Document
	var id, docType, status, vectorState string
	err := row.Scan(&id, &doc.Filename, &doc.FileType, &doc.Size, &doc.ContentHash, &doc.Category,
		&doc.ProjectCode, &docType, &doc.Number, &doc.Year, &doc.Title, &status, &doc.StatusError,
		&doc.TokenCount, &doc.ChunkCount, &vectorState, &doc.UploadedAt, &doc.UpdatedAt)
	if err != nil {
		if err = notFound(err); err == storage.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.Id = core.ID(id)
	doc.Type = core.DocumentType(docType)
	doc.Status = core.DocumentStatus(status)
	doc.VectorState = core.VectorIndexState(vectorState)
	return &doc, nil
}

func scanChunks(rows *sql.Rows) ([]core.Chunk, error) {
	defer rows.Close()

	var chunks []core.Chunk
	for rows.Next() {
		var c core.Chunk
		var id, docID, path string
		if err := rows.Scan(&id, &docID, &c.Index, &c.Page, &c.Section, &c.Subsection,
			&c.Content, &c.TokenCount, &path); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Id = core.ID(id)
		c.DocumentId = core.ID(docID)
		if path != "" {
			if err := json.Unmarshal([]byte(path), &c.HierarchyPath); err != nil {
				return nil, fmt.Errorf("%w: hierarchy path: %w", storage.ErrSerializationFailed, err)
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
