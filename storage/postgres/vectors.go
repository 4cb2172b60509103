package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/storage"
)

// DefaultCollection is used when no collection name is configured.
const DefaultCollection = "normdoc"

// VectorStore implements storage.VectorStore with pgvector. Vectors are
// unit length, so cosine distance orders results the same way as the dot
// product; the reported score is 1 - distance.
type VectorStore struct {
	pool       *pgxpool.Pool
	collection string
	ownsPool   bool
}

var _ storage.VectorStore = (*VectorStore)(nil)

// NewVectorStore wraps an existing pool.
func NewVectorStore(pool *pgxpool.Pool, collection string) *VectorStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &VectorStore{pool: pool, collection: collection}
}

// OpenVectorStore connects to connString and owns the resulting pool.
func OpenVectorStore(ctx context.Context, connString, collection string) (*VectorStore, error) {
	pool, err := Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	vs := NewVectorStore(pool, collection)
	vs.ownsPool = true
	return vs, nil
}

func (vs *VectorStore) Close() error {
	if vs.ownsPool {
		vs.pool.Close()
	}
	return nil
}

// Upsert inserts or replaces vectors in a single batch.
func (vs *VectorStore) Upsert(ctx context.Context, records ...*core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		r.Collection = vs.collection
		vec := pgvector.NewVector(r.Vector)
		batch.Queue(`INSERT INTO chunk_vectors
			(collection, chunk_id, document_id, chunk_index, category, document_type, project_code, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (collection, chunk_id) DO UPDATE SET
				document_id = EXCLUDED.document_id, chunk_index = EXCLUDED.chunk_index,
				category = EXCLUDED.category, document_type = EXCLUDED.document_type,
				project_code = EXCLUDED.project_code, embedding = EXCLUDED.embedding`,
			vs.collection, string(r.ChunkId), string(r.Payload.DocumentId), r.Payload.ChunkIndex,
			r.Payload.Category, string(r.Payload.DocumentType), r.Payload.ProjectCode, &vec)
	}
	br := vs.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert vector %s: %w", records[i].ChunkId, err)
		}
	}
	return br.Close()
}

func (vs *VectorStore) Delete(ctx context.Context, chunkIDs ...core.ID) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	keys := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		keys[i] = string(id)
	}
	_, err := vs.pool.Exec(ctx, `DELETE FROM chunk_vectors WHERE collection = $1 AND chunk_id = ANY($2)`,
		vs.collection, keys)
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

func (vs *VectorStore) DeleteByDocument(ctx context.Context, documentID core.ID) error {
	_, err := vs.pool.Exec(ctx, `DELETE FROM chunk_vectors WHERE collection = $1 AND document_id = $2`,
		vs.collection, string(documentID))
	if err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}
	return nil
}

// Search orders by cosine distance and breaks ties on chunk index and
// document ID.
func (vs *VectorStore) Search(ctx context.Context, vector []float32, filter core.SearchFilter, limit int) ([]core.VectorMatch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	args := []any{vs.collection, pgvector.NewVector(vector)}
	where := "collection = $1"
	addFilter := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where += " AND " + column + " = $" + strconv.Itoa(len(args))
	}
	addFilter("category", filter.Category)
	addFilter("document_type", string(filter.DocumentType))
	addFilter("project_code", filter.ProjectCode)
	args = append(args, limit)

	rows, err := vs.pool.Query(ctx, `SELECT chunk_id, document_id, chunk_index, category, document_type,
			project_code, 1 - (embedding <=> $2) AS score
		FROM chunk_vectors
		WHERE `+where+`
		ORDER BY embedding <=> $2, chunk_index, document_id
		LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	defer rows.Close()

	var matches []core.VectorMatch
	for rows.Next() {
		var m core.VectorMatch
		var chunkID, docID, docType string
		var score float64
		if err := rows.Scan(&chunkID, &docID, &m.Payload.ChunkIndex, &m.Payload.Category, &docType,
			&m.Payload.ProjectCode, &score); err != nil {
			return nil, fmt.Errorf("failed to scan vector match: %w", err)
		}
		m.ChunkId = core.ID(chunkID)
		m.Payload.DocumentId = core.ID(docID)
		m.Payload.DocumentType = core.DocumentType(docType)
		m.Score = float32(score)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (vs *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := vs.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunk_vectors WHERE collection = $1`, vs.collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return n, nil
}
