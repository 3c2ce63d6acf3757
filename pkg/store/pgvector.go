package store

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/KyrieTangSheng/file-seek/internal/models"
)

// ErrNotFound is returned when a document is not present in the store.
var ErrNotFound = errors.New("document not found")

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	BatchSize   int
	SearchLimit int
}

// VectorStore persists documents and their chunk embeddings in Postgres
// with the pgvector extension.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

// SearchResult is one chunk matched by a vector query, closest first.
type SearchResult struct {
	DocumentID string
	Path       string
	Title      string
	ChunkText  string
	Distance   float32
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "documents"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createDocuments := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			title TEXT,
			content_hash TEXT NOT NULL,
			mtime TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createDocuments)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %v", err)
	}

	createChunks := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s_chunks (
			id TEXT PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			chunk_text TEXT,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createChunks)
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_chunks_embedding_idx
		ON %s_chunks
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

// Upsert stores a processed document and replaces all of its chunks in one
// transaction. An existing row for the same path keeps its id and created_at.
func (vs *VectorStore) Upsert(ctx context.Context, doc models.ProcessedDocument) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	upsertDoc := fmt.Sprintf(`
		INSERT INTO %s (id, path, title, content_hash, mtime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (path) DO UPDATE SET
			title = EXCLUDED.title,
			content_hash = EXCLUDED.content_hash,
			mtime = EXCLUDED.mtime
		RETURNING id`,
		vs.config.TableName)

	var docID string
	err = tx.QueryRow(ctx, upsertDoc,
		doc.ID,
		doc.Path,
		sanitizeUTF8(doc.Title),
		doc.Hash,
		doc.ModTime,
	).Scan(&docID)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %v", err)
	}

	deleteChunks := fmt.Sprintf("DELETE FROM %s_chunks WHERE document_id = $1", vs.config.TableName)
	if _, err := tx.Exec(ctx, deleteChunks, docID); err != nil {
		return fmt.Errorf("failed to clear stale chunks: %v", err)
	}

	insertChunk := fmt.Sprintf(`
		INSERT INTO %s_chunks (id, document_id, chunk_index, chunk_text, embedding)
		VALUES ($1, $2, $3, $4, $5)`,
		vs.config.TableName)

	for i, chunk := range doc.Chunks {
		var embedding pgvector.Vector
		if i < len(doc.Embedding) {
			embedding = pgvector.NewVector(doc.Embedding[i])
		}

		_, err = tx.Exec(ctx, insertChunk,
			fmt.Sprintf("%s_%d", docID, i),
			docID,
			i,
			sanitizeUTF8(chunk),
			embedding,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %v", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// DeleteByPath removes a document and its chunks. Deleting a path that is
// not stored is a no-op.
func (vs *VectorStore) DeleteByPath(ctx context.Context, path string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE path = $1", vs.config.TableName)
	if _, err := vs.pool.Exec(ctx, stmt, path); err != nil {
		return fmt.Errorf("failed to delete document: %v", err)
	}
	return nil
}

// DocumentsUnder returns the set of stored paths located under base. With
// recursive false only direct children (and base itself) are returned.
func (vs *VectorStore) DocumentsUnder(ctx context.Context, base string, recursive bool) (map[string]struct{}, error) {
	prefix := base
	if prefix != "/" {
		prefix += "/"
	}

	cond := `path = $1 OR path LIKE $2`
	args := []any{base, likeEscape(prefix) + "%"}
	if !recursive {
		// A separator after the prefix means the path sits in a subdirectory.
		cond = `path = $1 OR (path LIKE $2 AND path NOT LIKE $3)`
		args = append(args, likeEscape(prefix)+"%/%")
	}

	query := fmt.Sprintf(`SELECT path FROM %s WHERE %s`, vs.config.TableName, cond)

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %v", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		paths[path] = struct{}{}
	}

	return paths, rows.Err()
}

// DocumentByPath looks up a single document record. Returns ErrNotFound
// when the path has never been ingested.
func (vs *VectorStore) DocumentByPath(ctx context.Context, path string) (*models.Document, error) {
	query := fmt.Sprintf(`
		SELECT id, path, title, content_hash, mtime, created_at
		FROM %s WHERE path = $1`,
		vs.config.TableName)

	var doc models.Document
	err := vs.pool.QueryRow(ctx, query, path).Scan(
		&doc.ID,
		&doc.Path,
		&doc.Title,
		&doc.Hash,
		&doc.ModTime,
		&doc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %v", err)
	}

	return &doc, nil
}

// EmbeddingsFor returns the stored chunks of a document ordered by index.
func (vs *VectorStore) EmbeddingsFor(ctx context.Context, documentID string) ([]models.ChunkEmbedding, error) {
	query := fmt.Sprintf(`
		SELECT id, document_id, chunk_index, chunk_text, embedding
		FROM %s_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %v", err)
	}
	defer rows.Close()

	var chunks []models.ChunkEmbedding
	for rows.Next() {
		var chunk models.ChunkEmbedding
		var embedding pgvector.Vector
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Index,
			&chunk.Text,
			&embedding,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		chunk.Embedding = embedding.Slice()
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// Search returns the chunks nearest to the query embedding by cosine
// distance.
func (vs *VectorStore) Search(ctx context.Context, queryEmbedding []float32, limit int) ([]SearchResult, error) {
	if limit == 0 {
		limit = vs.config.SearchLimit
	}

	query := fmt.Sprintf(`
		SELECT d.id, d.path, d.title, c.chunk_text, c.embedding <=> $1
		FROM %s_chunks c
		JOIN %s d ON d.id = c.document_id
		ORDER BY c.embedding <=> $1
		LIMIT $2`,
		vs.config.TableName, vs.config.TableName)

	embedding := pgvector.NewVector(queryEmbedding)
	rows, err := vs.pool.Query(ctx, query, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %v", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		err := rows.Scan(
			&r.DocumentID,
			&r.Path,
			&r.Title,
			&r.ChunkText,
			&r.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// ListDocuments returns every stored document record, most recent first.
func (vs *VectorStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	query := fmt.Sprintf(`
		SELECT id, path, title, content_hash, mtime, created_at
		FROM %s
		ORDER BY created_at DESC`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %v", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		err := rows.Scan(
			&doc.ID,
			&doc.Path,
			&doc.Title,
			&doc.Hash,
			&doc.ModTime,
			&doc.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// DocumentCount reports how many documents are stored.
func (vs *VectorStore) DocumentCount(ctx context.Context) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT count(*) FROM %s", vs.config.TableName)
	if err := vs.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %v", err)
	}
	return count, nil
}

// TotalVectors reports how many chunk embeddings are indexed.
func (vs *VectorStore) TotalVectors(ctx context.Context) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT count(*) FROM %s_chunks", vs.config.TableName)
	if err := vs.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %v", err)
	}
	return count, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func likeEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
