package types

import (
	"context"

	"github.com/KyrieTangSheng/file-seek/internal/models"
)

// Core interfaces

// Classifier decides whether a path is eligible for processing.
type Classifier interface {
	ShouldProcess(path string) bool
}

// DocumentStore persists per-document records and per-chunk embeddings.
// Ingest and Retire are required to be idempotent: re-ingesting an unchanged
// file must not create duplicate records, and retiring an absent document is
// a no-op.
type DocumentStore interface {
	Ingest(ctx context.Context, path string) error
	Retire(ctx context.Context, path string) error
	DocumentsUnder(ctx context.Context, base string, recursive bool) (map[string]struct{}, error)
	DocumentByPath(ctx context.Context, path string) (*models.Document, error)
	EmbeddingsFor(ctx context.Context, documentID string) ([]models.ChunkEmbedding, error)
}

// VectorIndex reports on the embedding index backing the store.
type VectorIndex interface {
	TotalVectors(ctx context.Context) (int64, error)
}

// TextExtractor turns a file into searchable text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	FlattenEmbeddings(embeddings [][]float32) []float32
}

type Processor interface {
	Process(docs []models.Document) ([]models.ProcessedDocument, error)
}
