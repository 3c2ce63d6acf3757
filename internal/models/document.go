package models

import "time"

type Document struct {
	ID        string
	Path      string
	Title     string
	Content   string
	Hash      string
	ModTime   time.Time
	CreatedAt time.Time
	Metadata  map[string]interface{}
}

type ProcessedDocument struct {
	Document
	Chunks    []string
	Embedding [][]float32
}

// ChunkEmbedding is one persisted chunk of a document, ordered by Index.
type ChunkEmbedding struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	Embedding  []float32
}
