package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/KyrieTangSheng/file-seek/internal/models"
	"github.com/KyrieTangSheng/file-seek/internal/types"
	"github.com/KyrieTangSheng/file-seek/pkg/store"
)

// Store is the persistence surface the archivist writes through. It is
// satisfied by store.VectorStore.
type Store interface {
	Upsert(ctx context.Context, doc models.ProcessedDocument) error
	DeleteByPath(ctx context.Context, path string) error
	DocumentsUnder(ctx context.Context, base string, recursive bool) (map[string]struct{}, error)
	DocumentByPath(ctx context.Context, path string) (*models.Document, error)
	EmbeddingsFor(ctx context.Context, documentID string) ([]models.ChunkEmbedding, error)
	Search(ctx context.Context, queryEmbedding []float32, limit int) ([]store.SearchResult, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	DocumentCount(ctx context.Context) (int64, error)
	TotalVectors(ctx context.Context) (int64, error)
}

// Archivist runs the full ingest pipeline: classify, extract, chunk, embed,
// persist. It implements types.DocumentStore so the reconciler and the watch
// dispatcher can drive it directly.
type Archivist struct {
	classifier types.Classifier
	extractor  types.TextExtractor
	processor  types.Processor
	embedder   types.Embedder
	store      Store
	logger     *slog.Logger
}

// Status summarizes the archive for reporting.
type Status struct {
	Documents int64
	Vectors   int64
}

func New(classifier types.Classifier, extractor types.TextExtractor, processor types.Processor, embedder types.Embedder, st Store, logger *slog.Logger) *Archivist {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archivist{
		classifier: classifier,
		extractor:  extractor,
		processor:  processor,
		embedder:   embedder,
		store:      st,
		logger:     logger,
	}
}

// Ingest extracts, chunks, embeds and persists one file. A file whose
// content hash matches the stored record is left alone, which makes
// re-submission of unchanged files cheap and idempotent.
func (a *Archivist) Ingest(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	if !a.classifier.ShouldProcess(abs) {
		a.logger.Debug("skipping unclassified file", "path", abs)
		return nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("refusing to ingest directory %s", abs)
	}

	hash, err := hashFile(abs)
	if err != nil {
		return fmt.Errorf("failed to hash file: %w", err)
	}

	existing, err := a.store.DocumentByPath(ctx, abs)
	if err == nil && existing.Hash == hash {
		a.logger.Debug("file unchanged, skipping", "path", abs)
		return nil
	}

	text, err := a.extractor.Extract(ctx, abs)
	if err != nil {
		return fmt.Errorf("extraction failed for %s: %w", abs, err)
	}

	doc := models.Document{
		Path:    abs,
		Title:   filepath.Base(abs),
		Content: text,
		Hash:    hash,
		ModTime: info.ModTime(),
	}

	processed, err := a.processor.Process([]models.Document{doc})
	if err != nil {
		return fmt.Errorf("chunking failed for %s: %w", abs, err)
	}

	out := processed[0]
	if len(out.Chunks) > 0 {
		embeddings, err := a.embedder.CreateEmbedding(ctx, out.Chunks)
		if err != nil {
			return fmt.Errorf("embedding failed for %s: %w", abs, err)
		}
		out.Embedding = embeddings
	}

	if err := a.store.Upsert(ctx, out); err != nil {
		return fmt.Errorf("failed to persist %s: %w", abs, err)
	}

	a.logger.Info("ingested document", "path", abs, "chunks", len(out.Chunks))
	return nil
}

// Retire removes a document from the archive. Unknown paths are a no-op.
func (a *Archivist) Retire(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	if err := a.store.DeleteByPath(ctx, abs); err != nil {
		return fmt.Errorf("failed to retire %s: %w", abs, err)
	}

	a.logger.Info("retired document", "path", abs)
	return nil
}

func (a *Archivist) DocumentsUnder(ctx context.Context, base string, recursive bool) (map[string]struct{}, error) {
	return a.store.DocumentsUnder(ctx, base, recursive)
}

func (a *Archivist) DocumentByPath(ctx context.Context, path string) (*models.Document, error) {
	return a.store.DocumentByPath(ctx, path)
}

func (a *Archivist) EmbeddingsFor(ctx context.Context, documentID string) ([]models.ChunkEmbedding, error) {
	return a.store.EmbeddingsFor(ctx, documentID)
}

// Search embeds the query text and returns the nearest chunks.
func (a *Archivist) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	embeddings, err := a.embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return a.store.Search(ctx, a.embedder.FlattenEmbeddings(embeddings), limit)
}

// Similar finds documents close to an already-ingested file. The file's own
// chunks are excluded from the results.
func (a *Archivist) Similar(ctx context.Context, path string, limit int) ([]store.SearchResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	doc, err := a.store.DocumentByPath(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("document not ingested: %w", err)
	}

	chunks, err := a.store.EmbeddingsFor(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no embeddings stored for %s", abs)
	}

	centroid := averageEmbeddings(chunks)

	// Over-fetch so the document's own chunks can be dropped.
	results, err := a.store.Search(ctx, centroid, limit+len(chunks))
	if err != nil {
		return nil, err
	}

	filtered := results[:0]
	for _, r := range results {
		if r.DocumentID == doc.ID {
			continue
		}
		filtered = append(filtered, r)
		if len(filtered) == limit {
			break
		}
	}

	return filtered, nil
}

func (a *Archivist) List(ctx context.Context) ([]models.Document, error) {
	return a.store.ListDocuments(ctx)
}

func (a *Archivist) Status(ctx context.Context) (Status, error) {
	docs, err := a.store.DocumentCount(ctx)
	if err != nil {
		return Status{}, err
	}

	vectors, err := a.store.TotalVectors(ctx)
	if err != nil {
		return Status{}, err
	}

	return Status{Documents: docs, Vectors: vectors}, nil
}

func averageEmbeddings(chunks []models.ChunkEmbedding) []float32 {
	if len(chunks) == 0 {
		return nil
	}

	sum := make([]float64, len(chunks[0].Embedding))
	for _, chunk := range chunks {
		for i, v := range chunk.Embedding {
			if i < len(sum) {
				sum[i] += float64(v)
			}
		}
	}

	out := make([]float32, len(sum))
	for i := range sum {
		out[i] = float32(sum[i] / float64(len(chunks)))
	}
	return out
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
