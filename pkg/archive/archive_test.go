package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyrieTangSheng/file-seek/internal/models"
	"github.com/KyrieTangSheng/file-seek/pkg/detector"
	"github.com/KyrieTangSheng/file-seek/pkg/processor"
	"github.com/KyrieTangSheng/file-seek/pkg/store"
)

type fakeStore struct {
	docs    map[string]models.ProcessedDocument
	upserts int
	deletes int
	results []store.SearchResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]models.ProcessedDocument)}
}

func (s *fakeStore) Upsert(_ context.Context, doc models.ProcessedDocument) error {
	if doc.ID == "" {
		doc.ID = "doc-" + doc.Path
	}
	s.docs[doc.Path] = doc
	s.upserts++
	return nil
}

func (s *fakeStore) DeleteByPath(_ context.Context, path string) error {
	delete(s.docs, path)
	s.deletes++
	return nil
}

func (s *fakeStore) DocumentsUnder(_ context.Context, base string, _ bool) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for path := range s.docs {
		if path == base || filepath.Dir(path) == base {
			out[path] = struct{}{}
		}
	}
	return out, nil
}

func (s *fakeStore) DocumentByPath(_ context.Context, path string) (*models.Document, error) {
	doc, ok := s.docs[path]
	if !ok {
		return nil, store.ErrNotFound
	}
	d := doc.Document
	return &d, nil
}

func (s *fakeStore) EmbeddingsFor(_ context.Context, documentID string) ([]models.ChunkEmbedding, error) {
	for _, doc := range s.docs {
		if doc.ID != documentID {
			continue
		}
		var chunks []models.ChunkEmbedding
		for i, text := range doc.Chunks {
			chunk := models.ChunkEmbedding{DocumentID: documentID, Index: i, Text: text}
			if i < len(doc.Embedding) {
				chunk.Embedding = doc.Embedding[i]
			}
			chunks = append(chunks, chunk)
		}
		return chunks, nil
	}
	return nil, nil
}

func (s *fakeStore) Search(_ context.Context, _ []float32, limit int) ([]store.SearchResult, error) {
	if limit > len(s.results) {
		limit = len(s.results)
	}
	return s.results[:limit], nil
}

func (s *fakeStore) ListDocuments(_ context.Context) ([]models.Document, error) {
	var docs []models.Document
	for _, doc := range s.docs {
		docs = append(docs, doc.Document)
	}
	return docs, nil
}

func (s *fakeStore) DocumentCount(_ context.Context) (int64, error) {
	return int64(len(s.docs)), nil
}

func (s *fakeStore) TotalVectors(_ context.Context) (int64, error) {
	var n int64
	for _, doc := range s.docs {
		n += int64(len(doc.Chunks))
	}
	return n, nil
}

type fakeExtractor struct {
	text  string
	err   error
	calls int
}

func (e *fakeExtractor) Extract(_ context.Context, _ string) (string, error) {
	e.calls++
	return e.text, e.err
}

type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (e *fakeEmbedder) FlattenEmbeddings(embeddings [][]float32) []float32 {
	var flat []float32
	for _, emb := range embeddings {
		flat = append(flat, emb...)
	}
	return flat
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestArchivist(st Store, ext *fakeExtractor, emb *fakeEmbedder) *Archivist {
	cls := detector.NewWithConfig(detector.DetectorConfig{})
	proc := processor.NewWithConfig(processor.ProcessorConfig{MinChunkLength: 1})
	return New(cls, ext, &proc, emb, st, testLogger())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestStoresChunksAndEmbeddings(t *testing.T) {
	st := newFakeStore()
	ext := &fakeExtractor{text: "Indexed content for the archive."}
	a := newTestArchivist(st, ext, &fakeEmbedder{})

	path := writeFile(t, t.TempDir(), "note.txt", "payload")
	require.NoError(t, a.Ingest(context.Background(), path))

	stored, ok := st.docs[path]
	require.True(t, ok)
	assert.Equal(t, "note.txt", stored.Title)
	assert.NotEmpty(t, stored.Hash)
	require.Len(t, stored.Chunks, 1)
	require.Len(t, stored.Embedding, 1)
}

func TestIngestUnchangedFileIsNoop(t *testing.T) {
	st := newFakeStore()
	ext := &fakeExtractor{text: "same content"}
	a := newTestArchivist(st, ext, &fakeEmbedder{})

	path := writeFile(t, t.TempDir(), "note.txt", "payload")

	require.NoError(t, a.Ingest(context.Background(), path))
	require.NoError(t, a.Ingest(context.Background(), path))

	assert.Equal(t, 1, st.upserts)
	assert.Equal(t, 1, ext.calls, "unchanged file must not be re-extracted")
}

func TestIngestChangedFileIsReprocessed(t *testing.T) {
	st := newFakeStore()
	ext := &fakeExtractor{text: "content"}
	a := newTestArchivist(st, ext, &fakeEmbedder{})

	dir := t.TempDir()
	path := writeFile(t, dir, "note.txt", "v1")
	require.NoError(t, a.Ingest(context.Background(), path))

	writeFile(t, dir, "note.txt", "v2 with different bytes")
	require.NoError(t, a.Ingest(context.Background(), path))

	assert.Equal(t, 2, st.upserts)
}

func TestIngestSkipsUnclassifiedFiles(t *testing.T) {
	st := newFakeStore()
	ext := &fakeExtractor{text: "content"}
	a := newTestArchivist(st, ext, &fakeEmbedder{})

	path := writeFile(t, t.TempDir(), "binary.exe", "payload")
	require.NoError(t, a.Ingest(context.Background(), path))

	assert.Zero(t, st.upserts)
	assert.Zero(t, ext.calls)
}

func TestIngestDirectoryRejected(t *testing.T) {
	st := newFakeStore()
	a := newTestArchivist(st, &fakeExtractor{}, &fakeEmbedder{})

	dir := filepath.Join(t.TempDir(), "docs.pdf")
	require.NoError(t, os.Mkdir(dir, 0o755))

	err := a.Ingest(context.Background(), dir)
	require.Error(t, err)
	assert.Zero(t, st.upserts)
}

func TestIngestExtractionFailureSurfaces(t *testing.T) {
	st := newFakeStore()
	ext := &fakeExtractor{err: errors.New("ocr unavailable")}
	a := newTestArchivist(st, ext, &fakeEmbedder{})

	path := writeFile(t, t.TempDir(), "scan.pdf", "payload")
	err := a.Ingest(context.Background(), path)
	require.Error(t, err)
	assert.Zero(t, st.upserts)
}

func TestIngestEmptyExtractionStoresDocumentWithoutChunks(t *testing.T) {
	st := newFakeStore()
	ext := &fakeExtractor{text: ""}
	a := newTestArchivist(st, ext, &fakeEmbedder{})

	path := writeFile(t, t.TempDir(), "blank.txt", "payload")
	require.NoError(t, a.Ingest(context.Background(), path))

	stored, ok := st.docs[path]
	require.True(t, ok)
	assert.Empty(t, stored.Chunks)
}

func TestRetireIsIdempotent(t *testing.T) {
	st := newFakeStore()
	ext := &fakeExtractor{text: "content"}
	a := newTestArchivist(st, ext, &fakeEmbedder{})

	path := writeFile(t, t.TempDir(), "note.txt", "payload")
	require.NoError(t, a.Ingest(context.Background(), path))

	require.NoError(t, a.Retire(context.Background(), path))
	require.NoError(t, a.Retire(context.Background(), path))
	assert.Empty(t, st.docs)
}

func TestSearchEmbedsQuery(t *testing.T) {
	st := newFakeStore()
	st.results = []store.SearchResult{
		{DocumentID: "d1", Path: "/tmp/a.txt", ChunkText: "match", Distance: 0.1},
	}
	a := newTestArchivist(st, &fakeExtractor{}, &fakeEmbedder{})

	results, err := a.Search(context.Background(), "query text", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/tmp/a.txt", results[0].Path)
}

func TestSimilarExcludesOwnDocument(t *testing.T) {
	st := newFakeStore()
	ext := &fakeExtractor{text: "Some document body text."}
	a := newTestArchivist(st, ext, &fakeEmbedder{})

	path := writeFile(t, t.TempDir(), "note.txt", "payload")
	require.NoError(t, a.Ingest(context.Background(), path))

	own := st.docs[path]
	st.results = []store.SearchResult{
		{DocumentID: own.ID, Path: path, Distance: 0.0},
		{DocumentID: "other", Path: "/tmp/other.txt", Distance: 0.2},
	}

	results, err := a.Similar(context.Background(), path, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "other", results[0].DocumentID)
}

func TestSimilarUnknownDocument(t *testing.T) {
	st := newFakeStore()
	a := newTestArchivist(st, &fakeExtractor{}, &fakeEmbedder{})

	_, err := a.Similar(context.Background(), "/tmp/never-ingested.txt", 5)
	require.Error(t, err)
}

func TestStatusReportsCounts(t *testing.T) {
	st := newFakeStore()
	ext := &fakeExtractor{text: "Counted content."}
	a := newTestArchivist(st, ext, &fakeEmbedder{})

	dir := t.TempDir()
	require.NoError(t, a.Ingest(context.Background(), writeFile(t, dir, "a.txt", "one")))
	require.NoError(t, a.Ingest(context.Background(), writeFile(t, dir, "b.txt", "two")))

	status, err := a.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Documents)
	assert.Equal(t, int64(2), status.Vectors)
}

func TestAverageEmbeddings(t *testing.T) {
	chunks := []models.ChunkEmbedding{
		{Embedding: []float32{1, 3}},
		{Embedding: []float32{3, 5}},
	}
	assert.Equal(t, []float32{2, 4}, averageEmbeddings(chunks))
	assert.Nil(t, averageEmbeddings(nil))
}
