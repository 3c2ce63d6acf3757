package processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyrieTangSheng/file-seek/internal/models"
)

func TestProcessorDefaults(t *testing.T) {
	p := NewWithConfig(ProcessorConfig{})

	assert.Equal(t, 1000, p.config.ChunkSize)
	assert.Equal(t, 200, p.config.ChunkOverlap)
	assert.Equal(t, 100, p.config.MinChunkLength)
}

func TestProcessCleansWhitespace(t *testing.T) {
	p := NewWithConfig(ProcessorConfig{MinChunkLength: 1})

	docs := []models.Document{
		{Path: "/tmp/a.txt", Content: "hello   world\n\nnext \f line"},
	}

	processed, err := p.Process(docs)
	require.NoError(t, err)
	require.Len(t, processed, 1)
	require.Len(t, processed[0].Chunks, 1)
	assert.Equal(t, "hello world next line", processed[0].Chunks[0])
}

func TestProcessSplitsLongText(t *testing.T) {
	p := NewWithConfig(ProcessorConfig{
		ChunkSize:      120,
		ChunkOverlap:   20,
		MinChunkLength: 10,
	})

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("The quick brown fox jumps over the lazy dog. ")
	}

	docs := []models.Document{{Path: "/tmp/long.txt", Content: sb.String()}}

	processed, err := p.Process(docs)
	require.NoError(t, err)
	require.Len(t, processed, 1)

	chunks := processed[0].Chunks
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), p.config.ChunkSize+p.config.ChunkOverlap+60)
		assert.GreaterOrEqual(t, len(chunk), p.config.MinChunkLength)
	}
}

func TestProcessChunkOverlapCarriesTail(t *testing.T) {
	p := NewWithConfig(ProcessorConfig{
		ChunkSize:      100,
		ChunkOverlap:   30,
		MinChunkLength: 10,
	})

	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString("Sentences accumulate until the chunk boundary is reached. ")
	}

	chunks := p.splitIntoChunks(p.cleanText(sb.String()))
	require.Greater(t, len(chunks), 1)

	// The tail of each chunk reappears at the head of the next.
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1][len(chunks[i-1])-10:]
		assert.Contains(t, chunks[i][:60], strings.TrimSpace(prevTail))
	}
}

func TestProcessShortContentBelowMinimumDropped(t *testing.T) {
	p := NewWithConfig(ProcessorConfig{MinChunkLength: 50})

	processed, err := p.Process([]models.Document{{Path: "/tmp/s.txt", Content: "too short"}})
	require.NoError(t, err)
	require.Len(t, processed, 1)
	assert.Empty(t, processed[0].Chunks)
}

func TestSplitIntoSentences(t *testing.T) {
	p := NewWithConfig(ProcessorConfig{})

	sentences := p.splitIntoSentences("First sentence. Second one! Third? Trailing fragment")
	require.Len(t, sentences, 4)
	assert.Equal(t, "First sentence.", sentences[0])
	assert.Equal(t, "Second one!", sentences[1])
	assert.Equal(t, "Third?", sentences[2])
	assert.Equal(t, "Trailing fragment", sentences[3])
}
