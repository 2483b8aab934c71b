package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpool/internal/model"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"pet", "deposit", "is", "500", "refundable"},
		Tokenize("Pet deposit: is R$2,500 (refundable)!"),
	)
	assert.Empty(t, Tokenize("a . ! ?"))
}

func chunksFor(ids []uint, texts []string) []model.Chunk {
	chunks := make([]model.Chunk, len(texts))
	for i := range texts {
		chunks[i] = model.Chunk{ID: ids[i], Ordinal: i, Text: texts[i]}
	}
	return chunks
}

func TestScoreCountsDistinctTermOverlap(t *testing.T) {
	m := NewManager()
	m.EnsureSession(1)
	m.IndexChunks(1, 10, chunksFor([]uint{100, 101}, []string{
		"the pet deposit is refundable",
		"monthly rent is due on the first",
	}))

	scores := m.Score(1, Tokenize("pet deposit deposit"))
	require.Len(t, scores, 1)
	assert.Equal(t, 2, scores[100]) // "deposit" counted once

	assert.Empty(t, m.Score(1, Tokenize("elephants")))
}

func TestScoreIsSessionScoped(t *testing.T) {
	m := NewManager()
	m.EnsureSession(1)
	m.IndexChunks(1, 10, chunksFor([]uint{100}, []string{"pet deposit"}))

	assert.Nil(t, m.Score(2, []string{"pet"}))
	assert.False(t, m.HasSession(2))
}

func TestIndexChunksRequiresLoadedSession(t *testing.T) {
	m := NewManager()
	m.IndexChunks(7, 10, chunksFor([]uint{100}, []string{"pet deposit"}))
	assert.False(t, m.HasSession(7))
}

func TestRemoveDocument(t *testing.T) {
	m := NewManager()
	m.EnsureSession(1)
	m.IndexChunks(1, 10, chunksFor([]uint{100}, []string{"pet deposit"}))
	m.IndexChunks(1, 11, chunksFor([]uint{200}, []string{"pet policy"}))

	m.RemoveDocument(1, 10)
	scores := m.Score(1, []string{"pet"})
	require.Len(t, scores, 1)
	assert.Contains(t, scores, uint(200))
}

func TestRemoveDocumentEverywhere(t *testing.T) {
	m := NewManager()
	for _, sessionID := range []uint{1, 2} {
		m.EnsureSession(sessionID)
		m.IndexChunks(sessionID, 10, chunksFor([]uint{100}, []string{"pet deposit"}))
	}

	m.RemoveDocumentEverywhere(10)
	assert.Empty(t, m.Score(1, []string{"pet"}))
	assert.Empty(t, m.Score(2, []string{"pet"}))
}

func TestUnloadDropsSession(t *testing.T) {
	m := NewManager()
	m.EnsureSession(1)
	m.IndexChunks(1, 10, chunksFor([]uint{100}, []string{"pet deposit"}))

	m.Unload(1)
	assert.False(t, m.HasSession(1))
	// Unloading again is safe.
	m.Unload(1)
}
