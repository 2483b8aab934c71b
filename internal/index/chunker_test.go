package index

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "word%d", i)
	}
	return sb.String()
}

func TestChunkTextShortInputSingleChunk(t *testing.T) {
	chunks := ChunkText("just a few words here")
	require.Len(t, chunks, 1)
	assert.Equal(t, "just a few words here", chunks[0])
}

func TestChunkTextEmptyInput(t *testing.T) {
	assert.Nil(t, ChunkText(""))
	assert.Nil(t, ChunkText("   \n\t  "))
}

func TestChunkTextSplitsWithOverlap(t *testing.T) {
	content := words(700)
	chunks := ChunkText(content)
	require.Len(t, chunks, 3)

	// Consecutive chunks share the overlap window.
	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	require.Len(t, first, chunkWords)
	assert.Equal(t, first[len(first)-overlapWords:], second[:overlapWords])

	// Every input word survives chunking.
	last := strings.Fields(chunks[len(chunks)-1])
	assert.Equal(t, "word699", last[len(last)-1])
}

func TestChunkTextDeterministic(t *testing.T) {
	content := words(900)
	assert.Equal(t, ChunkText(content), ChunkText(content))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
}
