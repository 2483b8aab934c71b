package index

import "strings"

const (
	// Chunk windows are sized in words so boundaries never split a token.
	chunkWords   = 300
	overlapWords = 40
)

// ChunkText splits content into ordered, overlapping word windows. The split
// is deterministic for a given input, so a chunk's position in the returned
// slice is a stable address for it.
func ChunkText(content string) []string {
	words := strings.Fields(content)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= chunkWords {
		return []string{strings.Join(words, " ")}
	}

	var chunks []string
	step := chunkWords - overlapWords
	for start := 0; start < len(words); start += step {
		end := start + chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// EstimateTokens approximates the token cost of text with the usual
// four-characters-per-token heuristic.
func EstimateTokens(text string) int {
	return len(text) / 4
}
