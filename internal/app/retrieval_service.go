package app

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"ragpool/internal/ai"
	"ragpool/internal/index"
	"ragpool/internal/model"
	"ragpool/internal/repository"
)

const (
	defaultTopK        = 5
	embedBatchSize     = 10 // embedding APIs often limit batch size
	chunkSeparator     = "\n---\n"
	defaultRetrievalTO = 2 * time.Second
)

// RetrievalOptions bound one retrieval call.
type RetrievalOptions struct {
	TopK      int
	MaxTokens int
}

// RetrievalService ranks a session's active chunks by keyword overlap or
// vector similarity and assembles a budgeted context string. It never
// returns an error to callers: any internal failure, including the deadline
// expiring, yields an empty result so chat generation is never blocked by
// retrieval.
type RetrievalService struct {
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	embRepo   *repository.EmbeddingRepository
	idx       *index.Manager
	engine    ai.EmbeddingEngine // nil when no embedding backend is configured
	timeout   time.Duration
}

func NewRetrievalService(
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	embRepo *repository.EmbeddingRepository,
	idx *index.Manager,
	engine ai.EmbeddingEngine,
	timeout time.Duration,
) *RetrievalService {
	if timeout <= 0 {
		timeout = defaultRetrievalTO
	}
	return &RetrievalService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		embRepo:   embRepo,
		idx:       idx,
		engine:    engine,
		timeout:   timeout,
	}
}

type rankedChunk struct {
	chunk        model.Chunk
	score        float64
	docID        uint
	lastAccessed time.Time
}

// ContextForQuery returns the assembled context text, its estimated token
// cost, and whether any qualifying chunk was found.
func (s *RetrievalService) ContextForQuery(ctx context.Context, sessionID uint, query string, mode model.RetrievalMode, opts RetrievalOptions) (string, int, bool) {
	query = strings.TrimSpace(query)
	if sessionID == 0 || query == "" || mode == model.ModeNone || opts.MaxTokens <= 0 {
		return "", 0, false
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	docs, err := s.docRepo.ListActiveForSession(sessionID)
	if err != nil {
		log.Printf("retrieval: list active documents for session %d failed: %v", sessionID, err)
		return "", 0, false
	}
	if len(docs) == 0 {
		return "", 0, false
	}

	docIDs := make([]uint, len(docs))
	lastAccess := make(map[uint]time.Time, len(docs))
	for i := range docs {
		docIDs[i] = docs[i].ID
		lastAccess[docs[i].ID] = docs[i].LastAccessedAt
	}
	chunks, err := s.chunkRepo.ListByDocumentIDs(docIDs)
	if err != nil {
		log.Printf("retrieval: list chunks for session %d failed: %v", sessionID, err)
		return "", 0, false
	}
	if len(chunks) == 0 {
		return "", 0, false
	}

	var scores map[uint]float64
	if mode == model.ModeSemantic {
		scores = s.scoreSemantic(ctx, query, chunks)
	}
	if scores == nil {
		// Keyword path, also the fallback while embeddings are missing or
		// the engine is down.
		scores = s.scoreKeyword(sessionID, query, chunks)
	} else {
		// Chunks whose embed job has not finished yet still surface via
		// keyword overlap instead of going invisible.
		s.mergeKeywordForUnscored(sessionID, query, chunks, scores)
	}
	if len(scores) == 0 {
		return "", 0, false
	}
	if ctx.Err() != nil {
		return "", 0, false
	}

	ranked := make([]rankedChunk, 0, len(scores))
	for i := range chunks {
		score, ok := scores[chunks[i].ID]
		if !ok {
			continue
		}
		ranked = append(ranked, rankedChunk{
			chunk:        chunks[i],
			score:        score,
			docID:        chunks[i].DocumentID,
			lastAccessed: lastAccess[chunks[i].DocumentID],
		})
	}
	// Deterministic order: score, then recency of the parent document, then
	// stable ids.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if !ranked[i].lastAccessed.Equal(ranked[j].lastAccessed) {
			return ranked[i].lastAccessed.After(ranked[j].lastAccessed)
		}
		if ranked[i].docID != ranked[j].docID {
			return ranked[i].docID < ranked[j].docID
		}
		return ranked[i].chunk.Ordinal < ranked[j].chunk.Ordinal
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	parts, usedDocs := assembleBudgeted(ranked, opts.MaxTokens)
	if len(parts) == 0 {
		return "", 0, false
	}
	text := strings.Join(parts, chunkSeparator)
	if err := s.docRepo.TouchAccess(usedDocs); err != nil {
		log.Printf("retrieval: touch access failed: %v", err)
	}
	return text, index.EstimateTokens(text), true
}

// assembleBudgeted greedily takes ranked chunks until the next one would
// exceed the budget, then re-measures the joined text so the returned
// section never costs more than maxTokens.
func assembleBudgeted(ranked []rankedChunk, maxTokens int) ([]string, []uint) {
	var parts []string
	used := 0
	for _, rc := range ranked {
		cost := rc.chunk.TokenCount
		if cost <= 0 {
			cost = index.EstimateTokens(rc.chunk.Text)
		}
		if used+cost > maxTokens {
			break
		}
		parts = append(parts, rc.chunk.Text)
		used += cost
	}
	for len(parts) > 0 && index.EstimateTokens(strings.Join(parts, chunkSeparator)) > maxTokens {
		parts = parts[:len(parts)-1]
	}
	// Access stats are bumped only for documents whose text actually made it
	// into the section, so usedDocs is derived after the trim.
	docSeen := make(map[uint]bool)
	var usedDocs []uint
	for _, rc := range ranked[:len(parts)] {
		if !docSeen[rc.docID] {
			docSeen[rc.docID] = true
			usedDocs = append(usedDocs, rc.docID)
		}
	}
	return parts, usedDocs
}

func (s *RetrievalService) scoreKeyword(sessionID uint, query string, chunks []model.Chunk) map[uint]float64 {
	terms := index.Tokenize(query)
	if len(terms) == 0 {
		return nil
	}
	// The session index is built lazily from the chunks already in hand.
	if !s.idx.HasSession(sessionID) {
		s.idx.EnsureSession(sessionID)
		byDoc := make(map[uint][]model.Chunk)
		for _, c := range chunks {
			byDoc[c.DocumentID] = append(byDoc[c.DocumentID], c)
		}
		for docID, docChunks := range byDoc {
			s.idx.IndexChunks(sessionID, docID, docChunks)
		}
	}
	overlap := s.idx.Score(sessionID, terms)
	if len(overlap) == 0 {
		return nil
	}
	scores := make(map[uint]float64, len(overlap))
	for id, n := range overlap {
		scores[id] = float64(n)
	}
	return scores
}

// mergeKeywordForUnscored fills scoring gaps left by semantic ranking with
// keyword overlap, normalized by the distinct query term count so the values
// land on the cosine similarity scale. Already-scored chunks are untouched.
func (s *RetrievalService) mergeKeywordForUnscored(sessionID uint, query string, chunks []model.Chunk, scores map[uint]float64) {
	if len(scores) >= len(chunks) {
		return
	}
	overlap := s.scoreKeyword(sessionID, query, chunks)
	if len(overlap) == 0 {
		return
	}
	distinct := make(map[string]bool)
	for _, term := range index.Tokenize(query) {
		distinct[term] = true
	}
	denom := float64(len(distinct))
	for i := range chunks {
		id := chunks[i].ID
		if _, ok := scores[id]; ok {
			continue
		}
		if n, ok := overlap[id]; ok {
			scores[id] = n / denom
		}
	}
}

// scoreSemantic returns cosine similarities against cached chunk vectors, or
// nil when the caller should fall back to keyword scoring.
func (s *RetrievalService) scoreSemantic(ctx context.Context, query string, chunks []model.Chunk) map[uint]float64 {
	if s.engine == nil {
		return nil
	}
	chunkIDs := make([]uint, len(chunks))
	for i := range chunks {
		chunkIDs[i] = chunks[i].ID
	}
	embeddings, err := s.embRepo.ListByChunkIDs(chunkIDs)
	if err != nil || len(embeddings) == 0 {
		return nil
	}
	queryVecs, err := s.engine.Embed(ctx, []string{query})
	if err != nil || len(queryVecs) == 0 {
		log.Printf("retrieval: query embedding failed, using keyword scoring: %v", err)
		return nil
	}
	queryVec := queryVecs[0]

	scores := make(map[uint]float64, len(embeddings))
	for i := range embeddings {
		vec := embeddings[i].VectorData()
		if len(vec) == 0 {
			continue
		}
		scores[embeddings[i].ChunkID] = cosineSimilarity(queryVec, vec)
	}
	if len(scores) == 0 {
		return nil
	}
	return scores
}

// EnsureEmbeddings computes and stores vectors for any active chunk of the
// session that has none yet. Idempotent; a failure on one document is logged
// and does not block embedding of the others.
func (s *RetrievalService) EnsureEmbeddings(ctx context.Context, sessionID uint) error {
	if s.engine == nil {
		return ai.ErrModelUnavailable
	}
	docs, err := s.docRepo.ListActiveForSession(sessionID)
	if err != nil {
		return err
	}
	for i := range docs {
		if err := s.EmbedDocument(ctx, docs[i].ID); err != nil {
			log.Printf("embed document %d failed: %v", docs[i].ID, err)
		}
	}
	return nil
}

// EmbedDocument embeds the document's not-yet-embedded chunks in batches.
func (s *RetrievalService) EmbedDocument(ctx context.Context, documentID uint) error {
	if s.engine == nil {
		return ai.ErrModelUnavailable
	}
	chunks, err := s.chunkRepo.ListByDocumentID(documentID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	chunkIDs := make([]uint, len(chunks))
	for i := range chunks {
		chunkIDs[i] = chunks[i].ID
	}
	done, err := s.embRepo.EmbeddedChunkIDs(chunkIDs)
	if err != nil {
		return err
	}
	var pending []model.Chunk
	for i := range chunks {
		if !done[chunks[i].ID] {
			pending = append(pending, chunks[i])
		}
	}
	if len(pending) == 0 {
		return nil
	}

	for start := 0; start < len(pending); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}
		vectors, err := s.engine.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return ai.ErrInference
		}
		embeddings := make([]model.Embedding, len(batch))
		for i := range batch {
			embeddings[i] = model.Embedding{ChunkID: batch[i].ID}
			embeddings[i].SetVector(vectors[i])
		}
		if err := s.embRepo.CreateBatch(embeddings); err != nil {
			return err
		}
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
