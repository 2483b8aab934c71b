package app

import (
	"context"
	"log"
	"strings"
	"sync"

	"ragpool/internal/index"
	"ragpool/internal/model"
	"ragpool/internal/quota"
	"ragpool/internal/repository"
)

// EmbedJobPublisher enqueues background embedding work so model inference
// never runs on the upload path.
type EmbedJobPublisher interface {
	PublishDocument(ctx context.Context, documentID, userID uint) error
}

// SectionCache invalidation seam; satisfied by the Redis section cache.
type SectionInvalidator interface {
	Invalidate(ctx context.Context, sessionID uint) error
}

// PoolService owns the document lifecycle: uploads, activation bookkeeping,
// and quota enforcement. All mutations for one user are serialized under a
// per-user mutex, and limits are re-read inside the critical section, so two
// interleaved uploads can never jointly exceed a cap that each passed alone.
type PoolService struct {
	docRepo     *repository.DocumentRepository
	chunkRepo   *repository.ChunkRepository
	sessionRepo *repository.SessionRepository
	idx         *index.Manager
	limits      quota.Limits
	publisher   EmbedJobPublisher  // optional
	cache       SectionInvalidator // optional

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// UploadInput is the already-extracted file handed over by the ingestion
// collaborator; format-specific parsing happened upstream.
type UploadInput struct {
	Filename string
	MimeType string
	Size     int64
	Content  string
}

func NewPoolService(
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	sessionRepo *repository.SessionRepository,
	idx *index.Manager,
	limits quota.Limits,
	publisher EmbedJobPublisher,
	cache SectionInvalidator,
) *PoolService {
	return &PoolService{
		docRepo:     docRepo,
		chunkRepo:   chunkRepo,
		sessionRepo: sessionRepo,
		idx:         idx,
		limits:      limits,
		publisher:   publisher,
		cache:       cache,
		locks:       make(map[uint]*sync.Mutex),
	}
}

func (s *PoolService) userLock(userID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// AddDocument validates, chunks, and persists a new document scoped to the
// uploading session. On any validation failure nothing is persisted.
func (s *PoolService) AddDocument(ctx context.Context, userID, sessionID uint, in UploadInput) (*model.Document, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, ErrInvalidInput
	}
	size := in.Size
	if size <= 0 {
		size = int64(len(in.Content))
	}

	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	// Limits are read inside the lock: a snapshot taken before it could be
	// stale by the time we commit.
	agg, err := s.docRepo.AggregateByUserID(userID)
	if err != nil {
		return nil, err
	}
	activeCount, err := s.docRepo.CountActiveForSession(sessionID)
	if err != nil {
		return nil, err
	}
	stats := quota.PoolStats{
		DocumentCount:   agg.DocumentCount,
		TotalBytes:      agg.TotalBytes,
		SessionDocCount: activeCount,
	}
	if err := s.limits.CheckUpload(stats, session.Tier, size, in.MimeType); err != nil {
		return nil, err
	}

	parts := index.ChunkText(content)
	if len(parts) == 0 {
		return nil, ErrInvalidInput
	}
	chunks := make([]model.Chunk, len(parts))
	for i, text := range parts {
		chunks[i] = model.Chunk{
			Ordinal:    i,
			Text:       text,
			TokenCount: index.EstimateTokens(text),
		}
	}

	name := strings.TrimSpace(in.Filename)
	if name == "" {
		name = "Untitled"
	}
	doc := &model.Document{
		UserID:          userID,
		OriginSessionID: sessionID,
		Name:            name,
		MimeType:        in.MimeType,
		Size:            size,
		Content:         content,
		ChunkCount:      len(chunks),
	}
	if err := s.docRepo.CreateWithChunks(doc, chunks); err != nil {
		return nil, err
	}

	s.idx.IndexChunks(sessionID, doc.ID, chunks)
	s.invalidate(ctx, sessionID)

	// Vector indexing is deferred to the embed worker; keyword retrieval is
	// available immediately.
	if s.publisher != nil && session.Tier == model.TierJigga {
		if err := s.publisher.PublishDocument(ctx, doc.ID, userID); err != nil {
			log.Printf("publish embed job for document %d failed: %v", doc.ID, err)
		}
	}
	return doc, nil
}

// ActivateInSession grants an existing document to another session
// (cross-session borrowing). Top tier only; the target session's cap is
// re-checked with the candidate included before the grant is written.
func (s *PoolService) ActivateInSession(ctx context.Context, userID, documentID, sessionID uint) error {
	if userID == 0 || documentID == 0 || sessionID == 0 {
		return ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if session.Tier != model.TierJigga {
		return ErrActivationNotAllowed
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if doc.ActiveIn(sessionID) {
		return s.docRepo.TouchAccess([]uint{doc.ID})
	}

	activeCount, err := s.docRepo.CountActiveForSession(sessionID)
	if err != nil {
		return err
	}
	if err := s.limits.CheckActivation(activeCount, session.Tier); err != nil {
		return err
	}
	if err := s.docRepo.AddActivation(doc.ID, sessionID); err != nil {
		return err
	}
	if err := s.docRepo.TouchAccess([]uint{doc.ID}); err != nil {
		return err
	}

	// Re-index the already-chunked text into the target session's index;
	// chunking is never repeated.
	if s.idx.HasSession(sessionID) {
		chunks, err := s.chunkRepo.ListByDocumentID(doc.ID)
		if err == nil {
			s.idx.IndexChunks(sessionID, doc.ID, chunks)
		}
	}
	s.invalidate(ctx, sessionID)

	if s.publisher != nil {
		if err := s.publisher.PublishDocument(ctx, doc.ID, userID); err != nil {
			log.Printf("publish embed job for document %d failed: %v", doc.ID, err)
		}
	}
	return nil
}

// DeactivateFromSession revokes a session's access to a document. Idempotent
// and never deletes data; the document may become orphaned.
func (s *PoolService) DeactivateFromSession(ctx context.Context, userID, documentID, sessionID uint) error {
	if userID == 0 || documentID == 0 || sessionID == 0 {
		return ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.docRepo.RemoveActivation(documentID, sessionID); err != nil {
		return err
	}
	s.idx.RemoveDocument(sessionID, documentID)
	s.invalidate(ctx, sessionID)
	return nil
}

// ListActiveForSession returns the documents the session may read. The
// session must belong to the caller; another user's session id reads as
// not found.
func (s *PoolService) ListActiveForSession(userID, sessionID uint) ([]model.Document, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return s.docRepo.ListActiveForSession(sessionID)
}

// ListByUser returns the user's full pool regardless of session visibility.
func (s *PoolService) ListByUser(userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docRepo.ListByUserID(userID)
}

func (s *PoolService) invalidate(ctx context.Context, sessionID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, sessionID); err != nil {
		log.Printf("invalidate section cache for session %d failed: %v", sessionID, err)
	}
}
