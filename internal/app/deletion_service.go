package app

import (
	"context"
	"log"

	"ragpool/internal/index"
	"ragpool/internal/model"
	"ragpool/internal/repository"
)

// DeletionService is the only place documents actually die. The cascade
// (embeddings, chunks, activations, then the document) runs in a single
// transaction, so an interrupted cascade never leaves a retrievable document
// with missing chunks. Session teardown, by contrast, deletes nothing but
// grants.
type DeletionService struct {
	docRepo     *repository.DocumentRepository
	sessionRepo *repository.SessionRepository
	factRepo    *repository.FactRepository
	idx         *index.Manager
	cache       SectionInvalidator // optional
}

func NewDeletionService(
	docRepo *repository.DocumentRepository,
	sessionRepo *repository.SessionRepository,
	factRepo *repository.FactRepository,
	idx *index.Manager,
	cache SectionInvalidator,
) *DeletionService {
	return &DeletionService{
		docRepo:     docRepo,
		sessionRepo: sessionRepo,
		factRepo:    factRepo,
		idx:         idx,
		cache:       cache,
	}
}

// DeleteDocument cascades a document out of existence: embeddings, chunks,
// activations, the document itself, all-or-nothing. Derived facts that cited
// it are flagged source_removed, never deleted.
func (s *DeletionService) DeleteDocument(ctx context.Context, userID, documentID uint) error {
	if userID == 0 || documentID == 0 {
		return ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	affected := doc.ActiveSessions

	if err := s.docRepo.DeleteCascade(documentID); err != nil {
		return err
	}
	if err := s.factRepo.MarkSourceRemovedByDocumentID(documentID); err != nil {
		return err
	}

	s.idx.RemoveDocumentEverywhere(documentID)
	for _, sessionID := range affected {
		s.invalidate(ctx, sessionID)
	}
	return nil
}

// DetachSession removes the session from every document's activation set.
// No document, chunk, or embedding is deleted; documents left with an empty
// activation set are orphaned, which is a steady state, not an error.
// Repeating the call is a no-op.
func (s *DeletionService) DetachSession(ctx context.Context, sessionID uint) error {
	if sessionID == 0 {
		return ErrInvalidInput
	}
	if err := s.docRepo.RemoveActivationsBySessionID(sessionID); err != nil {
		return err
	}
	s.idx.Unload(sessionID)
	s.invalidate(ctx, sessionID)
	return nil
}

// DeleteSession detaches the session from the pool and removes the session
// record itself.
func (s *DeletionService) DeleteSession(ctx context.Context, userID, sessionID uint) error {
	if userID == 0 || sessionID == 0 {
		return ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if err := s.DetachSession(ctx, sessionID); err != nil {
		return err
	}
	return s.sessionRepo.DeleteByIDAndUserID(sessionID, userID)
}

// CleanupOrphans lists the user's orphaned documents, oldest access first,
// as deletion candidates. Actual deletion stays an explicit caller decision.
func (s *DeletionService) CleanupOrphans(ctx context.Context, userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docRepo.ListOrphansByUserID(userID)
}

func (s *DeletionService) invalidate(ctx context.Context, sessionID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, sessionID); err != nil {
		log.Printf("invalidate section cache for session %d failed: %v", sessionID, err)
	}
}
