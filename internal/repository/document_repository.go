package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ragpool/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// PoolAggregate holds the per-user pool totals the quota enforcer runs on.
type PoolAggregate struct {
	DocumentCount int64
	TotalBytes    int64
}

// CreateWithChunks persists the document, its chunks, and the origin-session
// activation in one transaction, so a failed upload leaves nothing behind.
func (r *DocumentRepository) CreateWithChunks(doc *model.Document, chunks []model.Chunk) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		for i := range chunks {
			chunks[i].DocumentID = doc.ID
		}
		if len(chunks) > 0 {
			if err := tx.Create(&chunks).Error; err != nil {
				return err
			}
		}
		activation := model.DocumentActivation{
			DocumentID: doc.ID,
			SessionID:  doc.OriginSessionID,
		}
		return tx.Create(&activation).Error
	})
	if err != nil {
		return fmt.Errorf("create document with chunks failed: %w", err)
	}
	doc.ActiveSessions = []uint{doc.OriginSessionID}
	return nil
}

func (r *DocumentRepository) GetByID(id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	if err := r.loadActiveSessions(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByIDAndUserID(id, userID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	if err := r.loadActiveSessions(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListActiveForSession returns every document the session may currently
// read. Membership in the activation table is the only predicate applied;
// origin_session_id is deliberately not consulted.
func (r *DocumentRepository) ListActiveForSession(sessionID uint) ([]model.Document, error) {
	sub := r.db.Model(&model.DocumentActivation{}).
		Select("document_id").
		Where("session_id = ?", sessionID)
	var docs []model.Document
	if err := r.db.Where("id IN (?)", sub).Order("id ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list active documents failed: %w", err)
	}
	if err := r.loadActiveSessionsMany(docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// ListOrphansByUserID returns the user's documents with no active session,
// oldest last access first, as deletion candidates.
func (r *DocumentRepository) ListOrphansByUserID(userID uint) ([]model.Document, error) {
	sub := r.db.Model(&model.DocumentActivation{}).Select("document_id")
	var docs []model.Document
	if err := r.db.Where("user_id = ? AND id NOT IN (?)", userID, sub).
		Order("last_accessed_at ASC, id ASC").
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list orphaned documents failed: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) ListByUserID(userID uint) ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	if err := r.loadActiveSessionsMany(docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// AggregateByUserID returns pool totals across all the user's documents.
func (r *DocumentRepository) AggregateByUserID(userID uint) (PoolAggregate, error) {
	var agg PoolAggregate
	row := r.db.Model(&model.Document{}).
		Select("COUNT(*) AS document_count, COALESCE(SUM(size), 0) AS total_bytes").
		Where("user_id = ?", userID).
		Row()
	if err := row.Scan(&agg.DocumentCount, &agg.TotalBytes); err != nil {
		return agg, fmt.Errorf("aggregate pool stats failed: %w", err)
	}
	return agg, nil
}

// CountActiveForSession counts documents currently active in the session.
func (r *DocumentRepository) CountActiveForSession(sessionID uint) (int64, error) {
	var n int64
	if err := r.db.Model(&model.DocumentActivation{}).
		Where("session_id = ?", sessionID).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count active documents failed: %w", err)
	}
	return n, nil
}

// AddActivation grants sessionID access to the document. Idempotent: an
// existing grant is left as is.
func (r *DocumentRepository) AddActivation(documentID, sessionID uint) error {
	var n int64
	if err := r.db.Model(&model.DocumentActivation{}).
		Where("document_id = ? AND session_id = ?", documentID, sessionID).
		Count(&n).Error; err != nil {
		return fmt.Errorf("check activation failed: %w", err)
	}
	if n > 0 {
		return nil
	}
	activation := model.DocumentActivation{DocumentID: documentID, SessionID: sessionID}
	if err := r.db.Create(&activation).Error; err != nil {
		return fmt.Errorf("add activation failed: %w", err)
	}
	return nil
}

// RemoveActivation revokes sessionID's access. Idempotent; never touches the
// document or its chunks.
func (r *DocumentRepository) RemoveActivation(documentID, sessionID uint) error {
	if err := r.db.Where("document_id = ? AND session_id = ?", documentID, sessionID).
		Delete(&model.DocumentActivation{}).Error; err != nil {
		return fmt.Errorf("remove activation failed: %w", err)
	}
	return nil
}

// RemoveActivationsBySessionID detaches a session from every document it can
// see. Documents whose last activation goes away become orphans.
func (r *DocumentRepository) RemoveActivationsBySessionID(sessionID uint) error {
	if err := r.db.Where("session_id = ?", sessionID).
		Delete(&model.DocumentActivation{}).Error; err != nil {
		return fmt.Errorf("detach session activations failed: %w", err)
	}
	return nil
}

// TouchAccess bumps access bookkeeping for the given documents.
func (r *DocumentRepository) TouchAccess(documentIDs []uint) error {
	if len(documentIDs) == 0 {
		return nil
	}
	if err := r.db.Model(&model.Document{}).
		Where("id IN ?", documentIDs).
		UpdateColumns(map[string]interface{}{
			"access_count":     gorm.Expr("access_count + 1"),
			"last_accessed_at": time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("touch document access failed: %w", err)
	}
	return nil
}

// DeleteCascade removes the document and everything hanging off it in one
// transaction: embeddings, chunks, activation grants, then the row itself.
// A failure rolls the whole cascade back, so the document is never left
// visible with missing chunks.
func (r *DocumentRepository) DeleteCascade(documentID uint) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		chunkIDs := tx.Model(&model.Chunk{}).Select("id").Where("document_id = ?", documentID)
		if err := tx.Where("chunk_id IN (?)", chunkIDs).Delete(&model.Embedding{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&model.DocumentActivation{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", documentID).Delete(&model.Document{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete document cascade failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) loadActiveSessions(doc *model.Document) error {
	var sessionIDs []uint
	if err := r.db.Model(&model.DocumentActivation{}).
		Where("document_id = ?", doc.ID).
		Order("session_id ASC").
		Pluck("session_id", &sessionIDs).Error; err != nil {
		return fmt.Errorf("load active sessions failed: %w", err)
	}
	doc.ActiveSessions = sessionIDs
	return nil
}

func (r *DocumentRepository) loadActiveSessionsMany(docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	ids := make([]uint, len(docs))
	for i := range docs {
		ids[i] = docs[i].ID
	}
	var activations []model.DocumentActivation
	if err := r.db.Where("document_id IN ?", ids).
		Order("session_id ASC").
		Find(&activations).Error; err != nil {
		return fmt.Errorf("load active sessions failed: %w", err)
	}
	bySession := make(map[uint][]uint, len(docs))
	for _, a := range activations {
		bySession[a.DocumentID] = append(bySession[a.DocumentID], a.SessionID)
	}
	for i := range docs {
		docs[i].ActiveSessions = bySession[docs[i].ID]
	}
	return nil
}
