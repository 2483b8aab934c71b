package repository

import (
	"fmt"

	"gorm.io/gorm"

	"ragpool/internal/model"
)

type FactRepository struct {
	db *gorm.DB
}

func NewFactRepository(db *gorm.DB) *FactRepository {
	return &FactRepository{db: db}
}

func (r *FactRepository) Create(fact *model.DerivedFact) error {
	if err := r.db.Create(fact).Error; err != nil {
		return fmt.Errorf("create derived fact failed: %w", err)
	}
	return nil
}

func (r *FactRepository) ListByUserID(userID uint) ([]model.DerivedFact, error) {
	var facts []model.DerivedFact
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&facts).Error; err != nil {
		return nil, fmt.Errorf("list derived facts failed: %w", err)
	}
	return facts, nil
}

// MarkSourceRemovedByDocumentID flags facts that cited the document. The
// facts themselves survive the document's deletion.
func (r *FactRepository) MarkSourceRemovedByDocumentID(documentID uint) error {
	if err := r.db.Model(&model.DerivedFact{}).
		Where("document_id = ?", documentID).
		Update("source_removed", true).Error; err != nil {
		return fmt.Errorf("mark facts source removed failed: %w", err)
	}
	return nil
}
