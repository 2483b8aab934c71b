package repository

import (
	"fmt"

	"gorm.io/gorm"

	"ragpool/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) ListByDocumentID(documentID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if err := r.db.Where("document_id = ?", documentID).
		Order("ordinal ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) ListByDocumentIDs(documentIDs []uint) ([]model.Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	var chunks []model.Chunk
	if err := r.db.Where("document_id IN ?", documentIDs).
		Order("document_id ASC, ordinal ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by document ids failed: %w", err)
	}
	return chunks, nil
}
