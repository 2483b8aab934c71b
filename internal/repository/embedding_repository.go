package repository

import (
	"fmt"

	"gorm.io/gorm"

	"ragpool/internal/model"
)

type EmbeddingRepository struct {
	db *gorm.DB
}

func NewEmbeddingRepository(db *gorm.DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

func (r *EmbeddingRepository) CreateBatch(embeddings []model.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	if err := r.db.Create(&embeddings).Error; err != nil {
		return fmt.Errorf("create embeddings batch failed: %w", err)
	}
	return nil
}

// ListByChunkIDs returns the stored vectors for the given chunks. Chunks
// without an embedding yet are simply absent from the result.
func (r *EmbeddingRepository) ListByChunkIDs(chunkIDs []uint) ([]model.Embedding, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	var embeddings []model.Embedding
	if err := r.db.Where("chunk_id IN ?", chunkIDs).Find(&embeddings).Error; err != nil {
		return nil, fmt.Errorf("list embeddings by chunk ids failed: %w", err)
	}
	return embeddings, nil
}

// EmbeddedChunkIDs reports which of the given chunks already have a vector.
func (r *EmbeddingRepository) EmbeddedChunkIDs(chunkIDs []uint) (map[uint]bool, error) {
	if len(chunkIDs) == 0 {
		return map[uint]bool{}, nil
	}
	var ids []uint
	if err := r.db.Model(&model.Embedding{}).
		Where("chunk_id IN ?", chunkIDs).
		Pluck("chunk_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list embedded chunk ids failed: %w", err)
	}
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
