package model

import "time"

// Chunk is a bounded slice of document text, the unit of retrieval. Chunks
// are owned by their document: they are created with it and destroyed only
// when the document is deleted. Ordinal is stable for a given input, so it
// doubles as a chunk address.
type Chunk struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DocumentID uint      `gorm:"not null;index" json:"document_id"`
	Ordinal    int       `gorm:"not null" json:"index"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	TokenCount int       `gorm:"not null" json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
}
