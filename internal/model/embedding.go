package model

import (
	"encoding/json"
	"time"
)

// Embedding stores a chunk's sentence vector for semantic retrieval.
// The vector is stored as a JSON array of float32 for portability.
// Embeddings are created lazily (top tier only) and destroyed with the chunk.
type Embedding struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChunkID   uint      `gorm:"not null;uniqueIndex" json:"chunk_id"`
	Vector    string    `gorm:"type:text" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// VectorData returns the parsed vector; empty on parse error.
func (e *Embedding) VectorData() []float32 {
	if e.Vector == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(e.Vector), &v)
	return v
}

// SetVector stores the vector as JSON.
func (e *Embedding) SetVector(vec []float32) {
	if len(vec) == 0 {
		e.Vector = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	e.Vector = string(b)
}
