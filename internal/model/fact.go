package model

import "time"

// DerivedFact is a piece of knowledge the assistant extracted while a
// document was in context. DocumentID is a soft reference, never an
// ownership edge: deleting the document flags the fact instead of
// cascading into it.
type DerivedFact struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	DocumentID    uint      `gorm:"index" json:"document_id"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	SourceRemoved bool      `gorm:"not null;default:false" json:"source_removed"`
	CreatedAt     time.Time `json:"created_at"`
}
