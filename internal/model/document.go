package model

import "time"

// Document is one entry in a user's document pool. Visibility is governed by
// DocumentActivation rows: a session may read the document only while an
// activation row for it exists. OriginSessionID records where the document
// was uploaded and never changes; it grants nothing by itself.
type Document struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	OriginSessionID uint      `gorm:"not null" json:"origin_session_id"`
	Name            string    `gorm:"size:256;not null" json:"name"`
	MimeType        string    `gorm:"size:128;not null" json:"mime_type"`
	Size            int64     `gorm:"not null" json:"size"`
	Content         string    `gorm:"type:text" json:"-"`
	ChunkCount      int       `gorm:"not null" json:"chunk_count"`
	AccessCount     int64     `gorm:"not null;default:0" json:"access_count"`
	LastAccessedAt  time.Time `json:"last_accessed_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// ActiveSessions is loaded from the activation table by the repository;
	// it is not a column.
	ActiveSessions []uint `gorm:"-" json:"active_sessions"`
}

// ActiveIn reports whether sessionID currently has read access.
func (d *Document) ActiveIn(sessionID uint) bool {
	for _, id := range d.ActiveSessions {
		if id == sessionID {
			return true
		}
	}
	return false
}

// Orphaned reports whether no session can see the document anymore.
// Orphaned documents are retrievable by nobody but are never auto-deleted.
func (d *Document) Orphaned() bool {
	return len(d.ActiveSessions) == 0
}

// DocumentActivation grants one session read access to one document.
type DocumentActivation struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DocumentID uint      `gorm:"not null;uniqueIndex:idx_doc_session" json:"document_id"`
	SessionID  uint      `gorm:"not null;uniqueIndex:idx_doc_session;index" json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
}
