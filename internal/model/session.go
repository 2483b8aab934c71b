package model

import (
	"strings"
	"time"
)

// Tier is the subscription level gating retrieval mode and quotas.
type Tier string

const (
	TierFree  Tier = "FREE"
	TierJive  Tier = "JIVE"
	TierJigga Tier = "JIGGA"
)

// ParseTier normalizes a tier string; unknown values map to FREE.
func ParseTier(s string) Tier {
	switch Tier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierJive:
		return TierJive
	case TierJigga:
		return TierJigga
	default:
		return TierFree
	}
}

// Session is a conversational session. It holds no references to documents;
// document visibility is looked up through the activation table, never
// pointed to, so the Document/Session ownership graph stays acyclic.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Tier      Tier      `gorm:"size:16;not null" json:"tier"`
	Title     string    `gorm:"size:256;not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
