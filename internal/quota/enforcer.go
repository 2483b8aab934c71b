// Package quota validates pool mutations against aggregate stats. All checks
// are pure: callers gather the stats, the enforcer only decides. Nothing here
// mutates state, so the pool manager can re-run the same checks at commit
// time after any suspension point.
package quota

import (
	"errors"

	"ragpool/internal/model"
)

var (
	ErrPoolFull             = errors.New("document pool is full")
	ErrSessionLimitExceeded = errors.New("session document limit exceeded")
	ErrStorageQuotaExceeded = errors.New("storage quota exceeded")
	ErrFileTooLarge         = errors.New("file exceeds maximum document size")
	ErrUnsupportedFormat    = errors.New("unsupported document format")
)

// PoolStats are the aggregates a check runs against.
type PoolStats struct {
	DocumentCount   int64 // documents in the user's pool, all sessions
	TotalBytes      int64 // sum of document sizes in the pool
	SessionDocCount int64 // documents active in the target session
}

// Limits holds the configured caps.
type Limits struct {
	MaxDocumentBytes int64
	MaxPoolDocuments int64
	MaxPoolBytes     int64
	SessionDocLimits map[model.Tier]int64
	AllowedMimeTypes map[string]bool
}

// SessionDocLimit returns the per-session active-document cap for a tier.
func (l Limits) SessionDocLimit(tier model.Tier) int64 {
	if n, ok := l.SessionDocLimits[tier]; ok {
		return n
	}
	return l.SessionDocLimits[model.TierFree]
}

// CheckUpload decides whether a new document of fileSize bytes and the given
// mime type may enter the pool and become active in the target session.
// Returns nil when allowed, otherwise the specific limit error.
func (l Limits) CheckUpload(stats PoolStats, tier model.Tier, fileSize int64, mimeType string) error {
	if len(l.AllowedMimeTypes) > 0 && !l.AllowedMimeTypes[mimeType] {
		return ErrUnsupportedFormat
	}
	if l.MaxDocumentBytes > 0 && fileSize > l.MaxDocumentBytes {
		return ErrFileTooLarge
	}
	if l.MaxPoolDocuments > 0 && stats.DocumentCount >= l.MaxPoolDocuments {
		return ErrPoolFull
	}
	if l.MaxPoolBytes > 0 && stats.TotalBytes+fileSize > l.MaxPoolBytes {
		return ErrStorageQuotaExceeded
	}
	if limit := l.SessionDocLimit(tier); limit > 0 && stats.SessionDocCount >= limit {
		return ErrSessionLimitExceeded
	}
	return nil
}

// CheckActivation decides whether one more document may become active in a
// session that already has activeCount of them.
func (l Limits) CheckActivation(activeCount int64, tier model.Tier) error {
	if limit := l.SessionDocLimit(tier); limit > 0 && activeCount >= limit {
		return ErrSessionLimitExceeded
	}
	return nil
}
