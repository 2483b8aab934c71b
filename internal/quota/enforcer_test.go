package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ragpool/internal/model"
)

func testLimits() Limits {
	return Limits{
		MaxDocumentBytes: 1 << 20,
		MaxPoolDocuments: 10,
		MaxPoolBytes:     5 << 20,
		SessionDocLimits: map[model.Tier]int64{
			model.TierFree:  3,
			model.TierJive:  5,
			model.TierJigga: 10,
		},
		AllowedMimeTypes: map[string]bool{
			"text/plain":      true,
			"application/pdf": true,
		},
	}
}

func TestCheckUpload(t *testing.T) {
	limits := testLimits()

	tests := []struct {
		name     string
		stats    PoolStats
		tier     model.Tier
		fileSize int64
		mimeType string
		want     error
	}{
		{
			name:     "allowed",
			stats:    PoolStats{DocumentCount: 2, TotalBytes: 1 << 20, SessionDocCount: 1},
			tier:     model.TierFree,
			fileSize: 1024,
			mimeType: "text/plain",
			want:     nil,
		},
		{
			name:     "unsupported format",
			stats:    PoolStats{},
			tier:     model.TierJigga,
			fileSize: 1024,
			mimeType: "image/png",
			want:     ErrUnsupportedFormat,
		},
		{
			name:     "file too large",
			stats:    PoolStats{},
			tier:     model.TierJigga,
			fileSize: 2 << 20,
			mimeType: "text/plain",
			want:     ErrFileTooLarge,
		},
		{
			name:     "pool full",
			stats:    PoolStats{DocumentCount: 10},
			tier:     model.TierJigga,
			fileSize: 1024,
			mimeType: "text/plain",
			want:     ErrPoolFull,
		},
		{
			name:     "storage quota exceeded",
			stats:    PoolStats{DocumentCount: 4, TotalBytes: 5<<20 - 512},
			tier:     model.TierJigga,
			fileSize: 1024,
			mimeType: "text/plain",
			want:     ErrStorageQuotaExceeded,
		},
		{
			name:     "session limit exceeded",
			stats:    PoolStats{DocumentCount: 4, SessionDocCount: 3},
			tier:     model.TierFree,
			fileSize: 1024,
			mimeType: "text/plain",
			want:     ErrSessionLimitExceeded,
		},
		{
			name:     "higher tier raises session limit",
			stats:    PoolStats{DocumentCount: 4, SessionDocCount: 3},
			tier:     model.TierJive,
			fileSize: 1024,
			mimeType: "text/plain",
			want:     nil,
		},
		{
			name:     "format checked before size",
			stats:    PoolStats{DocumentCount: 10},
			tier:     model.TierFree,
			fileSize: 2 << 20,
			mimeType: "image/png",
			want:     ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := limits.CheckUpload(tt.stats, tt.tier, tt.fileSize, tt.mimeType)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCheckActivation(t *testing.T) {
	limits := testLimits()

	assert.NoError(t, limits.CheckActivation(2, model.TierFree))
	assert.ErrorIs(t, limits.CheckActivation(3, model.TierFree), ErrSessionLimitExceeded)
	assert.NoError(t, limits.CheckActivation(3, model.TierJigga))
}

func TestSessionDocLimitUnknownTierFallsBack(t *testing.T) {
	limits := testLimits()
	assert.Equal(t, int64(3), limits.SessionDocLimit(model.Tier("unknown")))
}

func TestZeroLimitsDisableChecks(t *testing.T) {
	var limits Limits
	err := limits.CheckUpload(PoolStats{DocumentCount: 1000, TotalBytes: 1 << 40, SessionDocCount: 1000},
		model.TierFree, 1<<30, "application/x-anything")
	assert.NoError(t, err)
}
