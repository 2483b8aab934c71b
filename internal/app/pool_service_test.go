package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpool/internal/model"
	"ragpool/internal/quota"
)

func TestAddDocumentScopedToUploadingSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, 1, model.TierJive)
	other := env.createSession(t, 1, model.TierJive)

	doc := env.uploadDoc(t, 1, session.ID, "lease.txt", "The pet deposit is 500 and refundable.")
	assert.Equal(t, session.ID, doc.OriginSessionID)
	assert.Equal(t, []uint{session.ID}, doc.ActiveSessions)
	assert.True(t, doc.ActiveIn(session.ID))
	assert.False(t, doc.ActiveIn(other.ID))

	visible, err := env.pool.ListActiveForSession(1, session.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)

	hidden, err := env.pool.ListActiveForSession(1, other.ID)
	require.NoError(t, err)
	assert.Empty(t, hidden)

	chunks, err := env.chunkRepo.ListByDocumentID(doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, doc.ChunkCount)
}

func TestAddDocumentValidation(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, 1, model.TierFree)

	_, err := env.pool.AddDocument(context.Background(), 1, session.ID, UploadInput{
		MimeType: "text/plain",
		Content:  "   ",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.pool.AddDocument(context.Background(), 1, 999, UploadInput{
		MimeType: "text/plain",
		Content:  "hello world",
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Another user's session is invisible.
	_, err = env.pool.AddDocument(context.Background(), 2, session.ID, UploadInput{
		MimeType: "text/plain",
		Content:  "hello world",
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAddDocumentQuotaFailuresPersistNothing(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, 1, model.TierFree)

	tests := []struct {
		name string
		in   UploadInput
		want error
	}{
		{
			name: "unsupported format",
			in:   UploadInput{MimeType: "application/zip", Content: "hello world"},
			want: quota.ErrUnsupportedFormat,
		},
		{
			name: "file too large",
			in:   UploadInput{MimeType: "text/plain", Size: 2 << 20, Content: "hello world"},
			want: quota.ErrFileTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.pool.AddDocument(context.Background(), 1, session.ID, tt.in)
			assert.ErrorIs(t, err, tt.want)

			var count int64
			require.NoError(t, env.db.Model(&model.Document{}).Count(&count).Error)
			assert.Zero(t, count)
			require.NoError(t, env.db.Model(&model.Chunk{}).Count(&count).Error)
			assert.Zero(t, count)
		})
	}
}

func TestAddDocumentSessionLimit(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, 1, model.TierFree) // cap 2 in testPoolLimits

	env.uploadDoc(t, 1, session.ID, "a.txt", "first document text")
	env.uploadDoc(t, 1, session.ID, "b.txt", "second document text")

	_, err := env.pool.AddDocument(context.Background(), 1, session.ID, UploadInput{
		MimeType: "text/plain",
		Content:  "third document text",
	})
	assert.ErrorIs(t, err, quota.ErrSessionLimitExceeded)

	// The same user's other session still has headroom.
	other := env.createSession(t, 1, model.TierFree)
	env.uploadDoc(t, 1, other.ID, "c.txt", "third document text")
}

func TestAddDocumentPoolFull(t *testing.T) {
	env := newTestEnv(t)
	// Spread uploads across sessions so the pool cap of 5 trips before any
	// per-session cap does.
	for i := 0; i < 5; i++ {
		session := env.createSession(t, 1, model.TierFree)
		env.uploadDoc(t, 1, session.ID, "doc.txt", "some document text")
	}
	session := env.createSession(t, 1, model.TierFree)
	_, err := env.pool.AddDocument(context.Background(), 1, session.ID, UploadInput{
		MimeType: "text/plain",
		Content:  "one too many",
	})
	assert.ErrorIs(t, err, quota.ErrPoolFull)
}

func TestAddDocumentPublishesEmbedJobForTopTierOnly(t *testing.T) {
	env := newTestEnv(t)
	jive := env.createSession(t, 1, model.TierJive)
	jigga := env.createSession(t, 1, model.TierJigga)

	env.uploadDoc(t, 1, jive.ID, "a.txt", "keyword only document")
	assert.Empty(t, env.publisher.published())

	doc := env.uploadDoc(t, 1, jigga.ID, "b.txt", "semantic document")
	assert.Equal(t, []uint{doc.ID}, env.publisher.published())
}

func TestActivateInSessionRequiresTopTier(t *testing.T) {
	env := newTestEnv(t)
	source := env.createSession(t, 1, model.TierJive)
	target := env.createSession(t, 1, model.TierJive)
	doc := env.uploadDoc(t, 1, source.ID, "a.txt", "shared document text")

	err := env.pool.ActivateInSession(context.Background(), 1, doc.ID, target.ID)
	assert.ErrorIs(t, err, ErrActivationNotAllowed)

	visible, err := env.pool.ListActiveForSession(1, target.ID)
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestActivateInSessionSharesDocument(t *testing.T) {
	env := newTestEnv(t)
	source := env.createSession(t, 1, model.TierJigga)
	target := env.createSession(t, 1, model.TierJigga)
	doc := env.uploadDoc(t, 1, source.ID, "a.txt", "the pet deposit is refundable")

	require.NoError(t, env.pool.ActivateInSession(context.Background(), 1, doc.ID, target.ID))

	got, err := env.docRepo.GetByID(doc.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{source.ID, target.ID}, got.ActiveSessions)
	assert.Equal(t, source.ID, got.OriginSessionID)
	assert.Positive(t, got.AccessCount)

	// No chunk duplication: sharing is an activation row, not a copy.
	chunks, err := env.chunkRepo.ListByDocumentID(doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, doc.ChunkCount)

	// Repeating the activation is a no-op grant with an access touch.
	require.NoError(t, env.pool.ActivateInSession(context.Background(), 1, doc.ID, target.ID))
	again, err := env.docRepo.GetByID(doc.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{source.ID, target.ID}, again.ActiveSessions)
	assert.Greater(t, again.AccessCount, got.AccessCount)
}

func TestActivateInSessionEnforcesTargetCap(t *testing.T) {
	env := newTestEnv(t)
	source := env.createSession(t, 1, model.TierJigga)
	target := env.createSession(t, 1, model.TierJigga) // cap 4 in testPoolLimits

	for i := 0; i < 4; i++ {
		env.uploadDoc(t, 1, target.ID, "filler.txt", "filler document text")
	}
	doc := env.uploadDoc(t, 1, source.ID, "a.txt", "one more document")

	err := env.pool.ActivateInSession(context.Background(), 1, doc.ID, target.ID)
	assert.ErrorIs(t, err, quota.ErrSessionLimitExceeded)
}

func TestActivateInSessionNotFound(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, 1, model.TierJigga)
	doc := env.uploadDoc(t, 1, session.ID, "a.txt", "a document")

	assert.ErrorIs(t, env.pool.ActivateInSession(context.Background(), 1, 999, session.ID), ErrDocumentNotFound)
	assert.ErrorIs(t, env.pool.ActivateInSession(context.Background(), 1, doc.ID, 999), ErrSessionNotFound)
	assert.ErrorIs(t, env.pool.ActivateInSession(context.Background(), 2, doc.ID, session.ID), ErrDocumentNotFound)
}

func TestDeactivateFromSessionIsIdempotentAndKeepsData(t *testing.T) {
	env := newTestEnv(t)
	source := env.createSession(t, 1, model.TierJigga)
	target := env.createSession(t, 1, model.TierJigga)
	doc := env.uploadDoc(t, 1, source.ID, "a.txt", "the pet deposit is refundable")
	require.NoError(t, env.pool.ActivateInSession(context.Background(), 1, doc.ID, target.ID))

	require.NoError(t, env.pool.DeactivateFromSession(context.Background(), 1, doc.ID, target.ID))
	got, err := env.docRepo.GetByID(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{source.ID}, got.ActiveSessions)

	// Chunks survive deactivation; reactivation needs no re-chunking.
	chunks, err := env.chunkRepo.ListByDocumentID(doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, doc.ChunkCount)

	// Deactivating again, or from a session never granted, is a no-op.
	require.NoError(t, env.pool.DeactivateFromSession(context.Background(), 1, doc.ID, target.ID))

	require.NoError(t, env.pool.ActivateInSession(context.Background(), 1, doc.ID, target.ID))
	reactivated, err := env.docRepo.GetByID(doc.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{source.ID, target.ID}, reactivated.ActiveSessions)
}

func TestDeactivateLastSessionOrphansDocument(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, 1, model.TierJive)
	doc := env.uploadDoc(t, 1, session.ID, "a.txt", "soon to be orphaned")

	require.NoError(t, env.pool.DeactivateFromSession(context.Background(), 1, doc.ID, session.ID))

	got, err := env.docRepo.GetByID(doc.ID)
	require.NoError(t, err)
	assert.True(t, got.Orphaned())

	pool, err := env.pool.ListByUser(1)
	require.NoError(t, err)
	assert.Len(t, pool, 1)
}

func TestListActiveForSessionRejectsForeignSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, 1, model.TierJive)
	env.uploadDoc(t, 1, session.ID, "secret.txt", "confidential lease terms")

	// Another user guessing the session id must not see its documents.
	docs, err := env.pool.ListActiveForSession(2, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, docs)

	docs, err = env.pool.ListActiveForSession(1, session.ID)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestUploadSizeDefaultsToContentLength(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, 1, model.TierJive)
	content := strings.Repeat("word ", 50)
	doc := env.uploadDoc(t, 1, session.ID, "", content)
	assert.Equal(t, int64(len(content)), doc.Size)
	assert.Equal(t, "Untitled", doc.Name)
}
