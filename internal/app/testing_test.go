package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ragpool/internal/index"
	"ragpool/internal/model"
	"ragpool/internal/quota"
	"ragpool/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Session{},
		&model.Document{},
		&model.DocumentActivation{},
		&model.Chunk{},
		&model.Embedding{},
		&model.DerivedFact{},
	))
	return db
}

func testPoolLimits() quota.Limits {
	return quota.Limits{
		MaxDocumentBytes: 1 << 20,
		MaxPoolDocuments: 5,
		MaxPoolBytes:     2 << 20,
		SessionDocLimits: map[model.Tier]int64{
			model.TierFree:  2,
			model.TierJive:  3,
			model.TierJigga: 4,
		},
		AllowedMimeTypes: map[string]bool{"text/plain": true},
	}
}

// fakeEngine serves canned vectors; embedFn overrides the default behavior.
type fakeEngine struct {
	embedFn func(ctx context.Context, texts []string) ([][]float32, error)
	calls   int
}

func (f *fakeEngine) Init(ctx context.Context) error { return nil }

func (f *fakeEngine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.embedFn != nil {
		return f.embedFn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// fakePublisher records published embed jobs.
type fakePublisher struct {
	mu   sync.Mutex
	docs []uint
}

func (f *fakePublisher) PublishDocument(ctx context.Context, documentID, userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, documentID)
	return nil
}

func (f *fakePublisher) published() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint(nil), f.docs...)
}

// memCache is an in-memory ContextCache with per-session invalidation.
type memCache struct {
	mu      sync.Mutex
	entries map[string]ragEntry
	sets    int
	hits    int
}

type ragEntry struct {
	text   string
	tokens int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]ragEntry)}
}

func (c *memCache) key(sessionID uint, query string) string {
	return fmt.Sprintf("%d:%s", sessionID, query)
}

func (c *memCache) Get(ctx context.Context, sessionID uint, query string) (string, int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[c.key(sessionID, query)]
	if ok {
		c.hits++
	}
	return e.text, e.tokens, ok, nil
}

func (c *memCache) Set(ctx context.Context, sessionID uint, query, text string, tokens int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[c.key(sessionID, query)] = ragEntry{text: text, tokens: tokens}
	return nil
}

func (c *memCache) Invalidate(ctx context.Context, sessionID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := fmt.Sprintf("%d:", sessionID)
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
	return nil
}

// testEnv wires all services over a fresh in-memory database.
type testEnv struct {
	db        *gorm.DB
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	embRepo   *repository.EmbeddingRepository
	sessRepo  *repository.SessionRepository
	factRepo  *repository.FactRepository
	idx       *index.Manager
	engine    *fakeEngine
	publisher *fakePublisher
	cache     *memCache
	pool      *PoolService
	retrieval *RetrievalService
	ctxService *ContextService
	deletion  *DeletionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	env := &testEnv{
		db:        db,
		docRepo:   repository.NewDocumentRepository(db),
		chunkRepo: repository.NewChunkRepository(db),
		embRepo:   repository.NewEmbeddingRepository(db),
		sessRepo:  repository.NewSessionRepository(db),
		factRepo:  repository.NewFactRepository(db),
		idx:       index.NewManager(),
		engine:    &fakeEngine{},
		publisher: &fakePublisher{},
		cache:     newMemCache(),
	}
	env.pool = NewPoolService(env.docRepo, env.chunkRepo, env.sessRepo, env.idx, testPoolLimits(), env.publisher, env.cache)
	env.retrieval = NewRetrievalService(env.docRepo, env.chunkRepo, env.embRepo, env.idx, env.engine, 5*time.Second)
	env.ctxService = NewContextService(env.sessRepo, env.retrieval, env.cache, 0)
	env.deletion = NewDeletionService(env.docRepo, env.sessRepo, env.factRepo, env.idx, env.cache)
	return env
}

func (env *testEnv) createSession(t *testing.T, userID uint, tier model.Tier) *model.Session {
	t.Helper()
	session := &model.Session{UserID: userID, Tier: tier, Title: "test session"}
	require.NoError(t, env.sessRepo.Create(session))
	return session
}

func (env *testEnv) uploadDoc(t *testing.T, userID, sessionID uint, name, content string) *model.Document {
	t.Helper()
	doc, err := env.pool.AddDocument(context.Background(), userID, sessionID, UploadInput{
		Filename: name,
		MimeType: "text/plain",
		Content:  content,
	})
	require.NoError(t, err)
	return doc
}
