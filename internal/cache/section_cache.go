package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// SectionCache keeps assembled RAG sections in Redis, keyed by session, a
// per-session generation counter, and a hash of the query. Invalidation
// bumps the generation, so stale entries simply fall out of reach and
// expire; nothing is scanned or deleted eagerly.
type SectionCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

type cachedSection struct {
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

func NewSectionCache(client *redisv9.Client, ttl time.Duration) *SectionCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &SectionCache{client: client, ttl: ttl}
}

func (c *SectionCache) Get(ctx context.Context, sessionID uint, query string) (string, int, bool, error) {
	key, err := c.sectionKey(ctx, sessionID, query)
	if err != nil {
		return "", 0, false, err
	}
	raw, err := c.client.Get(ctx, key).Result()
	if err == redisv9.Nil {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("redis get section failed: %w", err)
	}
	var section cachedSection
	if err := json.Unmarshal([]byte(raw), &section); err != nil {
		return "", 0, false, fmt.Errorf("unmarshal cached section failed: %w", err)
	}
	return section.Text, section.Tokens, true, nil
}

func (c *SectionCache) Set(ctx context.Context, sessionID uint, query, text string, tokens int) error {
	key, err := c.sectionKey(ctx, sessionID, query)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(cachedSection{Text: text, Tokens: tokens})
	if err != nil {
		return fmt.Errorf("marshal section cache failed: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set section failed: %w", err)
	}
	return nil
}

// Invalidate bumps the session's generation so every cached section for it
// becomes unreachable.
func (c *SectionCache) Invalidate(ctx context.Context, sessionID uint) error {
	if err := c.client.Incr(ctx, c.generationKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis bump section generation failed: %w", err)
	}
	return nil
}

func (c *SectionCache) sectionKey(ctx context.Context, sessionID uint, query string) (string, error) {
	gen, err := c.client.Get(ctx, c.generationKey(sessionID)).Int64()
	if err != nil && err != redisv9.Nil {
		return "", fmt.Errorf("redis get section generation failed: %w", err)
	}
	sum := blake2b.Sum256([]byte(query))
	return fmt.Sprintf("rag:section:%d:%d:%x", sessionID, gen, sum[:16]), nil
}

func (c *SectionCache) generationKey(sessionID uint) string {
	return fmt.Sprintf("rag:section:gen:%d", sessionID)
}
