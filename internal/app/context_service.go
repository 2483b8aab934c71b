package app

import (
	"context"
	"log"

	"ragpool/internal/model"
	"ragpool/internal/repository"
)

// ContextPolicy is what a tier entitles a session to: a retrieval mode and a
// token budget. It is consulted at every entry point instead of scattering
// tier conditionals.
type ContextPolicy struct {
	Mode   model.RetrievalMode
	Budget model.TokenBudget
}

// PolicyForTier resolves the tier lookup table.
func PolicyForTier(t model.Tier) ContextPolicy {
	return ContextPolicy{
		Mode:   model.ModeForTier(t),
		Budget: model.BudgetForTier(t),
	}
}

// ContextCache caches assembled RAG sections, keyed by session and query.
type ContextCache interface {
	Get(ctx context.Context, sessionID uint, query string) (text string, tokens int, ok bool, err error)
	Set(ctx context.Context, sessionID uint, query, text string, tokens int) error
	Invalidate(ctx context.Context, sessionID uint) error
}

// PromptUsage is the token spend the prompt-assembly collaborator has
// already committed to the other context categories.
type PromptUsage struct {
	SystemPrompt int `json:"system_prompt"`
	State        int `json:"state"`
	SessionDoc   int `json:"session_doc"`
	Volatile     int `json:"volatile"`
	Response     int `json:"response"`
}

func (u PromptUsage) sum() int {
	return u.SystemPrompt + u.State + u.SessionDoc + u.Volatile + u.Response
}

// RAGSection is the retrieval slot handed back to the prompt assembler.
type RAGSection struct {
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

// ContextService maps a session's tier to mode and budget and orchestrates
// the retrieval engine into the outbound prompt's RAG slot.
type ContextService struct {
	sessionRepo *repository.SessionRepository
	retrieval   *RetrievalService
	cache       ContextCache // optional
	topK        int
}

func NewContextService(sessionRepo *repository.SessionRepository, retrieval *RetrievalService, cache ContextCache, topK int) *ContextService {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &ContextService{
		sessionRepo: sessionRepo,
		retrieval:   retrieval,
		cache:       cache,
		topK:        topK,
	}
}

// AssembleContext returns the RAG section for the query, or nil when the
// tier has no retrieval, the budget leaves no room, or nothing qualifies.
// The RAG slot is the first thing trimmed when total prompt usage would
// exceed the tier's overall budget.
func (s *ContextService) AssembleContext(ctx context.Context, userID, sessionID uint, query string, usage PromptUsage) (*RAGSection, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	policy := PolicyForTier(session.Tier)
	if policy.Mode == model.ModeNone || policy.Budget.RAG <= 0 {
		return nil, nil
	}
	maxTokens := policy.Budget.RAG
	if headroom := policy.Budget.Total - usage.sum(); headroom < maxTokens {
		maxTokens = headroom
	}
	if maxTokens <= 0 {
		return nil, nil
	}

	if s.cache != nil {
		text, tokens, ok, err := s.cache.Get(ctx, sessionID, query)
		if err != nil {
			log.Printf("context cache get failed: %v", err)
		} else if ok && tokens <= maxTokens {
			return &RAGSection{Text: text, Tokens: tokens}, nil
		}
	}

	text, tokens, ok := s.retrieval.ContextForQuery(ctx, sessionID, query, policy.Mode, RetrievalOptions{
		TopK:      s.topK,
		MaxTokens: maxTokens,
	})
	if !ok {
		return nil, nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, sessionID, query, text, tokens); err != nil {
			log.Printf("context cache set failed: %v", err)
		}
	}
	return &RAGSection{Text: text, Tokens: tokens}, nil
}
