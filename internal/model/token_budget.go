package model

// RetrievalMode selects how chunks are ranked for a session.
type RetrievalMode string

const (
	ModeNone     RetrievalMode = "none"
	ModeBasic    RetrievalMode = "basic"
	ModeSemantic RetrievalMode = "semantic"
)

// TokenBudget allocates prompt capacity across context categories for one
// tier. RAG is the lowest-priority slot: when total usage would overflow,
// the RAG section is trimmed before anything else.
type TokenBudget struct {
	SystemPrompt int `json:"system_prompt"`
	State        int `json:"state"`
	SessionDoc   int `json:"session_doc"`
	RAG          int `json:"rag"`
	Volatile     int `json:"volatile"`
	Response     int `json:"response"`
	Total        int `json:"total"`
}

var tierBudgets = map[Tier]TokenBudget{
	TierFree: {
		SystemPrompt: 700,
		State:        300,
		SessionDoc:   500,
		RAG:          0,
		Volatile:     500,
		Response:     1000,
		Total:        3000,
	},
	TierJive: {
		SystemPrompt: 700,
		State:        500,
		SessionDoc:   1000,
		RAG:          2000,
		Volatile:     800,
		Response:     1000,
		Total:        6000,
	},
	TierJigga: {
		SystemPrompt: 700,
		State:        800,
		SessionDoc:   1500,
		RAG:          4000,
		Volatile:     1000,
		Response:     2000,
		Total:        10000,
	},
}

// BudgetForTier returns the constant token budget for a tier.
func BudgetForTier(t Tier) TokenBudget {
	if b, ok := tierBudgets[t]; ok {
		return b
	}
	return tierBudgets[TierFree]
}

// ModeForTier returns the retrieval mode a tier is entitled to.
func ModeForTier(t Tier) RetrievalMode {
	switch t {
	case TierJive:
		return ModeBasic
	case TierJigga:
		return ModeSemantic
	default:
		return ModeNone
	}
}
