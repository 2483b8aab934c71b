package ai

import (
	"context"
	"errors"
)

// EmbeddingDim is the fixed sentence-embedding dimensionality every engine
// must produce.
const EmbeddingDim = 384

var (
	// ErrModelUnavailable means the engine could not be loaded at all.
	ErrModelUnavailable = errors.New("embedding model unavailable")
	// ErrInference means a single embed call failed; the engine may recover.
	ErrInference = errors.New("embedding inference failed")
)

// EmbeddingEngine turns texts into fixed-dimension vectors. Init is
// idempotent and loads the model once per process. Both failure modes are
// non-fatal to callers: retrieval degrades to keyword-only scoring.
type EmbeddingEngine interface {
	Init(ctx context.Context) error
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
