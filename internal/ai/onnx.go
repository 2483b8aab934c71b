package ai

import (
	"context"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const maxSeqLen = 256

// LocalEmbedder runs a MiniLM-class sentence-embedding model through ONNX
// Runtime: WordPiece tokenization, transformer inference, mask-aware mean
// pooling, L2 normalization. Model inference is the one perceptibly slow
// operation in the system, so callers run it off the query path.
type LocalEmbedder struct {
	mu sync.Mutex

	modelPath string
	vocabPath string
	libPath   string

	session   *ort.DynamicAdvancedSession
	tokenizer *wordpiece
	inited    bool
}

// NewLocalEmbedder creates an embedder that lazily loads the ONNX model and
// vocabulary on first use.
func NewLocalEmbedder(modelPath, vocabPath, onnxLibPath string) *LocalEmbedder {
	return &LocalEmbedder{
		modelPath: modelPath,
		vocabPath: vocabPath,
		libPath:   onnxLibPath,
	}
}

// Init loads the ONNX shared library, environment, vocabulary, and session.
// Idempotent; all failures here are load failures.
func (e *LocalEmbedder) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initLocked()
}

func (e *LocalEmbedder) initLocked() error {
	if e.inited {
		return nil
	}

	if e.libPath != "" {
		ort.SetSharedLibraryPath(e.libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("%w: onnx init environment: %v", ErrModelUnavailable, err)
		}
	}

	tokenizer, err := loadWordpiece(e.vocabPath)
	if err != nil {
		return fmt.Errorf("%w: load vocab: %v", ErrModelUnavailable, err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		e.modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return fmt.Errorf("%w: onnx new session: %v", ErrModelUnavailable, err)
	}

	e.tokenizer = tokenizer
	e.session = session
	e.inited = true
	return nil
}

// Embed returns one normalized vector per input text. The session is
// serialized under the mutex; batches go through one text at a time since
// sequence lengths differ.
func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.initLocked(); err != nil {
		return nil, err
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInference, err)
		}
		vec, err := e.embedOne(text)
		if err != nil {
			return nil, err
		}
		result[i] = vec
	}
	return result, nil
}

func (e *LocalEmbedder) embedOne(text string) ([]float32, error) {
	ids := e.tokenizer.Encode(text, maxSeqLen)
	seqLen := int64(len(ids))

	mask := make([]int64, seqLen)
	types := make([]int64, seqLen)
	for i := range mask {
		mask[i] = 1
	}

	shape := ort.NewShape(1, seqLen)
	inputIDs, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: input tensor: %v", ErrInference, err)
	}
	defer inputIDs.Destroy()
	attention, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("%w: mask tensor: %v", ErrInference, err)
	}
	defer attention.Destroy()
	tokenTypes, err := ort.NewTensor(shape, types)
	if err != nil {
		return nil, fmt.Errorf("%w: type tensor: %v", ErrInference, err)
	}
	defer tokenTypes.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputIDs, attention, tokenTypes}, outputs); err != nil {
		return nil, fmt.Errorf("%w: onnx run: %v", ErrInference, err)
	}
	defer outputs[0].Destroy()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected output tensor type", ErrInference)
	}
	data := hidden.GetData()
	if int64(len(data)) != seqLen*EmbeddingDim {
		return nil, fmt.Errorf("%w: output size %d for seq %d dim %d", ErrInference, len(data), seqLen, EmbeddingDim)
	}

	return meanPool(data, int(seqLen)), nil
}

// meanPool averages token vectors and L2-normalizes the result. Every
// position carries mask 1 here since padding is never added.
func meanPool(hidden []float32, seqLen int) []float32 {
	vec := make([]float32, EmbeddingDim)
	for t := 0; t < seqLen; t++ {
		row := hidden[t*EmbeddingDim : (t+1)*EmbeddingDim]
		for d, v := range row {
			vec[d] += v
		}
	}
	var norm float64
	for d := range vec {
		vec[d] /= float32(seqLen)
		norm += float64(vec[d]) * float64(vec[d])
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for d := range vec {
			vec[d] *= inv
		}
	}
	return vec
}
