// Package llmruntime defines the opaque contract an LLM runtime must
// satisfy to back the kernel's inference engine. It mirrors the surface a
// llama.cpp binding exposes (weights, a context owning the KV cache, a
// sampler chain, batched decode) without committing to any particular
// implementation; production builds wire a real binding in here, and
// internal/llmruntime/simrt supplies a deterministic stand-in for tests.
package llmruntime

import "context"

// SamplerParams configures the sampler chain construction for one
// generation call.
type SamplerParams struct {
	Temperature    float32
	TopP           float32
	TopK           int32
	RepeatPenalty  float32
	MirostatMode   int32 // 0=disabled, 1=mirostat, 2=mirostat v2
	MirostatTau    float32
	MirostatEta    float32
}

// Backend loads model weights from disk. A process typically holds one
// Backend instance and loads multiple Weights from it over its lifetime.
type Backend interface {
	// Init performs process-wide backend setup (e.g. llama.cpp's
	// llama_backend_init). Callers must guard this with a sync.Once: the
	// underlying native library expects it exactly once per process, even
	// across repeated Manager/Engine re-initialization.
	Init(ctx context.Context) error
	LoadWeights(ctx context.Context, path string, opts LoadOptions) (Weights, error)
}

// LoadOptions mirrors the llama.cpp model/context parameters a config
// section would otherwise supply directly.
type LoadOptions struct {
	UseGPU        bool
	GPULayers     int32
	ContextLength int32
	BatchSize     int32
	Threads       int32
}

// Weights is loaded model weights, independent of any generation context.
type Weights interface {
	// VocabSize returns the size of the model's token vocabulary.
	VocabSize() int32
	// SizeBytes returns the on-disk size of the weights file.
	SizeBytes() int64
	// NewContext allocates a generation context (and its KV cache) bound to
	// these weights.
	NewContext(contextLength int32) (Context, error)
	// Close releases the weights. Any outstanding Context must be closed
	// first.
	Close() error
}

// Context owns a KV cache and token vocabulary operations for one model.
// It is not safe for concurrent use by more than one generation at a time;
// callers serialize access (the inference engine does this with a mutex).
type Context interface {
	// Tokenize converts prompt text into token ids.
	Tokenize(prompt string) ([]int32, error)
	// ContextLength reports the maximum number of tokens this context holds.
	ContextLength() int32
	// ClearKVCache resets the context to a fresh, empty state.
	ClearKVCache()
	// Decode evaluates the given tokens at the given starting position,
	// updating the KV cache and model logits.
	Decode(tokens []int32, startPos int32) error
	// NewSamplerChain builds a sampler chain for one generation call.
	NewSamplerChain(params SamplerParams) Sampler
	// SampleNext draws the next token id from current logits.
	SampleNext(sampler Sampler) int32
	// IsEndOfGeneration reports whether token is an end-of-generation
	// marker for this model.
	IsEndOfGeneration(token int32) bool
	// TokenToPiece decodes a single token id to its text fragment.
	TokenToPiece(token int32) (string, error)
	// Close releases the context and its KV cache.
	Close() error
}

// Sampler is an opaque, stateful sampler chain instance for one generation.
type Sampler interface {
	// Close releases sampler-internal state.
	Close()
}
