// Package simrt is a deterministic, weight-free llmruntime.Backend used for
// local testing and as the default backend when no production binding is
// registered. It performs whitespace tokenization and samples the next
// token from a tiny synthetic vocabulary built from the prompt itself, so
// the inference engine's control flow (streaming, cancellation, stop
// sequences) is exercised without requiring a real model file on disk.
package simrt

import (
	"context"
	"fmt"
	"strings"

	"evkernel/internal/llmruntime"
)

const eogToken int32 = -1

// Backend is the simrt implementation of llmruntime.Backend.
type Backend struct{}

// New returns a ready-to-use simulated backend.
func New() *Backend { return &Backend{} }

// Init is a no-op: the simulated backend has no process-wide native state
// to set up.
func (b *Backend) Init(_ context.Context) error { return nil }

// LoadWeights "loads" a model by recording its path; no file is read.
func (b *Backend) LoadWeights(_ context.Context, path string, opts llmruntime.LoadOptions) (llmruntime.Weights, error) {
	return &weights{path: path, opts: opts}, nil
}

type weights struct {
	path string
	opts llmruntime.LoadOptions
}

func (w *weights) VocabSize() int32 { return 1 << 16 }

func (w *weights) SizeBytes() int64 { return 0 }

func (w *weights) NewContext(contextLength int32) (llmruntime.Context, error) {
	if contextLength <= 0 {
		contextLength = 2048
	}
	return &simContext{contextLength: contextLength, vocab: newVocab()}, nil
}

func (w *weights) Close() error { return nil }

// vocab maps token ids to words and back, growing as new words are seen.
// Token id 0 is reserved for unknown/padding text.
type vocab struct {
	words []string
	ids   map[string]int32
}

func newVocab() *vocab {
	return &vocab{words: []string{""}, ids: map[string]int32{"": 0}}
}

func (v *vocab) idFor(word string) int32 {
	if id, ok := v.ids[word]; ok {
		return id
	}
	id := int32(len(v.words))
	v.words = append(v.words, word)
	v.ids[word] = id
	return id
}

func (v *vocab) wordFor(id int32) string {
	if id < 0 || int(id) >= len(v.words) {
		return ""
	}
	return v.words[id]
}

type simContext struct {
	contextLength int32
	vocab         *vocab
	history       []int32
	promptLen     int
	nextEcho      int
}

func (c *simContext) Tokenize(prompt string) ([]int32, error) {
	fields := strings.Fields(prompt)
	tokens := make([]int32, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, c.vocab.idFor(f))
	}
	return tokens, nil
}

func (c *simContext) ContextLength() int32 { return c.contextLength }

func (c *simContext) ClearKVCache() {
	c.history = nil
	c.promptLen = 0
	c.nextEcho = 0
}

func (c *simContext) Decode(tokens []int32, startPos int32) error {
	if startPos == 0 {
		c.promptLen = len(tokens)
	}
	c.history = append(c.history, tokens...)
	return nil
}

func (c *simContext) NewSamplerChain(params llmruntime.SamplerParams) llmruntime.Sampler {
	return &simSampler{params: params}
}

// SampleNext deterministically walks the prompt's own tokens back out, then
// emits the end-of-generation marker. This is enough to exercise streaming,
// stop-sequence matching, and cancellation without any real model.
func (c *simContext) SampleNext(_ llmruntime.Sampler) int32 {
	if c.nextEcho >= c.promptLen {
		return eogToken
	}
	tok := c.history[c.nextEcho]
	c.nextEcho++
	return tok
}

func (c *simContext) IsEndOfGeneration(token int32) bool { return token == eogToken }

func (c *simContext) TokenToPiece(token int32) (string, error) {
	if token == eogToken {
		return "", fmt.Errorf("simrt: cannot decode end-of-generation token")
	}
	word := c.vocab.wordFor(token)
	if word == "" {
		return "", nil
	}
	return word + " ", nil
}

func (c *simContext) Close() error { return nil }

type simSampler struct {
	params llmruntime.SamplerParams
}

func (s *simSampler) Close() {}
