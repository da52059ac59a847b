package inference

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"evkernel/internal/kernelerr"
	"evkernel/internal/llmruntime"
	"evkernel/internal/logging"
)

// Request parameterizes one generation call.
type Request struct {
	Prompt         string
	MaxTokens      int32
	Temperature    float32
	TopP           float32
	TopK           int32
	RepeatPenalty  float32
	MirostatMode   int32
	MirostatTau    float32
	MirostatEta    float32
	StopSequences  []string

	// OnToken is invoked for each generated text fragment. Returning false
	// stops generation early, the same way the streaming callback does in
	// the reference implementation. ctx carries the engine's reentrancy
	// marker; a nested GenerateSync call made from inside OnToken must pass
	// ctx through so the engine can detect and refuse it instead of
	// deadlocking against its own single worker.
	OnToken func(ctx context.Context, piece string) bool

	// Cancel, when non-nil, is polled between tokens. Setting it mid-flight
	// stops generation after the in-flight token completes.
	Cancel *atomic.Bool
}

var defaultStopSequences = []string{"</s>", "[/INST]", "<|end|>", "<|endoftext|>", "<|im_end|>"}

func defaultRequest(req Request) Request {
	if req.MaxTokens <= 0 {
		req.MaxTokens = 128
	}
	if req.Temperature == 0 {
		req.Temperature = 0.7
	}
	if req.TopP == 0 {
		req.TopP = 0.9
	}
	if req.TopK == 0 {
		req.TopK = 40
	}
	if req.RepeatPenalty == 0 {
		req.RepeatPenalty = 1.1
	}
	if len(req.StopSequences) == 0 {
		req.StopSequences = defaultStopSequences
	}
	return req
}

// Result is the outcome of a completed generation call.
type Result struct {
	Text           string
	TokensGenerated int
	Duration        time.Duration
}

// Generate runs the full generation algorithm against this model's context:
// tokenize, clear KV cache, evaluate the prompt, then sample one token at a
// time, streaming each decoded piece, checking for stop sequences and
// cooperative cancellation, until max tokens or an end-of-generation marker.
func (m *Model) Generate(ctx context.Context, req Request, logger logging.Logger) (Result, error) {
	logger = logging.OrNop(logger)
	req = defaultRequest(req)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.weights == nil || m.rtctx == nil {
		return Result{}, kernelerr.New(kernelerr.CategoryLLM, kernelerr.CodeModelNotLoaded, "model not loaded")
	}

	start := time.Now()

	// Step 1: tokenize the prompt.
	tokens, err := m.rtctx.Tokenize(req.Prompt)
	if err != nil {
		return Result{}, kernelerr.Wrap(kernelerr.CategoryLLM, kernelerr.CodeGenerationFailed, "tokenize prompt", err)
	}
	if int32(len(tokens)) > m.info.ContextLength-4 {
		return Result{}, kernelerr.New(kernelerr.CategoryLLM, kernelerr.CodeGenerationFailed, "prompt too long for context")
	}

	// Step 2: clear the KV cache for a fresh generation and evaluate the
	// prompt tokens in one batch.
	m.rtctx.ClearKVCache()
	if err := m.rtctx.Decode(tokens, 0); err != nil {
		return Result{}, kernelerr.Wrap(kernelerr.CategoryLLM, kernelerr.CodeGenerationFailed, "evaluate prompt", err)
	}

	// Step 3: build the sampler chain for this request.
	sampler := m.rtctx.NewSamplerChain(llmruntime.SamplerParams{
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		RepeatPenalty: req.RepeatPenalty,
		MirostatMode:  req.MirostatMode,
		MirostatTau:   req.MirostatTau,
		MirostatEta:   req.MirostatEta,
	})
	defer sampler.Close()

	var output strings.Builder
	generated := 0
	pos := int32(len(tokens))

	// Step 4-6: sample, decode to text, check stop/cancel, decode next.
	for generated < int(req.MaxTokens) {
		if req.Cancel != nil && req.Cancel.Load() {
			logger.Debug("generation cancelled after %d tokens", generated)
			break
		}

		next := m.rtctx.SampleNext(sampler)
		if m.rtctx.IsEndOfGeneration(next) {
			break
		}

		piece, err := m.rtctx.TokenToPiece(next)
		if err != nil {
			logger.Warn("failed to decode token %d: %v", next, err)
			continue
		}

		output.WriteString(piece)
		generated++

		if req.OnToken != nil && !req.OnToken(ctx, piece) {
			logger.Debug("streaming stopped by callback after %d tokens", generated)
			break
		}

		if stopped, trimmed := trimStopSequence(output.String(), req.StopSequences); stopped {
			output.Reset()
			output.WriteString(trimmed)
			break
		}

		if err := m.rtctx.Decode([]int32{next}, pos); err != nil {
			return Result{}, kernelerr.Wrap(kernelerr.CategoryLLM, kernelerr.CodeGenerationFailed, "evaluate generated token", err)
		}
		pos++
	}

	return Result{
		Text:            strings.TrimSpace(output.String()),
		TokensGenerated: generated,
		Duration:        time.Since(start),
	}, nil
}

func trimStopSequence(output string, stops []string) (bool, string) {
	for _, stop := range stops {
		if strings.HasSuffix(output, stop) {
			return true, output[:len(output)-len(stop)]
		}
	}
	return false, output
}
