package inference

import (
	"context"
	"fmt"
	"sync"

	"evkernel/internal/kernelerr"
	"evkernel/internal/llmruntime"
)

// Mode selects which model slot is active.
type Mode int

const (
	ModeFast Mode = iota
	ModeDeep
)

func (m Mode) String() string {
	if m == ModeDeep {
		return "deep"
	}
	return "fast"
}

// ParseMode parses "fast"/"deep" (case-sensitive, matching config values).
func ParseMode(s string) (Mode, error) {
	switch s {
	case "fast":
		return ModeFast, nil
	case "deep":
		return ModeDeep, nil
	default:
		return 0, kernelerr.New(kernelerr.CategoryLLM, kernelerr.CodeUnknownMode, fmt.Sprintf("unknown llm mode %q", s))
	}
}

// Info describes a loaded or unloaded model.
type Info struct {
	Path          string
	Name          string
	Mode          Mode
	SizeBytes     int64
	ContextLength int32
	VocabSize     int32
	Loaded        bool
}

// Model wraps a runtime backend's weights and context behind the mutex that
// serializes generation requests for that model. Weights and Context are
// either both present or both absent.
type Model struct {
	mu      sync.Mutex
	backend llmruntime.Backend
	weights llmruntime.Weights
	rtctx   llmruntime.Context
	info    Info
}

// newModel constructs an unloaded Model bound to backend.
func newModel(backend llmruntime.Backend) *Model {
	return &Model{backend: backend}
}

// Load loads weights from path and creates a generation context. Loading an
// already-loaded model is an error; unload first.
func (m *Model) Load(ctx context.Context, path string, mode Mode, opts llmruntime.LoadOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.weights != nil {
		return kernelerr.New(kernelerr.CategoryLLM, kernelerr.CodeModelLoadFailed, "model already loaded")
	}

	weights, err := m.backend.LoadWeights(ctx, path, opts)
	if err != nil {
		return kernelerr.Wrap(kernelerr.CategoryLLM, kernelerr.CodeModelLoadFailed, "load weights", err)
	}

	contextLength := opts.ContextLength
	rtctx, err := weights.NewContext(contextLength)
	if err != nil {
		_ = weights.Close()
		return kernelerr.Wrap(kernelerr.CategoryLLM, kernelerr.CodeModelLoadFailed, "create context", err)
	}

	m.weights = weights
	m.rtctx = rtctx
	m.info = Info{
		Path:          path,
		Name:          path,
		Mode:          mode,
		SizeBytes:     weights.SizeBytes(),
		ContextLength: rtctx.ContextLength(),
		VocabSize:     weights.VocabSize(),
		Loaded:        true,
	}
	return nil
}

// Unload releases the context before the weights, mirroring acquisition
// order in reverse.
func (m *Model) Unload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rtctx != nil {
		_ = m.rtctx.Close()
		m.rtctx = nil
	}
	if m.weights != nil {
		_ = m.weights.Close()
		m.weights = nil
	}
	m.info.Loaded = false
}

// IsLoaded reports whether the model currently holds weights and a context.
func (m *Model) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.weights != nil && m.rtctx != nil
}

// InfoSnapshot returns the model's current metadata.
func (m *Model) InfoSnapshot() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}
