package inference

import (
	"context"
	"path/filepath"
	"sync"

	"evkernel/internal/kernelerr"
	"evkernel/internal/llmruntime"
	"evkernel/internal/logging"
)

// ManagerConfig configures model file locations and load parameters.
type ManagerConfig struct {
	ModelBasePath string
	FastModelFile string
	DeepModelFile string
	InitialMode   Mode
	LoadOptions   llmruntime.LoadOptions
}

// Manager holds two model slots, Fast and Deep, and tracks which is active.
// It never evicts a loaded slot on mode switch; switching to an
// already-loaded mode is a cheap pointer flip.
type Manager struct {
	mu      sync.RWMutex
	cfg     ManagerConfig
	backend llmruntime.Backend
	logger  logging.Logger
	models  map[Mode]*Model
	active  Mode

	// backendInitOnce guards Backend.Init across this Manager's lifetime,
	// mirroring the reference engine's std::call_once around
	// llama_backend_init: the underlying native library's setup must run
	// exactly once even if the Manager is shut down and re-initialized.
	backendInitOnce sync.Once
	backendInitErr  error
}

// NewManager constructs a Manager bound to backend. Call Initialize before
// use.
func NewManager(backend llmruntime.Backend, logger logging.Logger) *Manager {
	return &Manager{
		backend: backend,
		logger:  logging.OrNop(logger),
		models: map[Mode]*Model{
			ModeFast: newModel(backend),
			ModeDeep: newModel(backend),
		},
	}
}

// Initialize records configuration and loads the initial active mode's
// model.
func (mgr *Manager) Initialize(ctx context.Context, cfg ManagerConfig) error {
	mgr.backendInitOnce.Do(func() { mgr.backendInitErr = mgr.backend.Init(ctx) })
	if mgr.backendInitErr != nil {
		return kernelerr.Wrap(kernelerr.CategoryLLM, kernelerr.CodeModelLoadFailed, "initialize backend", mgr.backendInitErr)
	}

	mgr.mu.Lock()
	mgr.cfg = cfg
	mgr.active = cfg.InitialMode
	mgr.mu.Unlock()

	return mgr.LoadMode(ctx, cfg.InitialMode)
}

func (mgr *Manager) modelPath(mode Mode) string {
	filename := mgr.cfg.FastModelFile
	if mode == ModeDeep {
		filename = mgr.cfg.DeepModelFile
	}
	return filepath.Join(mgr.cfg.ModelBasePath, filename)
}

// LoadMode loads the model for mode into its slot if not already loaded.
func (mgr *Manager) LoadMode(ctx context.Context, mode Mode) error {
	mgr.mu.RLock()
	model := mgr.models[mode]
	path := mgr.modelPath(mode)
	opts := mgr.cfg.LoadOptions
	mgr.mu.RUnlock()

	if model.IsLoaded() {
		return nil
	}

	if err := model.Load(ctx, path, mode, opts); err != nil {
		return err
	}
	mgr.logger.Info("model manager: %s mode loaded", mode)
	return nil
}

// SwitchMode changes the active mode, lazily loading it if necessary. It
// never unloads the previously active model.
func (mgr *Manager) SwitchMode(ctx context.Context, mode Mode) error {
	mgr.mu.RLock()
	current := mgr.active
	model := mgr.models[mode]
	mgr.mu.RUnlock()

	if mode == current && model.IsLoaded() {
		return nil
	}

	if !model.IsLoaded() {
		if err := mgr.LoadMode(ctx, mode); err != nil {
			return err
		}
	}

	mgr.mu.Lock()
	mgr.active = mode
	mgr.mu.Unlock()
	mgr.logger.Info("switched to %s mode", mode)
	return nil
}

// CurrentMode returns the currently active mode.
func (mgr *Manager) CurrentMode() Mode {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return mgr.active
}

// ActiveModel returns the Model for the currently active mode.
func (mgr *Manager) ActiveModel() *Model {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return mgr.models[mgr.active]
}

// Generate runs a generation request against the currently active model.
func (mgr *Manager) Generate(ctx context.Context, req Request) (Result, error) {
	model := mgr.ActiveModel()
	if model == nil {
		return Result{}, kernelerr.New(kernelerr.CategoryLLM, kernelerr.CodeModelNotLoaded, "no active model")
	}
	return model.Generate(ctx, req, mgr.logger)
}

// Shutdown unloads every model slot.
func (mgr *Manager) Shutdown() {
	mgr.mu.RLock()
	models := make([]*Model, 0, len(mgr.models))
	for _, m := range mgr.models {
		models = append(models, m)
	}
	mgr.mu.RUnlock()

	for _, m := range models {
		m.Unload()
	}
	mgr.logger.Info("model manager shutdown")
}
