package inference

import (
	"context"

	"evkernel/internal/kernelerr"
	"evkernel/internal/llmruntime"
	"evkernel/internal/logging"
	"evkernel/internal/observability"
	"evkernel/internal/scheduler"
)

// reentrancyKey marks a context as running inside the engine's own worker,
// set only on the path that leads into a request's OnToken callback. Unlike
// a shared flag, a context value carries the marker only through the call
// chain that produced it, so two independent callers blocked on the same
// single-worker queue never see each other's in-flight marker.
type reentrancyKey struct{}

// Engine wraps a Manager with a single-worker scheduler so all generation
// requests are serialized, mirroring the persistent-model engine's own
// internal mutex plus the outer dispatch queue's single worker.
type Engine struct {
	manager *Manager
	sched   *scheduler.Scheduler
	tracer  observability.Tracer
	logger  logging.Logger
	ready   bool
}

// NewEngine constructs an Engine. Call Initialize before submitting work.
func NewEngine(backend llmruntime.Backend, logger logging.Logger, tracer observability.Tracer) *Engine {
	logger = logging.OrNop(logger)
	return &Engine{
		manager: NewManager(backend, logger),
		sched:   scheduler.New(scheduler.Config{Workers: 1, Logger: logger}),
		tracer:  tracer,
		logger:  logger,
	}
}

// Initialize loads the configured initial model and starts the single
// worker that serializes every subsequent generation request.
func (e *Engine) Initialize(ctx context.Context, cfg ManagerConfig) error {
	if err := e.manager.Initialize(ctx, cfg); err != nil {
		return err
	}
	e.sched.Start()
	e.ready = true
	e.logger.Info("inference engine initialized")
	return nil
}

// IsReady reports whether Initialize has completed successfully.
func (e *Engine) IsReady() bool { return e.ready }

// CurrentMode returns the active model mode.
func (e *Engine) CurrentMode() Mode { return e.manager.CurrentMode() }

// SwitchMode changes the active model, lazily loading it if necessary. This
// runs on the caller's goroutine directly; it does not go through the
// serialized worker, matching the reference engine which treats mode
// switches as a manager-level operation independent of in-flight requests.
func (e *Engine) SwitchMode(ctx context.Context, mode Mode) error {
	return e.manager.SwitchMode(ctx, mode)
}

// Submit enqueues a generation request for asynchronous execution and
// returns a handle; onComplete fires from the engine's single worker
// goroutine when generation finishes or fails.
func (e *Engine) Submit(ctx context.Context, req Request, onComplete func(Result, error)) (scheduler.Handle, error) {
	if !e.ready {
		return scheduler.Handle{}, kernelerr.New(kernelerr.CategoryLLM, kernelerr.CodeModelNotLoaded, "engine not initialized")
	}
	handle := e.sched.Submit(func() {
		result, err := e.runGuarded(ctx, req)
		if onComplete != nil {
			onComplete(result, err)
		}
	}, scheduler.PriorityNormal)
	return handle, nil
}

// GenerateSync runs a generation request and blocks until it completes. It
// always routes through the same single-worker queue Submit uses, so
// concurrent callers still serialize correctly.
//
// Calling GenerateSync from inside a request's own OnToken callback would
// deadlock the one worker the queue has against itself. That case is
// detected via a context marker: runGuarded tags the context it hands
// down to OnToken with reentrancyKey, so a nested call is refused only when
// the caller forwards that exact marked context, never when two unrelated
// callers simply happen to race against the same worker.
func (e *Engine) GenerateSync(ctx context.Context, req Request) (Result, error) {
	if !e.ready {
		return Result{}, kernelerr.New(kernelerr.CategoryLLM, kernelerr.CodeModelNotLoaded, "engine not initialized")
	}
	if ctx.Value(reentrancyKey{}) != nil {
		return Result{}, kernelerr.New(kernelerr.CategoryKernel, kernelerr.CodeReentrantCall,
			"GenerateSync called re-entrantly from within the engine's own worker")
	}

	_, fut := scheduler.SubmitWithResult(e.sched, func() (Result, error) {
		return e.runGuarded(ctx, req)
	}, scheduler.PriorityNormal)
	return fut.Wait()
}

func (e *Engine) runGuarded(ctx context.Context, req Request) (Result, error) {
	spanCtx, span := e.tracer.Start(ctx, "inference.generate")
	defer span.End()

	marked := context.WithValue(spanCtx, reentrancyKey{}, struct{}{})
	return e.manager.Generate(marked, req)
}

// Shutdown stops the worker and unloads every model.
func (e *Engine) Shutdown() {
	if !e.ready {
		return
	}
	e.sched.Stop()
	e.manager.Shutdown()
	e.ready = false
	e.logger.Info("inference engine shutdown")
}
