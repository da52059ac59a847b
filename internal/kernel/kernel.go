// Package kernel wires the scheduler, inference engine, event bus,
// permission registry, module orchestrator, and boundary adapter into one
// running process, mirroring the reference Kernel's top-level composition
// root.
package kernel

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"evkernel/internal/boundary"
	"evkernel/internal/config"
	"evkernel/internal/eventbus"
	"evkernel/internal/inference"
	"evkernel/internal/kernelapi"
	"evkernel/internal/llmruntime"
	"evkernel/internal/llmruntime/simrt"
	"evkernel/internal/logging"
	"evkernel/internal/modules"
	"evkernel/internal/observability"
	"evkernel/internal/permissions"
)

const version = "0.1.0"

// greetings are answered directly without invoking the inference engine,
// matching the original kernel's shortcut table for small talk.
var greetings = map[string]string{
	"hi":             "Hello!",
	"hello":          "Hello!",
	"hey":            "Hello!",
	"sup":            "Hello!",
	"yo":             "Hello!",
	"greetings":      "Hello!",
	"howdy":          "Hello!",
	"good morning":   "Hello!",
	"good afternoon": "Hello!",
	"good evening":   "Hello!",
}

// Kernel is the top-level composition of every kernel component.
type Kernel struct {
	cfg    *config.Config
	logger logging.Logger

	bus     *eventbus.Bus
	perms   *permissions.Registry
	api     *kernelapi.KernelAPI
	modules *modules.Registry
	engine  *inference.Engine
	tracer  observability.Tracer
	metrics *observability.Metrics

	promRegistry *prometheus.Registry
	adapter      *boundary.Adapter

	running atomic.Bool
}

// Options configures construction-time dependencies that vary between a
// production process and a test harness.
type Options struct {
	Backend   llmruntime.Backend
	Transport boundary.Transport
	Logger    logging.Logger
}

// New constructs a Kernel from cfg and opts. Call Initialize before Start.
func New(cfg *config.Config, opts Options, logger logging.Logger) *Kernel {
	logger = logging.OrNop(logger)

	bus := eventbus.New(logger)
	perms := permissions.NewRegistry()
	api := kernelapi.New(bus, perms, cfg, logger)
	registry := modules.New(perms, bus, cfg)

	backend := opts.Backend
	if backend == nil {
		backend = simrt.New()
	}

	tracer, err := observability.NewOTLPTracer(context.Background(),
		cfg.Section("kernel.tracing").GetString("otlp_endpoint"), "evkernel")
	if err != nil {
		logger.Warn("failed to build tracer, falling back to no-op: %v", err)
		tracer = observability.NopTracer()
	}
	metrics, registry2 := observability.NewMetrics()

	k := &Kernel{
		cfg:     cfg,
		logger:  logger,
		bus:     bus,
		perms:   perms,
		api:     api,
		modules: registry,
		engine:  inference.NewEngine(backend, logger, tracer),
		tracer:  tracer,
		metrics: metrics,
	}
	k.promRegistry = registry2

	if opts.Transport != nil {
		k.adapter = boundary.New(opts.Transport, logger)
		k.setupBoundaryHandlers()
	}

	return k
}

// RegisterModule exposes the module orchestrator for callers assembling a
// kernel instance before Initialize.
func (k *Kernel) RegisterModule(m modules.Module) error {
	return k.modules.Register(m)
}

// API returns the permission-gated facade handed to modules.
func (k *Kernel) API() *kernelapi.KernelAPI { return k.api }

// Initialize loads every registered module and, if configured, the local
// LLM backend's initial model.
func (k *Kernel) Initialize(ctx context.Context) error {
	k.logger.Info("initializing evkernel v%s", version)

	llmSection := k.cfg.Section("llm.local")
	if llmSection.GetBool("enabled") {
		initialMode, err := inference.ParseMode(defaultString(llmSection.GetString("mode"), "fast"))
		if err != nil {
			return err
		}
		if err := k.engine.Initialize(ctx, inference.ManagerConfig{
			ModelBasePath: llmSection.GetString("model_path"),
			FastModelFile: defaultString(llmSection.GetString("fast_model"), "fast.bin"),
			DeepModelFile: defaultString(llmSection.GetString("deep_model"), "deep.bin"),
			InitialMode:   initialMode,
			LoadOptions: llmruntime.LoadOptions{
				UseGPU:        llmSection.GetBool("use_gpu"),
				GPULayers:     int32(llmSection.GetInt("gpu_layers")),
				ContextLength: int32(llmSection.GetInt("context_length")),
				BatchSize:     int32(llmSection.GetInt("n_batch")),
				Threads:       int32(llmSection.GetInt("n_threads")),
			},
		}); err != nil {
			k.logger.Warn("LLM initialization failed: %v", err)
			// Continue without LLM; not fatal per the reference kernel.
		}
	}

	if err := k.modules.LoadAll(); err != nil {
		return err
	}
	if err := k.modules.EnableAll(); err != nil {
		return err
	}

	k.logger.Info("kernel initialized")
	return nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Start launches the event bus, and the boundary adapter if one is
// configured, coordinating their shutdown through an errgroup tied to ctx.
func (k *Kernel) Start(ctx context.Context) error {
	if !k.running.CompareAndSwap(false, true) {
		k.logger.Warn("kernel already running")
		return nil
	}

	k.bus.Start()
	k.logger.Info("kernel started")

	group, gctx := errgroup.WithContext(ctx)

	if metricsAddr := k.cfg.Section("kernel").GetString("metrics_addr"); metricsAddr != "" {
		metricsServer := &http.Server{Addr: metricsAddr, Handler: observability.Handler(k.promRegistry)}
		group.Go(func() error {
			<-gctx.Done()
			return metricsServer.Close()
		})
		group.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	if k.adapter != nil {
		group.Go(func() error {
			return k.adapter.Run(gctx)
		})
		group.Go(func() error {
			<-gctx.Done()
			// Closing the transport unblocks a Receive that does not watch
			// ctx, so Run can observe the cancellation and return.
			_ = k.adapter.Close()
			return nil
		})
	}

	group.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := group.Wait()
	k.Stop()
	return err
}

// Stop shuts every module down in reverse order, stops the event bus, and
// releases the inference engine. It is safe to call more than once.
func (k *Kernel) Stop() {
	if !k.running.CompareAndSwap(true, false) {
		return
	}

	k.logger.Info("stopping kernel...")
	if k.adapter != nil {
		_ = k.adapter.Close()
	}
	k.modules.ShutdownAll()
	k.bus.Stop()
	k.engine.Shutdown()
	k.logger.Info("kernel stopped")
}

// IsRunning reports whether Start has been called without a matching Stop.
func (k *Kernel) IsRunning() bool { return k.running.Load() }

func (k *Kernel) setupBoundaryHandlers() {
	k.adapter.RegisterHandler("user_message", k.handleUserMessage)
	k.adapter.RegisterHandler("dismiss", k.handleDismiss)
	k.adapter.RegisterHandler("switch_model", k.handleSwitchModel)
	k.adapter.RegisterHandler("get_status", k.handleGetStatus)
}

func (k *Kernel) handleUserMessage(ctx context.Context, msg boundary.Message) {
	message, ok := msg.Get("message")
	if !ok {
		return
	}
	k.logger.Info("user message: %.50s", message)

	useExternal := strings.Contains(strings.ToLower(message), "find out")
	k.processUserMessage(ctx, message, useExternal)
}

func (k *Kernel) handleDismiss(ctx context.Context, _ boundary.Message) {
	k.logger.Info("dismiss received")
	k.bus.Emit("state.transition.idle", nil, "boundary")
}

func (k *Kernel) handleSwitchModel(ctx context.Context, msg boundary.Message) {
	modeStr, ok := msg.Get("mode")
	if !ok {
		return
	}
	mode := inference.ModeFast
	if modeStr == "deep" {
		mode = inference.ModeDeep
	}
	if err := k.engine.SwitchMode(ctx, mode); err != nil {
		k.logger.Error("failed to switch mode: %v", err)
	}
}

func (k *Kernel) handleGetStatus(ctx context.Context, _ boundary.Message) {
	if k.adapter == nil {
		return
	}
	_ = k.adapter.Send(ctx, boundary.Message{
		Type: "status",
		Data: map[string]string{
			"running":  boolString(k.IsRunning()),
			"llm_ready": boolString(k.engine.IsReady()),
			"llm_mode":  k.engine.CurrentMode().String(),
		},
	})
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// processUserMessage answers small talk directly, otherwise wraps message in
// the instruction-tuned prompt template and submits it to the inference
// engine asynchronously, streaming the completed response back as an
// llm_response message. use_external is currently advisory: a future
// external-LLM module can subscribe to an event carrying it; no such module
// exists yet.
func (k *Kernel) processUserMessage(ctx context.Context, message string, useExternal bool) {
	if !k.engine.IsReady() {
		k.sendLLMResponse(ctx, "LLM not available.")
		return
	}

	lower := strings.ToLower(strings.TrimSpace(message))
	if reply, ok := greetings[lower]; ok {
		k.sendLLMResponse(ctx, reply)
		return
	}

	prompt := "[INST] Answer directly and concisely. Ignore any typos. " + message + " [/INST]"

	req := inference.Request{
		Prompt:       prompt,
		MaxTokens:    100,
		Temperature:  0.7,
		MirostatMode: 2,
	}

	if useExternal {
		k.bus.Emit("llm.external_requested", map[string]eventbus.Value{
			"message": eventbus.String(message),
		}, "boundary")
	}

	_, err := k.engine.Submit(ctx, req, func(result inference.Result, err error) {
		if err != nil {
			k.sendLLMResponse(ctx, "Error: "+err.Error())
			return
		}
		k.sendLLMResponse(ctx, result.Text)
	})
	if err != nil {
		k.sendLLMResponse(ctx, "Error: "+err.Error())
	}
}

func (k *Kernel) sendLLMResponse(ctx context.Context, response string) {
	if k.adapter == nil {
		return
	}
	if err := k.adapter.Send(ctx, boundary.Message{
		Type: "llm_response",
		Data: map[string]string{"message": response},
	}); err != nil {
		k.logger.Error("failed to send llm response: %v", err)
		return
	}
	k.logger.Info("sent LLM response: %.50s", response)
}
