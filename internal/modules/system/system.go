// Package system provides a reference kernel module that emits periodic
// system.heartbeat events carrying basic runtime status, mirroring the
// original system-status module's responsibility of keeping the rest of
// the kernel informed of host health.
package system

import (
	"runtime"
	"sync"
	"time"

	"evkernel/internal/config"
	"evkernel/internal/eventbus"
	"evkernel/internal/kernelapi"
	"evkernel/internal/logging"
	"evkernel/internal/permissions"
)

const defaultInterval = 30 * time.Second

// Module emits a system.heartbeat event on a fixed interval while enabled,
// carrying goroutine count, heap usage, and uptime. It declares no
// dependencies and is safe to load first.
type Module struct {
	api    *kernelapi.KernelAPI
	logger logging.Logger

	mu       sync.Mutex
	interval time.Duration
	started  time.Time
	stop     chan struct{}
	done     chan struct{}
	running  bool
}

// New constructs a system module bound to the given kernel API facade.
func New(api *kernelapi.KernelAPI, logger logging.Logger) *Module {
	return &Module{api: api, logger: logging.OrNop(logger), interval: defaultInterval}
}

func (m *Module) Name() string { return "system" }

func (m *Module) RequiredPermissions() permissions.Set {
	return permissions.EventEmit | permissions.SystemEvents
}

func (m *Module) Dependencies() []string { return nil }

// settings is the system module's passthrough config subsection, decoded in
// one step via Section.Unmarshal rather than one Get* call per field.
type settings struct {
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
}

func (m *Module) Load(cfg config.Section) error {
	var s settings
	if err := cfg.Unmarshal(&s); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s.HeartbeatIntervalSeconds > 0 {
		m.interval = time.Duration(s.HeartbeatIntervalSeconds) * time.Second
	}
	m.logger.Info("system module loaded, heartbeat interval %s", m.interval)
	return nil
}

func (m *Module) Enable() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.started = time.Now()
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	interval := m.interval
	m.mu.Unlock()

	go m.heartbeatLoop(interval)
	m.logger.Info("system module enabled")
	return nil
}

func (m *Module) Disable() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	stop := m.stop
	done := m.done
	m.mu.Unlock()

	close(stop)
	<-done
	m.logger.Info("system module disabled")
	return nil
}

func (m *Module) Shutdown() error {
	return m.Disable()
}

// HandleEvent is unused: the system module only publishes, it never
// subscribes.
func (m *Module) HandleEvent(eventbus.Event) {}

func (m *Module) heartbeatLoop(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.emitHeartbeat()
		}
	}
}

func (m *Module) emitHeartbeat() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.Lock()
	uptime := time.Since(m.started)
	m.mu.Unlock()

	err := m.api.EmitEvent(m.Name(), "system.heartbeat", map[string]eventbus.Value{
		"goroutines":    eventbus.Int64(int64(runtime.NumGoroutine())),
		"heap_alloc_mb": eventbus.Float64(float64(memStats.HeapAlloc) / (1024 * 1024)),
		"uptime_seconds": eventbus.Int64(int64(uptime.Seconds())),
	})
	if err != nil {
		m.logger.Warn("failed to emit heartbeat: %v", err)
	}
}
