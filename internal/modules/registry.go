package modules

import (
	"fmt"
	"sync"

	"evkernel/internal/config"
	"evkernel/internal/eventbus"
	"evkernel/internal/kernelerr"
	"evkernel/internal/permissions"
)

// Registry tracks registered modules, their lifecycle state, and the order
// they were registered in. Shutdown proceeds in reverse registration order
// so dependents release resources before their dependencies do.
type Registry struct {
	mu        sync.Mutex
	perms     *permissions.Registry
	bus       *eventbus.Bus
	cfg       *config.Config
	modules   map[string]Module
	state     map[string]State
	loadOrder []string
}

// New constructs an empty Registry wired to the kernel's permission
// registry, event bus, and configuration.
func New(perms *permissions.Registry, bus *eventbus.Bus, cfg *config.Config) *Registry {
	return &Registry{
		perms:   perms,
		bus:     bus,
		cfg:     cfg,
		modules: make(map[string]Module),
		state:   make(map[string]State),
	}
}

// Register adds m to the registry, grants its declared permissions, and
// wires it into the event bus as a handler. A module may be registered only
// once under its name, and may not declare itself as a dependency.
func (r *Registry) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := m.Name()
	if _, exists := r.modules[name]; exists {
		return kernelerr.New(kernelerr.CategoryModule, kernelerr.CodeAlreadyRegistered,
			fmt.Sprintf("Module '%s' already registered", name))
	}
	for _, dep := range m.Dependencies() {
		if dep == name {
			return kernelerr.New(kernelerr.CategoryModule, kernelerr.CodeSelfDependency,
				fmt.Sprintf("Module '%s' cannot depend on itself", name))
		}
	}

	r.perms.Grant(name, m.RequiredPermissions())
	r.bus.RegisterHandler(name, m)

	r.modules[name] = m
	r.state[name] = StateUnloaded
	r.loadOrder = append(r.loadOrder, name)
	return nil
}

// Get returns the module registered under name, if any.
func (r *Registry) Get(name string) (Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[name]
	return m, ok
}

// State returns the current lifecycle state of the named module.
func (r *Registry) State(name string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state[name]
}

// Names returns every registered module name in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.loadOrder))
	copy(out, r.loadOrder)
	return out
}

// Load loads the named module after verifying every declared dependency is
// registered and already in state Loaded or Enabled.
func (r *Registry) Load(name string) error {
	r.mu.Lock()
	m, ok := r.modules[name]
	if !ok {
		r.mu.Unlock()
		return kernelerr.New(kernelerr.CategoryModule, kernelerr.CodeModuleNotFound,
			fmt.Sprintf("Module '%s' not found", name))
	}
	deps := m.Dependencies()
	for _, dep := range deps {
		depModule, exists := r.modules[dep]
		if !exists {
			r.mu.Unlock()
			return kernelerr.New(kernelerr.CategoryModule, kernelerr.CodeDependencyMissing,
				fmt.Sprintf("Dependency '%s' not registered", dep))
		}
		depState := r.state[depModule.Name()]
		if depState != StateLoaded && depState != StateEnabled {
			r.mu.Unlock()
			return kernelerr.New(kernelerr.CategoryModule, kernelerr.CodeDependencyNotLoaded,
				fmt.Sprintf("Dependency '%s' not loaded", dep))
		}
	}
	r.mu.Unlock()

	section := config.Section{}
	if r.cfg != nil {
		section = r.cfg.Section(name)
	}

	if err := m.Load(section); err != nil {
		r.mu.Lock()
		r.state[name] = StateError
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.state[name] = StateLoaded
	r.mu.Unlock()
	return nil
}

// Enable enables the named module. The module must be in state Loaded or
// Disabled (re-enabling a previously disabled module is a valid transition).
func (r *Registry) Enable(name string) error {
	r.mu.Lock()
	m, ok := r.modules[name]
	if !ok {
		r.mu.Unlock()
		return kernelerr.New(kernelerr.CategoryModule, kernelerr.CodeModuleNotFound,
			fmt.Sprintf("Module '%s' not found", name))
	}
	if r.state[name] != StateLoaded && r.state[name] != StateDisabled {
		r.mu.Unlock()
		return kernelerr.New(kernelerr.CategoryModule, kernelerr.CodeInvalidTransition,
			fmt.Sprintf("Module '%s' must be loaded or disabled before enabling", name))
	}
	r.mu.Unlock()

	if err := m.Enable(); err != nil {
		return err
	}

	r.mu.Lock()
	r.state[name] = StateEnabled
	r.mu.Unlock()
	return nil
}

// Disable disables the named module if it is currently enabled; otherwise
// it is a no-op, matching the reference orchestrator's idempotent shutdown
// path.
func (r *Registry) Disable(name string) error {
	r.mu.Lock()
	m, ok := r.modules[name]
	if !ok || r.state[name] != StateEnabled {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := m.Disable(); err != nil {
		return err
	}

	r.mu.Lock()
	r.state[name] = StateDisabled
	r.mu.Unlock()
	return nil
}

// Shutdown disables (if needed) and shuts down the named module, releasing
// its resources. Unknown modules and modules already Unloaded are a no-op.
func (r *Registry) Shutdown(name string) error {
	r.mu.Lock()
	m, ok := r.modules[name]
	enabled := ok && r.state[name] == StateEnabled
	alreadyUnloaded := ok && r.state[name] == StateUnloaded
	r.mu.Unlock()

	if !ok || alreadyUnloaded {
		return nil
	}
	if enabled {
		if err := r.Disable(name); err != nil {
			return err
		}
	}

	if err := m.Shutdown(); err != nil {
		return err
	}

	r.mu.Lock()
	r.state[name] = StateUnloaded
	r.mu.Unlock()
	return nil
}

// Unregister shuts the module down, revokes its permissions, removes its
// event bus handler, and drops it from the registry entirely.
func (r *Registry) Unregister(name string) error {
	if err := r.Shutdown(name); err != nil {
		return err
	}

	r.perms.Revoke(name)
	r.bus.UnregisterHandler(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, name)
	delete(r.state, name)
	for i, n := range r.loadOrder {
		if n == name {
			r.loadOrder = append(r.loadOrder[:i], r.loadOrder[i+1:]...)
			break
		}
	}
	return nil
}

// LoadAll loads every registered module in registration order.
func (r *Registry) LoadAll() error {
	for _, name := range r.Names() {
		if err := r.Load(name); err != nil {
			return err
		}
	}
	return nil
}

// EnableAll enables every currently Loaded module, in registration order.
func (r *Registry) EnableAll() error {
	for _, name := range r.Names() {
		if r.State(name) == StateLoaded {
			if err := r.Enable(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// ShutdownAll shuts every module down in reverse registration order, so
// dependents are torn down before the dependencies they rely on.
func (r *Registry) ShutdownAll() {
	names := r.Names()
	for i := len(names) - 1; i >= 0; i-- {
		_ = r.Shutdown(names[i])
	}
}
