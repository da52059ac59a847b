// Package modules implements the module lifecycle orchestrator: the
// abstract module contract, its state machine, and a dependency-aware
// registry that loads, enables, disables, and shuts modules down.
package modules

import (
	"evkernel/internal/config"
	"evkernel/internal/eventbus"
	"evkernel/internal/permissions"
)

// State is a module's position in the lifecycle state machine.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateEnabled
	StateDisabled
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Module is the abstract contract every kernel capability implements.
// Modules communicate with the rest of the kernel exclusively through the
// event bus and the permission-gated KernelAPI handed to them at
// construction; they never reach into kernel internals directly.
type Module interface {
	// Name returns the module's unique registry key.
	Name() string
	// RequiredPermissions declares the permission set this module needs.
	RequiredPermissions() permissions.Set
	// Dependencies declares the names of modules that must be Loaded or
	// Enabled before this module may load. A module may not depend on
	// itself.
	Dependencies() []string
	// Load initializes resources from cfg and prepares the module to be
	// enabled. It must not start active operations.
	Load(cfg config.Section) error
	// Enable starts active operations. Only called when the module is in
	// state Loaded or Disabled.
	Enable() error
	// Disable stops active operations but keeps resources allocated.
	Disable() error
	// Shutdown releases all resources. Load can rebuild them afterward.
	Shutdown() error
	// HandleEvent receives an event this module subscribed to.
	HandleEvent(event eventbus.Event)
}
