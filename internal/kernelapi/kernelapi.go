// Package kernelapi provides the permission-gated facade kernel modules use
// to reach the event bus and configuration. EmitEvent, EmitEventSync and
// SubscribeEvent are checked against the module's granted permission set
// first; UnsubscribeEvent, GetConfigSection and the EventBus/Permissions
// accessors perform no permission check.
package kernelapi

import (
	"fmt"

	"evkernel/internal/config"
	"evkernel/internal/eventbus"
	"evkernel/internal/kernelerr"
	"evkernel/internal/logging"
	"evkernel/internal/permissions"
)

// KernelAPI mediates module access to the event bus and configuration;
// emits and subscribes go through a permission check.
type KernelAPI struct {
	bus    *eventbus.Bus
	perms  *permissions.Registry
	cfg    *config.Config
	logger logging.Logger
}

// New constructs a KernelAPI bound to the kernel's event bus, permission
// registry, and configuration.
func New(bus *eventbus.Bus, perms *permissions.Registry, cfg *config.Config, logger logging.Logger) *KernelAPI {
	return &KernelAPI{bus: bus, perms: perms, cfg: cfg, logger: logging.OrNop(logger)}
}

// CheckPermission reports whether module currently holds want.
func (k *KernelAPI) CheckPermission(module string, want permissions.Set) bool {
	return k.perms.Check(module, want)
}

// GrantPermissions grants additional permissions to module, on top of
// whatever it already holds.
func (k *KernelAPI) GrantPermissions(module string, set permissions.Set) {
	k.perms.Grant(module, k.perms.Granted(module).Union(set))
}

// RevokePermissions clears every permission module holds.
func (k *KernelAPI) RevokePermissions(module string) {
	k.perms.Revoke(module)
}

// EmitEvent publishes an event on behalf of module, provided it holds
// EventEmit. Delivery is asynchronous, matching Bus.Emit.
func (k *KernelAPI) EmitEvent(module, eventType string, data map[string]eventbus.Value) error {
	if !k.perms.Check(module, permissions.EventEmit) {
		k.logger.Warn("module '%s' denied EventEmit permission", module)
		return kernelerr.New(kernelerr.CategoryPermission, kernelerr.CodePermissionDenied,
			fmt.Sprintf("module '%s' lacks EventEmit permission", module))
	}
	k.bus.Emit(eventType, data, module)
	return nil
}

// EmitEventSync publishes an event synchronously on behalf of module,
// provided it holds EventEmit.
func (k *KernelAPI) EmitEventSync(module, eventType string, data map[string]eventbus.Value) error {
	if !k.perms.Check(module, permissions.EventEmit) {
		k.logger.Warn("module '%s' denied EventEmit permission", module)
		return kernelerr.New(kernelerr.CategoryPermission, kernelerr.CodePermissionDenied,
			fmt.Sprintf("module '%s' lacks EventEmit permission", module))
	}
	k.bus.EmitSync(eventType, data, module)
	return nil
}

// SubscribeEvent subscribes module to eventType, provided it holds
// EventSubscribe and already has a handler registered on the bus.
func (k *KernelAPI) SubscribeEvent(module, eventType string) error {
	if !k.perms.Check(module, permissions.EventSubscribe) {
		k.logger.Warn("module '%s' denied EventSubscribe permission", module)
		return kernelerr.New(kernelerr.CategoryPermission, kernelerr.CodePermissionDenied,
			fmt.Sprintf("module '%s' lacks EventSubscribe permission", module))
	}
	if !k.bus.Subscribe(eventType, module) {
		return kernelerr.New(kernelerr.CategoryModule, kernelerr.CodeModuleNotRegistered,
			fmt.Sprintf("module '%s' has no registered event handler", module))
	}
	return nil
}

// UnsubscribeEvent removes module's subscription to eventType.
func (k *KernelAPI) UnsubscribeEvent(module, eventType string) {
	k.bus.Unsubscribe(eventType, module)
}

// GetConfigSection returns the configuration section scoped to module.
func (k *KernelAPI) GetConfigSection(module string) config.Section {
	return k.cfg.Section(module)
}

// EventBus exposes the underlying bus for registry wiring (RegisterHandler,
// UnregisterHandler). Only the module orchestrator should use this; modules
// themselves go through EmitEvent/SubscribeEvent.
func (k *KernelAPI) EventBus() *eventbus.Bus { return k.bus }

// Permissions exposes the underlying permission registry for orchestrator
// wiring.
func (k *KernelAPI) Permissions() *permissions.Registry { return k.perms }
