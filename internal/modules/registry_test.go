package modules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"evkernel/internal/config"
	"evkernel/internal/eventbus"
	"evkernel/internal/permissions"
)

type fakeModule struct {
	name    string
	deps    []string
	perms   permissions.Set
	events  []eventbus.Event
	loadErr error
}

func (m *fakeModule) Name() string                        { return m.name }
func (m *fakeModule) RequiredPermissions() permissions.Set { return m.perms }
func (m *fakeModule) Dependencies() []string               { return m.deps }
func (m *fakeModule) Load(cfg config.Section) error         { return m.loadErr }
func (m *fakeModule) Enable() error                         { return nil }
func (m *fakeModule) Disable() error                        { return nil }
func (m *fakeModule) Shutdown() error                       { return nil }
func (m *fakeModule) HandleEvent(e eventbus.Event)          { m.events = append(m.events, e) }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	perms := permissions.NewRegistry()
	bus := eventbus.New(nil)
	return New(perms, bus, nil)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(&fakeModule{name: "a"}))
	require.Error(t, r.Register(&fakeModule{name: "a"}))
}

func TestRegisterRejectsSelfDependency(t *testing.T) {
	r := newTestRegistry(t)
	require.Error(t, r.Register(&fakeModule{name: "a", deps: []string{"a"}}))
}

func TestLoadUnknownModuleFails(t *testing.T) {
	r := newTestRegistry(t)
	require.Error(t, r.Load("missing"))
}

func TestLoadFailsWhenDependencyNotRegistered(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(&fakeModule{name: "a", deps: []string{"b"}}))
	require.Error(t, r.Load("a"))
}

func TestLoadFailsWhenDependencyNotYetLoaded(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(&fakeModule{name: "b"}))
	require.NoError(t, r.Register(&fakeModule{name: "a", deps: []string{"b"}}))
	require.Error(t, r.Load("a"), "expected error because dependency 'b' is not yet loaded")
}

func TestLoadSucceedsOnceDependencyLoaded(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(&fakeModule{name: "b"}))
	require.NoError(t, r.Register(&fakeModule{name: "a", deps: []string{"b"}}))
	require.NoError(t, r.Load("b"))
	require.NoError(t, r.Load("a"))
	require.Equal(t, StateLoaded, r.State("a"))
}

func TestEnableRequiresLoaded(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(&fakeModule{name: "a"}))
	require.Error(t, r.Enable("a"), "expected error enabling an unloaded module")
	require.NoError(t, r.Load("a"))
	require.NoError(t, r.Enable("a"))
	require.Equal(t, StateEnabled, r.State("a"))
}

func TestEnableAcceptsReenablingADisabledModule(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(&fakeModule{name: "a"}))
	require.NoError(t, r.Load("a"))
	require.NoError(t, r.Enable("a"))
	require.NoError(t, r.Disable("a"))
	require.Equal(t, StateDisabled, r.State("a"))

	require.NoError(t, r.Enable("a"), "expected re-enabling a disabled module to succeed")
	require.Equal(t, StateEnabled, r.State("a"))
}

func TestShutdownSkipsAlreadyUnloadedModule(t *testing.T) {
	r := newTestRegistry(t)
	m := &fakeModule{name: "a"}
	require.NoError(t, r.Register(m))
	require.NoError(t, r.Unregister("a"))

	require.NoError(t, r.Register(m))
	require.Equal(t, StateUnloaded, r.State("a"))
	require.NoError(t, r.Shutdown("a"), "shutting down an already-unloaded module should be a no-op")
}

func TestShutdownAllRunsInReverseOrder(t *testing.T) {
	r := newTestRegistry(t)

	a := &fakeModule{name: "a"}
	b := &fakeModule{name: "b", deps: []string{"a"}}
	c := &fakeModule{name: "c", deps: []string{"b"}}

	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	require.NoError(t, r.Register(c))
	require.NoError(t, r.LoadAll())
	require.NoError(t, r.EnableAll())

	for _, name := range []string{"a", "b", "c"} {
		require.Equal(t, StateEnabled, r.State(name))
	}

	// Registration order is preserved; ShutdownAll tears down in the
	// reverse of it so dependents release resources first.
	require.Equal(t, []string{"a", "b", "c"}, r.Names())

	r.ShutdownAll()

	for _, name := range []string{"a", "b", "c"} {
		require.Equal(t, StateUnloaded, r.State(name))
	}
}

func TestUnregisterRemovesModuleAndPermissions(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(&fakeModule{name: "a", perms: permissions.EventEmit}))
	require.True(t, r.perms.Check("a", permissions.EventEmit), "expected permission to be granted on register")

	require.NoError(t, r.Unregister("a"))

	_, ok := r.Get("a")
	require.False(t, ok, "expected module to be gone after unregister")
	require.False(t, r.perms.Check("a", permissions.EventEmit), "expected permission to be revoked on unregister")
}
