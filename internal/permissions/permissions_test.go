package permissions

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasRequiresAllBits(t *testing.T) {
	s := IPCSend | EventEmit
	require.True(t, s.Has(IPCSend), "expected IPCSend present")
	require.False(t, s.Has(IPCReceive), "did not expect IPCReceive present")
	require.True(t, s.Has(IPCSend|EventEmit), "expected composite check to pass")
	require.False(t, s.Has(IPCSend|IPCReceive), "composite check should fail when one bit missing")
}

func TestRegistryGrantCheckRevoke(t *testing.T) {
	r := NewRegistry()
	r.Grant("mod.a", IPCSend|EventEmit)

	require.True(t, r.Check("mod.a", IPCSend), "expected granted permission to be present")
	require.False(t, r.Check("mod.a", StorageWrite), "expected ungranted permission to be absent")

	r.Revoke("mod.a")
	require.False(t, r.Check("mod.a", IPCSend), "expected permissions to be gone after revoke")
}

func TestNamesOrdersDeterministically(t *testing.T) {
	s := LLMLocal | IPCSend
	names := s.Names()
	require.Equal(t, []string{"ipc.send", "llm.local"}, names)
}

func TestConcurrentGrantAndCheckDoNotRace(t *testing.T) {
	r := NewRegistry()
	r.Grant("mod.a", IPCSend)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Grant("mod.a", IPCSend|EventEmit)
		}()
		go func() {
			defer wg.Done()
			r.Check("mod.a", IPCSend)
		}()
	}
	wg.Wait()

	require.True(t, r.Check("mod.a", IPCSend))
}
