package kernelerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(CategoryIO, CodeIOFailed, "write failed", cause)

	require.True(t, errors.Is(err, cause), "expected errors.Is to find wrapped cause")
}

func TestIsClassifiesByCategory(t *testing.T) {
	err := New(CategoryPermission, CodePermissionDenied, "denied")
	wrapped := fmt.Errorf("context: %w", err)

	require.True(t, Is(wrapped, CategoryPermission), "expected Is to classify through fmt.Errorf wrapping")
	require.False(t, Is(wrapped, CategoryModule), "expected Is to reject mismatched category")
}

func TestErrorStringIncludesCauseWhenPresent(t *testing.T) {
	err := Wrap(CategoryLLM, CodeModelLoadFailed, "load failed", errors.New("disk full"))
	require.Contains(t, err.Error(), "disk full")
}
