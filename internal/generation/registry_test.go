package generation

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCancelIsIdempotent(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.True(t, r.TryRegister("gen-1"))

	var fired atomic.Int64
	r.AddHandle("gen-1", "h1", func() { fired.Add(1) })

	r.Cancel("gen-1")
	r.Cancel("gen-1")
	r.Cancel("gen-1")

	assert.Equal(t, int64(1), fired.Load(), "handles fire once")
	assert.True(t, r.IsCanceled("gen-1"))
}

func TestRegistryAddHandleAfterCancel(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.True(t, r.TryRegister("gen-1"))
	r.Cancel("gen-1")

	var fired atomic.Int64
	r.AddHandle("gen-1", "late", func() { fired.Add(1) })
	assert.Equal(t, int64(1), fired.Load(), "late handles fire immediately on a canceled generation")
}

func TestRegistryRemoveHandle(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.True(t, r.TryRegister("gen-1"))

	var fired atomic.Int64
	r.AddHandle("gen-1", "h1", func() { fired.Add(1) })
	r.RemoveHandle("gen-1", "h1")
	r.Cancel("gen-1")

	assert.Equal(t, int64(0), fired.Load(), "removed handles never fire")
}

func TestRegistryUnknownID(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	assert.True(t, r.IsCanceled("missing"), "unknown generations read as canceled")
	assert.False(t, r.Active("missing"))
	r.Cancel("missing") // no-op
	r.Clear("missing")  // no-op
}

func TestRegistryHoldsIDUntilCleared(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.True(t, r.TryRegister("gen-1"))

	assert.False(t, r.TryRegister("gen-1"), "a running generation owns its ID")

	r.Cancel("gen-1")
	assert.False(t, r.TryRegister("gen-1"), "a canceled run still owns the ID until it clears")
	assert.True(t, r.IsCanceled("gen-1"), "the old run keeps reading its own canceled flag")

	r.Clear("gen-1")
	assert.True(t, r.TryRegister("gen-1"))
	assert.False(t, r.IsCanceled("gen-1"), "after clear the ID starts a fresh run")
	assert.True(t, r.Active("gen-1"))
}

func TestRegistryClear(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.True(t, r.TryRegister("gen-1"))
	r.Clear("gen-1")
	assert.True(t, r.IsCanceled("gen-1"), "cleared generations read as canceled")
}
