package device

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapFirstFit(t *testing.T) {
	h := NewHeap("test", 10)
	a, err := h.Alloc(3)
	require.NoError(t, err)
	b, err := h.Alloc(3)
	require.NoError(t, err)
	c, err := h.Alloc(4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 6}, []int{a, b, c})
	assert.Equal(t, 3, h.SizeOf(b))
	assert.Zero(t, h.SizeOf(1))

	_, err = h.Alloc(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfMemory))

	// The freed middle span is reused first.
	require.NoError(t, h.Free(b))
	d, err := h.Alloc(2)
	require.NoError(t, err)
	assert.Equal(t, 3, d)

	stats := h.Stats()
	assert.Equal(t, "test", stats.Name)
	assert.Equal(t, 9, stats.InUse)
	assert.Equal(t, 10, stats.Peak)
	assert.Equal(t, 3, stats.Live)
	assert.Equal(t, 1, stats.LargestFree)
	assert.Equal(t, uint64(4), stats.Allocs)
	assert.Equal(t, uint64(1), stats.Frees)
}

func TestHeapCoalesce(t *testing.T) {
	h := NewHeap("test", 12)
	offs := make([]int, 4)
	for i := range offs {
		off, err := h.Alloc(3)
		require.NoError(t, err)
		offs[i] = off
	}

	// Free out of order; neighbours have to merge back into a single span.
	for _, i := range []int{1, 3, 0, 2} {
		require.NoError(t, h.Free(offs[i]))
	}
	stats := h.Stats()
	assert.Zero(t, stats.InUse)
	assert.Zero(t, stats.Live)
	assert.Equal(t, 12, stats.LargestFree)

	off, err := h.Alloc(12)
	require.NoError(t, err)
	assert.Zero(t, off)
}

func TestHeapErrors(t *testing.T) {
	h := NewHeap("test", 4)
	_, err := h.Alloc(0)
	assert.Error(t, err)
	_, err = h.Alloc(-1)
	assert.Error(t, err)
	_, err = h.Alloc(5)
	assert.True(t, errors.Is(err, ErrOutOfMemory))

	off, err := h.Alloc(2)
	require.NoError(t, err)
	assert.Error(t, h.Free(off+1))
	require.NoError(t, h.Free(off))
	assert.Error(t, h.Free(off), "double free")
}

func TestPtr(t *testing.T) {
	var nilPtr Ptr
	assert.True(t, nilPtr.IsNil())
	assert.Equal(t, "Ptr(nil)", nilPtr.String())

	p := PtrAt(0)
	assert.False(t, p.IsNil())
	assert.Equal(t, 5, p.Add(5).Offset())
	assert.Equal(t, "Ptr(5)", p.Add(5).String())

	var nilIndex IndexPtr
	assert.True(t, nilIndex.IsNil())
	assert.Equal(t, "IndexPtr(7)", IndexPtrAt(3).Add(4).String())
	assert.Panics(t, func() { _ = nilPtr.Offset() })
	assert.Panics(t, func() { _ = nilIndex.Add(1) })
}

func TestStatsString(t *testing.T) {
	s := MemoryStats{
		Backend: "test",
		Values:  HeapStats{Name: "values", Capacity: 1 << 20, InUse: 256, Peak: 512, Live: 1, Allocs: 2, Frees: 1},
		Indices: HeapStats{Name: "indices", Capacity: 1024},
	}
	assert.Equal(t,
		"test\n  values: 1.0 KiB in use (peak 2.0 KiB) of 4.0 MiB, 1 live, 2 allocs / 1 frees\n"+
			"  indices: 0 B in use (peak 0 B) of 4.0 KiB, 0 live, 0 allocs / 0 frees",
		s.String())
}

func TestConfigValidate(t *testing.T) {
	t.Setenv(EnvBackend, "")
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "host", cfg.Backend)
	assert.True(t, cfg.Verify)
	assert.Equal(t, float32(0.01), cfg.VerifyTolerance)

	t.Setenv(EnvBackend, "webgpu")
	assert.Equal(t, "webgpu", DefaultConfig().Backend)

	bad := cfg
	bad.HeapSize = 0
	assert.Error(t, bad.Validate())
	bad = cfg
	bad.IndexHeapSize = -1
	assert.Error(t, bad.Validate())
	bad = cfg
	bad.VerifyTolerance = -0.5
	assert.Error(t, bad.Validate())
	bad = cfg
	bad.VerifyTolerance = 0
	assert.Error(t, bad.Validate())

	if uint64(math.MaxInt) > math.MaxUint32 {
		bad = cfg
		bad.HeapSize = math.MaxInt
		assert.Error(t, bad.Validate())
		bad = cfg
		bad.IndexHeapSize = math.MaxInt
		assert.Error(t, bad.Validate())
	}
}
