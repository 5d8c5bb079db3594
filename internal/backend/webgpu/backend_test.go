//go:build windows

package webgpu

import (
	"math"
	"testing"

	"github.com/born-ml/dyntensor/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	cfg := device.DefaultConfig()
	cfg.HeapSize = 1 << 16
	cfg.IndexHeapSize = 1 << 12
	b, err := New(cfg)
	if err != nil {
		t.Skipf("WebGPU not available: %v", err)
	}
	t.Cleanup(b.Release)
	return b
}

func TestIsAvailable(t *testing.T) {
	t.Logf("WebGPU available: %v", IsAvailable())
}

func TestNew(t *testing.T) {
	b := newTestBackend(t)
	assert.NotEmpty(t, b.Name())
	if info := b.AdapterInfo(); info != nil {
		t.Logf("Using GPU: %s (%s)", info.Device, info.Vendor)
	}
}

func TestTransfersAndKernels(t *testing.T) {
	b := newTestBackend(t)
	t.Run("Fill", func(t *testing.T) {
		p := device.PtrAt(128)
		b.Fill(p, 300, 2.5)
		got := make([]float32, 300)
		require.NoError(t, b.ReadValues(got, p))
		for _, v := range got {
			require.Equal(t, float32(2.5), v)
		}
	})

	t.Run("Broadcast", func(t *testing.T) {
		src, dst := device.PtrAt(0), device.PtrAt(16)
		require.NoError(t, b.WriteValues(src, []float32{1, 2, 3, 4}))
		b.Broadcast(dst, src, 3, 4)
		got := make([]float32, 12)
		require.NoError(t, b.ReadValues(got, dst))
		assert.Equal(t, []float32{1, 2, 3, 4, 1, 2, 3, 4, 1, 2, 3, 4}, got)
	})

	t.Run("MatMul", func(t *testing.T) {
		w, x, y := device.PtrAt(1000), device.PtrAt(1100), device.PtrAt(1200)
		// W = [[1,3],[2,4]] column-major.
		require.NoError(t, b.WriteValues(w, []float32{1, 2, 3, 4}))
		require.NoError(t, b.WriteValues(x, []float32{1, 1, 0, 1}))
		b.MatMul(device.MatMulArgs{W: w, X: x, Y: y, Row: 2, Col: 2, Count: 2})
		got := make([]float32, 4)
		require.NoError(t, b.ReadValues(got, y))
		assert.Equal(t, []float32{4, 6, 3, 4}, got)
	})

	t.Run("SumSquares", func(t *testing.T) {
		a, c, dst := device.PtrAt(2000), device.PtrAt(2100), device.PtrAt(2200)
		require.NoError(t, b.WriteValues(a, []float32{3, 4}))
		require.NoError(t, b.WriteValues(c, []float32{12}))
		table, lens := device.IndexPtrAt(0), device.IndexPtrAt(8)
		require.NoError(t, b.WriteIndices(table, []uint32{uint32(a.Offset()), uint32(c.Offset())}))
		require.NoError(t, b.WriteIndices(lens, []uint32{2, 1}))
		b.SumSquares(dst, table, lens, 2, 2)
		got := make([]float32, 1)
		require.NoError(t, b.ReadValues(got, dst))
		assert.InDelta(t, 169, got[0], 1e-3)
		assert.InDelta(t, 13, math.Sqrt(float64(got[0])), 1e-4)
	})

	require.NoError(t, b.Synchronize())
}

func TestRejectedLaunchIsReported(t *testing.T) {
	b := newTestBackend(t)
	b.Fill(device.PtrAt(1<<16-1), 4, 1)
	require.Error(t, b.Synchronize())
	require.NoError(t, b.Synchronize())
}
