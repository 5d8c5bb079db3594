package device_test

import (
	"testing"

	"github.com/born-ml/dyntensor/internal/backend/host"
	"github.com/born-ml/dyntensor/internal/device"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() device.Config {
	cfg := device.DefaultConfig()
	cfg.Backend = host.Name
	cfg.HeapSize = 64
	cfg.IndexHeapSize = 16
	return cfg
}

func TestNew(t *testing.T) {
	assert.Contains(t, device.Backends(), host.Name)

	ctx := must.M1(device.New(testConfig()))
	assert.Equal(t, "host (emulated)", ctx.Name())
	assert.Equal(t, host.Name, ctx.Config().Backend)
	require.NoError(t, ctx.Close())
	require.NoError(t, ctx.Close(), "second Close is a no-op")

	_, err := device.New(device.Config{Backend: host.Name})
	assert.Error(t, err, "zero heap sizes")

	cfg := testConfig()
	cfg.Backend = "no-such-backend"
	_, err = device.New(cfg)
	assert.ErrorContains(t, err, "unknown backend")
}

func TestAllocFree(t *testing.T) {
	ctx := must.M1(device.New(testConfig()))
	defer func() { require.NoError(t, ctx.Close()) }()

	p := must.M1(ctx.Alloc(48))
	assert.Equal(t, 48, ctx.Len(p))
	assert.Zero(t, ctx.Len(device.Ptr{}))

	_, err := ctx.Alloc(17)
	assert.True(t, errors.Is(err, device.ErrOutOfMemory))

	idx := must.M1(ctx.AllocIndex(16))
	_, err = ctx.AllocIndex(1)
	assert.True(t, errors.Is(err, device.ErrOutOfMemory))

	stats := ctx.MemoryStats()
	assert.Equal(t, 48, stats.Values.InUse)
	assert.Equal(t, 16, stats.Indices.InUse)

	ctx.Free(p)
	ctx.FreeIndex(idx)
	stats = ctx.MemoryStats()
	assert.Zero(t, stats.Values.Live)
	assert.Zero(t, stats.Indices.Live)

	err = exceptions.TryCatch[error](func() { ctx.Free(p) })
	assert.ErrorContains(t, err, "unknown offset")
}

func TestTransfersAndKernels(t *testing.T) {
	ctx := must.M1(device.New(testConfig()))
	defer func() { require.NoError(t, ctx.Close()) }()
	backend := ctx.Backend()

	p := must.M1(ctx.Alloc(8))
	require.NoError(t, backend.WriteValues(p, []float32{1, 2, 3, 4}))
	backend.Broadcast(p.Add(4), p, 2, 2)
	require.NoError(t, ctx.Synchronize())

	got := make([]float32, 8)
	require.NoError(t, backend.ReadValues(got, p))
	assert.Equal(t, []float32{1, 2, 3, 4, 1, 2, 1, 2}, got)

	idx := must.M1(ctx.AllocIndex(3))
	require.NoError(t, backend.WriteIndices(idx, []uint32{7, 8, 9}))
	words := make([]uint32, 3)
	require.NoError(t, backend.ReadIndices(words, idx))
	assert.Equal(t, []uint32{7, 8, 9}, words)
}

func TestAsyncFailure(t *testing.T) {
	ctx := must.M1(device.New(testConfig()))
	defer func() { _ = ctx.Close() }()
	backend := ctx.Backend()

	// The launch itself returns; the out-of-range copy fails on the stream.
	backend.Copy(device.PtrAt(60), device.PtrAt(0), 10)
	err := ctx.Synchronize()
	require.Error(t, err)
	assert.ErrorContains(t, err, "Copy")

	// The failure is reported once.
	require.NoError(t, ctx.Synchronize())

	// And it takes precedence over the next blocking transfer.
	backend.Fill(device.PtrAt(63), 2, 1)
	err = backend.ReadValues(make([]float32, 1), device.PtrAt(0))
	assert.ErrorContains(t, err, "Fill")
}

func TestClosedContext(t *testing.T) {
	ctx := must.M1(device.New(testConfig()))
	require.NoError(t, ctx.Close())
	err := exceptions.TryCatch[error](func() { ctx.Backend() })
	assert.ErrorContains(t, err, "closed Context")
}

func TestInit(t *testing.T) {
	cfg := testConfig()
	first, err := device.Init(cfg)
	require.NoError(t, err)
	assert.Same(t, first, device.Default())

	cfg.Seed++
	second, err := device.Init(cfg)
	require.NoError(t, err)
	assert.Same(t, first, second, "repeated Init keeps the first Context")
	assert.Equal(t, testConfig().Seed, second.Config().Seed)
}
