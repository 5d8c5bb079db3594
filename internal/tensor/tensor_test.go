package tensor

import (
	"math"
	"testing"

	"github.com/born-ml/dyntensor/internal/backend/host"
	"github.com/born-ml/dyntensor/internal/device"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/blas/blas32"
)

func newTestContext(t *testing.T, opts ...func(*device.Config)) *device.Context {
	t.Helper()
	cfg := device.DefaultConfig()
	cfg.Backend = host.Name
	cfg.HeapSize = 1 << 16
	cfg.IndexHeapSize = 1 << 12
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx := must.M1(device.New(cfg))
	t.Cleanup(func() { require.NoError(t, ctx.Close()) })
	return ctx
}

func TestInitErrors(t *testing.T) {
	ctx := newTestContext(t)

	_, err := NewTensor1D(ctx, 0)
	require.Error(t, err)
	_, err = NewTensor2D(ctx, 3, -1)
	require.Error(t, err)
	_, err = NewTensor1D(nil, 3)
	require.Error(t, err)

	v := must.M1(NewTensor1D(ctx, 4))
	defer v.Release()
	require.ErrorContains(t, v.Init(ctx, 4), "already initialized")
	assert.Equal(t, 4, v.Dim())
	assert.Equal(t, Synced, v.State())
	assert.Equal(t, []float32{0, 0, 0, 0}, v.Values())
}

func TestRoundTripIsBitExact(t *testing.T) {
	ctx := newTestContext(t)
	values := []float32{
		0, float32(math.Copysign(0, -1)), 1e-38, -3.4e38, float32(math.Inf(-1)),
		float32(math.NaN()), math.SmallestNonzeroFloat32, 0.1,
	}
	v := must.M1(NewTensor1D(ctx, len(values)))
	defer v.Release()

	require.NoError(t, v.SetSlice(values))
	assert.Equal(t, HostAhead, v.State())
	require.NoError(t, v.CopyFromHostToDevice())
	assert.Equal(t, Synced, v.State())

	v.SetScalar(7)
	require.NoError(t, v.CopyFromDeviceToHost())
	for i, want := range values {
		assert.Equal(t, math.Float32bits(want), math.Float32bits(v.At(i)), "element %d", i)
	}
}

func TestStateMachine(t *testing.T) {
	ctx := newTestContext(t)
	v := must.M1(NewTensor2D(ctx, 2, 3))
	defer v.Release()

	panics := func(fn func()) bool { return exceptions.TryCatch[error](fn) != nil }

	v.MutValues()[0] = 1
	assert.Equal(t, HostAhead, v.State())
	assert.True(t, panics(func() { v.Ptr() }), "kernel read of a HostAhead tensor")
	assert.True(t, panics(func() { v.MutPtr() }))
	assert.False(t, panics(func() { v.Values() }))

	v.OutPtr()
	assert.Equal(t, Divergent, v.State())
	assert.True(t, panics(func() { v.Values() }))
	assert.True(t, panics(func() { v.Ptr() }))

	require.NoError(t, v.CopyFromHostToDevice())
	assert.Equal(t, Synced, v.State())

	v.MutPtr()
	assert.Equal(t, DeviceAhead, v.State())
	assert.True(t, panics(func() { v.At(0, 0) }), "host read of a DeviceAhead tensor")
	assert.True(t, panics(func() { v.Mat() }))
	assert.False(t, panics(func() { v.Ptr() }))

	v.SetScalar(2)
	assert.Equal(t, Divergent, v.State())

	v.Zero()
	assert.Equal(t, Synced, v.State())

	v.Release()
	err := exceptions.TryCatch[error](func() { v.Ptr() })
	require.ErrorContains(t, err, "released")
}

func TestVerify(t *testing.T) {
	ctx := newTestContext(t)
	v := must.M1(NewTensor1D(ctx, 16))
	defer v.Release()
	v.SetName("bias")

	v.Random(1)
	require.NoError(t, v.CopyFromHostToDevice())
	require.NoError(t, v.Verify())

	v.MutValues()[3] += 0.005
	assert.Equal(t, HostAhead, v.State())
	require.NoError(t, v.Verify(), "differences within tolerance are accepted")
	assert.Equal(t, Synced, v.State())

	v.MutValues()[5] += 1
	diff, index, err := v.MaxDiff()
	require.NoError(t, err)
	assert.InDelta(t, 1, diff, 1e-6)
	assert.Equal(t, 5, index)

	err = exceptions.TryCatch[error](func() { _ = v.Verify() })
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bias"`)
}

func TestVerifyToleranceIsExclusive(t *testing.T) {
	ctx := newTestContext(t, func(cfg *device.Config) { cfg.VerifyTolerance = 0.5 })
	v := must.M1(NewTensor1D(ctx, 2))
	defer v.Release()

	require.NoError(t, v.SetSlice([]float32{1, 1}))
	require.NoError(t, v.CopyFromHostToDevice())
	v.MutValues()[1] = 1.25
	require.NoError(t, v.Verify())

	v.MutValues()[1] = 1.5
	err := exceptions.TryCatch[error](func() { _ = v.Verify() })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element 1")
}

func TestVerifyDisabled(t *testing.T) {
	ctx := newTestContext(t, func(cfg *device.Config) { cfg.Verify = false })
	v := must.M1(NewTensor1D(ctx, 4))
	defer v.Release()

	v.SetScalar(100)
	require.NotPanics(t, func() { require.NoError(t, v.Verify()) })
	assert.Equal(t, HostAhead, v.State())
}

func TestRandomIsSeeded(t *testing.T) {
	draw := func(seed uint64) []float32 {
		ctx := newTestContext(t, func(cfg *device.Config) { cfg.Seed = seed })
		v := must.M1(NewTensor1D(ctx, 32))
		defer v.Release()
		v.Random(0.5)
		out := append([]float32(nil), v.Values()...)
		for _, x := range out {
			require.GreaterOrEqual(t, x, float32(-0.5))
			require.Less(t, x, float32(0.5))
		}
		return out
	}
	assert.Equal(t, draw(7), draw(7))
	assert.NotEqual(t, draw(7), draw(8))
}

func TestTensor1DViews(t *testing.T) {
	ctx := newTestContext(t)
	v := must.M1(NewTensor1D(ctx, 3))
	defer v.Release()
	require.NoError(t, v.SetVector(blas32.Vector{N: 3, Data: []float32{1, 9, 2, 9, 3}, Inc: 2}))
	assert.Equal(t, []float32{1, 2, 3}, v.Values())

	m := v.Mat()
	assert.Equal(t, 3, m.Rows)
	assert.Equal(t, 1, m.Cols)
	tm := v.TMat()
	assert.Equal(t, 1, tm.Rows)
	assert.Equal(t, 3, tm.Cols)
	assert.InDelta(t, 14, blas32.Dot(v.Vec(), v.Vec()), 1e-6)

	// Views alias the host shadow.
	blas32.Scal(2, v.MutVec())
	assert.Equal(t, float32(6), v.At(2))
	assert.Equal(t, HostAhead, v.State())

	require.Error(t, v.SetVector(blas32.Vector{N: 2, Data: []float32{1, 2}, Inc: 1}))
	require.Error(t, v.SetSlice([]float32{1}))
}

func TestTensor2DLayout(t *testing.T) {
	ctx := newTestContext(t)
	m := must.M1(NewTensor2D(ctx, 2, 3))
	defer m.Release()

	require.NoError(t, m.SetRows([][]float32{
		{1, 2, 3},
		{4, 5, 6},
	}))
	// Column-major storage.
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, m.Values())
	assert.Equal(t, float32(6), m.At(1, 2))
	assert.Equal(t, []float32{2, 5}, m.Column(1))

	view := m.Mat()
	assert.Equal(t, 3, view.Rows)
	assert.Equal(t, 2, view.Cols)
	assert.Equal(t, float32(4), view.Data[0*view.Stride+1], "row 0 of the view is column 0")

	g := blas32.General{Rows: 2, Cols: 3, Stride: 3, Data: []float32{1, 2, 3, 4, 5, 6}}
	other := must.M1(NewTensor2D(ctx, 2, 3))
	defer other.Release()
	require.NoError(t, other.SetGeneral(g))
	assert.Equal(t, m.Values(), other.Values())

	require.Error(t, m.SetRows([][]float32{{1, 2, 3}}))
	require.Error(t, m.SetRows([][]float32{{1, 2}, {3, 4}}))
	require.Error(t, m.SetGeneral(blas32.General{Rows: 3, Cols: 2, Stride: 2, Data: make([]float32, 6)}))

	require.NoError(t, m.CopyFromHostToDevice())
	assert.Equal(t, m.Ptr().Add(4), m.ColPtr(2))

	for _, j := range []int{-1, 3} {
		err := exceptions.TryCatch[error](func() { _ = m.Column(j) })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
		err = exceptions.TryCatch[error](func() { _ = m.ColPtr(j) })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	}
}

func TestNorm2One(t *testing.T) {
	ctx := newTestContext(t)
	m := must.M1(NewTensor2D(ctx, 8, 5))
	defer m.Release()

	m.Random(3)
	m.Norm2One()
	for j := range m.Col() {
		column := blas32.Vector{N: m.Row(), Data: m.Column(j), Inc: 1}
		assert.InDelta(t, 1, blas32.Nrm2(column), 1e-4, "column %d", j)
	}
}

func TestSetFromTensor(t *testing.T) {
	ctx := newTestContext(t)
	a := must.M1(NewTensor2D(ctx, 2, 2))
	defer a.Release()
	b := must.M1(NewTensor2D(ctx, 2, 2))
	defer b.Release()
	c := must.M1(NewTensor2D(ctx, 4, 1))
	defer c.Release()

	require.NoError(t, a.SetSlice([]float32{1, 2, 3, 4}))
	require.NoError(t, b.Set(a))
	assert.Equal(t, a.Values(), b.Values())
	require.Error(t, c.Set(a))
}

func TestCloneMoveRelease(t *testing.T) {
	ctx := newTestContext(t)
	baseline := ctx.MemoryStats().Values.Live

	v := must.M1(NewTensor2D(ctx, 3, 2))
	require.NoError(t, v.SetSlice([]float32{1, 2, 3, 4, 5, 6}))
	require.NoError(t, v.CopyFromHostToDevice())
	v.SetAt(0, 0, 10)

	c := must.M1(v.Clone())
	assert.Equal(t, HostAhead, c.State())
	assert.Equal(t, v.Values(), c.Values())
	require.NoError(t, c.CopyFromDeviceToHost())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, c.Values(), "the device copy is cloned too")

	moved := v.Move()
	assert.False(t, v.Initialized())
	assert.Equal(t, 0, v.Row())
	assert.Equal(t, 3, moved.Row())
	assert.Equal(t, float32(10), moved.At(0, 0))
	assert.Equal(t, baseline+2, ctx.MemoryStats().Values.Live)

	require.NotPanics(t, v.Release, "releasing a moved-from tensor is a no-op")
	moved.Release()
	moved.Release()
	c.Release()
	assert.Equal(t, baseline, ctx.MemoryStats().Values.Live)
}

func TestZeroClearsBothSides(t *testing.T) {
	ctx := newTestContext(t)
	v := must.M1(NewTensor1D(ctx, 5))
	defer v.Release()

	v.SetScalar(3)
	require.NoError(t, v.CopyFromHostToDevice())
	v.Zero()
	assert.Equal(t, Synced, v.State())
	require.NoError(t, v.CopyFromDeviceToHost())
	assert.Equal(t, []float32{0, 0, 0, 0, 0}, v.Values())
	assert.Contains(t, v.String(), "Tensor1D[5]")
}
