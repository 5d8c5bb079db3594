package optim_test

import (
	"math"
	"testing"

	"github.com/born-ml/dyntensor/internal/backend/host"
	"github.com/born-ml/dyntensor/internal/device"
	"github.com/born-ml/dyntensor/internal/kernels"
	"github.com/born-ml/dyntensor/internal/optim"
	"github.com/born-ml/dyntensor/internal/tensor"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) *device.Context {
	t.Helper()
	cfg := device.DefaultConfig()
	cfg.Backend = host.Name
	cfg.HeapSize = 1 << 16
	cfg.IndexHeapSize = 1 << 10
	ctx := must.M1(device.New(cfg))
	t.Cleanup(func() { require.NoError(t, ctx.Close()) })
	return ctx
}

func newParam(t *testing.T, ctx *device.Context, name string, row, col int, values []float32) *optim.Param {
	t.Helper()
	p := must.M1(optim.NewParam(ctx, name, row, col))
	t.Cleanup(p.Release)
	if values != nil {
		upload(t, p.Val, values)
	}
	return p
}

func upload(t *testing.T, dst *tensor.Tensor2D, values []float32) {
	t.Helper()
	require.NoError(t, dst.SetSlice(values))
	require.NoError(t, dst.CopyFromHostToDevice())
}

func download(t *testing.T, src *tensor.Tensor2D) []float32 {
	t.Helper()
	require.NoError(t, src.CopyFromDeviceToHost())
	return append([]float32(nil), src.Values()...)
}

func TestNewParam(t *testing.T) {
	ctx := newTestContext(t)
	p := newParam(t, ctx, "w", 4, 3, nil)
	assert.Equal(t, 4, p.Row())
	assert.Equal(t, 3, p.Col())
	assert.Equal(t, 12, p.Size())
	assert.Equal(t, "w", p.Val.Name())
	assert.Equal(t, "w.grad", p.Grad.Name())
	assert.Equal(t, "w.mean", p.AuxMean.Name())
	assert.Equal(t, "w.square", p.AuxSquare.Name())
	assert.Equal(t, make([]float32, 12), download(t, p.Val))

	require.NoError(t, p.Init(0))
	bound := float32(math.Sqrt(6.0 / 7.0))
	assert.Equal(t, tensor.Synced, p.Val.State())
	nonZero := 0
	for _, v := range download(t, p.Val) {
		assert.LessOrEqual(t, float32(math.Abs(float64(v))), bound)
		if v != 0 {
			nonZero++
		}
	}
	assert.Positive(t, nonZero)
	assert.Equal(t, make([]float32, 12), download(t, p.Grad))
	assert.Zero(t, p.Iter)
}

func TestDefaults(t *testing.T) {
	ctx := newTestContext(t)
	assert.Equal(t, float32(0.001), optim.NewAdam(ctx, nil, optim.AdamConfig{}).GetLR())
	assert.Equal(t, float32(0.01), optim.NewSGD(ctx, nil, optim.SGDConfig{}).GetLR())

	var opt optim.Optimizer = optim.NewSGD(ctx, nil, optim.SGDConfig{LR: 0.5})
	assert.Equal(t, float32(0.5), opt.GetLR())
	norm, err := opt.Step()
	require.NoError(t, err)
	assert.Zero(t, norm)
}

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	ctx := newTestContext(t)
	x := newParam(t, ctx, "x", 1, 1, []float32{2})
	upload(t, x.Grad, []float32{1})

	optimizer := optim.NewSGD(ctx, []*optim.Param{x}, optim.SGDConfig{LR: 0.1})
	norm, err := optimizer.Step()
	require.NoError(t, err)
	assert.InDelta(t, 1, norm, 1e-6)

	// x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	assert.InDelta(t, 1.9, download(t, x.Val)[0], 1e-6)
}

// TestSGD_WithMomentum tests SGD with momentum.
func TestSGD_WithMomentum(t *testing.T) {
	ctx := newTestContext(t)
	x := newParam(t, ctx, "x", 1, 1, []float32{2})
	optimizer := optim.NewSGD(ctx, []*optim.Param{x}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	// Step 1: v = 1, x = 2.0 - 0.1*1 = 1.9
	// Step 2: v = 0.9*1 + 1 = 1.9, x = 1.9 - 0.1*1.9 = 1.71
	for range 2 {
		upload(t, x.Grad, []float32{1})
		_, err := optimizer.Step()
		require.NoError(t, err)
	}
	assert.InDelta(t, 1.71, download(t, x.Val)[0], 1e-5)
	assert.InDelta(t, 1.9, download(t, x.AuxMean)[0], 1e-5)
}

// TestSGD_Converges minimizes 0.5*||w - target||², whose gradient is w - target.
func TestSGD_Converges(t *testing.T) {
	ctx := newTestContext(t)
	target := []float32{0.5, -1, 0.25, 2, -0.75, 0}
	w := newParam(t, ctx, "w", 3, 2, nil)
	require.NoError(t, w.Init(0))

	optimizer := optim.NewSGD(ctx, []*optim.Param{w}, optim.SGDConfig{LR: 0.1})
	for range 300 {
		stepQuadratic(t, optimizer, w, target)
	}
	assert.InDeltaSlice(t, target, download(t, w.Val), 1e-3)
}

// TestAdam_Converges minimizes the same quadratic with a decaying learning rate.
func TestAdam_Converges(t *testing.T) {
	ctx := newTestContext(t)
	target := []float32{0.5, -1, 0.25, 1, -0.75, 0}
	w := newParam(t, ctx, "w", 3, 2, nil)
	require.NoError(t, w.Init(0))

	optimizer := optim.NewAdam(ctx, []*optim.Param{w}, optim.AdamConfig{
		LR:    0.1,
		Betas: [2]float32{0.9, 0.9},
	})
	for range 400 {
		stepQuadratic(t, optimizer, w, target)
		optimizer.SetLR(optimizer.GetLR() * 0.98)
	}
	assert.Equal(t, 400, optimizer.GetTimestep())
	assert.Equal(t, 400, w.Iter)
	assert.InDeltaSlice(t, target, download(t, w.Val), 0.05)
}

func stepQuadratic(t *testing.T, optimizer optim.Optimizer, w *optim.Param, target []float32) {
	t.Helper()
	val := download(t, w.Val)
	grad := make([]float32, len(val))
	for i := range val {
		grad[i] = val[i] - target[i]
	}
	upload(t, w.Grad, grad)
	_, err := optimizer.Step()
	require.NoError(t, err)
	optimizer.ZeroGrad()
}

// TestAdam_ClipAndUpdate checks one clipped step on a matrix and a bias against the host
// reference: weight decay only reaches the matrix.
func TestAdam_ClipAndUpdate(t *testing.T) {
	ctx := newTestContext(t)
	w := newParam(t, ctx, "w", 4, 3, nil)
	b := newParam(t, ctx, "b", 4, 1, nil)
	require.NoError(t, w.Init(1))
	require.NoError(t, b.Init(1))
	for _, p := range []*optim.Param{w, b} {
		p.Grad.Random(5)
		require.NoError(t, p.Grad.CopyFromHostToDevice())
	}

	wVal, bVal := download(t, w.Val), download(t, b.Val)
	wGrad, bGrad := download(t, w.Grad), download(t, b.Grad)
	wantNorm := kernels.ReferenceGlobalNorm(wGrad, bGrad)
	const maxNorm, reg = 1, 0.01
	require.Greater(t, wantNorm, float32(maxNorm))
	scale := maxNorm / wantNorm
	for _, g := range [][]float32{wGrad, bGrad} {
		for i := range g {
			g[i] *= scale
		}
	}
	kernels.ReferenceAdam(wVal, wGrad, make([]float32, 12), make([]float32, 12), 0, 0.9, 0.999, 0.01, reg, 1e-8)
	kernels.ReferenceAdam(bVal, bGrad, make([]float32, 4), make([]float32, 4), 0, 0.9, 0.999, 0.01, 0, 1e-8)

	optimizer := optim.NewAdam(ctx, []*optim.Param{w, b}, optim.AdamConfig{LR: 0.01, Reg: reg, MaxNorm: maxNorm})
	norm, err := optimizer.Step()
	require.NoError(t, err)
	assert.InEpsilon(t, wantNorm, norm, 1e-4)
	assert.InDeltaSlice(t, wVal, download(t, w.Val), 1e-5)
	assert.InDeltaSlice(t, bVal, download(t, b.Val), 1e-5)

	// The clipped gradient is left in place.
	assert.InDelta(t, float32(maxNorm), kernels.ReferenceGlobalNorm(download(t, w.Grad), download(t, b.Grad)), 1e-4)
	assert.Equal(t, 1, w.Iter)
	assert.Equal(t, 1, b.Iter)
}

func TestZeroGrad(t *testing.T) {
	ctx := newTestContext(t)
	p := newParam(t, ctx, "p", 2, 2, nil)
	upload(t, p.Grad, []float32{1, 2, 3, 4})

	optimizer := optim.NewAdam(ctx, []*optim.Param{p}, optim.AdamConfig{})
	optimizer.ZeroGrad()
	assert.Equal(t, tensor.Synced, p.Grad.State())
	assert.Equal(t, make([]float32, 4), p.Grad.Values())
	assert.Equal(t, make([]float32, 4), download(t, p.Grad))
}

func TestSGD_StateDict(t *testing.T) {
	ctx := newTestContext(t)
	p := newParam(t, ctx, "p", 2, 1, []float32{1, 1})
	upload(t, p.Grad, []float32{0.5, -0.5})
	sgd := optim.NewSGD(ctx, []*optim.Param{p}, optim.SGDConfig{Momentum: 0.9})
	_, err := sgd.Step()
	require.NoError(t, err)

	state := must.M1(sgd.StateDict())
	assert.Equal(t, map[string][]float32{"velocity.0": {0.5, -0.5}}, state)

	q := newParam(t, ctx, "q", 2, 1, nil)
	restored := optim.NewSGD(ctx, []*optim.Param{q}, optim.SGDConfig{Momentum: 0.9})
	require.NoError(t, restored.LoadStateDict(state))
	assert.Equal(t, []float32{0.5, -0.5}, download(t, q.AuxMean))

	assert.Error(t, restored.LoadStateDict(map[string][]float32{"velocity.0": {1}}))
	assert.Empty(t, must.M1(optim.NewSGD(ctx, []*optim.Param{p}, optim.SGDConfig{}).StateDict()))
}

func TestAdam_StateDict(t *testing.T) {
	ctx := newTestContext(t)
	p := newParam(t, ctx, "p", 1, 2, []float32{1, 1})
	upload(t, p.Grad, []float32{1, -2})
	adam := optim.NewAdam(ctx, []*optim.Param{p}, optim.AdamConfig{})
	_, err := adam.Step()
	require.NoError(t, err)

	state := must.M1(adam.StateDict())
	require.Len(t, state, 4)
	assert.InDeltaSlice(t, []float32{0.1, -0.2}, state["mean.0"], 1e-6)
	assert.InDeltaSlice(t, []float32{0.001, 0.004}, state["square.0"], 1e-6)
	assert.Equal(t, []float32{1}, state["iter.0"])
	assert.Equal(t, []float32{1}, state["timestep"])

	q := newParam(t, ctx, "q", 1, 2, nil)
	restored := optim.NewAdam(ctx, []*optim.Param{q}, optim.AdamConfig{})
	require.NoError(t, restored.LoadStateDict(state))
	assert.Equal(t, state["mean.0"], download(t, q.AuxMean))
	assert.Equal(t, state["square.0"], download(t, q.AuxSquare))
	assert.Equal(t, 1, q.Iter)
	assert.Equal(t, 1, restored.GetTimestep())

	bad := map[string][]float32{"iter.0": {1.5}}
	require.Error(t, restored.LoadStateDict(bad))
}

// A restored optimizer continues with the same bias correction as an uninterrupted one.
func TestAdam_StateDictResume(t *testing.T) {
	ctx := newTestContext(t)
	p := newParam(t, ctx, "p", 2, 2, []float32{1, 2, 3, 4})
	upload(t, p.Grad, []float32{0.5, -1, 2, -0.25})
	adam := optim.NewAdam(ctx, []*optim.Param{p}, optim.AdamConfig{LR: 0.1})
	for range 5 {
		must.M1(adam.Step())
	}
	state := must.M1(adam.StateDict())

	q := newParam(t, ctx, "q", 2, 2, download(t, p.Val))
	upload(t, q.Grad, download(t, p.Grad))
	restored := optim.NewAdam(ctx, []*optim.Param{q}, optim.AdamConfig{LR: 0.1})
	require.NoError(t, restored.LoadStateDict(state))

	must.M1(adam.Step())
	must.M1(restored.Step())
	assert.InDeltaSlice(t, download(t, p.Val), download(t, q.Val), 1e-6)
	assert.Equal(t, 6, p.Iter)
	assert.Equal(t, 6, q.Iter)
	assert.Equal(t, 6, restored.GetTimestep())
}
