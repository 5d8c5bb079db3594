package main

import (
	"fmt"
	"math"
	"time"

	"github.com/born-ml/dyntensor/batch"
	"github.com/born-ml/dyntensor/device"
	"github.com/born-ml/dyntensor/kernels"
	"github.com/born-ml/dyntensor/optim"
	"github.com/born-ml/dyntensor/tensor"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

// check runs one kernel on the device and returns the largest absolute difference from the
// host reference.
type check struct {
	name string
	run  func(ctx *device.Context, size int) float32
}

var checks = []check{
	{"round trip", checkRoundTrip},
	{"broadcast", checkBroadcast},
	{"tanh", checkTanh},
	{"uni-node forward", checkUniNodeForward},
	{"adam", checkAdam},
	{"sgd", checkSGD},
	{"rescale grads", checkRescaleGrads},
}

// selfCheck runs all checks and prints one line per check followed by the memory stats.
// Errors from the device panic and are reported by main.
func selfCheck(ctx *device.Context, size int) bool {
	defer func() { must.M(ctx.Close()) }()
	tol := ctx.Config().VerifyTolerance
	fmt.Printf("Backend: %s\n\n", ctx.Name())

	ok := true
	for _, c := range checks {
		start := time.Now()
		diff := c.run(ctx, size)
		must.M(ctx.Synchronize())
		status := "ok"
		if !(diff < tol) {
			status = "FAIL"
			ok = false
		}
		fmt.Printf("  %-18s %-4s max diff %-12g %s\n", c.name, status, diff, time.Since(start).Round(time.Microsecond))
	}
	fmt.Printf("\nMemory: %s\n", ctx.MemoryStats())
	return ok
}

func newRandom(ctx *device.Context, row, col int, bound float32) *tensor.Tensor2D {
	t := must.M1(tensor.NewTensor2D(ctx, row, col))
	t.Random(bound)
	must.M(t.CopyFromHostToDevice())
	return t
}

// deviceDiff loads want into the host shadow of t and compares it with the device copy.
func deviceDiff(t *tensor.Tensor2D, want []float32) float32 {
	must.M(t.SetSlice(want))
	diff, index, err := t.MaxDiff()
	must.M(err)
	if diff > 0 {
		klog.V(1).Infof("selfcheck: %s differs by %g at element %d", t, diff, index)
	}
	return diff
}

func checkRoundTrip(ctx *device.Context, size int) float32 {
	t := newRandom(ctx, size, size, 100)
	defer t.Release()
	want := append([]float32(nil), t.Values()...)
	t.Zero()
	must.M(t.SetSlice(want))
	must.M(t.CopyFromHostToDevice())
	must.M(t.CopyFromDeviceToHost())
	return maxAbsDiff(want, t.Values())
}

func checkBroadcast(ctx *device.Context, size int) float32 {
	src := newRandom(ctx, size, 1, 1)
	defer src.Release()
	dst := must.M1(tensor.NewTensor2D(ctx, size, size))
	defer dst.Release()

	must.M(batch.CopyFromOneVectorToMultiVectors(ctx, src.Ptr(), dst.OutPtr(), size, size))
	want := make([]float32, 0, size*size)
	for range size {
		want = append(want, src.Values()...)
	}
	return deviceDiff(dst, want)
}

func checkTanh(ctx *device.Context, size int) float32 {
	n, count := size, size/2+1
	src := newRandom(ctx, n, count, 3)
	defer src.Release()
	out := must.M1(tensor.NewTensor2D(ctx, n, count))
	defer out.Release()
	deriv := must.M1(tensor.NewTensor2D(ctx, n, count))
	defer deriv.Release()

	out.OutPtr()
	dests := make([]device.Ptr, count)
	for i := range dests {
		dests[i] = out.ColPtr(i)
	}
	must.M(kernels.Tanh(ctx, src.Ptr(), dests, deriv.OutPtr(), n))

	wantDests := make([][]float32, count)
	for i := range wantDests {
		wantDests[i] = make([]float32, n)
	}
	wantDeriv := make([]float32, n*count)
	kernels.ReferenceTanh(src.Values(), wantDests, wantDeriv, n)
	flat := make([]float32, 0, n*count)
	for _, d := range wantDests {
		flat = append(flat, d...)
	}
	return max(deviceDiff(out, flat), deviceDiff(deriv, wantDeriv))
}

// checkUniNodeForward evaluates count instances of W·x_i + b as one batched product.
func checkUniNodeForward(ctx *device.Context, size int) float32 {
	row, col, count := size, size/2+1, 8
	w := newRandom(ctx, row, col, 1)
	defer w.Release()
	b := newRandom(ctx, row, 1, 1)
	defer b.Release()
	builder := batch.NewBuilder(count)
	inputs := make([]*tensor.Tensor2D, count)
	for i := range inputs {
		inputs[i] = newRandom(ctx, col, 1, 1)
		defer inputs[i].Release()
		builder.AddTensor(inputs[i])
	}
	x := must.M1(tensor.NewTensor2D(ctx, col, count))
	defer x.Release()
	y := must.M1(tensor.NewTensor2D(ctx, row, count))
	defer y.Release()

	must.M(batch.CopyForUniNodeForward(ctx, builder.Pointers(), b.Ptr(), x.OutPtr(), y.OutPtr(), count, col, row))
	must.M(kernels.MatrixMultiplyMatrix(ctx, w.Ptr(), x.Ptr(), y.MutPtr(), row, col, count, true))

	xs := make([]float32, 0, col*count)
	want := make([]float32, 0, row*count)
	for _, in := range inputs {
		xs = append(xs, in.Values()...)
		want = append(want, b.Values()...)
	}
	kernels.ReferenceMatrixMultiplyMatrix(w.Values(), xs, want, row, col, count, true)
	return deviceDiff(y, want)
}

func checkAdam(ctx *device.Context, size int) float32 {
	p := must.M1(optim.NewParam(ctx, "w", size, size/2+1))
	defer p.Release()
	must.M(p.Init(0))
	p.Grad.Random(1)
	must.M(p.Grad.CopyFromHostToDevice())

	val := append([]float32(nil), p.Val.Values()...)
	mean, square := make([]float32, p.Size()), make([]float32, p.Size())
	opt := optim.NewAdam(ctx, []*optim.Param{p}, optim.AdamConfig{LR: 0.01, Reg: 1e-3})
	const steps = 3
	for i := range steps {
		must.M1(opt.Step())
		kernels.ReferenceAdam(val, p.Grad.Values(), mean, square, i, 0.9, 0.999, 0.01, 1e-3, 1e-8)
	}
	return deviceDiff(p.Val, val)
}

func checkSGD(ctx *device.Context, size int) float32 {
	p := must.M1(optim.NewParam(ctx, "w", size, size/2+1))
	defer p.Release()
	must.M(p.Init(0))
	p.Grad.Random(1)
	must.M(p.Grad.CopyFromHostToDevice())

	val := append([]float32(nil), p.Val.Values()...)
	velocity := make([]float32, p.Size())
	opt := optim.NewSGD(ctx, []*optim.Param{p}, optim.SGDConfig{LR: 0.05, Momentum: 0.9, Reg: 1e-3})
	for range 3 {
		must.M1(opt.Step())
		kernels.ReferenceSGD(val, p.Grad.Values(), velocity, 0.05, 0.9, 1e-3)
	}
	return deviceDiff(p.Val, val)
}

// checkRescaleGrads clips to half the global norm and compares the norms before and after.
func checkRescaleGrads(ctx *device.Context, size int) float32 {
	grads := make([]*tensor.Tensor2D, 4)
	ptrs := make([]device.Ptr, len(grads))
	lens := make([]int, len(grads))
	host := make([][]float32, len(grads))
	for i := range grads {
		grads[i] = newRandom(ctx, size+i, 1, 2)
		defer grads[i].Release()
		host[i] = grads[i].Values()
		lens[i] = grads[i].Size()
	}
	want := kernels.ReferenceGlobalNorm(host...)
	for i, g := range grads {
		ptrs[i] = g.MutPtr()
	}
	norm := must.M1(kernels.RescaleGrads(ctx, ptrs, lens, want/2))

	after := make([][]float32, len(grads))
	for i, g := range grads {
		must.M(g.CopyFromDeviceToHost())
		after[i] = g.Values()
	}
	return max(abs(norm-want), abs(kernels.ReferenceGlobalNorm(after...)-want/2))
}

// maxAbsDiff returns the largest |a[i]-b[i]|, or +Inf when the lengths differ or a value is
// NaN.
func maxAbsDiff(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}
	var diff float32
	for i := range a {
		d := abs(a[i] - b[i])
		if math.IsNaN(float64(d)) {
			return float32(math.Inf(1))
		}
		diff = max(diff, d)
	}
	return diff
}

func abs(x float32) float32 {
	return float32(math.Abs(float64(x)))
}
