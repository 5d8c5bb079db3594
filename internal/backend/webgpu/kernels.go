//go:build windows

package webgpu

import (
	"github.com/born-ml/dyntensor/internal/device"
	"github.com/pkg/errors"
)

// Pointer tables are only bounds-checked on their own range: the offsets stored in them
// live on the device and are resolved by the shader.

// Fill sets n elements at dst to value.
func (b *Backend) Fill(dst device.Ptr, n int, value float32) {
	if n == 0 {
		return
	}
	if err := b.checkValues("Fill", dst, n); err != nil {
		b.fail(err)
		return
	}
	x, y, stride := grid(n)
	p := new(params).u32(dst.Offset()).u32(n).u32(stride).f32(value)
	b.dispatch("fill", fillShader, p, false, x, y)
}

// Copy copies n elements from src to dst. The ranges must not overlap.
func (b *Backend) Copy(dst, src device.Ptr, n int) {
	if n == 0 {
		return
	}
	if err := b.checkValues("Copy", dst, n); err != nil {
		b.fail(err)
		return
	}
	if err := b.checkValues("Copy", src, n); err != nil {
		b.fail(err)
		return
	}
	x, y, stride := grid(n)
	p := new(params).u32(dst.Offset()).u32(src.Offset()).u32(n).u32(stride)
	b.dispatch("copy", copyShader, p, false, x, y)
}

// Broadcast writes count copies of the n elements at src to dst.
func (b *Backend) Broadcast(dst, src device.Ptr, count, n int) {
	total := count * n
	if total == 0 {
		return
	}
	if err := b.checkValues("Broadcast", src, n); err != nil {
		b.fail(err)
		return
	}
	if err := b.checkValues("Broadcast", dst, total); err != nil {
		b.fail(err)
		return
	}
	x, y, stride := grid(total)
	p := new(params).u32(dst.Offset()).u32(src.Offset()).u32(n).u32(total).u32(stride)
	b.dispatch("broadcast", broadcastShader, p, false, x, y)
}

// Gather packs the count buffers addressed by table back to back into dst.
func (b *Backend) Gather(dst device.Ptr, table device.IndexPtr, count, n int) {
	total := count * n
	if total == 0 {
		return
	}
	if err := b.checkIndices("Gather", table, count); err != nil {
		b.fail(err)
		return
	}
	if err := b.checkValues("Gather", dst, total); err != nil {
		b.fail(err)
		return
	}
	x, y, stride := grid(total)
	p := new(params).u32(dst.Offset()).u32(table.Offset()).u32(n).u32(total).u32(stride)
	b.dispatch("gather", gatherShader, p, true, x, y)
}

// Tanh scatters tanh(src) into the buffers addressed by table and writes 1-tanh² to dest2.
func (b *Backend) Tanh(src device.Ptr, table device.IndexPtr, dest2 device.Ptr, count, n int) {
	total := count * n
	if total == 0 {
		return
	}
	if err := b.checkValues("Tanh", src, total); err != nil {
		b.fail(err)
		return
	}
	if err := b.checkValues("Tanh", dest2, total); err != nil {
		b.fail(err)
		return
	}
	if err := b.checkIndices("Tanh", table, count); err != nil {
		b.fail(err)
		return
	}
	x, y, stride := grid(total)
	p := new(params).
		u32(src.Offset()).u32(table.Offset()).u32(dest2.Offset()).
		u32(n).u32(total).u32(stride)
	b.dispatch("tanh", tanhShader, p, true, x, y)
}

// MatMul computes y_i = W·x_i (+ y_i) for count column vectors, all column-major.
func (b *Backend) MatMul(args device.MatMulArgs) {
	total := args.Row * args.Count
	if total == 0 {
		return
	}
	for _, r := range []struct {
		p device.Ptr
		n int
	}{{args.W, args.Row * args.Col}, {args.X, args.Col * args.Count}, {args.Y, total}} {
		if err := b.checkValues("MatMul", r.p, r.n); err != nil {
			b.fail(err)
			return
		}
	}
	x, y, stride := grid(total)
	p := new(params).
		u32(args.W.Offset()).u32(args.X.Offset()).u32(args.Y.Offset()).
		u32(args.Row).u32(args.Col).u32(total).u32(stride).flag(args.Accumulate)
	b.dispatch("matmul", matmulShader, p, false, x, y)
}

// Adam applies one Adam step in place to Val, Mean and Square.
func (b *Backend) Adam(args device.AdamArgs) {
	if args.N == 0 {
		return
	}
	for _, ptr := range []device.Ptr{args.Val, args.Grad, args.Mean, args.Square} {
		if err := b.checkValues("Adam", ptr, args.N); err != nil {
			b.fail(err)
			return
		}
	}
	x, y, stride := grid(args.N)
	p := new(params).
		u32(args.Val.Offset()).u32(args.Grad.Offset()).u32(args.Mean.Offset()).u32(args.Square.Offset()).
		u32(args.N).u32(stride).
		f32(args.Beta1).f32(args.Beta2).f32(args.LRT).f32(args.Reg).f32(args.Eps)
	b.dispatch("adam", adamShader, p, false, x, y)
}

// SGD applies one momentum SGD step in place to Val and Velocity.
func (b *Backend) SGD(args device.SGDArgs) {
	if args.N == 0 {
		return
	}
	for _, ptr := range []device.Ptr{args.Val, args.Grad, args.Velocity} {
		if err := b.checkValues("SGD", ptr, args.N); err != nil {
			b.fail(err)
			return
		}
	}
	x, y, stride := grid(args.N)
	p := new(params).
		u32(args.Val.Offset()).u32(args.Grad.Offset()).u32(args.Velocity.Offset()).
		u32(args.N).u32(stride).
		f32(args.LR).f32(args.Momentum).f32(args.Reg)
	b.dispatch("sgd", sgdShader, p, false, x, y)
}

// SumSquares writes the sum of squares of count buffers into dst[0] using one workgroup.
func (b *Backend) SumSquares(dst device.Ptr, table, lens device.IndexPtr, count, _ int) {
	if err := b.checkValues("SumSquares", dst, 1); err != nil {
		b.fail(err)
		return
	}
	if count == 0 {
		b.Fill(dst, 1, 0)
		return
	}
	if err := b.checkIndices("SumSquares", table, count); err != nil {
		b.fail(err)
		return
	}
	if err := b.checkIndices("SumSquares", lens, count); err != nil {
		b.fail(err)
		return
	}
	p := new(params).u32(dst.Offset()).u32(table.Offset()).u32(lens.Offset()).u32(count)
	b.dispatch("sum_squares", sumSquaresShader, p, true, 1, 1)
}

// ScaleBatch multiplies count buffers by scale, one dispatch row per buffer.
func (b *Backend) ScaleBatch(table, lens device.IndexPtr, count, maxLen int, scale float32) {
	if count == 0 || maxLen == 0 {
		return
	}
	if err := b.checkIndices("ScaleBatch", table, count); err != nil {
		b.fail(err)
		return
	}
	if err := b.checkIndices("ScaleBatch", lens, count); err != nil {
		b.fail(err)
		return
	}
	groups := (maxLen + workgroupSize - 1) / workgroupSize
	if groups > maxWorkgroupsPerDim {
		b.fail(errors.Errorf("webgpu: ScaleBatch: buffer of %d elements exceeds the dispatch limit", maxLen))
		return
	}
	for start := 0; start < count; start += maxWorkgroupsPerDim {
		chunk := min(count-start, maxWorkgroupsPerDim)
		p := new(params).u32(table.Add(start).Offset()).u32(lens.Add(start).Offset()).u32(chunk).f32(scale)
		b.dispatch("scale_batch", scaleBatchShader, p, true, uint32(groups), uint32(chunk)) //nolint:gosec // Bounded above.
	}
}
