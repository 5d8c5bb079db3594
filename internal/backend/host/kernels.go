package host

import (
	"math"

	"github.com/born-ml/dyntensor/internal/device"
	"github.com/born-ml/dyntensor/internal/parallel"
)

// Kernel bodies resolve every device pointer into a bounded slice on the stream goroutine
// before fanning out, so an out-of-range pointer fails the launch instead of a worker.

func (b *Backend) span(p device.Ptr, n int) []float32 {
	off := p.Offset()
	return b.values[off : off+n : off+n]
}

func (b *Backend) words(p device.IndexPtr, n int) []uint32 {
	off := p.Offset()
	return b.indices[off : off+n : off+n]
}

// table dereferences count value pointers stored at t, each addressing n elements.
func (b *Backend) table(t device.IndexPtr, count, n int) [][]float32 {
	offs := b.words(t, count)
	out := make([][]float32, count)
	for i, off := range offs {
		o := int(off)
		out[i] = b.values[o : o+n : o+n]
	}
	return out
}

// ragged dereferences count value pointers stored at t with per-buffer lengths stored at lens.
func (b *Backend) ragged(t, lens device.IndexPtr, count int) [][]float32 {
	offs := b.words(t, count)
	ns := b.words(lens, count)
	out := make([][]float32, count)
	for i, off := range offs {
		o, n := int(off), int(int32(ns[i])) //nolint:gosec // Lengths are uploaded from int32.
		out[i] = b.values[o : o+n : o+n]
	}
	return out
}

// Fill sets n elements at dst to value.
func (b *Backend) Fill(dst device.Ptr, n int, value float32) {
	b.launch("Fill", func() {
		d := b.span(dst, n)
		parallel.ForChunks(n, func(s, e int) {
			for i := s; i < e; i++ {
				d[i] = value
			}
		}, b.par)
	})
}

// Copy copies n elements from src to dst. The ranges must not overlap.
func (b *Backend) Copy(dst, src device.Ptr, n int) {
	b.launch("Copy", func() {
		copy(b.span(dst, n), b.span(src, n))
	})
}

// Broadcast writes count copies of the n elements at src to dst.
func (b *Backend) Broadcast(dst, src device.Ptr, count, n int) {
	b.launch("Broadcast", func() {
		s := b.span(src, n)
		d := b.span(dst, count*n)
		parallel.For(count, func(i int) {
			copy(d[i*n:(i+1)*n], s)
		}, b.par)
	})
}

// Gather packs the count buffers addressed by table back to back into dst.
func (b *Backend) Gather(dst device.Ptr, table device.IndexPtr, count, n int) {
	b.launch("Gather", func() {
		srcs := b.table(table, count, n)
		d := b.span(dst, count*n)
		parallel.For(count, func(i int) {
			copy(d[i*n:(i+1)*n], srcs[i])
		}, b.par)
	})
}

// Tanh scatters tanh(src) into the buffers addressed by table and writes 1-tanh² to dest2.
func (b *Backend) Tanh(src device.Ptr, table device.IndexPtr, dest2 device.Ptr, count, n int) {
	b.launch("Tanh", func() {
		s := b.span(src, count*n)
		dests := b.table(table, count, n)
		d2 := b.span(dest2, count*n)
		parallel.ForBatch(count, n, func(i, j int) {
			k := i*n + j
			y := float32(math.Tanh(float64(s[k])))
			dests[i][j] = y
			d2[k] = 1 - y*y
		}, b.par)
	})
}

// MatMul computes y_i = W·x_i (+ y_i) for count column vectors, all column-major.
func (b *Backend) MatMul(args device.MatMulArgs) {
	b.launch("MatMul", func() {
		row, col, count := args.Row, args.Col, args.Count
		w := b.span(args.W, row*col)
		x := b.span(args.X, col*count)
		y := b.span(args.Y, row*count)
		parallel.ForBatch(count, row, func(i, r int) {
			xi := x[i*col : (i+1)*col]
			var sum float32
			for c, xv := range xi {
				sum += w[r+c*row] * xv
			}
			if args.Accumulate {
				y[i*row+r] += sum
			} else {
				y[i*row+r] = sum
			}
		}, b.par)
	})
}

// Adam applies one Adam step in place to Val, Mean and Square.
func (b *Backend) Adam(args device.AdamArgs) {
	b.launch("Adam", func() {
		n := args.N
		val := b.span(args.Val, n)
		grad := b.span(args.Grad, n)
		mean := b.span(args.Mean, n)
		square := b.span(args.Square, n)
		parallel.ForChunks(n, func(s, e int) {
			for i := s; i < e; i++ {
				g := grad[i] + args.Reg*val[i]
				mean[i] = args.Beta1*mean[i] + (1-args.Beta1)*g
				square[i] = args.Beta2*square[i] + (1-args.Beta2)*g*g
				val[i] -= mean[i] * args.LRT / float32(math.Sqrt(float64(square[i]+args.Eps)))
			}
		}, b.par)
	})
}

// SGD applies one momentum SGD step in place to Val and Velocity.
func (b *Backend) SGD(args device.SGDArgs) {
	b.launch("SGD", func() {
		n := args.N
		val := b.span(args.Val, n)
		grad := b.span(args.Grad, n)
		velocity := b.span(args.Velocity, n)
		parallel.ForChunks(n, func(s, e int) {
			for i := s; i < e; i++ {
				velocity[i] = args.Momentum*velocity[i] + grad[i] + args.Reg*val[i]
				val[i] -= args.LR * velocity[i]
			}
		}, b.par)
	})
}

// SumSquares accumulates in float64 and stores the float32 result at dst.
func (b *Backend) SumSquares(dst device.Ptr, table, lens device.IndexPtr, count, _ int) {
	b.launch("SumSquares", func() {
		bufs := b.ragged(table, lens, count)
		out := b.span(dst, 1)
		var sum float64
		for _, buf := range bufs {
			for _, v := range buf {
				sum += float64(v) * float64(v)
			}
		}
		out[0] = float32(sum)
	})
}

// ScaleBatch multiplies every element of the addressed buffers by scale.
func (b *Backend) ScaleBatch(table, lens device.IndexPtr, count, _ int, scale float32) {
	b.launch("ScaleBatch", func() {
		bufs := b.ragged(table, lens, count)
		parallel.For(count, func(i int) {
			buf := bufs[i]
			for j := range buf {
				buf[j] *= scale
			}
		}, b.par)
	})
}
