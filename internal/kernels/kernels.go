// Package kernels implements the batched numeric primitives used by graph evaluation.
//
// Every function issues asynchronous kernels on the context stream and returns once they are
// queued, except RescaleGrads, which has to read the gradient norm back. Precondition
// failures are returned as errors before anything is issued.
package kernels

import (
	"math"

	"github.com/born-ml/dyntensor/internal/batch"
	"github.com/born-ml/dyntensor/internal/device"
	"github.com/born-ml/dyntensor/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Tanh computes dests[i][j] = tanh(src[i*n+j]) and dest2[i*n+j] = 1 - tanh²(src[i*n+j]) for
// every i < len(dests). src and dest2 hold len(dests)*n contiguous elements.
func Tanh(ctx *device.Context, src device.Ptr, dests []device.Ptr, dest2 device.Ptr, n int) error {
	if n <= 0 || len(dests) == 0 {
		return errors.Errorf("kernels: Tanh: invalid length %d for %d outputs", n, len(dests))
	}
	if src.IsNil() || dest2.IsNil() {
		return errors.New("kernels: Tanh: nil pointer")
	}
	table, err := batch.ToNumberPointerArray(ctx, dests)
	if err != nil {
		return err
	}
	defer table.Release()

	d := table.Descriptor()
	ctx.Backend().Tanh(src, d.Table, dest2, d.Len, n)
	return nil
}

// MatrixMultiplyMatrix computes y_i = W·x_i for i < count. W is column-major row×col, x holds
// count column vectors of length col and y count column vectors of length row. With useb the
// product is added to y, which then holds per-instance bias copies.
func MatrixMultiplyMatrix(ctx *device.Context, w, x, y device.Ptr, row, col, count int, useb bool) error {
	if row <= 0 || col <= 0 || count <= 0 {
		return errors.Errorf("kernels: MatrixMultiplyMatrix: invalid shape row=%d col=%d count=%d", row, col, count)
	}
	if w.IsNil() || x.IsNil() || y.IsNil() {
		return errors.New("kernels: MatrixMultiplyMatrix: nil pointer")
	}
	ctx.Backend().MatMul(device.MatMulArgs{
		W: w, X: x, Y: y,
		Row: row, Col: col, Count: count,
		Accumulate: useb,
	})
	return nil
}

// AdamLR returns the bias-corrected Adam step size for the 0-based iteration iter.
func AdamLR(alpha, beta1, beta2 float32, iter int) float32 {
	t := float64(iter + 1)
	b1 := 1 - math.Pow(float64(beta1), t)
	b2 := 1 - math.Pow(float64(beta2), t)
	return float32(float64(alpha) * math.Sqrt(b2) / b1)
}

// UpdateAdam applies one Adam step to val in place, updating the moment estimates mean and
// square, and increments *iter. The weight decay reg only applies to proper matrices (row > 1
// and col > 1). grad is read, not modified.
func UpdateAdam(ctx *device.Context, val, grad, mean, square *tensor.Tensor2D, iter *int,
	beta1, beta2, alpha, reg, eps float32) error {
	if iter == nil {
		return errors.New("kernels: UpdateAdam: nil iteration counter")
	}
	row, col := val.Row(), val.Col()
	for _, t := range []*tensor.Tensor2D{grad, mean, square} {
		if t.Row() != row || t.Col() != col {
			return errors.Errorf("kernels: UpdateAdam: %s does not match the value shape %dx%d", t, row, col)
		}
	}
	if row == 0 {
		return errors.New("kernels: UpdateAdam: uninitialized value")
	}
	if row <= 1 || col <= 1 {
		reg = 0
	}
	args := device.AdamArgs{
		Grad:  grad.Ptr(),
		N:     row * col,
		Beta1: beta1,
		Beta2: beta2,
		LRT:   AdamLR(alpha, beta1, beta2, *iter),
		Reg:   reg,
		Eps:   eps,
	}
	args.Val = val.MutPtr()
	args.Mean = mean.MutPtr()
	args.Square = square.MutPtr()
	ctx.Backend().Adam(args)
	*iter++
	return nil
}

// UpdateSGD applies one momentum SGD step to val in place, keeping the velocity in velocity:
// velocity = momentum*velocity + grad + reg*val, val -= lr*velocity. As in UpdateAdam, reg only
// applies to proper matrices. With momentum 0 this is plain SGD.
func UpdateSGD(ctx *device.Context, val, grad, velocity *tensor.Tensor2D, lr, momentum, reg float32) error {
	row, col := val.Row(), val.Col()
	for _, t := range []*tensor.Tensor2D{grad, velocity} {
		if t.Row() != row || t.Col() != col {
			return errors.Errorf("kernels: UpdateSGD: %s does not match the value shape %dx%d", t, row, col)
		}
	}
	if row == 0 {
		return errors.New("kernels: UpdateSGD: uninitialized value")
	}
	if row <= 1 || col <= 1 {
		reg = 0
	}
	args := device.SGDArgs{
		Grad:     grad.Ptr(),
		N:        row * col,
		LR:       lr,
		Momentum: momentum,
		Reg:      reg,
	}
	args.Val = val.MutPtr()
	args.Velocity = velocity.MutPtr()
	ctx.Backend().SGD(args)
	return nil
}

// RescaleGrads computes the global L2 norm of all grads (grads[i] holding lens[i] elements)
// and, when maxScale > 0 and the norm exceeds it, scales every buffer by maxScale/norm. It
// blocks until the norm is read back and returns the norm before clipping.
func RescaleGrads(ctx *device.Context, grads []device.Ptr, lens []int, maxScale float32) (float32, error) {
	if len(grads) != len(lens) {
		return 0, errors.Errorf("kernels: RescaleGrads: %d buffers with %d lengths", len(grads), len(lens))
	}
	if len(grads) == 0 {
		return 0, nil
	}
	maxLen := 0
	for i, n := range lens {
		if n <= 0 {
			return 0, errors.Errorf("kernels: RescaleGrads: invalid length %d for buffer %d", n, i)
		}
		maxLen = max(maxLen, n)
	}

	table, err := batch.ToNumberPointerArray(ctx, grads)
	if err != nil {
		return 0, err
	}
	defer table.Release()
	lengths, err := batch.NewIntArray(ctx, lens)
	if err != nil {
		return 0, err
	}
	defer lengths.Release()
	scratch, err := ctx.Alloc(1)
	if err != nil {
		return 0, errors.WithMessage(err, "kernels: RescaleGrads")
	}
	defer ctx.Free(scratch)

	backend := ctx.Backend()
	backend.SumSquares(scratch, table.Ptr(), lengths.Ptr(), len(grads), maxLen)
	var sum [1]float32
	if err := backend.ReadValues(sum[:], scratch); err != nil {
		return 0, errors.WithMessage(err, "kernels: RescaleGrads: reading the norm")
	}
	norm := float32(math.Sqrt(float64(sum[0])))
	if maxScale > 0 && norm > maxScale {
		scale := maxScale / norm
		klog.V(2).Infof("kernels: clipping gradients, norm %g > %g (scale %g)", norm, maxScale, scale)
		backend.ScaleBatch(table.Ptr(), lengths.Ptr(), len(grads), maxLen, scale)
	}
	return norm, nil
}
