package batch

import (
	"github.com/born-ml/dyntensor/internal/device"
	"github.com/pkg/errors"
)

// CopyFromOneVectorToMultiVectors writes count contiguous copies of the n elements at src
// into dest, which must hold count*n elements.
func CopyFromOneVectorToMultiVectors(ctx *device.Context, src, dest device.Ptr, count, n int) error {
	if count <= 0 || n <= 0 {
		return errors.Errorf("batch: CopyFromOneVectorToMultiVectors: invalid count %d or length %d", count, n)
	}
	if src.IsNil() || dest.IsNil() {
		return errors.New("batch: CopyFromOneVectorToMultiVectors: nil pointer")
	}
	ctx.Backend().Broadcast(dest, src, count, n)
	return nil
}

// CopyForUniNodeForward prepares the operands of a batched affine layer: the count inputs in
// xs are packed back to back into xsDest (count*xLen elements), and count copies of the bias
// b are written to bDest (count*bLen elements).
func CopyForUniNodeForward(ctx *device.Context, xs []device.Ptr, b device.Ptr, xsDest, bDest device.Ptr,
	count, xLen, bLen int) error {
	if count <= 0 || xLen <= 0 || bLen <= 0 {
		return errors.Errorf("batch: CopyForUniNodeForward: invalid count %d, x length %d or bias length %d",
			count, xLen, bLen)
	}
	if len(xs) != count {
		return errors.Errorf("batch: CopyForUniNodeForward: %d inputs for count %d", len(xs), count)
	}
	if b.IsNil() || xsDest.IsNil() || bDest.IsNil() {
		return errors.New("batch: CopyForUniNodeForward: nil pointer")
	}
	table, err := ToNumberPointerArray(ctx, xs)
	if err != nil {
		return err
	}
	defer table.Release()

	backend := ctx.Backend()
	backend.Gather(xsDest, table.Ptr(), count, xLen)
	backend.Broadcast(bDest, b, count, bLen)
	return nil
}
