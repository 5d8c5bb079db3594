// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package batch marshals per-instance device data into batched buffers.
//
// Many graph nodes of one operator type are evaluated with a single kernel launch. Their
// operands live in separate device allocations, so the batch is described by a pointer
// table uploaded to the device (a NumberPointerArray) or by copying the operands back to
// back into one contiguous buffer.
//
// Example:
//
//	b := batch.NewBuilder(len(nodes))
//	for _, n := range nodes {
//	    b.AddTensor(n.Output)
//	}
//	table, err := b.Build(ctx)
//	if err != nil {
//	    return err
//	}
//	defer table.Release()
package batch

import (
	"github.com/born-ml/dyntensor/internal/batch"
	"github.com/born-ml/dyntensor/internal/device"
)

// Element is the set of payload types a DeviceBuffer can hold.
type Element = batch.Element

// DeviceBuffer owns an index-heap allocation and its logical length.
type DeviceBuffer[T Element] = batch.DeviceBuffer[T]

// NumberPointerArray is a device table of value-heap pointers.
type NumberPointerArray = batch.NumberPointerArray

// IntPointerArray is a device table of index-heap pointers.
type IntPointerArray = batch.IntPointerArray

// IntArray is a device array of int32.
type IntArray = batch.IntArray

// Descriptor is the value passed to batched kernels: a table handle and its length.
type Descriptor = batch.Descriptor

// Builder accumulates per-instance pointers for a NumberPointerArray.
type Builder = batch.Builder

// DevicePointer is implemented by tensors that can contribute their storage to a Builder.
type DevicePointer = batch.DevicePointer

// NewBuilder returns an empty Builder with room for capacity pointers.
func NewBuilder(capacity int) *Builder {
	return batch.NewBuilder(capacity)
}

// ToNumberPointerArray uploads ptrs as a device pointer table.
func ToNumberPointerArray(ctx *device.Context, ptrs []device.Ptr) (*NumberPointerArray, error) {
	return batch.ToNumberPointerArray(ctx, ptrs)
}

// NewIntArray uploads values as a device int32 array.
func NewIntArray(ctx *device.Context, values []int) (*IntArray, error) {
	return batch.NewIntArray(ctx, values)
}

// NewIntPointerArray uploads a table of int array pointers.
func NewIntPointerArray(ctx *device.Context, arrays []*IntArray) (*IntPointerArray, error) {
	return batch.NewIntPointerArray(ctx, arrays)
}

// CopyFromOneVectorToMultiVectors writes count contiguous copies of the n elements at src
// to dest.
func CopyFromOneVectorToMultiVectors(ctx *device.Context, src, dest device.Ptr, count, n int) error {
	return batch.CopyFromOneVectorToMultiVectors(ctx, src, dest, count, n)
}

// CopyForUniNodeForward gathers the count inputs xs (xLen elements each) back to back into
// xsDest, and writes count copies of the bias b (bLen elements) into bDest.
func CopyForUniNodeForward(ctx *device.Context, xs []device.Ptr, b device.Ptr, xsDest, bDest device.Ptr,
	count, xLen, bLen int) error {
	return batch.CopyForUniNodeForward(ctx, xs, b, xsDest, bDest, count, xLen, bLen)
}
