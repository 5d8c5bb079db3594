// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides device-resident vectors and matrices with a host shadow.
//
// # Overview
//
// Every tensor owns two copies of its data: device storage that kernels read and write,
// and a host shadow that Go code reads and writes. Nothing keeps them coherent
// automatically; CopyFromHostToDevice and CopyFromDeviceToHost are the only transfer
// points.
//
//   - Tensor1D: a vector of fixed dimension
//   - Tensor2D: a column-major matrix; column j is contiguous on the device
//
// # Basic Usage
//
//	ctx, _ := device.New(device.DefaultConfig())
//	defer ctx.Close()
//
//	w, _ := tensor.NewTensor2D(ctx, 3, 2)
//	defer w.Release()
//
//	w.Random(0.1)                         // Host shadow only.
//	_ = w.CopyFromHostToDevice()          // Now Synced.
//	kernels.UpdateAdam(ctx, w, ...)       // Device ahead of host.
//	_ = w.CopyFromDeviceToHost()          // Synced again.
//	fmt.Println(w.At(0, 1))
//
// # Staged State
//
// A tensor tracks which side was last written:
//
//	Synced      both sides agree
//	HostAhead   host written since the last transfer
//	DeviceAhead device written since the last transfer
//	Divergent   both written independently
//
// Host reads require Synced or HostAhead; device reads require Synced or DeviceAhead.
// Reading a stale side panics, naming the tensor and the operation.
//
// # Views
//
// Vec, Mat and TMat return gonum blas32 views over the host shadow, without copying. For a
// Tensor2D, Mat returns the column-major storage as a row-major blas32.General with
// Rows=col and Cols=row: row k of the view is column k of the tensor.
//
// # Verification
//
// Verify compares the host shadow with the device copy within the context tolerance and
// panics on divergence. It is a no-op when the context was created with Verify disabled.
package tensor
