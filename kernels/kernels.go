// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package kernels provides the batched numeric primitives used by graph evaluation.
//
// # Overview
//
//   - Tanh: elementwise tanh with its derivative, scattered to per-instance outputs
//   - MatrixMultiplyMatrix: one weight matrix against a batch of column vectors
//   - UpdateAdam, UpdateSGD: in-place optimizer steps on Tensor2D parameters
//   - RescaleGrads: global-norm gradient clipping
//
// All functions queue asynchronous kernels on the context stream, except RescaleGrads,
// which reads the gradient norm back. The Reference* functions compute the same results on
// host slices and are meant for checking device output.
package kernels

import (
	"github.com/born-ml/dyntensor/internal/device"
	"github.com/born-ml/dyntensor/internal/kernels"
	"github.com/born-ml/dyntensor/internal/tensor"
)

// Tanh computes dests[i][j] = tanh(src[i*n+j]) and dest2[i*n+j] = 1 - tanh² for every
// i < len(dests).
func Tanh(ctx *device.Context, src device.Ptr, dests []device.Ptr, dest2 device.Ptr, n int) error {
	return kernels.Tanh(ctx, src, dests, dest2, n)
}

// MatrixMultiplyMatrix computes y_i = W·x_i for i < count, adding to y when useb is set.
//
// Example (a batched affine layer):
//
//	batch.CopyForUniNodeForward(ctx, xs, b.Ptr(), x.OutPtr(), y.OutPtr(), count, col, row)
//	kernels.MatrixMultiplyMatrix(ctx, w.Ptr(), x.Ptr(), y.MutPtr(), row, col, count, true)
func MatrixMultiplyMatrix(ctx *device.Context, w, x, y device.Ptr, row, col, count int, useb bool) error {
	return kernels.MatrixMultiplyMatrix(ctx, w, x, y, row, col, count, useb)
}

// AdamLR returns the bias-corrected Adam step size for the 0-based iteration iter.
func AdamLR(alpha, beta1, beta2 float32, iter int) float32 {
	return kernels.AdamLR(alpha, beta1, beta2, iter)
}

// UpdateAdam applies one Adam step to val and increments *iter.
func UpdateAdam(ctx *device.Context, val, grad, mean, square *tensor.Tensor2D, iter *int,
	beta1, beta2, alpha, reg, eps float32) error {
	return kernels.UpdateAdam(ctx, val, grad, mean, square, iter, beta1, beta2, alpha, reg, eps)
}

// UpdateSGD applies one momentum SGD step to val.
func UpdateSGD(ctx *device.Context, val, grad, velocity *tensor.Tensor2D, lr, momentum, reg float32) error {
	return kernels.UpdateSGD(ctx, val, grad, velocity, lr, momentum, reg)
}

// RescaleGrads clips grads by their global L2 norm and returns the norm before clipping.
func RescaleGrads(ctx *device.Context, grads []device.Ptr, lens []int, maxScale float32) (float32, error) {
	return kernels.RescaleGrads(ctx, grads, lens, maxScale)
}

// ReferenceTanh is the host version of Tanh.
func ReferenceTanh(src []float32, dests [][]float32, dest2 []float32, n int) {
	kernels.ReferenceTanh(src, dests, dest2, n)
}

// ReferenceMatrixMultiplyMatrix is the host version of MatrixMultiplyMatrix.
func ReferenceMatrixMultiplyMatrix(w, x, y []float32, row, col, count int, useb bool) {
	kernels.ReferenceMatrixMultiplyMatrix(w, x, y, row, col, count, useb)
}

// ReferenceAdam is the host version of UpdateAdam on flat slices.
func ReferenceAdam(val, grad, mean, square []float32, iter int, beta1, beta2, alpha, reg, eps float32) {
	kernels.ReferenceAdam(val, grad, mean, square, iter, beta1, beta2, alpha, reg, eps)
}

// ReferenceSGD is the host version of UpdateSGD on flat slices.
func ReferenceSGD(val, grad, velocity []float32, lr, momentum, reg float32) {
	kernels.ReferenceSGD(val, grad, velocity, lr, momentum, reg)
}

// ReferenceGlobalNorm returns the L2 norm of the concatenation of bufs.
func ReferenceGlobalNorm(bufs ...[]float32) float32 {
	return kernels.ReferenceGlobalNorm(bufs...)
}
