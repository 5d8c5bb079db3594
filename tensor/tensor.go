// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/dyntensor/internal/device"
	"github.com/born-ml/dyntensor/internal/tensor"
)

// Tensor1D is a device vector with a host shadow.
type Tensor1D = tensor.Tensor1D

// Tensor2D is a column-major device matrix with a host shadow.
type Tensor2D = tensor.Tensor2D

// State records which side of a tensor holds the latest values.
type State = tensor.State

// Tensor states.
const (
	Synced      = tensor.Synced
	HostAhead   = tensor.HostAhead
	DeviceAhead = tensor.DeviceAhead
	Divergent   = tensor.Divergent
)

// NewTensor1D creates a zeroed vector of dimension dim.
//
// Example:
//
//	b, err := tensor.NewTensor1D(ctx, 64)
//	if err != nil {
//	    return err
//	}
//	defer b.Release()
func NewTensor1D(ctx *device.Context, dim int) (*Tensor1D, error) {
	return tensor.NewTensor1D(ctx, dim)
}

// NewTensor2D creates a zeroed row×col matrix.
func NewTensor2D(ctx *device.Context, row, col int) (*Tensor2D, error) {
	return tensor.NewTensor2D(ctx, row, col)
}
