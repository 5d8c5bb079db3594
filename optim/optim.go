// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/dyntensor/internal/device"
	"github.com/born-ml/dyntensor/internal/optim"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Config represents the base configuration for optimizers.
type Config = optim.Config

// Param is a trainable matrix with its gradient and optimizer state on the device.
type Param = optim.Param

// NewParam allocates a zeroed parameter and its optimizer state.
//
// Example:
//
//	w, err := optim.NewParam(ctx, "w", 128, 64)
//	if err != nil {
//	    return err
//	}
//	defer w.Release()
//	_ = w.Init(0) // Xavier-uniform bound.
func NewParam(ctx *device.Context, name string, row, col int) (*Param, error) {
	return optim.NewParam(ctx, name, row, col)
}

// SGD (Stochastic Gradient Descent)

// SGD represents the SGD optimizer with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	optimizer := optim.NewSGD(ctx, params, optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
func NewSGD(ctx *device.Context, params []*Param, config SGDConfig) *SGD {
	return optim.NewSGD(ctx, params, config)
}

// Adam (Adaptive Moment Estimation)

// Adam represents the Adam optimizer.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer with bias correction.
//
// Example:
//
//	optimizer := optim.NewAdam(ctx, params, optim.AdamConfig{
//	    LR:      0.001,
//	    Betas:   [2]float32{0.9, 0.999},
//	    MaxNorm: 5,
//	})
func NewAdam(ctx *device.Context, params []*Param, config AdamConfig) *Adam {
	return optim.NewAdam(ctx, params, config)
}
