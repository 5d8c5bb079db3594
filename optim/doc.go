// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms over device-resident parameters.
//
// # Overview
//
// This package contains:
//   - Param: value, gradient and optimizer state of one trainable matrix
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation with bias correction
//   - Optimizer interface for custom optimizers
//
// Parameters and their state never leave the device during training. The graph's backward
// pass writes Param.Grad; Step clips all gradients by their global norm when MaxNorm is
// set, then launches one update kernel per parameter.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/dyntensor/device"
//	    "github.com/born-ml/dyntensor/optim"
//	)
//
//	func main() {
//	    ctx, _ := device.New(device.DefaultConfig())
//	    defer ctx.Close()
//
//	    w, _ := optim.NewParam(ctx, "w", 10, 784)
//	    _ = w.Init(0)
//
//	    optimizer := optim.NewAdam(ctx, []*optim.Param{w}, optim.AdamConfig{
//	        LR:    0.001,
//	        Betas: [2]float32{0.9, 0.999},
//	    })
//	}
//
// # Optimizers
//
// SGD (Stochastic Gradient Descent):
//
//	optimizer := optim.NewSGD(ctx, params, optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
//
// Adam (Adaptive Moment Estimation):
//
//	optimizer := optim.NewAdam(ctx, params, optim.AdamConfig{
//	    LR:      0.001,
//	    Betas:   [2]float32{0.9, 0.999},
//	    Eps:     1e-8,
//	    Reg:     1e-4,
//	    MaxNorm: 5,
//	})
//
// Weight decay (Reg) only applies to matrices; bias vectors are left undecayed.
//
// # Training Loop Pattern
//
//	for epoch := range numEpochs {
//	    for batch := range dataLoader {
//	        // 1. Zero gradients
//	        optimizer.ZeroGrad()
//
//	        // 2. Forward and backward pass on the device, writing Param.Grad
//	        forwardBackward(batch)
//
//	        // 3. Update parameters
//	        norm, err := optimizer.Step()
//	        if err != nil {
//	            return err
//	        }
//	    }
//	}
package optim
