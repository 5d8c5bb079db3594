// Package optim implements optimization algorithms over device-resident parameters.
//
// This package provides:
//   - Param: a trainable matrix with its gradient and optimizer state, all on the device
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Gradients are accumulated into Param.Grad by the graph's backward pass. Step optionally
// clips them by their global norm, then updates every parameter with one kernel launch per
// parameter.
//
// Example usage:
//
//	w, _ := optim.NewParam(ctx, "w", outDim, inDim)
//	_ = w.Init(0) // Xavier-uniform bound
//	optimizer := optim.NewAdam(ctx, []*optim.Param{w}, optim.AdamConfig{
//	    LR:      0.001,
//	    MaxNorm: 10,
//	})
//
//	for step := range steps {
//	    forwardBackward(w) // Writes w.Grad on the device.
//	    norm, err := optimizer.Step()
//	    ...
//	    optimizer.ZeroGrad()
//	}
package optim

import (
	"github.com/born-ml/dyntensor/internal/device"
	"github.com/born-ml/dyntensor/internal/kernels"
)

// Optimizer is the base interface for all optimization algorithms.
//
// All optimizers must implement:
//   - Step: Apply gradient updates to parameters
//   - ZeroGrad: Clear gradients before next iteration
//   - GetLR: Get current learning rate (for monitoring/scheduling)
type Optimizer interface {
	// Step applies the accumulated gradients to all parameters and returns the global
	// gradient norm before clipping.
	//
	// Example:
	//   norm, err := optimizer.Step()
	Step() (float32, error)

	// ZeroGrad clears all parameter gradients.
	//
	// This should be called before each backward pass to prevent
	// gradient accumulation from previous iterations.
	ZeroGrad()

	// GetLR returns the current learning rate.
	//
	// Useful for monitoring and learning rate scheduling.
	GetLR() float32
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float32 // Learning rate
}

// clipGrads computes the global gradient norm of params and rescales their gradients to
// maxNorm when it is exceeded (maxNorm <= 0 disables clipping).
func clipGrads(ctx *device.Context, params []*Param, maxNorm float32) (float32, error) {
	grads := make([]device.Ptr, len(params))
	lens := make([]int, len(params))
	for i, p := range params {
		if maxNorm > 0 {
			grads[i] = p.Grad.MutPtr()
		} else {
			grads[i] = p.Grad.Ptr()
		}
		lens[i] = p.Grad.Size()
	}
	return kernels.RescaleGrads(ctx, grads, lens, maxNorm)
}

// zeroGrads clears the gradients of params.
func zeroGrads(params []*Param) {
	for _, p := range params {
		p.ClearGrad()
	}
}
