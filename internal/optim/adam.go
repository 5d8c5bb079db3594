package optim

import (
	"fmt"

	"github.com/born-ml/dyntensor/internal/device"
	"github.com/pkg/errors"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer on device-resident
// parameters.
//
// Update rule, per element, with t the parameter's own 1-based step count:
//
//	g     = grad + reg * param                                  // matrices only
//	m_t   = beta1 * m_{t-1} + (1-beta1) * g                     // First moment (AuxMean)
//	v_t   = beta2 * v_{t-1} + (1-beta2) * g²                    // Second moment (AuxSquare)
//	lr_t  = lr * sqrt(1 - beta2^t) / (1 - beta1^t)              // Bias correction
//	param = param - lr_t * m_t / sqrt(v_t + eps)                // Parameter update
//
// The bias correction is folded into the step size, so eps sits under the square root.
// Weight decay is skipped for vectors (biases).
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
//
// Example:
//
//	optimizer := optim.NewAdam(ctx, params, optim.AdamConfig{
//	    LR:      0.001,
//	    Betas:   [2]float32{0.9, 0.999},
//	    Eps:     1e-8,
//	    MaxNorm: 10,
//	})
//
//	for epoch := range epochs {
//	    forwardBackward(batch)
//	    if _, err := optimizer.Step(); err != nil {
//	        return err
//	    }
//	    optimizer.ZeroGrad()
//	}
type Adam struct {
	ctx     *device.Context
	params  []*Param
	lr      float32
	beta1   float32
	beta2   float32
	eps     float32
	reg     float32
	maxNorm float32
	t       int // Steps taken by this optimizer
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR      float32    // Learning rate (default: 0.001)
	Betas   [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps     float32    // Term for numerical stability (default: 1e-8)
	Reg     float32    // L2 weight decay on matrices (default: 0)
	MaxNorm float32    // Global gradient norm clip, 0 disables (default: 0)
}

// NewAdam creates a new Adam optimizer.
//
// Default hyperparameters:
//   - LR: 0.001
//   - Beta1: 0.9
//   - Beta2: 0.999
//   - Eps: 1e-8
func NewAdam(ctx *device.Context, params []*Param, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam{
		ctx:     ctx,
		params:  params,
		lr:      config.LR,
		beta1:   config.Betas[0],
		beta2:   config.Betas[1],
		eps:     config.Eps,
		reg:     config.Reg,
		maxNorm: config.MaxNorm,
	}
}

// Step performs a single optimization step.
//
//  1. Compute the global gradient norm, clipping to MaxNorm when configured
//  2. Launch one Adam update per parameter
//
// The updates are queued on the device stream. The returned norm is the one before clipping.
func (a *Adam) Step() (float32, error) {
	norm, err := clipGrads(a.ctx, a.params, a.maxNorm)
	if err != nil {
		return 0, errors.WithMessage(err, "optim: Adam")
	}
	for _, p := range a.params {
		if err := p.updateAdam(a.ctx, a.beta1, a.beta2, a.lr, a.reg, a.eps); err != nil {
			return norm, errors.WithMessagef(err, "optim: Adam: parameter %q", p.Name)
		}
	}
	a.t++
	return norm, nil
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam) ZeroGrad() {
	zeroGrads(a.params)
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
//
// Useful for learning rate scheduling during training.
func (a *Adam) SetLR(lr float32) {
	a.lr = lr
}

// GetTimestep returns the current timestep.
//
// Useful for monitoring optimizer state.
func (a *Adam) GetTimestep() int {
	return a.t
}

// StateDict downloads the moment estimates and the step counters.
//
// State keys: "mean.{param_index}", "square.{param_index}", "iter.{param_index}" and
// "timestep". Counters are stored as one-element slices.
func (a *Adam) StateDict() (map[string][]float32, error) {
	state := make(map[string][]float32, 3*len(a.params)+1)
	for i, p := range a.params {
		if err := saveAux(p, p.AuxMean, state, fmt.Sprintf("mean.%d", i)); err != nil {
			return nil, err
		}
		if err := saveAux(p, p.AuxSquare, state, fmt.Sprintf("square.%d", i)); err != nil {
			return nil, err
		}
		state[fmt.Sprintf("iter.%d", i)] = []float32{float32(p.Iter)}
	}
	state["timestep"] = []float32{float32(a.t)}
	return state, nil
}

// LoadStateDict restores state saved by StateDict. Parameters missing from state keep their
// current moments and counters.
func (a *Adam) LoadStateDict(state map[string][]float32) error {
	for i, p := range a.params {
		if err := loadAux(p, p.AuxMean, state, fmt.Sprintf("mean.%d", i)); err != nil {
			return err
		}
		if err := loadAux(p, p.AuxSquare, state, fmt.Sprintf("square.%d", i)); err != nil {
			return err
		}
		if err := loadCounter(state, fmt.Sprintf("iter.%d", i), &p.Iter); err != nil {
			return err
		}
	}
	return loadCounter(state, "timestep", &a.t)
}

// loadCounter sets *counter from state[key]. A missing key leaves it untouched.
func loadCounter(state map[string][]float32, key string, counter *int) error {
	values, ok := state[key]
	if !ok {
		return nil
	}
	if len(values) != 1 || values[0] < 0 || values[0] != float32(int(values[0])) {
		return errors.Errorf("optim: invalid counter %s: %v", key, values)
	}
	*counter = int(values[0])
	return nil
}
