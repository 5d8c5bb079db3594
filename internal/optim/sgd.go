package optim

import (
	"fmt"

	"github.com/born-ml/dyntensor/internal/device"
	"github.com/born-ml/dyntensor/internal/tensor"
	"github.com/pkg/errors"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * (gradient + reg * param)
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient + reg * param
//	param = param - lr * velocity
//
// The velocity is kept in Param.AuxMean. As with Adam, weight decay only applies to matrices.
//
// Example:
//
//	optimizer := optim.NewSGD(ctx, params, optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
//
//	for epoch := range epochs {
//	    forwardBackward(batch)
//	    if _, err := optimizer.Step(); err != nil {
//	        return err
//	    }
//	    optimizer.ZeroGrad()
//	}
type SGD struct {
	ctx      *device.Context
	params   []*Param
	lr       float32
	momentum float32
	reg      float32
	maxNorm  float32
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
	Reg      float32 // L2 weight decay on matrices (default: 0)
	MaxNorm  float32 // Global gradient norm clip, 0 disables (default: 0)
}

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	sgd := optim.NewSGD(ctx, params, optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
func NewSGD(ctx *device.Context, params []*Param, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}

	return &SGD{
		ctx:      ctx,
		params:   params,
		lr:       config.LR,
		momentum: config.Momentum,
		reg:      config.Reg,
		maxNorm:  config.MaxNorm,
	}
}

// Step performs a single optimization step and returns the gradient norm before clipping.
func (s *SGD) Step() (float32, error) {
	norm, err := clipGrads(s.ctx, s.params, s.maxNorm)
	if err != nil {
		return 0, errors.WithMessage(err, "optim: SGD")
	}
	for _, p := range s.params {
		if err := p.updateSGD(s.ctx, s.lr, s.momentum, s.reg); err != nil {
			return norm, errors.WithMessagef(err, "optim: SGD: parameter %q", p.Name)
		}
	}
	return norm, nil
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	zeroGrads(s.params)
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
//
// Useful for learning rate scheduling during training.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}

// StateDict returns the optimizer state for serialization.
//
// For SGD with momentum, this exports velocity buffers for each parameter.
// Without momentum, returns an empty map.
//
// State keys: "velocity.{param_index}" -> velocity values.
func (s *SGD) StateDict() (map[string][]float32, error) {
	state := make(map[string][]float32)
	if s.momentum == 0 {
		return state, nil
	}
	for i, p := range s.params {
		if err := saveAux(p, p.AuxMean, state, fmt.Sprintf("velocity.%d", i)); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// LoadStateDict loads optimizer state from serialization.
//
// Restores velocity buffers for SGD with momentum. If momentum is 0,
// ignores the provided state (no velocities needed).
//
// Returns an error if a velocity size doesn't match its parameter.
func (s *SGD) LoadStateDict(state map[string][]float32) error {
	if s.momentum == 0 {
		return nil
	}
	for i, p := range s.params {
		if err := loadAux(p, p.AuxMean, state, fmt.Sprintf("velocity.%d", i)); err != nil {
			return err
		}
	}
	return nil
}

// saveAux downloads buf into state[key].
func saveAux(p *Param, buf *tensor.Tensor2D, state map[string][]float32, key string) error {
	if err := buf.CopyFromDeviceToHost(); err != nil {
		return errors.WithMessagef(err, "optim: saving %s of %q", key, p.Name)
	}
	state[key] = append([]float32(nil), buf.Values()...)
	return nil
}

// loadAux uploads state[key] into buf. A missing key leaves buf untouched.
func loadAux(p *Param, buf *tensor.Tensor2D, state map[string][]float32, key string) error {
	values, ok := state[key]
	if !ok {
		return nil
	}
	if len(values) != buf.Size() {
		return errors.Errorf("optim: %s size mismatch for parameter %q: expected %d, got %d",
			key, p.Name, buf.Size(), len(values))
	}
	if err := buf.SetSlice(values); err != nil {
		return errors.WithMessagef(err, "optim: loading %s of %q", key, p.Name)
	}
	return errors.WithMessagef(buf.CopyFromHostToDevice(), "optim: loading %s of %q", key, p.Name)
}
