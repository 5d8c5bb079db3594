package optim

import (
	"math"

	"github.com/born-ml/dyntensor/internal/device"
	"github.com/born-ml/dyntensor/internal/kernels"
	"github.com/born-ml/dyntensor/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Param is a trainable row×col matrix. Val, Grad and the two auxiliary buffers used by the
// optimizers share its shape and live on the device.
//
// AuxMean holds Adam's first moment (or the SGD velocity) and AuxSquare Adam's second moment.
// Iter counts the Adam steps applied to this parameter.
type Param struct {
	Name      string
	Val       *tensor.Tensor2D
	Grad      *tensor.Tensor2D
	AuxMean   *tensor.Tensor2D
	AuxSquare *tensor.Tensor2D
	Iter      int
}

// NewParam allocates a zeroed parameter and its optimizer state.
func NewParam(ctx *device.Context, name string, row, col int) (*Param, error) {
	p := &Param{Name: name}
	for _, slot := range []struct {
		t      **tensor.Tensor2D
		suffix string
	}{{&p.Val, ""}, {&p.Grad, ".grad"}, {&p.AuxMean, ".mean"}, {&p.AuxSquare, ".square"}} {
		t, err := tensor.NewTensor2D(ctx, row, col)
		if err != nil {
			p.Release()
			return nil, errors.WithMessagef(err, "optim: parameter %q", name)
		}
		t.SetName(name + slot.suffix)
		*slot.t = t
	}
	return p, nil
}

// Row returns the number of rows.
func (p *Param) Row() int { return p.Val.Row() }

// Col returns the number of columns.
func (p *Param) Col() int { return p.Val.Col() }

// Size returns the number of elements.
func (p *Param) Size() int { return p.Val.Size() }

// Init fills Val uniformly from [-bound, bound) and uploads it. A bound <= 0 selects the
// Xavier-uniform bound sqrt(6/(row+col)). Gradient and optimizer state are cleared.
func (p *Param) Init(bound float32) error {
	if bound <= 0 {
		bound = float32(math.Sqrt(6 / float64(p.Row()+p.Col())))
	}
	p.Val.Random(bound)
	if err := p.Val.CopyFromHostToDevice(); err != nil {
		return errors.WithMessagef(err, "optim: initializing %q", p.Name)
	}
	p.Grad.Zero()
	p.AuxMean.Zero()
	p.AuxSquare.Zero()
	p.Iter = 0
	klog.V(2).Infof("optim: initialized %q (%dx%d) with bound %g", p.Name, p.Row(), p.Col(), bound)
	return nil
}

// ClearGrad zeroes the gradient on both sides.
func (p *Param) ClearGrad() {
	p.Grad.Zero()
}

// Release frees all four buffers.
func (p *Param) Release() {
	for _, t := range []*tensor.Tensor2D{p.Val, p.Grad, p.AuxMean, p.AuxSquare} {
		if t != nil {
			t.Release()
		}
	}
}

// updateAdam applies one Adam step with this parameter's state.
func (p *Param) updateAdam(ctx *device.Context, beta1, beta2, lr, reg, eps float32) error {
	return kernels.UpdateAdam(ctx, p.Val, p.Grad, p.AuxMean, p.AuxSquare, &p.Iter, beta1, beta2, lr, reg, eps)
}

// updateSGD applies one SGD step, keeping the velocity in AuxMean.
func (p *Param) updateSGD(ctx *device.Context, lr, momentum, reg float32) error {
	return kernels.UpdateSGD(ctx, p.Val, p.Grad, p.AuxMean, lr, momentum, reg)
}
