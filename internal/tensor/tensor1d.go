// Package tensor implements device tensors paired with a host shadow.
//
// A tensor owns one allocation in the device value heap and a host slice of the same length.
// Neither side is kept coherent automatically: values move only through
// CopyFromHostToDevice and CopyFromDeviceToHost. Each tensor tracks which side holds the
// latest values (see State) and panics when an accessor would read stale data.
//
// Views returned by Vec, Mat and TMat alias the host shadow and follow the gonum blas32
// conventions, so host reference computations can be written with blas32 directly.
package tensor

import (
	"github.com/born-ml/dyntensor/internal/device"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas/blas32"
)

// Tensor1D is a device vector of fixed length with a host shadow.
//
// The zero value is empty; call Init before use. A Tensor1D must not be copied: use Clone
// for a deep copy and Move to transfer ownership.
type Tensor1D struct {
	storage
}

// NewTensor1D returns an initialized, zeroed Tensor1D of length dim.
func NewTensor1D(ctx *device.Context, dim int) (*Tensor1D, error) {
	t := &Tensor1D{}
	if err := t.Init(ctx, dim); err != nil {
		return nil, err
	}
	return t, nil
}

// Init allocates dim elements on the device and the host. Both sides start zeroed.
func (t *Tensor1D) Init(ctx *device.Context, dim int) error {
	return t.init(ctx, 1, dim, 1)
}

// Dim returns the length, 0 before Init.
func (t *Tensor1D) Dim() int { return len(t.host) }

// At returns element i of the host shadow.
func (t *Tensor1D) At(i int) float32 {
	t.requireHost("At")
	return t.host[i]
}

// SetAt assigns element i of the host shadow.
func (t *Tensor1D) SetAt(i int, v float32) {
	t.hostWrite("SetAt")
	t.host[i] = v
}

// Vec returns the host shadow as a blas32 vector.
func (t *Tensor1D) Vec() blas32.Vector {
	t.requireHost("Vec")
	return t.vec()
}

// MutVec returns the host shadow as a writable blas32 vector.
func (t *Tensor1D) MutVec() blas32.Vector {
	t.hostWrite("MutVec")
	return t.vec()
}

func (t *Tensor1D) vec() blas32.Vector {
	return blas32.Vector{N: len(t.host), Data: t.host, Inc: 1}
}

// Mat returns the host shadow as a dim×1 column matrix.
func (t *Tensor1D) Mat() blas32.General {
	t.requireHost("Mat")
	return blas32.General{Rows: len(t.host), Cols: 1, Stride: 1, Data: t.host}
}

// MutMat is the writable variant of Mat.
func (t *Tensor1D) MutMat() blas32.General {
	t.hostWrite("MutMat")
	return blas32.General{Rows: len(t.host), Cols: 1, Stride: 1, Data: t.host}
}

// TMat returns the host shadow as a 1×dim row matrix.
func (t *Tensor1D) TMat() blas32.General {
	t.requireHost("TMat")
	return blas32.General{Rows: 1, Cols: len(t.host), Stride: len(t.host), Data: t.host}
}

// MutTMat is the writable variant of TMat.
func (t *Tensor1D) MutTMat() blas32.General {
	t.hostWrite("MutTMat")
	return blas32.General{Rows: 1, Cols: len(t.host), Stride: len(t.host), Data: t.host}
}

// SetVector assigns a blas32 vector of the same length to the host shadow.
func (t *Tensor1D) SetVector(v blas32.Vector) error {
	t.mustInit("SetVector")
	if v.N != len(t.host) {
		return errors.Errorf("tensor: SetVector: vector of length %d for %s", v.N, t.describe())
	}
	t.hostWrite("SetVector")
	for i := range t.host {
		t.host[i] = v.Data[i*v.Inc]
	}
	return nil
}

// Set assigns the host shadow of other, which must have the same length.
func (t *Tensor1D) Set(other *Tensor1D) error {
	t.mustInit("Set")
	if other.Dim() != t.Dim() {
		return errors.Errorf("tensor: Set: %s from %s", t.describe(), other.describe())
	}
	src := other.Values()
	t.hostWrite("Set")
	copy(t.host, src)
	return nil
}

// Clone returns a deep copy of both memory spaces, in the same state.
func (t *Tensor1D) Clone() (*Tensor1D, error) {
	c := &Tensor1D{}
	if err := c.cloneFrom(&t.storage); err != nil {
		return nil, err
	}
	return c, nil
}

// Move transfers ownership to a new Tensor1D and leaves t empty.
func (t *Tensor1D) Move() *Tensor1D {
	m := &Tensor1D{}
	m.moveFrom(&t.storage)
	return m
}
