package tensor

import (
	"math"

	"github.com/born-ml/dyntensor/internal/device"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas/blas32"
)

// Tensor2D is a row×col device matrix with a host shadow, stored column-major: element
// (i, j) lives at j*row+i and column j is contiguous.
//
// The zero value is empty; call Init before use. A Tensor2D must not be copied.
type Tensor2D struct {
	storage
}

// NewTensor2D returns an initialized, zeroed row×col Tensor2D.
func NewTensor2D(ctx *device.Context, row, col int) (*Tensor2D, error) {
	t := &Tensor2D{}
	if err := t.Init(ctx, row, col); err != nil {
		return nil, err
	}
	return t, nil
}

// Init allocates row×col elements on the device and the host. Both sides start zeroed.
func (t *Tensor2D) Init(ctx *device.Context, row, col int) error {
	return t.init(ctx, 2, row, col)
}

// Row returns the number of rows, 0 before Init.
func (t *Tensor2D) Row() int {
	if t.host == nil {
		return 0
	}
	return t.row
}

// Col returns the number of columns, 0 before Init.
func (t *Tensor2D) Col() int {
	if t.host == nil {
		return 0
	}
	return t.col
}

// At returns element (i, j) of the host shadow.
func (t *Tensor2D) At(i, j int) float32 {
	t.requireHost("At")
	return t.host[t.index(i, j)]
}

// SetAt assigns element (i, j) of the host shadow.
func (t *Tensor2D) SetAt(i, j int, v float32) {
	t.hostWrite("SetAt")
	t.host[t.index(i, j)] = v
}

func (t *Tensor2D) index(i, j int) int {
	if i < 0 || i >= t.row || j < 0 || j >= t.col {
		exceptions.Panicf("tensor: index (%d, %d) out of range for %s", i, j, t.describe())
	}
	return j*t.row + i
}

// Column returns column j of the host shadow.
func (t *Tensor2D) Column(j int) []float32 {
	t.checkColumn(j)
	t.requireHost("Column")
	return t.host[j*t.row : (j+1)*t.row]
}

// ColPtr returns the device pointer to column j, for kernels that read it.
func (t *Tensor2D) ColPtr(j int) device.Ptr {
	t.checkColumn(j)
	return t.Ptr().Add(j * t.row)
}

func (t *Tensor2D) checkColumn(j int) {
	if j < 0 || j >= t.col {
		exceptions.Panicf("tensor: column %d out of range for %s", j, t.describe())
	}
}

// Vec returns the whole host shadow, in storage order, as a blas32 vector.
func (t *Tensor2D) Vec() blas32.Vector {
	t.requireHost("Vec")
	return blas32.Vector{N: len(t.host), Data: t.host, Inc: 1}
}

// MutVec is the writable variant of Vec.
func (t *Tensor2D) MutVec() blas32.Vector {
	t.hostWrite("MutVec")
	return blas32.Vector{N: len(t.host), Data: t.host, Inc: 1}
}

// Mat returns the host shadow as a row-major col×row blas32 matrix: row k of the view is
// column k of the tensor.
func (t *Tensor2D) Mat() blas32.General {
	t.requireHost("Mat")
	return t.mat()
}

// MutMat is the writable variant of Mat.
func (t *Tensor2D) MutMat() blas32.General {
	t.hostWrite("MutMat")
	return t.mat()
}

func (t *Tensor2D) mat() blas32.General {
	return blas32.General{Rows: t.col, Cols: t.row, Stride: t.row, Data: t.host}
}

// SetRows assigns a [row][col] array to the host shadow.
func (t *Tensor2D) SetRows(a [][]float32) error {
	t.mustInit("SetRows")
	if len(a) != t.row {
		return errors.Errorf("tensor: SetRows: %d rows for %s", len(a), t.describe())
	}
	for i, r := range a {
		if len(r) != t.col {
			return errors.Errorf("tensor: SetRows: row %d has %d values for %s", i, len(r), t.describe())
		}
	}
	t.hostWrite("SetRows")
	for i, r := range a {
		for j, v := range r {
			t.host[j*t.row+i] = v
		}
	}
	return nil
}

// SetGeneral assigns a row-major row×col blas32 matrix to the host shadow.
func (t *Tensor2D) SetGeneral(g blas32.General) error {
	t.mustInit("SetGeneral")
	if g.Rows != t.row || g.Cols != t.col {
		return errors.Errorf("tensor: SetGeneral: %dx%d matrix for %s", g.Rows, g.Cols, t.describe())
	}
	t.hostWrite("SetGeneral")
	for i := range t.row {
		for j := range t.col {
			t.host[j*t.row+i] = g.Data[i*g.Stride+j]
		}
	}
	return nil
}

// Set assigns the host shadow of other, which must have the same shape.
func (t *Tensor2D) Set(other *Tensor2D) error {
	t.mustInit("Set")
	if other.Row() != t.row || other.Col() != t.col {
		return errors.Errorf("tensor: Set: %s from %s", t.describe(), other.describe())
	}
	src := other.Values()
	t.hostWrite("Set")
	copy(t.host, src)
	return nil
}

// Norm2One scales every column of the host shadow to unit L2 norm. Used for embedding
// matrices, where a column is one embedding.
func (t *Tensor2D) Norm2One() {
	t.requireHost("Norm2One")
	t.hostWrite("Norm2One")
	for j := range t.col {
		column := t.host[j*t.row : (j+1)*t.row]
		sum := float32(1e-6)
		for _, v := range column {
			sum += v * v
		}
		scale := float32(math.Sqrt(float64(sum)))
		for i := range column {
			column[i] /= scale
		}
	}
}

// Clone returns a deep copy of both memory spaces, in the same state.
func (t *Tensor2D) Clone() (*Tensor2D, error) {
	c := &Tensor2D{}
	if err := c.cloneFrom(&t.storage); err != nil {
		return nil, err
	}
	return c, nil
}

// Move transfers ownership to a new Tensor2D and leaves t empty.
func (t *Tensor2D) Move() *Tensor2D {
	m := &Tensor2D{}
	m.moveFrom(&t.storage)
	return m
}
