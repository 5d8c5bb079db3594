package tensor

import (
	"fmt"
	"math"

	"github.com/born-ml/dyntensor/internal/device"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// storage is the paired device allocation and host shadow shared by Tensor1D and Tensor2D.
type storage struct {
	noCopy noCopy

	ctx   *device.Context
	ptr   device.Ptr
	host  []float32
	state State
	name  string

	// rank is 1 for Tensor1D (row = dim, col = 1) and 2 for Tensor2D, 0 before Init.
	rank     int
	row, col int
}

func (s *storage) init(ctx *device.Context, rank, row, col int) error {
	if ctx == nil {
		return errors.New("tensor: nil context")
	}
	if !s.ptr.IsNil() {
		return errors.Errorf("tensor: %s already initialized", s.describe())
	}
	if row <= 0 || col <= 0 {
		return errors.Errorf("tensor: invalid shape %dx%d (dimensions must be > 0)", row, col)
	}
	n := row * col
	s.rank, s.row, s.col = rank, row, col
	ptr, err := ctx.Alloc(n)
	if err != nil {
		return errors.WithMessagef(err, "tensor: failed to allocate %s", s.describe())
	}
	s.ctx = ctx
	s.ptr = ptr
	s.host = make([]float32, n)
	s.state = Synced
	// Device memory is recycled, so it starts as whatever the last owner left there.
	ctx.Backend().Fill(ptr, n, 0)
	return nil
}

func (s *storage) describe() string {
	var shape string
	switch s.rank {
	case 1:
		shape = fmt.Sprintf("Tensor1D[%d]", s.row)
	case 2:
		shape = fmt.Sprintf("Tensor2D[%dx%d]", s.row, s.col)
	default:
		shape = "tensor"
	}
	if s.name != "" {
		return fmt.Sprintf("%s %q", shape, s.name)
	}
	return shape
}

func (s *storage) mustInit(op string) {
	if s.ptr.IsNil() {
		exceptions.Panicf("tensor: %s on uninitialized or released %s", op, s.describe())
	}
}

func (s *storage) requireHost(op string) {
	s.mustInit(op)
	if !s.state.HostReadable() {
		exceptions.Panicf("tensor: %s reads the host shadow of %s in state %s (copy from device first)",
			op, s.describe(), s.state)
	}
}

func (s *storage) requireDevice(op string) {
	s.mustInit(op)
	if !s.state.DeviceReadable() {
		exceptions.Panicf("tensor: %s reads the device copy of %s in state %s (copy from host first)",
			op, s.describe(), s.state)
	}
}

func (s *storage) hostWrite(op string) {
	s.mustInit(op)
	s.state = s.state.afterHostWrite()
}

// Name returns the optional debugging name.
func (s *storage) Name() string { return s.name }

// SetName sets the name used in panics and String.
func (s *storage) SetName(name string) { s.name = name }

// Context returns the context the tensor was initialized with, or nil.
func (s *storage) Context() *device.Context { return s.ctx }

// State returns the current synchronization state.
func (s *storage) State() State { return s.state }

// Size returns the number of elements, 0 before Init.
func (s *storage) Size() int { return len(s.host) }

// Initialized reports whether the tensor owns storage.
func (s *storage) Initialized() bool { return !s.ptr.IsNil() }

// Ptr returns the device pointer for a kernel that only reads the tensor.
func (s *storage) Ptr() device.Ptr {
	s.requireDevice("Ptr")
	return s.ptr
}

// MutPtr returns the device pointer for a kernel that reads and writes the tensor.
func (s *storage) MutPtr() device.Ptr {
	s.requireDevice("MutPtr")
	s.state = DeviceAhead
	return s.ptr
}

// OutPtr returns the device pointer for a kernel that overwrites the tensor entirely.
func (s *storage) OutPtr() device.Ptr {
	s.mustInit("OutPtr")
	s.state = s.state.afterDeviceWrite()
	return s.ptr
}

// Values returns the host shadow for reading.
func (s *storage) Values() []float32 {
	s.requireHost("Values")
	return s.host
}

// MutValues returns the host shadow for writing.
func (s *storage) MutValues() []float32 {
	s.hostWrite("MutValues")
	return s.host
}

// Zero clears both the device copy and the host shadow.
func (s *storage) Zero() {
	s.mustInit("Zero")
	s.ctx.Backend().Fill(s.ptr, len(s.host), 0)
	clear(s.host)
	s.state = Synced
}

// SetScalar assigns a to every element of the host shadow.
func (s *storage) SetScalar(a float32) {
	s.hostWrite("SetScalar")
	for i := range s.host {
		s.host[i] = a
	}
}

// SetSlice assigns a flat array to the host shadow, in storage order.
func (s *storage) SetSlice(a []float32) error {
	s.mustInit("SetSlice")
	if len(a) != len(s.host) {
		return errors.Errorf("tensor: SetSlice: %d values for %s", len(a), s.describe())
	}
	s.hostWrite("SetSlice")
	copy(s.host, a)
	return nil
}

// Random fills the host shadow uniformly from [-bound, bound) using the context RNG.
func (s *storage) Random(bound float32) {
	s.hostWrite("Random")
	rng := s.ctx.Rand()
	for i := range s.host {
		s.host[i] = (rng.Float32()*2 - 1) * bound
	}
}

// CopyFromHostToDevice uploads the host shadow. It blocks until the device copy is written.
func (s *storage) CopyFromHostToDevice() error {
	s.mustInit("CopyFromHostToDevice")
	if err := s.ctx.Backend().WriteValues(s.ptr, s.host); err != nil {
		return errors.WithMessagef(err, "tensor: upload of %s", s.describe())
	}
	klog.V(3).Infof("tensor: uploaded %s", s.describe())
	s.state = Synced
	return nil
}

// CopyFromDeviceToHost downloads the device copy after all previously issued kernels.
func (s *storage) CopyFromDeviceToHost() error {
	s.mustInit("CopyFromDeviceToHost")
	if err := s.ctx.Backend().ReadValues(s.host, s.ptr); err != nil {
		return errors.WithMessagef(err, "tensor: download of %s", s.describe())
	}
	klog.V(3).Infof("tensor: downloaded %s", s.describe())
	s.state = Synced
	return nil
}

// MaxDiff returns the largest absolute difference between the host shadow and the device
// copy, and the index where it occurs. NaN on either side counts as an infinite difference.
func (s *storage) MaxDiff() (diff float32, index int, err error) {
	s.mustInit("MaxDiff")
	dev := make([]float32, len(s.host))
	if err := s.ctx.Backend().ReadValues(dev, s.ptr); err != nil {
		return 0, 0, errors.WithMessagef(err, "tensor: read back of %s", s.describe())
	}
	for i, h := range s.host {
		d := math.Abs(float64(h) - float64(dev[i]))
		if math.IsNaN(d) {
			d = math.Inf(1)
		}
		if float32(d) > diff {
			diff, index = float32(d), i
		}
	}
	return diff, index, nil
}

// Verify checks that the host shadow and the device copy agree within the context
// tolerance (strictly below it), and marks the tensor Synced. A divergence panics. Verify is a no-op when the
// context was created with Verify disabled.
func (s *storage) Verify() error {
	s.mustInit("Verify")
	cfg := s.ctx.Config()
	if !cfg.Verify {
		return nil
	}
	diff, index, err := s.MaxDiff()
	if err != nil {
		return err
	}
	if !(diff < cfg.VerifyTolerance) {
		klog.Errorf("tensor: %s diverged at %d: |host-device| = %g >= %g", s.describe(), index, diff, cfg.VerifyTolerance)
		exceptions.Panicf("tensor: Verify of %s failed at element %d: difference %g exceeds tolerance %g",
			s.describe(), index, diff, cfg.VerifyTolerance)
	}
	s.state = Synced
	return nil
}

// Release frees the device allocation and the host shadow. Releasing an empty or moved-from
// tensor is a no-op.
func (s *storage) Release() {
	if s.ptr.IsNil() {
		return
	}
	s.ctx.Free(s.ptr)
	s.ptr = device.Ptr{}
	s.host = nil
	s.state = Synced
}

// moveFrom takes ownership of src's storage and leaves src empty.
func (s *storage) moveFrom(src *storage) {
	s.ctx, s.ptr, s.host, s.state, s.name = src.ctx, src.ptr, src.host, src.state, src.name
	s.rank, s.row, s.col = src.rank, src.row, src.col
	src.ptr = device.Ptr{}
	src.host = nil
	src.state = Synced
}

// cloneFrom allocates a copy of src in both memory spaces, preserving its state.
func (s *storage) cloneFrom(src *storage) error {
	src.mustInit("Clone")
	if err := s.init(src.ctx, src.rank, src.row, src.col); err != nil {
		return err
	}
	s.ctx.Backend().Copy(s.ptr, src.ptr, len(src.host))
	copy(s.host, src.host)
	s.state = src.state
	s.name = src.name
	return nil
}

func (s *storage) String() string {
	if s.ptr.IsNil() {
		return s.describe() + "(empty)"
	}
	return fmt.Sprintf("%s(%s)", s.describe(), s.state)
}
