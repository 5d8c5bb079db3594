// Package batch marshals per-instance data into device-resident tables so that one kernel
// launch can serve a whole batch of graph nodes.
//
// A batch is described by a table in the device index heap: either pointers into the value
// heap (NumberPointerArray), pointers to other tables (IntPointerArray) or plain integers
// (IntArray). Tables are short-lived: build one per call, pass its Descriptor to a kernel and
// release it. Releasing right after the launch is safe because later writes to the same
// memory are ordered after the kernel on the device stream.
package batch

import (
	"math"

	"github.com/born-ml/dyntensor/internal/device"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Element is a value that can be stored in a device index table.
type Element interface {
	device.Ptr | device.IndexPtr | int32
}

// DeviceBuffer owns an index heap allocation holding a table of T.
//
// The zero value is empty. A DeviceBuffer must not be copied: Move transfers ownership.
type DeviceBuffer[T Element] struct {
	noCopy noCopy

	ctx *device.Context
	ptr device.IndexPtr
	n   int
}

// NumberPointerArray is a device table of pointers to float32 buffers.
type NumberPointerArray = DeviceBuffer[device.Ptr]

// IntPointerArray is a device table of pointers to int arrays.
type IntPointerArray = DeviceBuffer[device.IndexPtr]

// IntArray is a device array of int32.
type IntArray = DeviceBuffer[int32]

// Descriptor is the value passed to kernels: a table handle and its length.
type Descriptor struct {
	Table device.IndexPtr
	Len   int
}

// Init allocates len(host) words and uploads host synchronously.
func (b *DeviceBuffer[T]) Init(ctx *device.Context, host []T) error {
	if ctx == nil {
		return errors.New("batch: nil context")
	}
	if !b.ptr.IsNil() {
		return errors.Errorf("batch: buffer of %d elements already initialized", b.n)
	}
	if len(host) == 0 {
		return errors.New("batch: cannot initialize an empty buffer")
	}
	words, err := encode(host)
	if err != nil {
		return err
	}
	ptr, err := ctx.AllocIndex(len(words))
	if err != nil {
		return errors.WithMessagef(err, "batch: failed to allocate %d elements", len(words))
	}
	if err := ctx.Backend().WriteIndices(ptr, words); err != nil {
		ctx.FreeIndex(ptr)
		return errors.WithMessage(err, "batch: upload failed")
	}
	b.ctx, b.ptr, b.n = ctx, ptr, len(words)
	klog.V(2).Infof("batch: uploaded %d-element table at %s", b.n, ptr)
	return nil
}

func encode[T Element](host []T) ([]uint32, error) {
	words := make([]uint32, len(host))
	for i, v := range host {
		switch v := any(v).(type) {
		case device.Ptr:
			if v.IsNil() {
				return nil, errors.Errorf("batch: nil pointer at index %d", i)
			}
			words[i] = uint32(v.Offset()) //nolint:gosec // Offsets fit the 32-bit arena.
		case device.IndexPtr:
			if v.IsNil() {
				return nil, errors.Errorf("batch: nil index pointer at index %d", i)
			}
			words[i] = uint32(v.Offset()) //nolint:gosec // Offsets fit the 32-bit arena.
		case int32:
			words[i] = uint32(v) //nolint:gosec // Reinterpreted as int32 on the device.
		}
	}
	return words, nil
}

// Len returns the number of elements, 0 when empty.
func (b *DeviceBuffer[T]) Len() int { return b.n }

// Empty reports whether the buffer owns no allocation.
func (b *DeviceBuffer[T]) Empty() bool { return b.ptr.IsNil() }

// Ptr returns the device address of the table.
func (b *DeviceBuffer[T]) Ptr() device.IndexPtr {
	if b.ptr.IsNil() {
		exceptions.Panicf("batch: Ptr of an empty or moved-from buffer")
	}
	return b.ptr
}

// Descriptor returns the table handle and length to pass to a kernel.
func (b *DeviceBuffer[T]) Descriptor() Descriptor {
	return Descriptor{Table: b.Ptr(), Len: b.n}
}

// Words reads the table back from the device as raw 32-bit words.
func (b *DeviceBuffer[T]) Words() ([]uint32, error) {
	words := make([]uint32, b.n)
	if err := b.ctx.Backend().ReadIndices(words, b.Ptr()); err != nil {
		return nil, errors.WithMessage(err, "batch: read back failed")
	}
	return words, nil
}

// Move transfers ownership to a new buffer and leaves b empty.
func (b *DeviceBuffer[T]) Move() *DeviceBuffer[T] {
	m := &DeviceBuffer[T]{ctx: b.ctx, ptr: b.ptr, n: b.n}
	b.ctx, b.ptr, b.n = nil, device.IndexPtr{}, 0
	return m
}

// Release frees the table. Releasing an empty or moved-from buffer is a no-op.
func (b *DeviceBuffer[T]) Release() {
	if b.ptr.IsNil() {
		return
	}
	b.ctx.FreeIndex(b.ptr)
	b.ctx, b.ptr, b.n = nil, device.IndexPtr{}, 0
}

// ToNumberPointerArray uploads a table of value pointers.
func ToNumberPointerArray(ctx *device.Context, ptrs []device.Ptr) (*NumberPointerArray, error) {
	b := &NumberPointerArray{}
	if err := b.Init(ctx, ptrs); err != nil {
		return nil, err
	}
	return b, nil
}

// NewIntArray uploads ints as a device int32 array.
func NewIntArray(ctx *device.Context, values []int) (*IntArray, error) {
	host := make([]int32, len(values))
	for i, v := range values {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, errors.Errorf("batch: value %d at index %d overflows int32", v, i)
		}
		host[i] = int32(v)
	}
	b := &IntArray{}
	if err := b.Init(ctx, host); err != nil {
		return nil, err
	}
	return b, nil
}

// NewIntPointerArray uploads a table pointing at the given int arrays.
func NewIntPointerArray(ctx *device.Context, arrays []*IntArray) (*IntPointerArray, error) {
	host := make([]device.IndexPtr, len(arrays))
	for i, a := range arrays {
		if a == nil || a.Empty() {
			return nil, errors.Errorf("batch: empty int array at index %d", i)
		}
		host[i] = a.ptr
	}
	b := &IntPointerArray{}
	if err := b.Init(ctx, host); err != nil {
		return nil, err
	}
	return b, nil
}

// noCopy may be embedded into structs which must not be copied after first use.
type noCopy struct{}

// Lock is a no-op used by the go vet copylocks checker.
func (*noCopy) Lock() {}

// Unlock is a no-op used by the go vet copylocks checker.
func (*noCopy) Unlock() {}
