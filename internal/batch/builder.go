package batch

import (
	"github.com/born-ml/dyntensor/internal/device"
	"github.com/pkg/errors"
)

// DevicePointer is anything with a readable device buffer, e.g. a tensor.
type DevicePointer interface {
	Ptr() device.Ptr
}

// Builder collects per-instance value pointers and uploads them as one table.
//
//	b := batch.NewBuilder(len(nodes))
//	for _, n := range nodes {
//		b.AddTensor(n.Val)
//	}
//	table, err := b.Build(ctx)
type Builder struct {
	ptrs []device.Ptr
}

// NewBuilder returns an empty Builder with room for capacity pointers.
func NewBuilder(capacity int) *Builder {
	return &Builder{ptrs: make([]device.Ptr, 0, capacity)}
}

// Add appends a raw device pointer.
func (b *Builder) Add(p device.Ptr) *Builder {
	b.ptrs = append(b.ptrs, p)
	return b
}

// AddTensor appends the device pointer of t. It panics if t is not readable on the device.
func (b *Builder) AddTensor(t DevicePointer) *Builder {
	b.ptrs = append(b.ptrs, t.Ptr())
	return b
}

// Len returns the number of collected pointers.
func (b *Builder) Len() int { return len(b.ptrs) }

// Pointers returns the collected pointers.
func (b *Builder) Pointers() []device.Ptr { return b.ptrs }

// Reset empties the builder, keeping its capacity.
func (b *Builder) Reset() { b.ptrs = b.ptrs[:0] }

// Build uploads the collected pointers.
func (b *Builder) Build(ctx *device.Context) (*NumberPointerArray, error) {
	if len(b.ptrs) == 0 {
		return nil, errors.New("batch: Build with no pointers")
	}
	return ToNumberPointerArray(ctx, b.ptrs)
}
