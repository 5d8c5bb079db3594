// Package device owns the accelerator: its memory arenas, the execution stream and the
// registry of backends that implement them.
//
// Device memory is split into two arenas. The value heap holds float32 tensor data and the
// index heap holds uint32 words: pointer tables and int arrays. A device pointer is an
// element offset into one of them, so a table of pointers uploaded to the index heap can be
// dereferenced by a kernel without any host involvement.
package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gomlx/exceptions"
)

// Ptr addresses an element of the value heap. The zero value is the nil pointer.
type Ptr struct {
	off   uint32
	valid bool
}

// IndexPtr addresses a word of the index heap. The zero value is the nil pointer.
type IndexPtr struct {
	off   uint32
	valid bool
}

// IsNil reports whether p points nowhere.
func (p Ptr) IsNil() bool { return !p.valid }

// Offset returns the element offset of p in the value heap.
func (p Ptr) Offset() int {
	if !p.valid {
		exceptions.Panicf("device: Offset of nil Ptr")
	}
	return int(p.off)
}

// Add returns p advanced by n elements.
func (p Ptr) Add(n int) Ptr {
	if !p.valid {
		exceptions.Panicf("device: Add(%d) on nil Ptr", n)
	}
	return Ptr{off: uint32(int(p.off) + n), valid: true} //nolint:gosec // Offsets are bounded by the arena size.
}

func (p Ptr) String() string {
	if !p.valid {
		return "Ptr(nil)"
	}
	return fmt.Sprintf("Ptr(%d)", p.off)
}

// IsNil reports whether p points nowhere.
func (p IndexPtr) IsNil() bool { return !p.valid }

// Offset returns the word offset of p in the index heap.
func (p IndexPtr) Offset() int {
	if !p.valid {
		exceptions.Panicf("device: Offset of nil IndexPtr")
	}
	return int(p.off)
}

// Add returns p advanced by n words.
func (p IndexPtr) Add(n int) IndexPtr {
	if !p.valid {
		exceptions.Panicf("device: Add(%d) on nil IndexPtr", n)
	}
	return IndexPtr{off: uint32(int(p.off) + n), valid: true} //nolint:gosec // Offsets are bounded by the arena size.
}

func (p IndexPtr) String() string {
	if !p.valid {
		return "IndexPtr(nil)"
	}
	return fmt.Sprintf("IndexPtr(%d)", p.off)
}

// PtrAt returns the value-arena pointer at element offset off. Only backends and their
// tests construct pointers directly; everything else gets them from Context.Alloc.
func PtrAt(off int) Ptr { return Ptr{off: uint32(off), valid: true} } //nolint:gosec // See Add.

// IndexPtrAt returns the index-arena pointer at element offset off.
func IndexPtrAt(off int) IndexPtr { return IndexPtr{off: uint32(off), valid: true} } //nolint:gosec // See Add.

// MatMulArgs describes a batched column-major product y_i = W·x_i (+ y_i).
type MatMulArgs struct {
	W, X, Y    Ptr
	Row, Col   int
	Count      int
	Accumulate bool // Add the product to Y instead of overwriting it.
}

// AdamArgs describes one elementwise Adam step over N elements.
// LRT is the bias-corrected learning rate, computed once on the host.
type AdamArgs struct {
	Val, Grad, Mean, Square Ptr
	N                       int
	Beta1, Beta2            float32
	LRT                     float32
	Reg                     float32
	Eps                     float32
}

// SGDArgs describes one elementwise momentum SGD step over N elements:
// velocity = Momentum*velocity + (grad + Reg*val); val -= LR*velocity.
type SGDArgs struct {
	Val, Grad, Velocity Ptr
	N                   int
	LR                  float32
	Momentum            float32
	Reg                 float32
}

// Backend executes transfers and kernels against the two arenas.
//
// Kernel launches are asynchronous: they return once the work is queued and run in issuance
// order on a single stream. Transfers are synchronous and ordered after every kernel issued
// before them. A failing kernel does not panic the caller; the failure is reported by the next
// blocking call.
type Backend interface {
	// Name returns a human-readable backend description.
	Name() string

	// Synchronous transfers.
	WriteValues(dst Ptr, src []float32) error
	ReadValues(dst []float32, src Ptr) error
	WriteIndices(dst IndexPtr, src []uint32) error
	ReadIndices(dst []uint32, src IndexPtr) error

	// Memory kernels.
	Fill(dst Ptr, n int, value float32)
	Copy(dst, src Ptr, n int)
	Broadcast(dst, src Ptr, count, n int)         // dst[i*n+j] = src[j]
	Gather(dst Ptr, table IndexPtr, count, n int) // dst[i*n+j] = *(table[i]+j)

	// Numeric kernels.
	Tanh(src Ptr, table IndexPtr, dest2 Ptr, count, n int)
	MatMul(args MatMulArgs)
	Adam(args AdamArgs)
	SGD(args SGDArgs)
	// SumSquares writes the sum of squares of count buffers (table[i], lens[i]) into dst[0].
	SumSquares(dst Ptr, table, lens IndexPtr, count, maxLen int)
	// ScaleBatch multiplies count buffers (table[i], lens[i]) by scale.
	ScaleBatch(table, lens IndexPtr, count, maxLen int, scale float32)

	// Synchronize blocks until all issued work is done and returns the first failure since
	// the previous call.
	Synchronize() error

	// Release frees the arenas. The backend is unusable afterwards.
	Release()
}

// Constructor builds a Backend with arenas sized from cfg.
type Constructor func(cfg Config) (Backend, error)

var (
	registryMu      sync.Mutex
	constructors    = make(map[string]Constructor)
	firstRegistered string
)

// Register makes a backend available under name. Call it from the backend package's init.
func Register(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if len(constructors) == 0 {
		firstRegistered = name
	}
	constructors[name] = constructor
}

// Backends returns the sorted names of all registered backends.
func Backends() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Constructor, string, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if name == "" {
		name = firstRegistered
	}
	c, ok := constructors[name]
	return c, name, ok
}
