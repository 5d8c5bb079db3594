package device

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrOutOfMemory is returned when an arena has no free span large enough for a request.
var ErrOutOfMemory = errors.New("device: out of memory")

// span is a contiguous run of arena elements.
type span struct {
	off, size int
}

// Heap is a first-fit allocator over an arena of fixed capacity, measured in elements.
// It only does bookkeeping: the arena itself is owned by the Backend.
type Heap struct {
	name     string
	capacity int

	mu   sync.Mutex
	free []span      // Sorted by offset, never adjacent (always coalesced).
	live map[int]int // Offset -> size of every live allocation.

	inUse  int
	peak   int
	allocs uint64
	frees  uint64
}

// NewHeap creates an allocator for an arena of capacity elements.
func NewHeap(name string, capacity int) *Heap {
	h := &Heap{
		name:     name,
		capacity: capacity,
		live:     make(map[int]int),
	}
	if capacity > 0 {
		h.free = []span{{off: 0, size: capacity}}
	}
	return h
}

// Alloc reserves n contiguous elements and returns their offset.
func (h *Heap) Alloc(n int) (int, error) {
	if n <= 0 {
		return 0, errors.Errorf("device: %s heap: invalid allocation size %d (must be > 0)", h.name, n)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for i, s := range h.free {
		if s.size < n {
			continue
		}
		off := s.off
		if s.size == n {
			h.free = append(h.free[:i], h.free[i+1:]...)
		} else {
			h.free[i] = span{off: s.off + n, size: s.size - n}
		}
		h.live[off] = n
		h.inUse += n
		h.peak = max(h.peak, h.inUse)
		h.allocs++
		return off, nil
	}
	return 0, errors.Wrapf(ErrOutOfMemory, "%s heap: %d elements requested, %d of %d in use",
		h.name, n, h.inUse, h.capacity)
}

// Free returns the allocation starting at off to the heap.
func (h *Heap) Free(off int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.live[off]
	if !ok {
		return errors.Errorf("device: %s heap: free of unknown offset %d", h.name, off)
	}
	delete(h.live, off)
	h.inUse -= n
	h.frees++

	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].off > off })
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = span{off: off, size: n}

	// Merge with the right neighbour, then the left one.
	if i+1 < len(h.free) && h.free[i].off+h.free[i].size == h.free[i+1].off {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].off+h.free[i-1].size == h.free[i].off {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
	return nil
}

// SizeOf returns the size of the live allocation at off, or 0 if there is none.
func (h *Heap) SizeOf(off int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live[off]
}

// Stats returns a snapshot of the heap counters.
func (h *Heap) Stats() HeapStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	largest := 0
	for _, s := range h.free {
		largest = max(largest, s.size)
	}
	return HeapStats{
		Name:        h.name,
		Capacity:    h.capacity,
		InUse:       h.inUse,
		Peak:        h.peak,
		Live:        len(h.live),
		LargestFree: largest,
		Allocs:      h.allocs,
		Frees:       h.frees,
	}
}
