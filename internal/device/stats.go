package device

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// HeapStats is a snapshot of one arena's allocator.
type HeapStats struct {
	Name        string
	Capacity    int // Elements.
	InUse       int // Elements currently allocated.
	Peak        int // Highest InUse seen.
	Live        int // Number of live allocations.
	LargestFree int // Largest allocatable span.
	Allocs      uint64
	Frees       uint64
}

// MemoryStats reports device memory usage of a Context. Both arenas use 4-byte elements.
type MemoryStats struct {
	Backend string
	Values  HeapStats
	Indices HeapStats
}

func (s HeapStats) String() string {
	return fmt.Sprintf("%s: %s in use (peak %s) of %s, %d live, %d allocs / %d frees",
		s.Name,
		humanize.IBytes(uint64(s.InUse)*4),    //nolint:gosec // Non-negative.
		humanize.IBytes(uint64(s.Peak)*4),     //nolint:gosec // Non-negative.
		humanize.IBytes(uint64(s.Capacity)*4), //nolint:gosec // Non-negative.
		s.Live, s.Allocs, s.Frees)
}

func (s MemoryStats) String() string {
	return fmt.Sprintf("%s\n  %s\n  %s", s.Backend, s.Values, s.Indices)
}
