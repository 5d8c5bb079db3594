package device

import (
	"math"
	"os"

	"github.com/born-ml/dyntensor/internal/parallel"
	"github.com/pkg/errors"
)

// EnvBackend is the environment variable that selects the default backend by name.
const EnvBackend = "DYNTENSOR_BACKEND"

// Config configures a Context and the backend it creates.
type Config struct {
	// Backend is the registered backend name. Empty selects the first registered one.
	Backend string

	// HeapSize is the capacity of the value heap, in float32 elements.
	HeapSize int

	// IndexHeapSize is the capacity of the index heap, in uint32 words.
	IndexHeapSize int

	// Parallel controls how host-executed kernels fan out.
	Parallel parallel.Config

	// Verify enables host/device shadow checks. When false, Verify calls are no-ops.
	Verify bool

	// VerifyTolerance bounds the absolute host/device difference Verify accepts; differences
	// must be strictly below it.
	VerifyTolerance float32

	// Seed seeds the context RNG used for random initialization.
	Seed uint64
}

// DefaultConfig returns the default configuration. The backend is taken from the
// DYNTENSOR_BACKEND environment variable when set.
func DefaultConfig() Config {
	return Config{
		Backend:         backendFromEnv(),
		HeapSize:        16 << 20,
		IndexHeapSize:   1 << 20,
		Parallel:        parallel.DefaultConfig(),
		Verify:          true,
		VerifyTolerance: 0.01,
		Seed:            42,
	}
}

// Validate checks that the sizes and tolerances are usable.
func (c Config) Validate() error {
	// Device pointers are uint32 offsets.
	if c.HeapSize <= 0 || uint64(c.HeapSize) > math.MaxUint32 {
		return errors.Errorf("device: invalid HeapSize %d (must be in [1, %d])", c.HeapSize, uint64(math.MaxUint32))
	}
	if c.IndexHeapSize <= 0 || uint64(c.IndexHeapSize) > math.MaxUint32 {
		return errors.Errorf("device: invalid IndexHeapSize %d (must be in [1, %d])", c.IndexHeapSize, uint64(math.MaxUint32))
	}
	if !(c.VerifyTolerance > 0) {
		return errors.Errorf("device: invalid VerifyTolerance %g (must be > 0)", c.VerifyTolerance)
	}
	return nil
}

func backendFromEnv() string {
	if name := os.Getenv(EnvBackend); name != "" {
		return name
	}
	return "host"
}
