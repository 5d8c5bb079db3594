package device

import (
	"math/rand/v2"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Context is an initialized accelerator: a backend plus the allocators of its two arenas.
//
// Every tensor, buffer and kernel call is bound to a Context. Create one with New and
// release it with Close; contexts are independent, so tests can create and tear down as
// many as they need.
type Context struct {
	cfg     Config
	backend Backend
	values  *Heap
	indices *Heap
	rng     *rand.Rand

	mu     sync.Mutex
	closed bool
}

// New creates a Context on the backend named by cfg.Backend.
func New(cfg Config) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	constructor, name, ok := lookup(cfg.Backend)
	if !ok {
		return nil, errors.Errorf("device: unknown backend %q (registered: %v)", cfg.Backend, Backends())
	}
	cfg.Backend = name

	backend, err := constructor(cfg)
	if err != nil {
		return nil, errors.WithMessagef(err, "device: failed to create backend %q", name)
	}
	klog.V(1).Infof("device: created %s context (values=%d, indices=%d)", backend.Name(), cfg.HeapSize, cfg.IndexHeapSize)

	return &Context{
		cfg:     cfg,
		backend: backend,
		values:  NewHeap("values", cfg.HeapSize),
		indices: NewHeap("indices", cfg.IndexHeapSize),
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)), //nolint:gosec // Initialization RNG, not crypto.
	}, nil
}

var process struct {
	once sync.Once
	cfg  Config
	ctx  *Context
	err  error
}

// Init creates the process-wide default Context once. Later calls return the same Context
// (or the same error) and ignore their configuration.
func Init(cfg Config) (*Context, error) {
	first := false
	process.once.Do(func() {
		first = true
		process.cfg = cfg
		process.ctx, process.err = New(cfg)
	})
	if !first && cfg != process.cfg {
		klog.Warningf("device: Init called again with a different configuration; keeping the first one")
	}
	return process.ctx, process.err
}

// Default returns the Context created by Init, or nil if Init was never called.
func Default() *Context {
	return process.ctx
}

// Config returns the configuration the Context was created with.
func (c *Context) Config() Config { return c.cfg }

// Name returns the backend description.
func (c *Context) Name() string { return c.Backend().Name() }

// Backend returns the backend. It panics on a closed Context.
func (c *Context) Backend() Backend {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		exceptions.Panicf("device: use of closed Context")
	}
	return c.backend
}

// Rand returns the Context RNG used for host-side random initialization.
func (c *Context) Rand() *rand.Rand { return c.rng }

// Alloc reserves n elements of the value heap.
func (c *Context) Alloc(n int) (Ptr, error) {
	off, err := c.values.Alloc(n)
	if err != nil {
		return Ptr{}, err
	}
	klog.V(3).Infof("device: alloc values[%d:%d]", off, off+n)
	return PtrAt(off), nil
}

// AllocIndex reserves n words of the index heap.
func (c *Context) AllocIndex(n int) (IndexPtr, error) {
	off, err := c.indices.Alloc(n)
	if err != nil {
		return IndexPtr{}, err
	}
	klog.V(3).Infof("device: alloc indices[%d:%d]", off, off+n)
	return IndexPtrAt(off), nil
}

// Free releases a value heap allocation. Freeing anything but the start of a live
// allocation is a programming error.
func (c *Context) Free(p Ptr) {
	if err := c.values.Free(p.Offset()); err != nil {
		exceptions.Panicf("%+v", err)
	}
}

// FreeIndex releases an index heap allocation.
func (c *Context) FreeIndex(p IndexPtr) {
	if err := c.indices.Free(p.Offset()); err != nil {
		exceptions.Panicf("%+v", err)
	}
}

// Len returns the length of the value heap allocation starting at p, or 0.
func (c *Context) Len(p Ptr) int {
	if p.IsNil() {
		return 0
	}
	return c.values.SizeOf(p.Offset())
}

// Synchronize waits for all issued kernels and returns the first asynchronous failure.
func (c *Context) Synchronize() error {
	return c.Backend().Synchronize()
}

// MemoryStats returns the allocator counters of both arenas.
func (c *Context) MemoryStats() MemoryStats {
	return MemoryStats{
		Backend: c.backend.Name(),
		Values:  c.values.Stats(),
		Indices: c.indices.Stats(),
	}
}

// Close waits for pending work, then releases the backend. Closing twice is a no-op.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.backend.Synchronize()
	if vs, is := c.values.Stats(), c.indices.Stats(); vs.Live+is.Live > 0 {
		klog.V(1).Infof("device: closing context with %d value and %d index allocations still live", vs.Live, is.Live)
	}
	c.backend.Release()
	klog.V(1).Infof("device: closed %s context", c.backend.Name())
	return err
}
