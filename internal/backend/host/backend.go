// Package host implements an emulated accelerator that runs on the host CPU.
//
// The arenas are Go slices that only the backend touches, and kernels run asynchronously on
// a single stream goroutine, in the order they were issued. Callers therefore see the same
// contract as a real GPU: launches return immediately, values are only visible through
// explicit transfers, and missing synchronisation shows up as wrong results rather than
// being papered over.
package host

import (
	"sync"

	"github.com/born-ml/dyntensor/internal/device"
	"github.com/born-ml/dyntensor/internal/parallel"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Name is the registered backend name.
const Name = "host"

func init() {
	device.Register(Name, func(cfg device.Config) (device.Backend, error) {
		b, err := New(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	})
}

// op is one unit of work on the stream.
type op struct {
	name string
	fn   func()
	done chan error // Optional: receives the op result for blocking calls.
}

// Backend is the host-emulated accelerator.
type Backend struct {
	values  []float32
	indices []uint32
	par     parallel.Config

	stream  chan op
	pending sync.WaitGroup
	stopped chan struct{}

	errMu sync.Mutex
	err   error // First asynchronous kernel failure since the last Synchronize.

	releaseOnce sync.Once
}

// New allocates the arenas and starts the stream goroutine.
func New(cfg device.Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backend{
		values:  make([]float32, cfg.HeapSize),
		indices: make([]uint32, cfg.IndexHeapSize),
		par:     cfg.Parallel,
		stream:  make(chan op, 256),
		stopped: make(chan struct{}),
	}
	go b.run()
	return b, nil
}

// Name returns the backend name.
func (b *Backend) Name() string { return "host (emulated)" }

// run executes ops in issuance order until the stream is closed.
func (b *Backend) run() {
	defer close(b.stopped)
	for o := range b.stream {
		var err error
		if e := exceptions.Try(o.fn); e != nil {
			err = errors.Errorf("host: %s failed: %v", o.name, e)
		}
		if o.done != nil {
			o.done <- err
		} else if err != nil {
			klog.V(1).Infof("%v", err)
			b.recordErr(err)
		}
		b.pending.Done()
	}
}

func (b *Backend) recordErr(err error) {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	if b.err == nil {
		b.err = err
	}
}

func (b *Backend) takeErr() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	err := b.err
	b.err = nil
	return err
}

// launch queues an asynchronous kernel.
func (b *Backend) launch(name string, fn func()) {
	b.pending.Add(1)
	b.stream <- op{name: name, fn: fn}
}

// call queues fn and waits for it. Earlier asynchronous failures take precedence, since
// they usually explain why fn saw bad data.
func (b *Backend) call(name string, fn func()) error {
	done := make(chan error, 1)
	b.pending.Add(1)
	b.stream <- op{name: name, fn: fn, done: done}
	err := <-done
	if prev := b.takeErr(); prev != nil {
		return prev
	}
	return err
}

func (b *Backend) checkValues(name string, p device.Ptr, n int) error {
	if p.IsNil() {
		return errors.Errorf("host: %s: nil pointer", name)
	}
	if n < 0 || p.Offset()+n > len(b.values) {
		return errors.Errorf("host: %s: range [%d:%d] outside value heap of %d", name, p.Offset(), p.Offset()+n, len(b.values))
	}
	return nil
}

func (b *Backend) checkIndices(name string, p device.IndexPtr, n int) error {
	if p.IsNil() {
		return errors.Errorf("host: %s: nil index pointer", name)
	}
	if n < 0 || p.Offset()+n > len(b.indices) {
		return errors.Errorf("host: %s: range [%d:%d] outside index heap of %d", name, p.Offset(), p.Offset()+n, len(b.indices))
	}
	return nil
}

// WriteValues copies src into the value heap at dst.
func (b *Backend) WriteValues(dst device.Ptr, src []float32) error {
	if err := b.checkValues("WriteValues", dst, len(src)); err != nil {
		return err
	}
	off := dst.Offset()
	return b.call("WriteValues", func() {
		copy(b.values[off:off+len(src)], src)
	})
}

// ReadValues copies len(dst) elements starting at src into dst.
func (b *Backend) ReadValues(dst []float32, src device.Ptr) error {
	if err := b.checkValues("ReadValues", src, len(dst)); err != nil {
		return err
	}
	off := src.Offset()
	return b.call("ReadValues", func() {
		copy(dst, b.values[off:off+len(dst)])
	})
}

// WriteIndices copies src into the index heap at dst.
func (b *Backend) WriteIndices(dst device.IndexPtr, src []uint32) error {
	if err := b.checkIndices("WriteIndices", dst, len(src)); err != nil {
		return err
	}
	off := dst.Offset()
	return b.call("WriteIndices", func() {
		copy(b.indices[off:off+len(src)], src)
	})
}

// ReadIndices copies len(dst) words starting at src into dst.
func (b *Backend) ReadIndices(dst []uint32, src device.IndexPtr) error {
	if err := b.checkIndices("ReadIndices", src, len(dst)); err != nil {
		return err
	}
	off := src.Offset()
	return b.call("ReadIndices", func() {
		copy(dst, b.indices[off:off+len(dst)])
	})
}

// Synchronize waits for the stream to drain.
func (b *Backend) Synchronize() error {
	b.pending.Wait()
	return b.takeErr()
}

// Release stops the stream and drops the arenas.
func (b *Backend) Release() {
	b.releaseOnce.Do(func() {
		b.pending.Wait()
		close(b.stream)
		<-b.stopped
		b.values = nil
		b.indices = nil
	})
}
