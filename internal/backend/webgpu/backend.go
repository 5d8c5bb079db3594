//go:build windows

package webgpu

import (
	"fmt"
	"sync"

	"github.com/born-ml/dyntensor/internal/device"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var _ device.Backend = (*Backend)(nil)

// Backend is a WebGPU device whose memory is two storage-buffer arenas.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterInfo *wgpu.AdapterInfo

	// Arenas: values is array<f32>, indices is array<u32>.
	values     *wgpu.Buffer
	indices    *wgpu.Buffer
	valueBytes uint64
	indexBytes uint64

	// Shader and pipeline cache
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	// Readback staging buffers.
	staging *StagingPool

	// Kernels are encoded into command buffers and queued here, then submitted together in
	// issuance order before any transfer or Synchronize.
	pendingCommands []*wgpu.CommandBuffer
	pendingMu       sync.Mutex
	maxBatchSize    int

	errMu sync.Mutex
	err   error // First rejected launch since the last Synchronize.

	releaseOnce sync.Once
}

// New creates a WebGPU backend with arenas sized from cfg.
// Returns an error if WebGPU is not available or initialization fails.
func New(cfg device.Config) (backend *Backend, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = errors.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, errors.Wrap(adapterErr, "webgpu: failed to request adapter")
	}
	adapterInfo := adapter.GetInfo()

	dev, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(deviceErr, "webgpu: failed to request device")
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: failed to get queue")
	}

	b := &Backend{
		instance:     instance,
		adapter:      adapter,
		device:       dev,
		queue:        queue,
		adapterInfo:  &adapterInfo,
		valueBytes:   uint64(cfg.HeapSize) * 4,      //nolint:gosec // Validated > 0.
		indexBytes:   uint64(cfg.IndexHeapSize) * 4, //nolint:gosec // Validated > 0.
		shaders:      make(map[string]*wgpu.ShaderModule),
		pipelines:    make(map[string]*wgpu.ComputePipeline),
		maxBatchSize: 64,
	}
	arenaUsage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	b.values = b.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: arenaUsage, Size: b.valueBytes})
	b.indices = b.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: arenaUsage, Size: b.indexBytes})
	b.staging = NewStagingPool(dev)

	klog.V(1).Infof("webgpu: using %s", b.Name())
	return b, nil
}

// queueCommand adds a command buffer to the pending queue.
// Commands are flushed before every transfer, or when the batch size limit is reached.
func (b *Backend) queueCommand(cmdBuffer *wgpu.CommandBuffer) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	b.pendingCommands = append(b.pendingCommands, cmdBuffer)

	if b.maxBatchSize > 0 && len(b.pendingCommands) >= b.maxBatchSize {
		b.flushCommandsLocked()
	}
}

// flushCommands submits all pending command buffers to the GPU queue.
func (b *Backend) flushCommands() {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	b.flushCommandsLocked()
}

// flushCommandsLocked submits all pending command buffers (must hold pendingMu lock).
func (b *Backend) flushCommandsLocked() {
	if len(b.pendingCommands) == 0 {
		return
	}
	b.queue.Submit(b.pendingCommands...)
	b.pendingCommands = b.pendingCommands[:0]
}

// Synchronize submits pending work and waits for the queue to drain by mapping a word of
// the value arena back, which cannot complete before earlier submissions.
func (b *Backend) Synchronize() error {
	var word [1]float32
	if err := b.readValues(word[:], 0); err != nil {
		return err
	}
	return b.takeErr()
}

// fail records a launch that was rejected before encoding.
func (b *Backend) fail(err error) {
	klog.V(1).Infof("webgpu: %v", err)
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

// Release releases all WebGPU resources.
func (b *Backend) Release() {
	b.releaseOnce.Do(func() {
		b.flushCommands()

		b.mu.Lock()
		defer b.mu.Unlock()

		if b.staging != nil {
			b.staging.Clear()
			b.staging = nil
		}
		for _, p := range b.pipelines {
			p.Release()
		}
		b.pipelines = nil
		for _, s := range b.shaders {
			s.Release()
		}
		b.shaders = nil

		if b.values != nil {
			b.values.Release()
			b.values = nil
		}
		if b.indices != nil {
			b.indices.Release()
			b.indices = nil
		}
		if b.queue != nil {
			b.queue.Release()
			b.queue = nil
		}
		if b.device != nil {
			b.device.Release()
			b.device = nil
		}
		if b.adapter != nil {
			b.adapter.Release()
			b.adapter = nil
		}
		if b.instance != nil {
			b.instance.Release()
			b.instance = nil
		}
	})
}

// Name returns the backend name.
func (b *Backend) Name() string {
	if b.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", b.adapterInfo.Device, b.adapterInfo.Vendor)
	}
	return "WebGPU"
}

// AdapterInfo returns information about the GPU adapter.
func (b *Backend) AdapterInfo() *wgpu.AdapterInfo {
	return b.adapterInfo
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

func open(cfg device.Config) (device.Backend, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return b, nil
}
