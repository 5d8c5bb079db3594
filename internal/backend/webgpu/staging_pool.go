//go:build windows

package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// maxPooledStaging bounds the number of idle readback buffers kept alive.
const maxPooledStaging = 16

// stagingBuffer is a MapRead|CopyDst buffer used for readbacks.
type stagingBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
}

// StagingPool reuses readback buffers across transfers.
// A buffer is reused for any request no larger than its size.
type StagingPool struct {
	device *wgpu.Device

	idle []*stagingBuffer
	mu   sync.Mutex

	// Statistics
	hits   uint64
	misses uint64
}

// NewStagingPool creates an empty pool for device.
func NewStagingPool(device *wgpu.Device) *StagingPool {
	return &StagingPool{
		device: device,
		idle:   make([]*stagingBuffer, 0, maxPooledStaging),
	}
}

// Acquire returns an idle buffer of at least size bytes, or creates one.
func (p *StagingPool) Acquire(size uint64) *stagingBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	best := -1
	for i, sb := range p.idle {
		if sb.size >= size && (best < 0 || sb.size < p.idle[best].size) {
			best = i
		}
	}
	if best >= 0 {
		sb := p.idle[best]
		p.idle = append(p.idle[:best], p.idle[best+1:]...)
		p.hits++
		return sb
	}

	p.misses++
	return &stagingBuffer{
		buffer: p.device.CreateBuffer(&wgpu.BufferDescriptor{
			Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
			Size:  size,
		}),
		size: size,
	}
}

// Release returns sb to the pool, evicting the smallest idle buffer when full.
func (p *StagingPool) Release(sb *stagingBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) < maxPooledStaging {
		p.idle = append(p.idle, sb)
		return
	}
	smallest := 0
	for i, idle := range p.idle {
		if idle.size < p.idle[smallest].size {
			smallest = i
		}
	}
	if p.idle[smallest].size >= sb.size {
		sb.buffer.Release()
		return
	}
	p.idle[smallest].buffer.Release()
	p.idle[smallest] = sb
}

// Clear releases all pooled buffers.
func (p *StagingPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sb := range p.idle {
		sb.buffer.Release()
	}
	p.idle = p.idle[:0]
}

// Stats returns pool hits, misses and the number of idle buffers.
func (p *StagingPool) Stats() (hits, misses uint64, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits, p.misses, len(p.idle)
}
