//go:build windows

package webgpu

import (
	"unsafe"

	"github.com/born-ml/dyntensor/internal/device"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
)

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Backend's shaders map.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, exists := b.shaders[name]; exists {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()

	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (b *Backend) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, exists := b.pipelines[name]; exists {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	// Auto layout (nil): bindings a shader does not declare are absent from its layout.
	pipeline := b.device.CreateComputePipelineSimple(nil, shader, "main")

	b.mu.Lock()
	b.pipelines[name] = pipeline
	b.mu.Unlock()

	return pipeline
}

// createBuffer creates a GPU buffer initialized with data.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// createUniformBuffer creates a uniform buffer from an already 16-byte aligned params block.
func (b *Backend) createUniformBuffer(data []byte) *wgpu.Buffer {
	return b.createBuffer(data, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
}

// dispatch encodes one compute pass of the named shader and queues it.
// The value arena is always bound; the index arena only when withIndices is set.
func (b *Backend) dispatch(name, code string, p *params, withIndices bool, x, y uint32) {
	shader := b.compileShader(name, code)
	pipeline := b.getOrCreatePipeline(name, shader)

	data := p.bytes()
	bufferParams := b.createUniformBuffer(data)
	defer bufferParams.Release()

	entries := []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, b.values, 0, b.valueBytes),
	}
	if withIndices {
		entries = append(entries, wgpu.BufferBindingEntry(1, b.indices, 0, b.indexBytes))
	}
	entries = append(entries, wgpu.BufferBindingEntry(2, bufferParams, 0, uint64(len(data))))

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := b.device.CreateBindGroupSimple(bindGroupLayout, entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	computePass.DispatchWorkgroups(x, y, 1)
	computePass.End()

	b.queueCommand(encoder.Finish(nil))
}

// upload copies data into arena at byte offset off through a mapped staging buffer.
func (b *Backend) upload(arena *wgpu.Buffer, off uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	staging := b.createBuffer(data, wgpu.BufferUsageCopySrc)
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, arena, off, uint64(len(data)))
	b.queueCommand(encoder.Finish(nil))
	b.flushCommands()
}

// download copies size bytes at byte offset off of arena to host memory.
// All pending kernels are submitted first, so the copy observes their results.
func (b *Backend) download(arena *wgpu.Buffer, off, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	stagingBuffer := b.staging.Acquire(size)
	defer b.staging.Release(stagingBuffer)

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(arena, off, stagingBuffer.buffer, 0, size)
	b.queueCommand(encoder.Finish(nil))
	b.flushCommands()

	if err := stagingBuffer.buffer.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, errors.Wrap(err, "webgpu: failed to map staging buffer")
	}
	mappedPtr := stagingBuffer.buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	stagingBuffer.buffer.Unmap()

	return result, nil
}

func (b *Backend) checkValues(name string, p device.Ptr, n int) error {
	if p.IsNil() {
		return errors.Errorf("webgpu: %s: nil pointer", name)
	}
	if end := uint64(p.Offset()+n) * 4; n < 0 || end > b.valueBytes { //nolint:gosec // Non-negative.
		return errors.Errorf("webgpu: %s: range [%d:%d] outside value heap", name, p.Offset(), p.Offset()+n)
	}
	return nil
}

func (b *Backend) checkIndices(name string, p device.IndexPtr, n int) error {
	if p.IsNil() {
		return errors.Errorf("webgpu: %s: nil index pointer", name)
	}
	if end := uint64(p.Offset()+n) * 4; n < 0 || end > b.indexBytes { //nolint:gosec // Non-negative.
		return errors.Errorf("webgpu: %s: range [%d:%d] outside index heap", name, p.Offset(), p.Offset()+n)
	}
	return nil
}

// WriteValues copies src into the value arena at dst.
func (b *Backend) WriteValues(dst device.Ptr, src []float32) error {
	if err := b.takeErr(); err != nil {
		return err
	}
	if err := b.checkValues("WriteValues", dst, len(src)); err != nil {
		return err
	}
	b.upload(b.values, uint64(dst.Offset())*4, float32Bytes(src)) //nolint:gosec // Checked above.
	return nil
}

// ReadValues copies len(dst) elements at src into dst.
func (b *Backend) ReadValues(dst []float32, src device.Ptr) error {
	if err := b.takeErr(); err != nil {
		return err
	}
	if err := b.checkValues("ReadValues", src, len(dst)); err != nil {
		return err
	}
	return b.readValues(dst, uint64(src.Offset())*4) //nolint:gosec // Checked above.
}

func (b *Backend) readValues(dst []float32, off uint64) error {
	data, err := b.download(b.values, off, uint64(len(dst))*4)
	if err != nil {
		return err
	}
	decodeFloat32s(dst, data)
	return nil
}

// WriteIndices copies src into the index arena at dst.
func (b *Backend) WriteIndices(dst device.IndexPtr, src []uint32) error {
	if err := b.takeErr(); err != nil {
		return err
	}
	if err := b.checkIndices("WriteIndices", dst, len(src)); err != nil {
		return err
	}
	b.upload(b.indices, uint64(dst.Offset())*4, uint32Bytes(src)) //nolint:gosec // Checked above.
	return nil
}

// ReadIndices copies len(dst) words at src into dst.
func (b *Backend) ReadIndices(dst []uint32, src device.IndexPtr) error {
	if err := b.takeErr(); err != nil {
		return err
	}
	if err := b.checkIndices("ReadIndices", src, len(dst)); err != nil {
		return err
	}
	data, err := b.download(b.indices, uint64(src.Offset())*4, uint64(len(dst))*4) //nolint:gosec // Checked above.
	if err != nil {
		return err
	}
	decodeUint32s(dst, data)
	return nil
}
