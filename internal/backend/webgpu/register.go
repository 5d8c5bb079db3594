// Package webgpu implements the device backend on top of WebGPU compute shaders.
//
// Device memory is two storage buffers: the value arena (f32) and the index arena (u32).
// Device pointers are element offsets into them, so pointer tables uploaded to the index
// arena are dereferenced directly by the shaders. The native backend is only built on
// Windows; elsewhere the backend registers but always fails to open.
package webgpu

import "github.com/born-ml/dyntensor/internal/device"

// Name is the registered backend name.
const Name = "webgpu"

func init() {
	device.Register(Name, open)
}
