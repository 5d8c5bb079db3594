package webgpu

import (
	"encoding/binary"
	"math"
)

// workgroupSize is the number of invocations per workgroup of every 1D shader.
const workgroupSize = 256

// maxWorkgroupsPerDim is the WebGPU default limit on workgroups per dispatch dimension.
const maxWorkgroupsPerDim = 65535

// params packs a WGSL uniform struct made of 4-byte scalars, in declaration order.
type params struct {
	buf []byte
}

func (p *params) u32(v int) *params {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, uint32(v)) //nolint:gosec // Sizes and offsets fit the 32-bit arena.
	return p
}

func (p *params) f32(v float32) *params {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, math.Float32bits(v))
	return p
}

func (p *params) flag(v bool) *params {
	if v {
		return p.u32(1)
	}
	return p.u32(0)
}

// bytes returns the packed struct padded to the 16-byte uniform alignment.
func (p *params) bytes() []byte {
	size := (len(p.buf) + 15) &^ 15
	out := make([]byte, size)
	copy(out, p.buf)
	return out
}

// grid returns the workgroup counts for n invocations of a 1D shader and the row stride the
// shader uses to linearize (gid.x, gid.y). Dispatches wider than the per-dimension limit
// wrap into the y dimension.
func grid(n int) (x, y uint32, stride int) {
	groups := (n + workgroupSize - 1) / workgroupSize
	if groups == 0 {
		groups = 1
	}
	gx := min(groups, maxWorkgroupsPerDim)
	gy := (groups + gx - 1) / gx
	return uint32(gx), uint32(gy), gx * workgroupSize //nolint:gosec // Bounded by the limits above.
}

func float32Bytes(src []float32) []byte {
	out := make([]byte, 0, len(src)*4)
	for _, v := range src {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func uint32Bytes(src []uint32) []byte {
	out := make([]byte, 0, len(src)*4)
	for _, v := range src {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	return out
}

func decodeFloat32s(dst []float32, data []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
}

func decodeUint32s(dst []uint32, data []byte) {
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
}
