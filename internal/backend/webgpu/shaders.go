//go:build windows

package webgpu

// WGSL compute shaders. Every shader addresses the value arena through binding 0, the index
// arena (when it needs it) through binding 1 and its parameters through binding 2. Pointers
// are element offsets into the arenas. 1D shaders linearize the invocation id as
// gid.x + gid.y*stride so that large launches can wrap into the y dimension.

const fillShader = `
@group(0) @binding(0) var<storage, read_write> heap: array<f32>;

struct Params {
    dst: u32,
    n: u32,
    stride: u32,
    value: f32,
}
@group(0) @binding(2) var<uniform> p: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x + gid.y * p.stride;
    if (i >= p.n) {
        return;
    }
    heap[p.dst + i] = p.value;
}
`

const copyShader = `
@group(0) @binding(0) var<storage, read_write> heap: array<f32>;

struct Params {
    dst: u32,
    src: u32,
    n: u32,
    stride: u32,
}
@group(0) @binding(2) var<uniform> p: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x + gid.y * p.stride;
    if (i >= p.n) {
        return;
    }
    heap[p.dst + i] = heap[p.src + i];
}
`

// broadcastShader writes total/n copies of the n elements at src.
const broadcastShader = `
@group(0) @binding(0) var<storage, read_write> heap: array<f32>;

struct Params {
    dst: u32,
    src: u32,
    n: u32,
    total: u32,
    stride: u32,
}
@group(0) @binding(2) var<uniform> p: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x + gid.y * p.stride;
    if (i >= p.total) {
        return;
    }
    heap[p.dst + i] = heap[p.src + i % p.n];
}
`

// gatherShader packs the buffers addressed by a pointer table back to back.
const gatherShader = `
@group(0) @binding(0) var<storage, read_write> heap: array<f32>;
@group(0) @binding(1) var<storage, read> table: array<u32>;

struct Params {
    dst: u32,
    ptrs: u32,
    n: u32,
    total: u32,
    stride: u32,
}
@group(0) @binding(2) var<uniform> p: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x + gid.y * p.stride;
    if (i >= p.total) {
        return;
    }
    let base = table[p.ptrs + i / p.n];
    heap[p.dst + i] = heap[base + i % p.n];
}
`

// tanhShader scatters tanh(src) through a pointer table and stores the derivative densely.
const tanhShader = `
@group(0) @binding(0) var<storage, read_write> heap: array<f32>;
@group(0) @binding(1) var<storage, read> table: array<u32>;

struct Params {
    src: u32,
    ptrs: u32,
    dest2: u32,
    n: u32,
    total: u32,
    stride: u32,
}
@group(0) @binding(2) var<uniform> p: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x + gid.y * p.stride;
    if (i >= p.total) {
        return;
    }
    let y = tanh(heap[p.src + i]);
    let base = table[p.ptrs + i / p.n];
    heap[base + i % p.n] = y;
    heap[p.dest2 + i] = 1.0 - y * y;
}
`

// matmulShader computes one output element of y_k = W·x_k per invocation.
// W is column-major [row, col]; x and y are count column vectors.
const matmulShader = `
@group(0) @binding(0) var<storage, read_write> heap: array<f32>;

struct Params {
    w: u32,
    x: u32,
    y: u32,
    row: u32,
    col: u32,
    total: u32,
    stride: u32,
    accumulate: u32,
}
@group(0) @binding(2) var<uniform> p: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x + gid.y * p.stride;
    if (i >= p.total) {
        return;
    }
    let r = i % p.row;
    let k = i / p.row;
    var sum: f32 = 0.0;
    for (var c: u32 = 0u; c < p.col; c = c + 1u) {
        sum = sum + heap[p.w + r + c * p.row] * heap[p.x + c + k * p.col];
    }
    if (p.accumulate == 1u) {
        heap[p.y + i] = heap[p.y + i] + sum;
    } else {
        heap[p.y + i] = sum;
    }
}
`

const adamShader = `
@group(0) @binding(0) var<storage, read_write> heap: array<f32>;

struct Params {
    val: u32,
    grad: u32,
    mean: u32,
    square: u32,
    n: u32,
    stride: u32,
    beta1: f32,
    beta2: f32,
    lrt: f32,
    reg: f32,
    eps: f32,
}
@group(0) @binding(2) var<uniform> p: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x + gid.y * p.stride;
    if (i >= p.n) {
        return;
    }
    let v = heap[p.val + i];
    let g = heap[p.grad + i] + p.reg * v;
    let m = p.beta1 * heap[p.mean + i] + (1.0 - p.beta1) * g;
    let s = p.beta2 * heap[p.square + i] + (1.0 - p.beta2) * g * g;
    heap[p.mean + i] = m;
    heap[p.square + i] = s;
    heap[p.val + i] = v - m * p.lrt / sqrt(s + p.eps);
}
`

const sgdShader = `
@group(0) @binding(0) var<storage, read_write> heap: array<f32>;

struct Params {
    val: u32,
    grad: u32,
    velocity: u32,
    n: u32,
    stride: u32,
    lr: f32,
    momentum: f32,
    reg: f32,
}
@group(0) @binding(2) var<uniform> p: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x + gid.y * p.stride;
    if (i >= p.n) {
        return;
    }
    let v = heap[p.val + i];
    let m = p.momentum * heap[p.velocity + i] + heap[p.grad + i] + p.reg * v;
    heap[p.velocity + i] = m;
    heap[p.val + i] = v - p.lr * m;
}
`

// sumSquaresShader runs as a single workgroup that strides over every buffer and reduces
// the partial sums in workgroup memory.
const sumSquaresShader = `
@group(0) @binding(0) var<storage, read_write> heap: array<f32>;
@group(0) @binding(1) var<storage, read> table: array<u32>;

struct Params {
    dst: u32,
    ptrs: u32,
    lens: u32,
    count: u32,
}
@group(0) @binding(2) var<uniform> p: Params;

var<workgroup> partial: array<f32, 256>;

@compute @workgroup_size(256)
fn main(@builtin(local_invocation_id) lid: vec3<u32>) {
    var sum: f32 = 0.0;
    for (var b: u32 = 0u; b < p.count; b = b + 1u) {
        let base = table[p.ptrs + b];
        let nb = table[p.lens + b];
        for (var j: u32 = lid.x; j < nb; j = j + 256u) {
            let v = heap[base + j];
            sum = sum + v * v;
        }
    }
    partial[lid.x] = sum;
    workgroupBarrier();
    for (var s: u32 = 128u; s > 0u; s = s >> 1u) {
        if (lid.x < s) {
            partial[lid.x] = partial[lid.x] + partial[lid.x + s];
        }
        workgroupBarrier();
    }
    if (lid.x == 0u) {
        heap[p.dst] = partial[0];
    }
}
`

// scaleBatchShader uses gid.y as the buffer index and gid.x as the element index.
const scaleBatchShader = `
@group(0) @binding(0) var<storage, read_write> heap: array<f32>;
@group(0) @binding(1) var<storage, read> table: array<u32>;

struct Params {
    ptrs: u32,
    lens: u32,
    count: u32,
    scale: f32,
}
@group(0) @binding(2) var<uniform> p: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let b = gid.y;
    let j = gid.x;
    if (b >= p.count || j >= table[p.lens + b]) {
        return;
    }
    let base = table[p.ptrs + b];
    heap[base + j] = heap[base + j] * p.scale;
}
`
