package webgpu

import (
	"github.com/born-ml/vision/internal/provider"
	"github.com/born-ml/vision/internal/provider/cpu"
)

// newCPUFallback builds the CPU delegate used for ops that are not worth
// a GPU round trip.
func newCPUFallback() (provider.Compute, error) {
	return cpu.New()
}

// WGSL shaders for element-wise operations, one per op.
// Binary layout: a, b, result, params. Unary layout: input, result, params.

const binaryShaderHeader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
`

const unaryShaderHeader = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
`

const shaderFooter = `
    }
}
`

var binaryShaders = map[provider.BinaryOp]string{
	provider.Add: binaryShaderHeader + `        result[idx] = a[idx] + b[idx];` + shaderFooter,
	provider.Sub: binaryShaderHeader + `        result[idx] = a[idx] - b[idx];` + shaderFooter,
	provider.Mul: binaryShaderHeader + `        result[idx] = a[idx] * b[idx];` + shaderFooter,
	provider.Div: binaryShaderHeader + `        result[idx] = a[idx] / b[idx];` + shaderFooter,
}

var unaryShaders = map[provider.UnaryOp]string{
	provider.Relu:    unaryShaderHeader + `        result[idx] = max(input[idx], 0.0);` + shaderFooter,
	provider.Sigmoid: unaryShaderHeader + `        result[idx] = 1.0 / (1.0 + exp(-input[idx]));` + shaderFooter,
}
