// Package webgpu implements the GPU execution provider via WebGPU
// compute shaders, using github.com/go-webgpu/webgpu for zero-CGO bindings.
//
// Element-wise operations run on the GPU. MatMul falls back to the CPU
// provider; detection-head graphs are dominated by element-wise work and
// the readback cost of a small matmul exceeds its compute cost.
package webgpu

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/vision/internal/provider"
	"github.com/born-ml/vision/internal/tensor"
)

// workgroupSize is the number of threads per workgroup in all shaders.
const workgroupSize = 256

// Provider executes element-wise tensor operations on the GPU.
type Provider struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	fallback provider.Compute // CPU delegate for non-element-wise ops
}

// New creates a WebGPU provider.
// Returns an error if no GPU adapter or device is available, so that
// provider resolution can fall through to the next preference.
func New() (c provider.Compute, err error) {
	// The native library panics rather than erroring when absent.
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	fallback, err := newCPUFallback()
	if err != nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, err
	}

	return &Provider{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
		fallback:  fallback,
	}, nil
}

// Name returns "webgpu".
func (p *Provider) Name() string {
	return "webgpu"
}

// Release frees the GPU device and instance.
func (p *Provider) Release() {
	p.fallback.Release()
	if p.device != nil {
		p.device.Release()
	}
	if p.adapter != nil {
		p.adapter.Release()
	}
	if p.instance != nil {
		p.instance.Release()
	}
}

// Binary executes an element-wise binary operation on the GPU.
// A single-element right operand is broadcast via the CPU delegate.
func (p *Provider) Binary(op provider.BinaryOp, a, b *tensor.Raw) (*tensor.Raw, error) {
	if a.Detached() || b.Detached() {
		return nil, tensor.ErrDetached
	}
	if b.NumElements() == 1 {
		// Scalar broadcast is not worth a GPU round trip.
		return p.fallback.Binary(op, a, b)
	}
	if !a.Shape().Equal(b.Shape()) {
		return nil, fmt.Errorf("webgpu: %s shape mismatch: %v vs %v", op, a.Shape(), b.Shape())
	}

	shaderCode, ok := binaryShaders[op]
	if !ok {
		return nil, fmt.Errorf("webgpu: unsupported binary op %d", op)
	}
	return p.runElementwise("binary_"+op.String(), shaderCode, a, b)
}

// Unary executes an element-wise unary operation on the GPU.
func (p *Provider) Unary(op provider.UnaryOp, x *tensor.Raw) (*tensor.Raw, error) {
	if x.Detached() {
		return nil, tensor.ErrDetached
	}
	shaderCode, ok := unaryShaders[op]
	if !ok {
		return nil, fmt.Errorf("webgpu: unsupported unary op %d", op)
	}
	return p.runElementwise("unary_"+op.String(), shaderCode, x, nil)
}

// MatMul delegates to the CPU provider.
func (p *Provider) MatMul(a, b *tensor.Raw) (*tensor.Raw, error) {
	return p.fallback.MatMul(a, b)
}

// compileShader compiles WGSL shader code, caching the module by name.
func (p *Provider) compileShader(name, code string) *wgpu.ShaderModule {
	p.mu.RLock()
	if shader, exists := p.shaders[name]; exists {
		p.mu.RUnlock()
		return shader
	}
	p.mu.RUnlock()

	shader := p.device.CreateShaderModuleWGSL(code)

	p.mu.Lock()
	p.shaders[name] = shader
	p.mu.Unlock()

	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates one.
func (p *Provider) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	p.mu.RLock()
	if pipeline, exists := p.pipelines[name]; exists {
		p.mu.RUnlock()
		return pipeline
	}
	p.mu.RUnlock()

	pipeline := p.device.CreateComputePipelineSimple(nil, shader, "main")

	p.mu.Lock()
	p.pipelines[name] = pipeline
	p.mu.Unlock()

	return pipeline
}

// createBuffer creates a GPU buffer initialized with data.
func (p *Provider) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := p.device.CreateBuffer(&wgpu.BufferDescriptor{
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

// createUniformBuffer creates a 16-byte-aligned uniform buffer.
func (p *Provider) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	alignedSize := (size + 15) &^ 15

	buffer := p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, alignedSize)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), alignedSize)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// readBuffer copies a GPU buffer back to CPU memory via a staging buffer.
func (p *Provider) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := p.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	cmdBuffer := encoder.Finish(nil)
	p.queue.Submit(cmdBuffer)

	if err := staging.MapAsync(p.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}

	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	staging.Unmap()

	return result, nil
}

// runElementwise dispatches an element-wise shader over a (and b, if non-nil)
// and reads back the result as a new tensor. Both shader families use the
// same binding layout, with binding 1 unused by unary shaders.
func (p *Provider) runElementwise(name, code string, a, b *tensor.Raw) (*tensor.Raw, error) {
	numElements := a.NumElements()

	shader := p.compileShader(name, code)
	pipeline := p.getOrCreatePipeline(name, shader)

	bufferA := p.createBuffer(float32Bytes(a.Data()), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferA.Release()

	resultSize := uint64(numElements * 4)
	bufferResult := p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  resultSize,
	})
	defer bufferResult.Release()

	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:4], uint32(numElements)) //nolint:gosec // G115: element counts fit in uint32
	bufferParams := p.createUniformBuffer(params)
	defer bufferParams.Release()

	entries := []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferA, 0, resultSize),
	}
	if b != nil {
		bufferB := p.createBuffer(float32Bytes(b.Data()), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
		defer bufferB.Release()
		entries = append(entries,
			wgpu.BufferBindingEntry(1, bufferB, 0, resultSize),
			wgpu.BufferBindingEntry(2, bufferResult, 0, resultSize),
			wgpu.BufferBindingEntry(3, bufferParams, 0, 16),
		)
	} else {
		entries = append(entries,
			wgpu.BufferBindingEntry(1, bufferResult, 0, resultSize),
			wgpu.BufferBindingEntry(2, bufferParams, 0, 16),
		)
	}

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := p.device.CreateBindGroupSimple(bindGroupLayout, entries)
	defer bindGroup.Release()

	encoder := p.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	workgroups := uint32((numElements + workgroupSize - 1) / workgroupSize) //nolint:gosec // G115: workgroup count is non-negative
	computePass.DispatchWorkgroups(workgroups, 1, 1)
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	p.queue.Submit(cmdBuffer)

	resultData, err := p.readBuffer(bufferResult, resultSize)
	if err != nil {
		return nil, err
	}

	return tensor.FromSlice(bytesFloat32(resultData), a.Shape())
}

// float32Bytes reinterprets a float32 slice as bytes without copying.
func float32Bytes(data []float32) []byte {
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
}

// bytesFloat32 copies little-endian bytes into a fresh float32 slice.
func bytesFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	if len(out) == 0 {
		return out
	}
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation of the source
	src := unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), len(out))
	copy(out, src)
	return out
}
