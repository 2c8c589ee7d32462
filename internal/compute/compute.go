// Package compute runs the voxel narrow phase as WebGPU compute shaders.
// It is fully independent of raylib's OpenGL rendering and never touches
// the physics math: it only produces contacts.
package compute

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNotInitialized is returned when a GPU resource is requested before
// Initialize succeeded.
var ErrNotInitialized = errors.New("compute: system not initialized")

// System manages the WebGPU device.
// Initialize once at startup, before the physics world asks for the GPU path.
type System struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Cache of compiled compute pipelines
	pipelines map[string]*Pipeline
	mu        sync.RWMutex
}

// BindingType is the kind of one @binding slot in a pipeline's group 0.
type BindingType int

const (
	BindingReadOnlyStorage BindingType = iota
	BindingStorage
	BindingUniform
)

// Pipeline is a compiled entry point with an explicit bind group layout.
type Pipeline struct {
	shader   *wgpu.ShaderModule
	layout   *wgpu.BindGroupLayout
	plLayout *wgpu.PipelineLayout
	pipeline *wgpu.ComputePipeline
}

// Buffer wraps a GPU buffer for compute operations.
type Buffer struct {
	buffer *wgpu.Buffer
	size   uint64
	usage  wgpu.BufferUsage
}

var (
	globalSystem *System
	initOnce     sync.Once
	initErr      error
)

// AdapterInfo contains GPU information.
type AdapterInfo struct {
	Name       string
	Vendor     string
	Backend    string
	DeviceType string
	Driver     string
}

// Initialize sets up the compute system. Safe to call multiple times.
// Returns detailed GPU info on success.
func Initialize() (info AdapterInfo, err error) {
	initOnce.Do(func() {
		globalSystem, initErr = newSystem()
	})
	if initErr != nil {
		return AdapterInfo{}, initErr
	}
	adapterInfo := globalSystem.adapter.GetInfo()
	return AdapterInfo{
		Name:       adapterInfo.Name,
		Vendor:     adapterInfo.VendorName,
		Backend:    adapterInfo.BackendType.String(),
		DeviceType: adapterInfo.AdapterType.String(),
		Driver:     adapterInfo.DriverDescription,
	}, nil
}

// Get returns the global compute system, or nil before Initialize.
func Get() *System {
	return globalSystem
}

func newSystem() (*System, error) {
	instance := wgpu.CreateInstance(nil)

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("failed to get GPU adapter: %w", err)
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("failed to get GPU device: %w", err)
	}

	return &System{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     device.GetQueue(),
		pipelines: make(map[string]*Pipeline),
	}, nil
}

// CreatePipeline compiles one entry point of a WGSL module against an
// explicit layout built from bindings, and caches it by name.
func (s *System) CreatePipeline(name, wgslCode, entryPoint string, bindings []BindingType) (*Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Return cached pipeline if it exists
	if p, ok := s.pipelines[name]; ok {
		return p, nil
	}

	entries := make([]wgpu.BindGroupLayoutEntry, len(bindings))
	for i, b := range bindings {
		var t wgpu.BufferBindingType
		switch b {
		case BindingReadOnlyStorage:
			t = wgpu.BufferBindingTypeReadOnlyStorage
		case BindingStorage:
			t = wgpu.BufferBindingTypeStorage
		case BindingUniform:
			t = wgpu.BufferBindingTypeUniform
		}
		entries[i] = wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     wgpu.BufferBindingLayout{Type: t},
		}
	}
	layout, err := s.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   name + "_layout",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group layout: %w", err)
	}

	plLayout, err := s.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            name + "_pipeline_layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("failed to create pipeline layout: %w", err)
	}

	shaderModule, err := s.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: wgslCode,
		},
	})
	if err != nil {
		plLayout.Release()
		layout.Release()
		return nil, fmt.Errorf("failed to create shader module: %w", err)
	}

	pipeline, err := s.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  name,
		Layout: plLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shaderModule,
			EntryPoint: entryPoint,
		},
	})
	if err != nil {
		shaderModule.Release()
		plLayout.Release()
		layout.Release()
		return nil, fmt.Errorf("failed to create compute pipeline %s: %w", name, err)
	}

	p := &Pipeline{
		shader:   shaderModule,
		layout:   layout,
		plLayout: plLayout,
		pipeline: pipeline,
	}
	s.pipelines[name] = p
	return p, nil
}

// CreateBuffer creates a GPU buffer for compute operations.
func (s *System) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*Buffer, error) {
	buf, err := s.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %s: %w", label, err)
	}
	return &Buffer{buffer: buf, size: size, usage: usage}, nil
}

// CreateBufferWithData creates a GPU buffer and uploads initial data.
func (s *System) CreateBufferWithData(label string, data []byte, usage wgpu.BufferUsage) (*Buffer, error) {
	buf, err := s.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label,
		Contents: data,
		Usage:    usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %s: %w", label, err)
	}
	return &Buffer{buffer: buf, size: uint64(len(data)), usage: usage}, nil
}

// WriteBuffer uploads data to a GPU buffer.
func (s *System) WriteBuffer(buf *Buffer, offset uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	s.queue.WriteBuffer(buf.buffer, offset, data)
}

// DispatchParams is one compute pass.
type DispatchParams struct {
	Pipeline    *Pipeline
	Buffers     []*Buffer // Buffers to bind (in order of @binding)
	WorkgroupsX uint32    // Number of workgroups in X
	WorkgroupsY uint32    // Number of workgroups in Y (default 1)
	WorkgroupsZ uint32    // Number of workgroups in Z (default 1)
}

// Dispatch encodes every pass, in order, into one command buffer and
// submits it. It does not wait for the GPU.
func (s *System) Dispatch(passes ...DispatchParams) error {
	encoder, err := s.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}

	var groups []*wgpu.BindGroup
	defer func() {
		for _, g := range groups {
			g.Release()
		}
	}()

	for _, params := range passes {
		if params.WorkgroupsX == 0 {
			continue
		}
		if params.WorkgroupsY == 0 {
			params.WorkgroupsY = 1
		}
		if params.WorkgroupsZ == 0 {
			params.WorkgroupsZ = 1
		}

		// Build bind group entries
		entries := make([]wgpu.BindGroupEntry, len(params.Buffers))
		for i, buf := range params.Buffers {
			entries[i] = wgpu.BindGroupEntry{
				Binding: uint32(i),
				Buffer:  buf.buffer,
				Size:    buf.size,
			}
		}
		bindGroup, err := s.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "compute_bind_group",
			Layout:  params.Pipeline.layout,
			Entries: entries,
		})
		if err != nil {
			encoder.Release()
			return fmt.Errorf("failed to create bind group: %w", err)
		}
		groups = append(groups, bindGroup)

		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(params.Pipeline.pipeline)
		pass.SetBindGroup(0, bindGroup, nil)
		pass.DispatchWorkgroups(params.WorkgroupsX, params.WorkgroupsY, params.WorkgroupsZ)
		pass.End()
		pass.Release()
	}

	commands, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("failed to finish command encoder: %w", err)
	}
	defer commands.Release()

	s.queue.Submit(commands)
	return nil
}

// PendingRead is a buffer copy whose mapping may not have completed yet.
type PendingRead struct {
	system  *System
	staging *wgpu.Buffer
	size    uint64
	done    chan error
	result  []byte
	err     error
	closed  bool
}

// BeginRead copies the first size bytes of buf (all of it when size is 0)
// into a staging buffer and requests a mapping. The buffer must have been
// created with BufferUsageCopySrc.
func (s *System) BeginRead(buf *Buffer, size uint64) (*PendingRead, error) {
	if size == 0 || size > buf.size {
		size = buf.size
	}
	// Copies must be 4-byte aligned
	size = (size + 3) &^ 3

	staging, err := s.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "staging_read",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create staging buffer: %w", err)
	}

	encoder, err := s.device.CreateCommandEncoder(nil)
	if err != nil {
		staging.Release()
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(buf.buffer, 0, staging, 0, size)
	commands, err := encoder.Finish(nil)
	if err != nil {
		staging.Release()
		return nil, fmt.Errorf("failed to finish encoder: %w", err)
	}
	s.queue.Submit(commands)
	commands.Release()

	pr := &PendingRead{system: s, staging: staging, size: size, done: make(chan error, 1)}
	err = staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			pr.done <- fmt.Errorf("failed to map buffer: %v", status)
		} else {
			pr.done <- nil
		}
	})
	if err != nil {
		staging.Release()
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}
	return pr, nil
}

// Poll checks once without blocking. It returns ready=false while the GPU
// is still working.
func (pr *PendingRead) Poll() ([]byte, bool, error) {
	if pr.closed {
		return pr.result, true, pr.err
	}
	pr.system.device.Poll(false, nil)
	select {
	case err := <-pr.done:
		pr.finish(err)
		return pr.result, true, pr.err
	default:
		return nil, false, nil
	}
}

// Wait blocks until the copy is mapped.
func (pr *PendingRead) Wait() ([]byte, error) {
	if pr.closed {
		return pr.result, pr.err
	}
	pr.system.device.Poll(true, nil)
	pr.finish(<-pr.done)
	return pr.result, pr.err
}

func (pr *PendingRead) finish(err error) {
	pr.closed = true
	if err != nil {
		pr.err = err
		pr.staging.Release()
		return
	}
	mapped := pr.staging.GetMappedRange(0, uint(pr.size))
	pr.result = make([]byte, len(mapped))
	copy(pr.result, mapped)
	pr.staging.Unmap()
	pr.staging.Release()
}

// ReadBuffer copies GPU buffer data back to CPU, blocking until done.
func (s *System) ReadBuffer(buf *Buffer, size uint64) ([]byte, error) {
	pr, err := s.BeginRead(buf, size)
	if err != nil {
		return nil, err
	}
	return pr.Wait()
}

// Release frees all GPU resources.
func (s *System) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pipelines {
		p.pipeline.Release()
		p.plLayout.Release()
		p.layout.Release()
		p.shader.Release()
	}
	s.pipelines = nil

	s.queue.Release()
	s.device.Release()
	s.adapter.Release()
	s.instance.Release()
}

// Release frees the buffer's GPU memory.
func (b *Buffer) Release() {
	b.buffer.Release()
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.size
}

// ToBytes converts a slice to bytes for upload.
func ToBytes[T any](data []T) []byte {
	return wgpu.ToBytes(data)
}

// FromBytes reinterprets read-back bytes as a slice of T.
func FromBytes[T any](data []byte) []T {
	return wgpu.FromBytes[T](data)
}
