// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/splat"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// fenceTimeout bounds the wait for one compositing dispatch.
const fenceTimeout = 5 * time.Second

var errNotReady = errors.New("gpu: device not initialized")

// Compositor composites binned Gaussians with a wgpu/hal compute shader.
// It implements splat.Accelerator.
//
// Each Composite call uploads the job, dispatches one workgroup per
// 16x16 tile and reads the frame back. Jobs with more than MaxChannels
// channels return splat.ErrFallbackToCPU.
type Compositor struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	gpuReady       bool
	externalDevice bool // true when using shared device (don't destroy on Close)

	log compositorLog
}

var _ splat.Accelerator = (*Compositor)(nil)

// NewCompositor returns an uninitialized compositor.
func NewCompositor() *Compositor { return &Compositor{} }

func (c *Compositor) Name() string { return "wgpu" }

// SetLogger receives the logger of the engine the compositor is attached to.
func (c *Compositor) SetLogger(l *slog.Logger) { c.log.set(l) }

// Init opens a Vulkan device and builds the compositing pipeline. It is a
// no-op when a shared device was already set with SetDeviceProvider.
func (c *Compositor) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gpuReady {
		return nil
	}
	if err := c.initGPU(); err != nil {
		c.releaseLocked()
		return fmt.Errorf("gpu: init: %w", err)
	}
	return nil
}

// Close releases the pipeline and, unless the device is shared, the device.
func (c *Compositor) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
}

func (c *Compositor) releaseLocked() {
	c.destroyPipeline()
	if !c.externalDevice {
		if c.device != nil {
			c.device.Destroy()
		}
		if c.instance != nil {
			c.instance.Destroy()
		}
	}
	c.device = nil
	c.instance = nil
	c.queue = nil
	c.gpuReady = false
	c.externalDevice = false
}

// SetDeviceProvider switches the compositor to a shared GPU device from an
// external provider (e.g., gogpu). The provider must implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
func (c *Compositor) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseLocked()
	c.device = device
	c.queue = queue
	c.externalDevice = true

	if err := c.createPipeline(); err != nil {
		return fmt.Errorf("gpu: create pipeline with shared device: %w", err)
	}
	c.gpuReady = true
	c.log.get().Info("gpu: switched to shared GPU device")
	return nil
}

// Composite renders job on the GPU.
func (c *Compositor) Composite(job *splat.CompositeJob) error {
	packed, err := packJob(job)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.gpuReady {
		return fmt.Errorf("%w: %w", splat.ErrFallbackToCPU, errNotReady)
	}

	start := time.Now()
	readback, err := c.dispatch(packed)
	if err != nil {
		return fmt.Errorf("gpu: composite: %w", err)
	}
	if err := unpackFrame(readback, packed.layout, job); err != nil {
		c.log.get().Warn("gpu: short readback", "err", err)
		return err
	}
	c.log.get().Debug("gpu: composite",
		"tiles", packed.tilesX*packed.tilesY,
		"channels", packed.layout.channels,
		"entries", len(job.SortedIDs),
		"elapsed", time.Since(start))
	return nil
}

// dispatch uploads the packed job, runs the compute pass and returns the
// read-back frame buffer.
func (c *Compositor) dispatch(p *packedJob) ([]byte, error) {
	var buffers []hal.Buffer
	defer func() {
		for _, b := range buffers {
			c.device.DestroyBuffer(b)
		}
	}()
	create := func(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
		buf, err := c.device.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: size, Usage: usage})
		if err != nil {
			return nil, fmt.Errorf("create %s buffer: %w", label, err)
		}
		buffers = append(buffers, buf)
		return buf, nil
	}

	inputs := []struct {
		label string
		data  []byte
		usage gputypes.BufferUsage
	}{
		{"splat_config", p.config, gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
		{"splat_gaussians", p.splats, gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{"splat_colors", p.colors, gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{"splat_sorted_ids", p.sortedIDs, gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{"splat_tile_bins", p.tileBins, gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
	}
	entries := make([]gputypes.BindGroupEntry, 0, len(inputs)+1)
	for i, in := range inputs {
		buf, err := create(in.label, uint64(len(in.data)), in.usage)
		if err != nil {
			return nil, err
		}
		c.queue.WriteBuffer(buf, 0, in.data)
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i), //nolint:gosec // small index
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: uint64(len(in.data))},
		})
	}

	frameSize := p.layout.size()
	frameBuf, err := create("splat_frame", frameSize,
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc)
	if err != nil {
		return nil, err
	}
	stagingBuf, err := create("splat_staging", frameSize,
		gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	entries = append(entries, gputypes.BindGroupEntry{
		Binding:  uint32(len(inputs)), //nolint:gosec // small index
		Resource: gputypes.BufferBinding{Buffer: frameBuf.NativeHandle(), Offset: 0, Size: frameSize},
	})

	bindGroup, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "splat_bind", Layout: c.bindLayout, Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	defer c.device.DestroyBindGroup(bindGroup)

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "splat_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("splat_composite"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "splat_composite_pass"})
	pass.SetPipeline(c.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch(p.tilesX, p.tilesY, 1)
	pass.End()
	encoder.CopyBufferToBuffer(frameBuf, stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: frameSize},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer c.device.FreeCommandBuffer(cmdBuf)

	fence, err := c.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	defer c.device.DestroyFence(fence)
	if err := c.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := c.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !fenceOK {
		return nil, fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}

	readback := make([]byte, frameSize)
	if err := c.queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	return readback, nil
}

func (c *Compositor) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	c.instance = instance
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	c.device = openDev.Device
	c.queue = openDev.Queue
	if err := c.createPipeline(); err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	c.gpuReady = true
	c.log.get().Info("gpu: compositor initialized", "adapter", selected.Info.Name)
	return nil
}

func (c *Compositor) createPipeline() error {
	code, err := compileShader(compositeShaderWGSL)
	if err != nil {
		return err
	}
	shader, err := createShaderModule(c.device, "splat_composite", code)
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	c.shader = shader

	storage := func(binding uint32, typ gputypes.BufferBindingType) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding: binding, Visibility: gputypes.ShaderStageCompute,
			Buffer: &gputypes.BufferBindingLayout{Type: typ},
		}
	}
	bindLayout, err := c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "splat_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			storage(0, gputypes.BufferBindingTypeUniform),
			storage(1, gputypes.BufferBindingTypeReadOnlyStorage),
			storage(2, gputypes.BufferBindingTypeReadOnlyStorage),
			storage(3, gputypes.BufferBindingTypeReadOnlyStorage),
			storage(4, gputypes.BufferBindingTypeReadOnlyStorage),
			storage(5, gputypes.BufferBindingTypeStorage),
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	c.bindLayout = bindLayout

	pipeLayout, err := c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "splat_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{c.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	c.pipeLayout = pipeLayout

	pipeline, err := c.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "splat_composite_pipeline", Layout: c.pipeLayout,
		Compute: hal.ComputeState{Module: c.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	c.pipeline = pipeline
	return nil
}

func (c *Compositor) destroyPipeline() {
	if c.device == nil {
		return
	}
	if c.pipeline != nil {
		c.device.DestroyComputePipeline(c.pipeline)
		c.pipeline = nil
	}
	if c.pipeLayout != nil {
		c.device.DestroyPipelineLayout(c.pipeLayout)
		c.pipeLayout = nil
	}
	if c.bindLayout != nil {
		c.device.DestroyBindGroupLayout(c.bindLayout)
		c.bindLayout = nil
	}
	if c.shader != nil {
		c.device.DestroyShaderModule(c.shader)
		c.shader = nil
	}
}
