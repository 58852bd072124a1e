package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/terra/graph"
	"github.com/gogpu/terra/internal/shader"
)

// Water bind group slots.
const (
	waterScreenBinding  = 1
	waterSamplerBinding = 2
	waterDepthBinding   = 3
)

// WaterKey specializes the water pipeline. It has no fields: there is one
// water pipeline per pass, targeting the pass's format.
type WaterKey struct{}

// WaterPass composites water over the tonemapped image. It reads the
// post-process source and the multisampled main depth, and writes the
// post-process destination without blending or depth.
type WaterPass struct {
	device    hal.Device
	cache     *PipelineCache
	layout    hal.BindGroupLayout
	sampler   hal.Sampler
	vertex    *shader.Program
	fragment  *shader.Program
	format    gputypes.TextureFormat
	pipelines *SpecializedPipelines[WaterKey]

	id     PipelineID
	queued bool
}

// NewWaterPass creates the water pass, its layout and its sampler.
func NewWaterPass(device hal.Device, cache *PipelineCache, loader *shader.Loader,
	format gputypes.TextureFormat) (*WaterPass, error) {
	vs, err := loader.Load(FullscreenShader)
	if err != nil {
		return nil, err
	}
	fs, err := loader.Load(WaterShader)
	if err != nil {
		return nil, err
	}
	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "water_bind_group_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniformLayoutEntry(viewBinding, gputypes.ShaderStageFragment),
			textureLayoutEntry(waterScreenBinding, gputypes.TextureSampleTypeUnfilterableFloat, false),
			samplerLayoutEntry(waterSamplerBinding, gputypes.SamplerBindingTypeNonFiltering),
			textureLayoutEntry(waterDepthBinding, gputypes.TextureSampleTypeDepth, true),
			uniformLayoutEntry(globalsBinding, gputypes.ShaderStageFragment),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create water bind group layout: %w", err)
	}
	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "water_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
	})
	if err != nil {
		device.DestroyBindGroupLayout(layout)
		return nil, fmt.Errorf("create water sampler: %w", err)
	}
	return &WaterPass{
		device:    device,
		cache:     cache,
		layout:    layout,
		sampler:   sampler,
		vertex:    vs,
		fragment:  fs,
		format:    format,
		pipelines: NewSpecializedPipelines[WaterKey](),
	}, nil
}

// Specialize builds the water pipeline: single-sampled, no depth, no blend.
func (p *WaterPass) Specialize(WaterKey) RenderPipelineDescriptor {
	return RenderPipelineDescriptor{
		Label:       "water_pipeline",
		Layouts:     []hal.BindGroupLayout{p.layout},
		Vertex:      ShaderStage{Program: p.vertex, EntryPoint: "fullscreen_vertex_shader"},
		Fragment:    ShaderStage{Program: p.fragment, EntryPoint: "fragment"},
		Targets:     colorTarget(p.format),
		Primitive:   fullscreenPrimitive(),
		Multisample: gputypes.MultisampleState{Count: 1, Mask: ^uint64(0)},
	}
}

// Queue specializes the water pipeline.
func (p *WaterPass) Queue() PipelineID {
	p.id = p.pipelines.Specialize(p.cache, p, WaterKey{})
	p.queued = true
	return p.id
}

// Pipeline returns the water pipeline ID once it has been specialized.
func (p *WaterPass) Pipeline() (PipelineID, bool) {
	return p.pipelines.Lookup(WaterKey{})
}

// Run composites the water. A pipeline still compiling skips the pass;
// a missing uniform or texture view panics.
func (p *WaterPass) Run(fc *FrameContext) error {
	if !p.queued {
		return nil
	}
	pipeline, ok := p.cache.Get(p.id)
	if !ok {
		return nil
	}
	requireUniforms(fc, "water")
	depth := fc.Target.DepthView()
	requireView(depth, "water", "depth texture")

	w := fc.postProcessWrite(graph.Water)
	requireView(w.Source, "water", "post-process source")
	requireView(w.Destination, "water", "post-process destination")

	group, err := fc.Device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "water_bind_group",
		Layout: p.layout,
		Entries: []gputypes.BindGroupEntry{
			bufferEntry(viewBinding, fc.ViewUniform, ViewUniformSize),
			textureEntry(waterScreenBinding, w.Source),
			samplerEntry(waterSamplerBinding, p.sampler),
			textureEntry(waterDepthBinding, depth),
			bufferEntry(globalsBinding, fc.Globals, GlobalsSize),
		},
	})
	if err != nil {
		return fmt.Errorf("create water bind group: %w", err)
	}
	fc.resources.addBindGroup(group)

	fullscreenPass(fc, "water_pass", hal.RenderPassColorAttachment{
		View:    w.Destination,
		LoadOp:  gputypes.LoadOpClear,
		StoreOp: gputypes.StoreOpStore,
	}, pipeline, group)
	return nil
}

// Destroy releases the sampler and bind group layout.
func (p *WaterPass) Destroy() {
	if p.sampler != nil {
		p.device.DestroySampler(p.sampler)
		p.sampler = nil
	}
	if p.layout != nil {
		p.device.DestroyBindGroupLayout(p.layout)
		p.layout = nil
	}
}
