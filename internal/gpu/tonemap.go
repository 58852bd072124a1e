package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/terra/graph"
	"github.com/gogpu/terra/internal/shader"
)

// TonemapKey specializes the tonemapping pipeline.
type TonemapKey struct {
	Format gputypes.TextureFormat
}

// TonemapPass maps the resolved scene into display range. It is the
// first post-process write of the frame.
type TonemapPass struct {
	device    hal.Device
	cache     *PipelineCache
	layout    hal.BindGroupLayout
	vertex    *shader.Program
	fragment  *shader.Program
	format    gputypes.TextureFormat
	pipelines *SpecializedPipelines[TonemapKey]

	id     PipelineID
	queued bool
}

// NewTonemapPass creates the tonemapping pass.
func NewTonemapPass(device hal.Device, cache *PipelineCache, loader *shader.Loader,
	format gputypes.TextureFormat) (*TonemapPass, error) {
	vs, err := loader.Load(FullscreenShader)
	if err != nil {
		return nil, err
	}
	fs, err := loader.Load(TonemapShader)
	if err != nil {
		return nil, err
	}
	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "tonemap_bind_group_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			textureLayoutEntry(0, gputypes.TextureSampleTypeUnfilterableFloat, false),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create tonemap bind group layout: %w", err)
	}
	return &TonemapPass{
		device:    device,
		cache:     cache,
		layout:    layout,
		vertex:    vs,
		fragment:  fs,
		format:    format,
		pipelines: NewSpecializedPipelines[TonemapKey](),
	}, nil
}

// Specialize builds the tonemapping pipeline.
func (p *TonemapPass) Specialize(key TonemapKey) RenderPipelineDescriptor {
	return RenderPipelineDescriptor{
		Label:       "tonemap_pipeline",
		Layouts:     []hal.BindGroupLayout{p.layout},
		Vertex:      ShaderStage{Program: p.vertex, EntryPoint: "fullscreen_vertex_shader"},
		Fragment:    ShaderStage{Program: p.fragment, EntryPoint: "fragment"},
		Targets:     colorTarget(key.Format),
		Primitive:   fullscreenPrimitive(),
		Multisample: gputypes.MultisampleState{Count: 1, Mask: ^uint64(0)},
	}
}

// Queue specializes the tonemapping pipeline.
func (p *TonemapPass) Queue() PipelineID {
	p.id = p.pipelines.Specialize(p.cache, p, TonemapKey{Format: p.format})
	p.queued = true
	return p.id
}

// Run reads the current post-process source and writes the other buffer.
// A pipeline still compiling skips the pass and leaves the chain as is.
func (p *TonemapPass) Run(fc *FrameContext) error {
	if !p.queued {
		return nil
	}
	pipeline, ok := p.cache.Get(p.id)
	if !ok {
		return nil
	}
	w := fc.postProcessWrite(graph.Tonemapping)
	requireView(w.Source, "tonemap", "post-process source")
	requireView(w.Destination, "tonemap", "post-process destination")

	group, err := fc.Device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "tonemap_bind_group",
		Layout:  p.layout,
		Entries: []gputypes.BindGroupEntry{textureEntry(0, w.Source)},
	})
	if err != nil {
		return fmt.Errorf("create tonemap bind group: %w", err)
	}
	fc.resources.addBindGroup(group)

	fullscreenPass(fc, "tonemap_pass", hal.RenderPassColorAttachment{
		View:    w.Destination,
		LoadOp:  gputypes.LoadOpClear,
		StoreOp: gputypes.StoreOpStore,
	}, pipeline, group)
	return nil
}

// Destroy releases the bind group layout.
func (p *TonemapPass) Destroy() {
	if p.layout != nil {
		p.device.DestroyBindGroupLayout(p.layout)
		p.layout = nil
	}
}
