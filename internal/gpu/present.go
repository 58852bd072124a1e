package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/terra/internal/shader"
)

// PresentKey specializes the final blit for an output format.
type PresentKey struct {
	Format gputypes.TextureFormat
}

// PresentPass copies the last post-process buffer into the host's output
// view. Frames without an output view end offscreen.
type PresentPass struct {
	device    hal.Device
	cache     *PipelineCache
	layout    hal.BindGroupLayout
	sampler   hal.Sampler
	vertex    *shader.Program
	fragment  *shader.Program
	format    gputypes.TextureFormat
	pipelines *SpecializedPipelines[PresentKey]

	id     PipelineID
	queued bool
}

// NewPresentPass creates the blit pass for output views of format.
func NewPresentPass(device hal.Device, cache *PipelineCache, loader *shader.Loader,
	format gputypes.TextureFormat) (*PresentPass, error) {
	vs, err := loader.Load(FullscreenShader)
	if err != nil {
		return nil, err
	}
	fs, err := loader.Load(BlitShader)
	if err != nil {
		return nil, err
	}
	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "blit_bind_group_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			textureLayoutEntry(0, gputypes.TextureSampleTypeFloat, false),
			samplerLayoutEntry(1, gputypes.SamplerBindingTypeFiltering),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create blit bind group layout: %w", err)
	}
	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "blit_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
	})
	if err != nil {
		device.DestroyBindGroupLayout(layout)
		return nil, fmt.Errorf("create blit sampler: %w", err)
	}
	return &PresentPass{
		device:    device,
		cache:     cache,
		layout:    layout,
		sampler:   sampler,
		vertex:    vs,
		fragment:  fs,
		format:    format,
		pipelines: NewSpecializedPipelines[PresentKey](),
	}, nil
}

// Specialize builds the blit pipeline.
func (p *PresentPass) Specialize(key PresentKey) RenderPipelineDescriptor {
	return RenderPipelineDescriptor{
		Label:       "blit_pipeline",
		Layouts:     []hal.BindGroupLayout{p.layout},
		Vertex:      ShaderStage{Program: p.vertex, EntryPoint: "fullscreen_vertex_shader"},
		Fragment:    ShaderStage{Program: p.fragment, EntryPoint: "fragment"},
		Targets:     colorTarget(key.Format),
		Primitive:   fullscreenPrimitive(),
		Multisample: gputypes.MultisampleState{Count: 1, Mask: ^uint64(0)},
	}
}

// Queue specializes the blit pipeline.
func (p *PresentPass) Queue() PipelineID {
	p.id = p.pipelines.Specialize(p.cache, p, PresentKey{Format: p.format})
	p.queued = true
	return p.id
}

// Run blits the main post-process buffer into the frame's output.
func (p *PresentPass) Run(fc *FrameContext) error {
	if !p.queued || fc.Frame.Output == nil {
		return nil
	}
	pipeline, ok := p.cache.Get(p.id)
	if !ok {
		return nil
	}
	src := fc.Target.MainTexture()
	requireView(src, "present", "post-process source")

	group, err := fc.Device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "blit_bind_group",
		Layout: p.layout,
		Entries: []gputypes.BindGroupEntry{
			textureEntry(0, src),
			samplerEntry(1, p.sampler),
		},
	})
	if err != nil {
		return fmt.Errorf("create blit bind group: %w", err)
	}
	fc.resources.addBindGroup(group)

	fullscreenPass(fc, "upscaling_pass", hal.RenderPassColorAttachment{
		View:    fc.Frame.Output,
		LoadOp:  gputypes.LoadOpClear,
		StoreOp: gputypes.StoreOpStore,
	}, pipeline, group)
	return nil
}

// Destroy releases the sampler and bind group layout.
func (p *PresentPass) Destroy() {
	if p.sampler != nil {
		p.device.DestroySampler(p.sampler)
		p.sampler = nil
	}
	if p.layout != nil {
		p.device.DestroyBindGroupLayout(p.layout)
		p.layout = nil
	}
}
