package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/terra/internal/shader"
)

// SkyKey specializes the sky pipeline.
type SkyKey struct {
	SampleCount uint32
}

// SkyPass fills the main color target with the sky before opaque geometry.
// Its bind group holds only the view uniform (binding 0) and the globals
// uniform (binding 11).
type SkyPass struct {
	device    hal.Device
	cache     *PipelineCache
	layout    hal.BindGroupLayout
	vertex    *shader.Program
	fragment  *shader.Program
	format    gputypes.TextureFormat
	clear     gputypes.Color
	pipelines *SpecializedPipelines[SkyKey]

	id     PipelineID
	queued bool
}

// NewSkyPass creates the sky pass and its bind group layout.
func NewSkyPass(device hal.Device, cache *PipelineCache, loader *shader.Loader,
	format gputypes.TextureFormat, clear gputypes.Color) (*SkyPass, error) {
	vs, err := loader.Load(FullscreenShader)
	if err != nil {
		return nil, err
	}
	fs, err := loader.Load(SkyShader)
	if err != nil {
		return nil, err
	}
	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "sky_bind_group_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniformLayoutEntry(viewBinding, gputypes.ShaderStageFragment),
			uniformLayoutEntry(globalsBinding, gputypes.ShaderStageFragment),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create sky bind group layout: %w", err)
	}
	return &SkyPass{
		device:    device,
		cache:     cache,
		layout:    layout,
		vertex:    vs,
		fragment:  fs,
		format:    format,
		clear:     clear,
		pipelines: NewSpecializedPipelines[SkyKey](),
	}, nil
}

// Specialize builds the sky pipeline for a sample count. The sky is
// drawn without a depth attachment.
func (p *SkyPass) Specialize(key SkyKey) RenderPipelineDescriptor {
	return RenderPipelineDescriptor{
		Label:       fmt.Sprintf("sky_pipeline_msaa%d", key.SampleCount),
		Layouts:     []hal.BindGroupLayout{p.layout},
		Vertex:      ShaderStage{Program: p.vertex, EntryPoint: "fullscreen_vertex_shader"},
		Fragment:    ShaderStage{Program: p.fragment, EntryPoint: "fragment"},
		Targets:     colorTarget(p.format),
		Primitive:   fullscreenPrimitive(),
		Multisample: gputypes.MultisampleState{Count: key.SampleCount, Mask: ^uint64(0)},
	}
}

// Queue specializes the pipeline matching the view's sample count.
func (p *SkyPass) Queue(samples uint32) PipelineID {
	p.id = p.pipelines.Specialize(p.cache, p, SkyKey{SampleCount: samples})
	p.queued = true
	return p.id
}

// Pipeline returns the pipeline ID already specialized for samples.
func (p *SkyPass) Pipeline(samples uint32) (PipelineID, bool) {
	return p.pipelines.Lookup(SkyKey{SampleCount: samples})
}

// Prepare builds the frame's sky bind group once the pipeline is ready.
func (p *SkyPass) Prepare(fc *FrameContext) error {
	if !p.queued {
		return nil
	}
	if _, ok := p.cache.Get(p.id); !ok {
		return nil
	}
	requireUniforms(fc, "sky")
	group, err := fc.Device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "sky_bind_group",
		Layout: p.layout,
		Entries: []gputypes.BindGroupEntry{
			bufferEntry(viewBinding, fc.ViewUniform, ViewUniformSize),
			bufferEntry(globalsBinding, fc.Globals, GlobalsSize),
		},
	})
	if err != nil {
		return fmt.Errorf("create sky bind group: %w", err)
	}
	fc.resources.addBindGroup(group)
	fc.skyGroup = group
	return nil
}

// Run clears the main target and draws the sky. A pipeline still
// compiling skips the pass for this frame.
func (p *SkyPass) Run(fc *FrameContext) error {
	if !p.queued {
		return nil
	}
	pipeline, ok := p.cache.Get(p.id)
	if !ok || fc.skyGroup == nil {
		return nil
	}
	fullscreenPass(fc, "sky_pass", fc.Target.MainAttachment(gputypes.LoadOpClear, p.clear), pipeline, fc.skyGroup)
	fc.SkyDrawn = true
	return nil
}

// Destroy releases the bind group layout.
func (p *SkyPass) Destroy() {
	if p.layout != nil {
		p.device.DestroyBindGroupLayout(p.layout)
		p.layout = nil
	}
}
