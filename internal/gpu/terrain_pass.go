package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/terra/internal/shader"
	"github.com/gogpu/terra/terrain"
)

// instanceStride is the size of one tile offset in the instance buffer.
const instanceStride = 12

// TerrainKey specializes the terrain pipeline.
type TerrainKey struct {
	SampleCount uint32
}

// terrainBatch is one instanced draw of a LOD mesh.
type terrainBatch struct {
	mesh          GPUMesh
	firstInstance uint32
	instances     uint32
}

// TerrainPass draws every streamed tile into the main target, one
// instanced draw per LOD mesh.
type TerrainPass struct {
	device    hal.Device
	cache     *PipelineCache
	meshes    *MeshStore
	layout    hal.BindGroupLayout
	program   *shader.Program
	format    gputypes.TextureFormat
	clear     gputypes.Color
	pipelines *SpecializedPipelines[TerrainKey]

	id     PipelineID
	queued bool
}

// NewTerrainPass creates the opaque terrain pass.
func NewTerrainPass(device hal.Device, cache *PipelineCache, meshes *MeshStore, loader *shader.Loader,
	format gputypes.TextureFormat, clear gputypes.Color) (*TerrainPass, error) {
	prog, err := loader.Load(TerrainShader)
	if err != nil {
		return nil, err
	}
	vis := gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "terrain_bind_group_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniformLayoutEntry(viewBinding, vis),
			uniformLayoutEntry(globalsBinding, vis),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create terrain bind group layout: %w", err)
	}
	return &TerrainPass{
		device:    device,
		cache:     cache,
		meshes:    meshes,
		layout:    layout,
		program:   prog,
		format:    format,
		clear:     clear,
		pipelines: NewSpecializedPipelines[TerrainKey](),
	}, nil
}

// Specialize builds the terrain pipeline for a sample count.
func (p *TerrainPass) Specialize(key TerrainKey) RenderPipelineDescriptor {
	keep := hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
	return RenderPipelineDescriptor{
		Label:   fmt.Sprintf("terrain_pipeline_msaa%d", key.SampleCount),
		Layouts: []hal.BindGroupLayout{p.layout},
		Vertex:  ShaderStage{Program: p.program, EntryPoint: "vertex"},
		VertexBuffers: []gputypes.VertexBufferLayout{
			{
				ArrayStride: terrain.VertexStride,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes: []gputypes.VertexAttribute{
					{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
					{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
					{Format: gputypes.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
				},
			},
			{
				ArrayStride: instanceStride,
				StepMode:    gputypes.VertexStepModeInstance,
				Attributes: []gputypes.VertexAttribute{
					{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 3},
				},
			},
		},
		Fragment: ShaderStage{Program: p.program, EntryPoint: "fragment"},
		Targets:  colorTarget(p.format),
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeBack,
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            DepthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront:      keep,
			StencilBack:       keep,
		},
		Multisample: gputypes.MultisampleState{Count: key.SampleCount, Mask: ^uint64(0)},
	}
}

// Queue specializes the pipeline matching the view's sample count.
func (p *TerrainPass) Queue(samples uint32) PipelineID {
	p.id = p.pipelines.Specialize(p.cache, p, TerrainKey{SampleCount: samples})
	p.queued = true
	return p.id
}

// Prepare uploads tile offsets grouped by mesh and builds the bind group.
func (p *TerrainPass) Prepare(fc *FrameContext) error {
	if !p.queued {
		return nil
	}
	if _, ok := p.cache.Get(p.id); !ok {
		return nil
	}
	requireUniforms(fc, "terrain")

	group, err := fc.Device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "terrain_bind_group",
		Layout: p.layout,
		Entries: []gputypes.BindGroupEntry{
			bufferEntry(viewBinding, fc.ViewUniform, ViewUniformSize),
			bufferEntry(globalsBinding, fc.Globals, GlobalsSize),
		},
	})
	if err != nil {
		return fmt.Errorf("create terrain bind group: %w", err)
	}
	fc.resources.addBindGroup(group)
	fc.terrainGroup = group

	batches, data := p.batch(fc.Frame.Tiles)
	if len(batches) == 0 {
		return nil
	}
	buf, err := createAndUploadBuffer(fc.Device, fc.Queue, "terrain_instances", data,
		gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	fc.resources.addBuffer(buf)
	fc.instances = buf
	fc.terrainBatches = batches
	return nil
}

// batch sorts tiles by mesh handle and packs their offsets.
// Tiles whose mesh is unknown are dropped.
func (p *TerrainPass) batch(tiles []ExtractedTile) ([]terrainBatch, []byte) {
	sorted := slices.Clone(tiles)
	slices.SortStableFunc(sorted, func(a, b ExtractedTile) int {
		return int(a.Mesh) - int(b.Mesh)
	})

	var batches []terrainBatch
	data := make([]byte, 0, len(sorted)*instanceStride)
	var n uint32
	for i := 0; i < len(sorted); {
		h := sorted[i].Mesh
		j := i
		for j < len(sorted) && sorted[j].Mesh == h {
			j++
		}
		mesh, ok := p.meshes.Get(h)
		if !ok {
			slogger().Warn("gpu: tile references unknown mesh", "mesh", h)
			i = j
			continue
		}
		for _, t := range sorted[i:j] {
			for _, f := range t.Position {
				data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
			}
		}
		count := uint32(j - i)
		batches = append(batches, terrainBatch{mesh: mesh, firstInstance: n, instances: count})
		n += count
		i = j
	}
	return batches, data
}

// Run draws the terrain. The color target is loaded when the sky pass
// already filled it and cleared otherwise; depth is always cleared.
func (p *TerrainPass) Run(fc *FrameContext) error {
	if !p.queued {
		return nil
	}
	pipeline, ok := p.cache.Get(p.id)
	if !ok || fc.terrainGroup == nil {
		return nil
	}

	load := gputypes.LoadOpClear
	if fc.SkyDrawn {
		load = gputypes.LoadOpLoad
	}
	w, h := fc.Target.Size()
	rp := fc.Encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:                  "main_opaque_pass",
		ColorAttachments:       []hal.RenderPassColorAttachment{fc.Target.MainAttachment(load, p.clear)},
		DepthStencilAttachment: fc.Target.DepthAttachment(gputypes.LoadOpClear),
	})
	rp.SetViewport(0, 0, float32(w), float32(h), 0, 1)
	rp.SetPipeline(pipeline)
	rp.SetBindGroup(0, fc.terrainGroup, nil)
	if fc.instances != nil {
		rp.SetVertexBuffer(1, fc.instances, 0)
	}
	for _, b := range fc.terrainBatches {
		rp.SetVertexBuffer(0, b.mesh.Vertices, 0)
		rp.SetIndexBuffer(b.mesh.Indices, gputypes.IndexFormatUint32, 0)
		rp.DrawIndexed(b.mesh.IndexCount, b.instances, 0, 0, b.firstInstance)
	}
	rp.End()
	return nil
}

// Destroy releases the bind group layout.
func (p *TerrainPass) Destroy() {
	if p.layout != nil {
		p.device.DestroyBindGroupLayout(p.layout)
		p.layout = nil
	}
}
