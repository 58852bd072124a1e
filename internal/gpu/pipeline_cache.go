package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/terra/internal/parallel"
	"github.com/gogpu/terra/internal/shader"
)

// PipelineID identifies a render pipeline queued in a PipelineCache.
// IDs are dense, start at zero and are never reused.
type PipelineID uint32

// PipelineState is the compilation state of a cached pipeline.
type PipelineState uint8

// Pipeline states.
const (
	PipelineQueued PipelineState = iota
	PipelineCompiling
	PipelineReady
	PipelineFailed
)

func (s PipelineState) String() string {
	switch s {
	case PipelineQueued:
		return "queued"
	case PipelineCompiling:
		return "compiling"
	case PipelineReady:
		return "ready"
	case PipelineFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ShaderStage selects an entry point in a program.
type ShaderStage struct {
	Program    *shader.Program
	EntryPoint string
}

// RenderPipelineDescriptor is everything needed to compile one pipeline.
// The cache creates the pipeline layout from Layouts.
type RenderPipelineDescriptor struct {
	Label         string
	Layouts       []hal.BindGroupLayout
	Vertex        ShaderStage
	VertexBuffers []gputypes.VertexBufferLayout
	Fragment      ShaderStage
	Targets       []gputypes.ColorTargetState
	Primitive     gputypes.PrimitiveState
	DepthStencil  *hal.DepthStencilState
	Multisample   gputypes.MultisampleState
}

type cachedPipeline struct {
	desc     RenderPipelineDescriptor
	state    PipelineState
	layout   hal.PipelineLayout
	pipeline hal.RenderPipeline
	err      error
}

// PipelineCache compiles render pipelines off the frame's critical path.
//
// Queue records a descriptor and returns its ID at once. Process hands
// queued descriptors to the worker pool; Get reports a pipeline only after
// its compilation has finished, so a pass asking on the frame it queued a
// pipeline usually gets nothing and tries again next frame. Entries are
// never evicted.
type PipelineCache struct {
	device   hal.Device
	pool     *parallel.WorkerPool
	useSPIRV bool

	mu      sync.Mutex
	entries []*cachedPipeline
	pending []PipelineID

	modMu   sync.Mutex
	modules map[*shader.Program]hal.ShaderModule

	inflight sync.WaitGroup
}

// NewPipelineCache creates a cache compiling on pool. A nil pool compiles
// synchronously inside Process. With useSPIRV, shader modules are created
// from naga SPIR-V output instead of WGSL source.
func NewPipelineCache(device hal.Device, pool *parallel.WorkerPool, useSPIRV bool) (*PipelineCache, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	return &PipelineCache{
		device:   device,
		pool:     pool,
		useSPIRV: useSPIRV,
		modules:  make(map[*shader.Program]hal.ShaderModule),
	}, nil
}

// Queue records a descriptor for compilation and returns its ID.
func (c *PipelineCache) Queue(desc RenderPipelineDescriptor) PipelineID {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := PipelineID(len(c.entries))
	c.entries = append(c.entries, &cachedPipeline{desc: desc})
	c.pending = append(c.pending, id)
	slogger().Debug("gpu: pipeline queued", "id", id, "label", desc.Label)
	return id
}

// Process starts compiling every queued pipeline. It does not wait.
func (c *PipelineCache) Process() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	jobs := make([]*cachedPipeline, len(pending))
	for i, id := range pending {
		e := c.entries[id]
		e.state = PipelineCompiling
		jobs[i] = e
	}
	c.mu.Unlock()

	for i, e := range jobs {
		id := pending[i]
		c.inflight.Add(1)
		job := func() {
			defer c.inflight.Done()
			c.compile(id, e)
		}
		if c.pool == nil || !c.pool.Submit(job) {
			job()
		}
	}
}

// Wait blocks until every started compilation has finished.
func (c *PipelineCache) Wait() {
	c.inflight.Wait()
}

// Get returns a compiled pipeline. ok is false while the pipeline is
// queued or compiling, after a failure, or for an unknown ID.
func (c *PipelineCache) Get(id PipelineID) (pipeline hal.RenderPipeline, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if int(id) >= len(c.entries) {
		return nil, false
	}
	e := c.entries[id]
	if e.state != PipelineReady {
		return nil, false
	}
	return e.pipeline, true
}

// State returns a pipeline's compilation state and, for failed
// pipelines, the error.
func (c *PipelineCache) State(id PipelineID) (PipelineState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if int(id) >= len(c.entries) {
		return PipelineFailed, fmt.Errorf("%w: unknown pipeline %d", ErrPipelineFailed, id)
	}
	e := c.entries[id]
	return e.state, e.err
}

// Len returns the number of pipelines ever queued.
func (c *PipelineCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *PipelineCache) compile(id PipelineID, e *cachedPipeline) {
	layout, pipeline, err := c.create(&e.desc)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		e.state = PipelineFailed
		e.err = fmt.Errorf("%w: %s: %w", ErrPipelineFailed, e.desc.Label, err)
		slogger().Warn("gpu: pipeline compilation failed", "id", id, "label", e.desc.Label, "err", err)
		return
	}
	e.layout = layout
	e.pipeline = pipeline
	e.state = PipelineReady
	slogger().Debug("gpu: pipeline ready", "id", id, "label", e.desc.Label)
}

func (c *PipelineCache) create(desc *RenderPipelineDescriptor) (hal.PipelineLayout, hal.RenderPipeline, error) {
	vs, err := c.module(desc.Vertex.Program)
	if err != nil {
		return nil, nil, err
	}
	fs, err := c.module(desc.Fragment.Program)
	if err != nil {
		return nil, nil, err
	}

	layout, err := c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_layout",
		BindGroupLayouts: desc.Layouts,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create pipeline layout: %w", err)
	}

	pipeline, err := c.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     vs,
			EntryPoint: desc.Vertex.EntryPoint,
			Buffers:    desc.VertexBuffers,
		},
		Primitive:    desc.Primitive,
		DepthStencil: desc.DepthStencil,
		Multisample:  desc.Multisample,
		Fragment: &hal.FragmentState{
			Module:     fs,
			EntryPoint: desc.Fragment.EntryPoint,
			Targets:    desc.Targets,
		},
	})
	if err != nil {
		c.device.DestroyPipelineLayout(layout)
		return nil, nil, fmt.Errorf("create render pipeline: %w", err)
	}
	return layout, pipeline, nil
}

// module returns the shader module for a program, creating it once.
func (c *PipelineCache) module(p *shader.Program) (hal.ShaderModule, error) {
	if p == nil {
		return nil, fmt.Errorf("nil shader program")
	}
	c.modMu.Lock()
	defer c.modMu.Unlock()

	if m, ok := c.modules[p]; ok {
		return m, nil
	}
	src := hal.ShaderSource{WGSL: p.Source}
	if c.useSPIRV {
		words, err := p.SPIRV()
		if err != nil {
			return nil, err
		}
		src = hal.ShaderSource{SPIRV: words}
	}
	m, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  p.Name,
		Source: src,
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", p.Name, err)
	}
	c.modules[p] = m
	return m, nil
}

// Destroy waits for in-flight compilation and releases every pipeline,
// layout and shader module.
func (c *PipelineCache) Destroy() {
	c.Wait()

	c.mu.Lock()
	for _, e := range c.entries {
		if e.pipeline != nil {
			c.device.DestroyRenderPipeline(e.pipeline)
			e.pipeline = nil
		}
		if e.layout != nil {
			c.device.DestroyPipelineLayout(e.layout)
			e.layout = nil
		}
		e.state = PipelineFailed
		e.err = fmt.Errorf("%w: cache destroyed", ErrPipelineFailed)
	}
	c.pending = nil
	c.mu.Unlock()

	c.modMu.Lock()
	for p, m := range c.modules {
		c.device.DestroyShaderModule(m)
		delete(c.modules, p)
	}
	c.modMu.Unlock()
}
