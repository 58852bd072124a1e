package gpu

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/terra/graph"
	"github.com/gogpu/terra/internal/parallel"
	"github.com/gogpu/terra/internal/schedule"
	"github.com/gogpu/terra/internal/shader"
)

// RendererConfig configures a Renderer.
type RendererConfig struct {
	Width, Height uint32
	SampleCount   uint32
	Format        gputypes.TextureFormat

	// Sky and Water enable the compositing passes.
	Sky   bool
	Water bool

	ClearColor gputypes.Color

	// SPIRV creates shader modules from naga SPIR-V output.
	SPIRV bool
}

// retiredFrame holds what a submitted frame keeps alive until the GPU
// has finished with it.
type retiredFrame struct {
	submission uint64
	encoder    hal.CommandEncoder
	cmd        hal.CommandBuffer
	resources  *frameResources
}

// Renderer draws extracted frames through the render graph.
//
// Each frame runs the render schedule: extract, queue pipelines, prepare
// uniforms and bind groups, then execute the graph into one command
// buffer. Submission does not block; a frame's transient resources are
// released on a later frame once the queue reports it complete.
type Renderer struct {
	device hal.Device
	queue  hal.Queue
	cfg    RendererConfig

	cache   *PipelineCache
	meshes  *MeshStore
	target  *ViewTarget
	sky     *SkyPass
	terrain *TerrainPass
	tonemap *TonemapPass
	water   *WaterPass
	present *PresentPass

	plan     *graph.Plan[*FrameContext]
	schedule *schedule.Schedule

	mu         sync.Mutex
	pending    *ExtractedFrame
	fc         *FrameContext
	submission uint64
	retired    []retiredFrame
	postWrites []PostStep
}

// NewRenderer creates the passes, view target and render schedule.
// shaders holds the WGSL sources; nil uses the embedded set.
//
//nolint:funlen // Sequential pass construction with error cleanup.
func NewRenderer(device hal.Device, queue hal.Queue, pool *parallel.WorkerPool,
	shaders fs.FS, cfg RendererConfig) (*Renderer, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	if cfg.Water && cfg.SampleCount < 2 {
		return nil, fmt.Errorf("%w: water reads a multisampled depth target, sample count %d",
			ErrInvalidTarget, cfg.SampleCount)
	}
	if shaders == nil {
		shaders = Shaders()
	}
	var loaderOpts []shader.LoaderOption
	if cfg.SPIRV {
		loaderOpts = append(loaderOpts, shader.WithSPIRV())
	}
	loader := shader.NewLoader(shaders, loaderOpts...)

	r := &Renderer{device: device, queue: queue, cfg: cfg}
	var err error
	if r.cache, err = NewPipelineCache(device, pool, cfg.SPIRV); err != nil {
		return nil, err
	}
	if r.meshes, err = NewMeshStore(device, queue); err != nil {
		return nil, err
	}
	if r.target, err = NewViewTarget(device, cfg.Width, cfg.Height, cfg.SampleCount, cfg.Format); err != nil {
		r.Close()
		return nil, err
	}
	if cfg.Sky {
		if r.sky, err = NewSkyPass(device, r.cache, loader, cfg.Format, cfg.ClearColor); err != nil {
			r.Close()
			return nil, err
		}
	}
	if r.terrain, err = NewTerrainPass(device, r.cache, r.meshes, loader, cfg.Format, cfg.ClearColor); err != nil {
		r.Close()
		return nil, err
	}
	if r.tonemap, err = NewTonemapPass(device, r.cache, loader, cfg.Format); err != nil {
		r.Close()
		return nil, err
	}
	if cfg.Water {
		if r.water, err = NewWaterPass(device, r.cache, loader, cfg.Format); err != nil {
			r.Close()
			return nil, err
		}
	}
	if r.present, err = NewPresentPass(device, r.cache, loader, cfg.Format); err != nil {
		r.Close()
		return nil, err
	}

	if r.plan, err = r.buildGraph(); err != nil {
		r.Close()
		return nil, err
	}
	if r.schedule, err = r.buildSchedule(pool); err != nil {
		r.Close()
		return nil, err
	}
	slogger().Debug("gpu: renderer created", "width", cfg.Width, "height", cfg.Height,
		"samples", cfg.SampleCount, "sky", cfg.Sky, "water", cfg.Water)
	return r, nil
}

// buildGraph lays out the core 3D graph and injects the sky and water
// nodes between their neighbours.
func (r *Renderer) buildGraph() (*graph.Plan[*FrameContext], error) {
	g := graph.New[*FrameContext]().
		AddNode(graph.StartMainPass, nil).
		AddNode(graph.MainOpaquePass, r.terrain.Run).
		AddNode(graph.EndMainPass, nil).
		AddNode(graph.Tonemapping, r.tonemap.Run).
		AddNode(graph.EndMainPassPostProcessing, nil).
		AddNode(graph.Upscaling, r.present.Run).
		Chain(graph.StartMainPass, graph.MainOpaquePass, graph.EndMainPass,
			graph.Tonemapping, graph.EndMainPassPostProcessing, graph.Upscaling)

	if r.sky != nil {
		g.AddNode(graph.Sky, r.sky.Run).
			Chain(graph.StartMainPass, graph.Sky, graph.MainOpaquePass)
	}
	if r.water != nil {
		g.AddNode(graph.Water, r.water.Run).
			Chain(graph.Tonemapping, graph.Water, graph.EndMainPassPostProcessing)
	}
	return g.Build()
}

//nolint:funlen // One entry per system.
func (r *Renderer) buildSchedule(pool *parallel.WorkerPool) (*schedule.Schedule, error) {
	s := schedule.New(pool, schedule.Extract, schedule.Queue, schedule.PrepareBindGroups, schedule.Render)
	systems := []schedule.System{
		{
			Name:   "extract",
			Set:    schedule.Extract,
			Writes: []string{"frame"},
			Run: func(context.Context) error {
				r.fc = newFrameContext(r.device, r.queue, r.target, r.pending)
				return nil
			},
		},
		{
			Name:   "queue_pipelines",
			Set:    schedule.Queue,
			Reads:  []string{"frame"},
			Writes: []string{"pipelines"},
			Run: func(context.Context) error {
				r.queuePipelines()
				return nil
			},
		},
		{
			Name:   "prepare_uniforms",
			Set:    schedule.PrepareBindGroups,
			Reads:  []string{"frame"},
			Writes: []string{"uniforms"},
			Run:    func(context.Context) error { return prepareUniforms(r.fc) },
		},
		{
			Name:   "prepare_terrain",
			Set:    schedule.PrepareBindGroups,
			Reads:  []string{"frame", "uniforms", "pipelines"},
			Writes: []string{"terrain_bind_group"},
			Run:    func(context.Context) error { return r.terrain.Prepare(r.fc) },
		},
		{
			Name:   "render_graph",
			Set:    schedule.Render,
			Reads:  []string{"frame", "uniforms", "pipelines", "sky_bind_group", "terrain_bind_group"},
			Writes: []string{"encoder"},
			Run:    func(context.Context) error { return r.execute(r.fc) },
		},
	}
	if r.sky != nil {
		systems = append(systems, schedule.System{
			Name:   "prepare_sky",
			Set:    schedule.PrepareBindGroups,
			Reads:  []string{"uniforms", "pipelines"},
			Writes: []string{"sky_bind_group"},
			Run:    func(context.Context) error { return r.sky.Prepare(r.fc) },
		})
	}
	for _, sys := range systems {
		if err := s.Add(sys); err != nil {
			return nil, err
		}
	}
	s.Build()
	return s, nil
}

// queuePipelines specializes every enabled pass for the current target
// and starts compiling whatever is new.
func (r *Renderer) queuePipelines() {
	samples := r.target.SampleCount()
	if r.sky != nil {
		r.sky.Queue(samples)
	}
	r.terrain.Queue(samples)
	r.tonemap.Queue()
	if r.water != nil {
		r.water.Queue()
	}
	r.present.Queue()
	r.cache.Process()
}

func prepareUniforms(fc *FrameContext) error {
	view := NewViewUniform(fc.Frame.View)
	vb, err := createAndUploadBuffer(fc.Device, fc.Queue, "view_uniform", view.Bytes(),
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	fc.resources.addBuffer(vb)

	globals := Globals{Time: fc.Frame.Time, DeltaTime: fc.Frame.Delta, FrameCount: fc.Frame.Count}
	gb, err := createAndUploadBuffer(fc.Device, fc.Queue, "globals_uniform", globals.Bytes(),
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	fc.resources.addBuffer(gb)

	fc.ViewUniform = vb
	fc.Globals = gb
	return nil
}

// execute records the graph into one command buffer and submits it.
func (r *Renderer) execute(fc *FrameContext) error {
	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame_encoder"})
	if err != nil {
		fc.resources.destroy(r.device)
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("frame"); err != nil {
		encoder.Destroy()
		fc.resources.destroy(r.device)
		return fmt.Errorf("begin encoding: %w", err)
	}

	fc.Encoder = encoder
	fc.Target.BeginFrame()
	if err := r.plan.Run(fc); err != nil {
		encoder.DiscardEncoding()
		encoder.Destroy()
		fc.resources.destroy(r.device)
		return err
	}

	cmd, err := encoder.EndEncoding()
	if err != nil {
		encoder.Destroy()
		fc.resources.destroy(r.device)
		return fmt.Errorf("end encoding: %w", err)
	}
	idx, err := r.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		r.device.FreeCommandBuffer(cmd)
		encoder.Destroy()
		fc.resources.destroy(r.device)
		return fmt.Errorf("submit: %w", err)
	}

	r.mu.Lock()
	r.retired = append(r.retired, retiredFrame{
		submission: idx,
		encoder:    encoder,
		cmd:        cmd,
		resources:  fc.resources,
	})
	r.submission = idx
	r.postWrites = fc.PostWrites
	r.mu.Unlock()
	return nil
}

// collect releases frames the queue has finished with.
func (r *Renderer) collect() {
	done := r.queue.PollCompleted()

	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.retired[:0]
	for _, f := range r.retired {
		if f.submission > done {
			kept = append(kept, f)
			continue
		}
		r.device.FreeCommandBuffer(f.cmd)
		f.encoder.Destroy()
		f.resources.destroy(r.device)
	}
	r.retired = kept
}

// retireTargets defers destruction of replaced render targets until the
// newest in-flight submission completes. With nothing in flight they are
// released at once.
func (r *Renderer) retireTargets(stale []targetTexture) {
	if len(stale) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.retired); n > 0 {
		r.retired[n-1].resources.addTextures(stale)
		return
	}
	for i := range stale {
		stale[i].destroy(r.device)
	}
}

// RenderFrame renders one extracted frame and returns its submission
// index. It never waits for the GPU.
func (r *Renderer) RenderFrame(ctx context.Context, frame *ExtractedFrame) (uint64, error) {
	if frame == nil {
		return 0, fmt.Errorf("gpu: nil frame")
	}
	r.collect()
	resized, err := r.target.Resize(frame.View.Width, frame.View.Height, r.cfg.SampleCount)
	if err != nil {
		return 0, err
	}
	if resized {
		r.retireTargets(r.target.takeStale())
	}
	r.pending = frame
	if err := r.schedule.Run(ctx); err != nil {
		if r.fc != nil {
			r.fc.resources.destroy(r.device)
		}
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submission, nil
}

// InFlight returns the number of submitted frames not yet released.
func (r *Renderer) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.retired)
}

// Meshes returns the mesh store used as the terrain LOD builder.
func (r *Renderer) Meshes() *MeshStore { return r.meshes }

// Cache returns the pipeline cache.
func (r *Renderer) Cache() *PipelineCache { return r.cache }

// Target returns the view target.
func (r *Renderer) Target() *ViewTarget { return r.target }

// SkyPipeline returns the sky pipeline specialized for samples, or false
// when the sky is disabled or was never queued at that sample count.
func (r *Renderer) SkyPipeline(samples uint32) (PipelineID, bool) {
	if r.sky == nil {
		return 0, false
	}
	return r.sky.Pipeline(samples)
}

// WaterPipeline returns the water pipeline, or false when water is
// disabled or not yet queued.
func (r *Renderer) WaterPipeline() (PipelineID, bool) {
	if r.water == nil {
		return 0, false
	}
	return r.water.Pipeline()
}

// GraphOrder returns the resolved render graph order.
func (r *Renderer) GraphOrder() []graph.Label { return r.plan.Order() }

// Levels returns the render schedule's system levels.
func (r *Renderer) Levels() [][]string { return r.schedule.Levels() }

// LastPostWrites returns the post-process steps of the last submitted frame.
func (r *Renderer) LastPostWrites() []PostStep {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PostStep(nil), r.postWrites...)
}

// Close waits for the device to go idle and releases everything.
func (r *Renderer) Close() {
	if r.device == nil {
		return
	}
	if err := r.device.WaitIdle(); err != nil {
		slogger().Warn("gpu: wait idle failed", "err", err)
	}

	r.mu.Lock()
	for _, f := range r.retired {
		r.device.FreeCommandBuffer(f.cmd)
		f.encoder.Destroy()
		f.resources.destroy(r.device)
	}
	r.retired = nil
	r.mu.Unlock()

	if r.cache != nil {
		r.cache.Destroy()
	}
	if r.present != nil {
		r.present.Destroy()
	}
	if r.water != nil {
		r.water.Destroy()
	}
	if r.tonemap != nil {
		r.tonemap.Destroy()
	}
	if r.terrain != nil {
		r.terrain.Destroy()
	}
	if r.sky != nil {
		r.sky.Destroy()
	}
	if r.target != nil {
		r.target.Destroy()
	}
	if r.meshes != nil {
		r.meshes.Destroy()
	}
	r.device = nil
}
