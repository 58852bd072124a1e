package terra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/terra/graph"
	"github.com/gogpu/terra/internal/gpu"
	"github.com/gogpu/terra/internal/parallel"
	"github.com/gogpu/terra/internal/schedule"
	"github.com/gogpu/terra/observer"
	"github.com/gogpu/terra/terrain"
)

var (
	// ErrNilProvider is returned by New without a device provider.
	ErrNilProvider = errors.New("terra: nil device provider")

	// ErrUnsupportedProvider is returned when the provider's device or
	// queue is not a HAL device or queue.
	ErrUnsupportedProvider = errors.New("terra: provider does not expose a hal device and queue")

	// ErrClosed is returned by Frame after Close.
	ErrClosed = errors.New("terra: app closed")
)

// terrainMaterial is the only material; every tile shares it.
const terrainMaterial terrain.MaterialHandle = 0

// App streams terrain around an observer and renders it with the sky and
// water passes.
//
// Every Frame runs the simulation schedule (observer, then streaming)
// followed by the render schedule. Frame must be called from one
// goroutine; input callbacks may arrive from any goroutine.
type App struct {
	cfg Config

	pool     *parallel.WorkerPool
	renderer *gpu.Renderer

	input      *observer.InputState
	controller *observer.Controller
	streamer   *terrain.Streamer
	sim        *schedule.Schedule

	paused atomic.Bool

	mu      sync.Mutex
	output  hal.TextureView
	dt      time.Duration
	elapsed time.Duration
	frames  uint32
	stats   terrain.StreamStats
	closed  bool
}

// New creates an App rendering with the provider's device.
//
//nolint:funlen // Construction wires every subsystem in order.
func New(provider gpucontext.DeviceProvider, cfg Config, opts ...Option) (*App, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions(cfg)
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}

	device, ok := provider.Device().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: device is %T", ErrUnsupportedProvider, provider.Device())
	}
	queue, ok := provider.Queue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: queue is %T", ErrUnsupportedProvider, provider.Queue())
	}
	format := provider.SurfaceFormat()
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatBGRA8Unorm
	}

	a := &App{cfg: cfg, pool: parallel.NewWorkerPool(o.workers)}

	r, err := gpu.NewRenderer(device, queue, a.pool, o.shaders, gpu.RendererConfig{
		Width:       cfg.Render.Width,
		Height:      cfg.Render.Height,
		SampleCount: cfg.Render.SampleCount,
		Format:      format,
		Sky:         cfg.Render.Sky,
		Water:       cfg.Render.Water,
		ClearColor:  gputypes.Color{R: 0.1, G: 0.1, B: 0.12, A: 1},
		SPIRV:       cfg.Render.SPIRV,
	})
	if err != nil {
		a.pool.Close()
		return nil, fmt.Errorf("terra: renderer: %w", err)
	}
	a.renderer = r

	lods, err := terrain.NewLODCache(r.Meshes(), cfg.Terrain.TileSize/2, cfg.Terrain.BaseSubdivisions)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("terra: lod meshes: %w", err)
	}
	if a.streamer, err = terrain.NewStreamer(cfg.Terrain, lods, terrainMaterial); err != nil {
		a.Close()
		return nil, err
	}

	start := observer.NewTransform(mgl32.Vec3(cfg.Start))
	a.controller = observer.NewController(cfg.Observer, start)
	a.input = observer.NewInputState()
	if o.pointer != nil {
		a.input.AttachPointer(o.pointer)
	}
	if o.scroll != nil {
		a.input.AttachScroll(o.scroll)
	}
	if o.events != nil {
		a.input.AttachEvents(o.events)
	}

	if a.sim, err = a.buildSimulation(); err != nil {
		a.Close()
		return nil, err
	}

	info := provider.AdapterInfo()
	Logger().Info("terra: app started",
		"adapter", info.Name,
		"width", cfg.Render.Width, "height", cfg.Render.Height,
		"samples", cfg.Render.SampleCount,
		"sky", cfg.Render.Sky, "water", cfg.Render.Water,
		"workers", a.pool.Workers())
	return a, nil
}

// buildSimulation registers the observer and streaming systems. The
// streamer reads what the controller writes, so they never overlap.
func (a *App) buildSimulation() (*schedule.Schedule, error) {
	running := schedule.Not(a.Paused)
	s := schedule.New(a.pool, schedule.Update)
	systems := []schedule.System{
		{
			Name:   "observer",
			Set:    schedule.Update,
			Writes: []string{"observer"},
			RunIf:  running,
			Run: func(context.Context) error {
				a.controller.Update(a.input.Drain(), a.dt)
				return nil
			},
		},
		{
			Name:   "stream_terrain",
			Set:    schedule.Update,
			Reads:  []string{"observer"},
			Writes: []string{"tiles"},
			RunIf:  running,
			Run: func(context.Context) error {
				stats, ran := a.streamer.Tick(a.dt, a.controller.Position())
				if ran {
					a.mu.Lock()
					a.stats = stats
					a.mu.Unlock()
				}
				return nil
			},
		},
	}
	for _, sys := range systems {
		if err := s.Add(sys); err != nil {
			return nil, err
		}
	}
	s.Build()
	return s, nil
}

// Frame advances the simulation by dt and renders one frame. It returns
// the GPU submission index of the frame.
func (a *App) Frame(ctx context.Context, dt time.Duration) (uint64, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return 0, ErrClosed
	}
	a.dt = dt
	a.elapsed += dt
	a.frames++
	a.mu.Unlock()

	if err := a.sim.Run(ctx); err != nil {
		return 0, fmt.Errorf("terra: simulation: %w", err)
	}
	idx, err := a.renderer.RenderFrame(ctx, a.extract())
	if err != nil {
		return 0, fmt.Errorf("terra: render: %w", err)
	}
	return idx, nil
}

// extract copies the observer and tiles into a render frame.
func (a *App) extract() *gpu.ExtractedFrame {
	tiles := a.streamer.Tiles()
	extracted := make([]gpu.ExtractedTile, 0, tiles.Len())
	for t := range tiles.All() {
		extracted = append(extracted, gpu.ExtractedTile{Position: t.Position, Mesh: t.Mesh})
	}

	tf := a.controller.Transform()
	a.mu.Lock()
	defer a.mu.Unlock()
	return &gpu.ExtractedFrame{
		View: gpu.ExtractedView{
			WorldFromView: tf.Matrix(),
			Position:      tf.Position,
			FovY:          mgl32.DegToRad(a.cfg.Render.FovY),
			Near:          a.cfg.Render.Near,
			Far:           a.cfg.Render.Far,
			Width:         a.cfg.Render.Width,
			Height:        a.cfg.Render.Height,
		},
		Tiles:  extracted,
		Time:   float32(a.elapsed.Seconds()),
		Delta:  float32(a.dt.Seconds()),
		Count:  a.frames,
		Output: a.output,
	}
}

// SetOutput sets the view the next frames are presented into. Nil
// renders offscreen.
func (a *App) SetOutput(view hal.TextureView) {
	a.mu.Lock()
	a.output = view
	a.mu.Unlock()
}

// SetPaused stops or resumes the simulation. Rendering continues while
// paused.
func (a *App) SetPaused(paused bool) {
	if a.paused.Swap(paused) != paused {
		Logger().Info("terra: simulation paused", "paused", paused)
	}
}

// Paused reports whether the simulation is paused.
func (a *App) Paused() bool { return a.paused.Load() }

// Observer returns the observer controller.
func (a *App) Observer() *observer.Controller { return a.controller }

// Input returns the input accumulator, for hosts that push events
// directly instead of through an event source.
func (a *App) Input() *observer.InputState { return a.input }

// Tiles returns the active tile set. It is updated by Frame.
func (a *App) Tiles() *terrain.TileSet { return a.streamer.Tiles() }

// StreamStats returns the result of the most recent streaming pass.
func (a *App) StreamStats() terrain.StreamStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// SkyPipeline returns the sky pipeline specialized for sampleCount.
func (a *App) SkyPipeline(sampleCount uint32) (PipelineID, bool) {
	return a.renderer.SkyPipeline(sampleCount)
}

// WaterPipeline returns the water pipeline.
func (a *App) WaterPipeline() (PipelineID, bool) {
	return a.renderer.WaterPipeline()
}

// PipelineState returns the compilation state of a pipeline.
func (a *App) PipelineState(id PipelineID) (PipelineState, error) {
	return a.renderer.Cache().State(id)
}

// GraphOrder returns the resolved render graph order.
func (a *App) GraphOrder() []graph.Label { return a.renderer.GraphOrder() }

// Close releases GPU resources and stops the worker pool.
// It is safe to call more than once.
func (a *App) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	Logger().Info("terra: app closed")
}
