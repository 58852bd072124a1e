package gpu

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/terra/graph"
	"github.com/gogpu/terra/internal/parallel"
)

func testRendererConfig() RendererConfig {
	return RendererConfig{
		Width:       64,
		Height:      32,
		SampleCount: 4,
		Format:      gputypes.TextureFormatBGRA8Unorm,
		Sky:         true,
		Water:       true,
		ClearColor:  gputypes.Color{A: 1},
	}
}

func testFrame(r *Renderer, t *testing.T) *ExtractedFrame {
	t.Helper()
	h, err := r.Meshes().BuildPlane(100, 4)
	if err != nil {
		t.Fatal(err)
	}
	view := testView()
	view.Width, view.Height = 64, 32
	return &ExtractedFrame{
		View: view,
		Tiles: []ExtractedTile{
			{Position: mgl32.Vec3{0, 0, 0}, Mesh: h},
			{Position: mgl32.Vec3{200, 0, 0}, Mesh: h},
		},
		Time:  1,
		Delta: 1.0 / 60,
		Count: 1,
	}
}

func TestNewRendererErrors(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	if _, err := NewRenderer(nil, queue, nil, nil, testRendererConfig()); !errors.Is(err, ErrNilDevice) {
		t.Errorf("nil device err = %v", err)
	}

	cfg := testRendererConfig()
	cfg.SampleCount = 1
	if _, err := NewRenderer(device, queue, nil, nil, cfg); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("water without msaa err = %v", err)
	}

	cfg.Water = false
	r, err := NewRenderer(device, queue, nil, nil, cfg)
	if err != nil {
		t.Fatalf("single-sampled renderer without water: %v", err)
	}
	r.Close()
}

func TestRendererGraphOrder(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	tests := []struct {
		name       string
		sky, water bool
		want       []graph.Label
	}{
		{
			name: "sky and water",
			sky:  true, water: true,
			want: []graph.Label{
				graph.StartMainPass, graph.Sky, graph.MainOpaquePass, graph.EndMainPass,
				graph.Tonemapping, graph.Water, graph.EndMainPassPostProcessing, graph.Upscaling,
			},
		},
		{
			name: "core only",
			want: []graph.Label{
				graph.StartMainPass, graph.MainOpaquePass, graph.EndMainPass,
				graph.Tonemapping, graph.EndMainPassPostProcessing, graph.Upscaling,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testRendererConfig()
			cfg.Sky, cfg.Water = tt.sky, tt.water
			r, err := NewRenderer(device, queue, nil, nil, cfg)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()

			if got := r.GraphOrder(); !slices.Equal(got, tt.want) {
				t.Errorf("order = %v\nwant    %v", got, tt.want)
			}
		})
	}
}

func TestRendererScheduleLevels(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	r, err := NewRenderer(device, queue, nil, nil, testRendererConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	levels := r.Levels()
	want := [][]string{
		{"extract"},
		{"queue_pipelines"},
		{"prepare_uniforms"},
		{"prepare_terrain", "prepare_sky"},
		{"render_graph"},
	}
	if len(levels) != len(want) {
		t.Fatalf("levels = %v", levels)
	}
	for i := range want {
		if !slices.Equal(levels[i], want[i]) {
			t.Errorf("level %d = %v, want %v", i, levels[i], want[i])
		}
	}
}

func TestRendererFrame(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	r, err := NewRenderer(device, queue, nil, nil, testRendererConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	frame := testFrame(r, t)
	idx, err := r.RenderFrame(context.Background(), frame)
	if err != nil {
		t.Fatal(err)
	}
	if idx == 0 {
		t.Error("submission index is zero")
	}

	writes := r.LastPostWrites()
	if len(writes) != 2 {
		t.Fatalf("post writes = %+v, want tonemap and water", writes)
	}
	if writes[0].Pass != graph.Tonemapping || writes[1].Pass != graph.Water {
		t.Fatalf("post writes = %+v", writes)
	}
	if writes[1].SourceIndex != writes[0].DestinationIndex {
		t.Errorf("water source %d != tonemap destination %d", writes[1].SourceIndex, writes[0].DestinationIndex)
	}
	if writes[1].SourceIndex == writes[1].DestinationIndex {
		t.Error("water reads and writes one buffer")
	}

	if _, ok := r.SkyPipeline(4); !ok {
		t.Error("sky pipeline not specialized for 4 samples")
	}
	if _, ok := r.SkyPipeline(1); ok {
		t.Error("sky pipeline specialized for an unused sample count")
	}
	if _, ok := r.WaterPipeline(); !ok {
		t.Error("water pipeline not specialized")
	}
}

func TestRendererReleasesCompletedFrames(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	r, err := NewRenderer(device, queue, nil, nil, testRendererConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	frame := testFrame(r, t)
	var last uint64
	for i := 0; i < 3; i++ {
		idx, err := r.RenderFrame(context.Background(), frame)
		if err != nil {
			t.Fatal(err)
		}
		if idx <= last {
			t.Errorf("submission %d not after %d", idx, last)
		}
		last = idx
	}
	// The noop queue completes at once, so only the latest frame is
	// still held when the next one starts.
	if got := r.InFlight(); got != 1 {
		t.Errorf("InFlight = %d, want 1", got)
	}
}

func TestRendererResizeWaitsForInFlightFrames(t *testing.T) {
	noopDevice, noopQueue, cleanup := createNoopDevice(t)
	defer cleanup()
	device := newCountingDevice(noopDevice)
	queue := newHeldQueue(noopQueue)

	r, err := NewRenderer(device, queue, nil, nil, testRendererConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	frame := testFrame(r, t)
	if _, err := r.RenderFrame(context.Background(), frame); err != nil {
		t.Fatal(err)
	}

	bigger := *frame
	bigger.View.Width, bigger.View.Height = 128, 64
	last, err := r.RenderFrame(context.Background(), &bigger)
	if err != nil {
		t.Fatal(err)
	}
	if w, h := r.Target().Size(); w != 128 || h != 64 {
		t.Fatalf("target size = %dx%d, want 128x64", w, h)
	}
	if n := device.texturesDestroyed.Load(); n != 0 {
		t.Fatalf("%d textures destroyed while the first frame was in flight", n)
	}
	if got := r.InFlight(); got != 2 {
		t.Errorf("InFlight = %d, want 2", got)
	}

	queue.completed.Store(last)
	if _, err := r.RenderFrame(context.Background(), &bigger); err != nil {
		t.Fatal(err)
	}
	// Two post buffers, the MSAA color target and depth.
	if n := device.texturesDestroyed.Load(); n != 4 {
		t.Errorf("textures destroyed after completion = %d, want 4", n)
	}
	if got := r.InFlight(); got != 1 {
		t.Errorf("InFlight = %d, want 1", got)
	}
}

func TestRendererAsyncCompilation(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	pool := parallel.NewWorkerPool(2)
	defer pool.Close()

	r, err := NewRenderer(device, queue, pool, nil, testRendererConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	frame := testFrame(r, t)
	if _, err := r.RenderFrame(context.Background(), frame); err != nil {
		t.Fatal(err)
	}
	r.Cache().Wait()
	if _, err := r.RenderFrame(context.Background(), frame); err != nil {
		t.Fatal(err)
	}
	if got := len(r.LastPostWrites()); got != 2 {
		t.Errorf("post writes after compilation = %d, want 2", got)
	}
}

func TestRendererCanceledContext(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	r, err := NewRenderer(device, queue, nil, nil, testRendererConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RenderFrame(ctx, testFrame(r, t)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestShadersParse(t *testing.T) {
	loader := newTestLoader()
	for _, name := range []string{FullscreenShader, SkyShader, TerrainShader, TonemapShader, WaterShader, BlitShader} {
		if _, err := loader.Load(name); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}
