// Command terrademo flies an observer over streamed terrain on a headless
// HAL device and logs streaming and pipeline statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/terra"
	"github.com/gogpu/terra/observer"
)

// headless exposes an opened HAL device as a gpucontext.DeviceProvider.
type headless struct {
	instance hal.Instance
	adapter  hal.ExposedAdapter
	device   hal.Device
	queue    hal.Queue
}

func openHeadless(backend gputypes.Backend) (*headless, error) {
	b, ok := hal.GetBackend(backend)
	if !ok {
		return nil, fmt.Errorf("backend %v not registered (available: %v)", backend, hal.AvailableBackends())
	}
	instance, err := b.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("backend %v: no adapters", backend)
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open adapter: %w", err)
	}
	return &headless{instance: instance, adapter: adapters[0], device: open.Device, queue: open.Queue}, nil
}

func (h *headless) Device() gpucontext.Device             { return h.device }
func (h *headless) Queue() gpucontext.Queue               { return h.queue }
func (h *headless) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }
func (h *headless) Adapter() gpucontext.Adapter           { return h.adapter.Adapter }
func (h *headless) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: h.adapter.Info.Name}
}

func (h *headless) Close() {
	h.device.Destroy()
	h.instance.Destroy()
}

// script feeds a fixed flight: look around, speed up, fly forward,
// then climb.
func script(in *observer.InputState, frame, total int) {
	switch {
	case frame == 0:
		in.AddScroll(observer.ScrollLine, 10)
	case frame < total/4:
		in.AddMotion(4, 0)
	case frame == total/4:
		in.SetKey(gpucontext.KeyW, true)
	case frame == total*3/4:
		in.SetKey(gpucontext.KeyW, false)
		in.SetKey(gpucontext.KeySpace, true)
	}
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (defaults when empty)")
		frames     = flag.Int("frames", 600, "frames to render")
		step       = flag.Duration("dt", 16*time.Millisecond, "simulated frame time")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *configPath, *frames, *step); err != nil {
		logger.Error("terrademo failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string, frames int, step time.Duration) error {
	cfg := terra.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = terra.LoadConfig(configPath); err != nil {
			return err
		}
	}

	dev, err := openHeadless(gputypes.BackendEmpty)
	if err != nil {
		return err
	}
	defer dev.Close()

	app, err := terra.New(dev, cfg, terra.WithLogger(logger))
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	start := time.Now()
	var last uint64
	for i := range frames {
		script(app.Input(), i, frames)
		if last, err = app.Frame(ctx, step); err != nil {
			return err
		}
		if i%60 == 0 {
			stats := app.StreamStats()
			logger.Info("frame",
				"n", i,
				"position", app.Observer().Position(),
				"speed", app.Observer().Speed(),
				"tiles", stats.Active,
				"spawned", stats.Spawned,
				"despawned", stats.Despawned,
				"remeshed", stats.Remeshed)
		}
	}

	if id, ok := app.SkyPipeline(cfg.Render.SampleCount); ok {
		state, err := app.PipelineState(id)
		logger.Info("sky pipeline", "id", id, "state", state, "err", err)
	}
	if id, ok := app.WaterPipeline(); ok {
		state, err := app.PipelineState(id)
		logger.Info("water pipeline", "id", id, "state", state, "err", err)
	}
	logger.Info("done",
		"frames", frames,
		"submission", last,
		"elapsed", time.Since(start),
		"graph", app.GraphOrder())
	return nil
}
