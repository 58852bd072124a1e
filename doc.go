// Package terra streams level-of-detail terrain around a moving observer
// and renders it with sky and water compositing passes.
//
// # Overview
//
// An [App] owns three subsystems:
//
//   - a fly-camera observer driven by keyboard, pointer and scroll input
//     from gpucontext event sources (package observer)
//   - a chunk streamer that keeps a disc of tiles around the observer and
//     picks one of six LOD meshes per tile by distance (package terrain)
//   - a renderer that runs a render graph over a HAL device: sky, opaque
//     terrain, tonemapping, water and a final blit (internal/gpu)
//
// # Quick Start
//
//	cfg, err := terra.LoadConfig("terra.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app, err := terra.New(provider, cfg, terra.WithEventSource(window))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close()
//
//	for running {
//	    if _, err := app.Frame(ctx, dt); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Render graph
//
// The sky node runs between StartMainPass and MainOpaquePass and clears
// the main target, so the opaque pass loads rather than clears it. The
// water node runs between Tonemapping and EndMainPassPostProcessing and
// reads the tonemapped image from one post-process buffer while writing
// the other.
//
// Pipelines compile asynchronously on a worker pool. Until a pass's
// pipeline is ready the pass is skipped; the frame still renders.
//
// # Logging
//
// terra is silent by default. Use [SetLogger] or [WithLogger] to enable
// structured logging through log/slog.
package terra
