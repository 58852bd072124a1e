// Package gpu renders the terrain frame on a gogpu/wgpu HAL device.
//
// A frame runs as a render schedule of four sets:
//
//	Extract -> Queue -> PrepareBindGroups -> Render
//
// Extract copies the observer and tile state into an ExtractedFrame.
// Queue specializes pipelines by key and hands new descriptors to the
// PipelineCache, which compiles them on the worker pool. PrepareBindGroups
// uploads uniforms and instance data and builds bind groups. Render runs
// the resolved render graph into one command buffer and submits it.
//
// # Passes
//
//   - Sky: full-screen atmosphere drawn before opaque geometry
//   - MainOpaquePass: instanced terrain tiles, one draw per LOD mesh
//   - Tonemapping: full-screen post-process into the ping-pong chain
//   - Water: full-screen composite reading tonemapped color and depth
//   - Upscaling: copies the final post-process buffer to the output view
//
// A pass whose pipeline is still compiling skips its draw for the frame.
// A pass that cannot build a required binding panics with an error
// wrapping ErrBindingUnavailable.
package gpu
