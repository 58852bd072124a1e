package gpu

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/terra/graph"
	"github.com/gogpu/terra/terrain"
)

// ExtractedTile is one visible terrain tile.
type ExtractedTile struct {
	Position mgl32.Vec3
	Mesh     terrain.MeshHandle
}

// ExtractedFrame is the simulation state the render world sees for one
// frame. It is a copy; the simulation may change after extraction.
type ExtractedFrame struct {
	View  ExtractedView
	Tiles []ExtractedTile

	Time  float32 // seconds since start
	Delta float32 // seconds since previous frame
	Count uint32

	// Output receives the final image. Nil renders offscreen only.
	Output hal.TextureView
}

// PostStep records which post-process buffers a pass read and wrote.
type PostStep struct {
	Pass             graph.Label
	SourceIndex      int
	DestinationIndex int
}

// frameResources collects transient GPU objects created for one frame.
// They are destroyed once the frame's submission has completed.
type frameResources struct {
	mu         sync.Mutex
	buffers    []hal.Buffer
	bindGroups []hal.BindGroup
	textures   []targetTexture
}

func (r *frameResources) addBuffer(b hal.Buffer) {
	r.mu.Lock()
	r.buffers = append(r.buffers, b)
	r.mu.Unlock()
}

func (r *frameResources) addBindGroup(g hal.BindGroup) {
	r.mu.Lock()
	r.bindGroups = append(r.bindGroups, g)
	r.mu.Unlock()
}

// addTextures hands render targets replaced by a resize to the frame, so
// they outlive every submission that may still reference them.
func (r *frameResources) addTextures(ts []targetTexture) {
	r.mu.Lock()
	r.textures = append(r.textures, ts...)
	r.mu.Unlock()
}

func (r *frameResources) destroy(device hal.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.bindGroups {
		device.DestroyBindGroup(g)
	}
	for _, b := range r.buffers {
		device.DestroyBuffer(b)
	}
	for i := range r.textures {
		r.textures[i].destroy(device)
	}
	r.bindGroups, r.buffers, r.textures = nil, nil, nil
}

// FrameContext is threaded through the render graph nodes of one frame.
type FrameContext struct {
	Device  hal.Device
	Queue   hal.Queue
	Encoder hal.CommandEncoder
	Target  *ViewTarget
	Frame   *ExtractedFrame

	// ViewUniform and Globals are allocated by the prepare stage.
	ViewUniform hal.Buffer
	Globals     hal.Buffer

	// SkyDrawn is set when the sky pass cleared and filled the main
	// target, so the opaque pass must load rather than clear it.
	SkyDrawn bool

	PostWrites []PostStep

	skyGroup       hal.BindGroup
	terrainGroup   hal.BindGroup
	terrainBatches []terrainBatch
	instances      hal.Buffer

	resources *frameResources
}

func newFrameContext(device hal.Device, queue hal.Queue, target *ViewTarget, frame *ExtractedFrame) *FrameContext {
	return &FrameContext{
		Device:    device,
		Queue:     queue,
		Target:    target,
		Frame:     frame,
		resources: &frameResources{},
	}
}

// postProcessWrite flips the view target's post-process chain and
// records the step for pass.
func (fc *FrameContext) postProcessWrite(pass graph.Label) PostProcessWrite {
	w := fc.Target.PostProcessWrite()
	fc.PostWrites = append(fc.PostWrites, PostStep{
		Pass:             pass,
		SourceIndex:      w.SourceIndex,
		DestinationIndex: w.DestinationIndex,
	})
	return w
}
