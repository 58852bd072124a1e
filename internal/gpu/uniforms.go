package gpu

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Uniform buffer sizes in bytes, matching the WGSL structs.
const (
	ViewUniformSize = 160
	GlobalsSize     = 16
)

// depthRemap maps OpenGL clip depth [-1,1] to WebGPU [0,1].
var depthRemap = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// ExtractedView is the observer state copied out of the simulation for
// one frame.
type ExtractedView struct {
	WorldFromView mgl32.Mat4
	Position      mgl32.Vec3
	FovY          float32 // radians
	Near, Far     float32
	Width, Height uint32
}

// ClipFromWorld returns the view-projection matrix with WebGPU depth.
func (v ExtractedView) ClipFromWorld() mgl32.Mat4 {
	aspect := float32(1)
	if v.Height > 0 {
		aspect = float32(v.Width) / float32(v.Height)
	}
	proj := depthRemap.Mul4(mgl32.Perspective(v.FovY, aspect, v.Near, v.Far))
	return proj.Mul4(v.WorldFromView.Inv())
}

// ViewUniform is the per-frame view binding shared by every pass.
type ViewUniform struct {
	ClipFromWorld mgl32.Mat4
	WorldFromClip mgl32.Mat4
	WorldPosition mgl32.Vec3
	Viewport      [4]float32
}

// NewViewUniform derives the view binding from an extracted view.
func NewViewUniform(v ExtractedView) ViewUniform {
	clip := v.ClipFromWorld()
	return ViewUniform{
		ClipFromWorld: clip,
		WorldFromClip: clip.Inv(),
		WorldPosition: v.Position,
		Viewport:      [4]float32{0, 0, float32(v.Width), float32(v.Height)},
	}
}

// Bytes encodes the uniform in WGSL uniform layout.
// The vec3 world position is padded to 16 bytes.
func (u ViewUniform) Bytes() []byte {
	buf := make([]byte, ViewUniformSize)
	off := 0
	put := func(f float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
		off += 4
	}
	for _, f := range u.ClipFromWorld {
		put(f)
	}
	for _, f := range u.WorldFromClip {
		put(f)
	}
	for _, f := range u.WorldPosition {
		put(f)
	}
	off += 4
	for _, f := range u.Viewport {
		put(f)
	}
	return buf
}

// Globals carries frame timing to the shaders.
type Globals struct {
	Time       float32 // seconds since start
	DeltaTime  float32
	FrameCount uint32
}

// Bytes encodes the globals uniform.
func (g Globals) Bytes() []byte {
	buf := make([]byte, GlobalsSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(g.Time))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(g.DeltaTime))
	binary.LittleEndian.PutUint32(buf[8:], g.FrameCount)
	return buf
}
