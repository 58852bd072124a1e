package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func testView() ExtractedView {
	return ExtractedView{
		WorldFromView: mgl32.Translate3D(0, 10, 0),
		Position:      mgl32.Vec3{0, 10, 0},
		FovY:          mgl32.DegToRad(60),
		Near:          0.1,
		Far:           1000,
		Width:         1280,
		Height:        720,
	}
}

func TestClipFromWorldDepthRange(t *testing.T) {
	clip := testView().ClipFromWorld()

	tests := []struct {
		name string
		dist float32
	}{
		{"near", 0.1},
		{"middle", 50},
		{"far", 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The observer looks down -Z.
			p := clip.Mul4x1(mgl32.Vec4{0, 10, -tt.dist, 1})
			z := p.Z() / p.W()
			if z < -1e-3 || z > 1+1e-3 {
				t.Errorf("depth %v outside [0,1]", z)
			}
		})
	}

	near := clip.Mul4x1(mgl32.Vec4{0, 10, -0.1, 1})
	if z := near.Z() / near.W(); math.Abs(float64(z)) > 1e-3 {
		t.Errorf("near plane depth = %v, want 0", z)
	}
}

func TestViewUniformBytes(t *testing.T) {
	u := NewViewUniform(testView())
	b := u.Bytes()
	if len(b) != ViewUniformSize {
		t.Fatalf("len = %d, want %d", len(b), ViewUniformSize)
	}
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }

	if got := f(128 + 4); got != 10 {
		t.Errorf("world_position.y = %v, want 10", got)
	}
	if got := f(144 + 8); got != 1280 {
		t.Errorf("viewport.z = %v, want 1280", got)
	}
	if got := f(144 + 12); got != 720 {
		t.Errorf("viewport.w = %v, want 720", got)
	}

	id := u.ClipFromWorld.Mul4(u.WorldFromClip)
	if !id.ApproxEqualThreshold(mgl32.Ident4(), 1e-2) {
		t.Errorf("clip * inverse = %v", id)
	}
}

func TestGlobalsBytes(t *testing.T) {
	b := Globals{Time: 2.5, DeltaTime: 0.016, FrameCount: 7}.Bytes()
	if len(b) != GlobalsSize {
		t.Fatalf("len = %d", len(b))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(b)); got != 2.5 {
		t.Errorf("time = %v", got)
	}
	if got := binary.LittleEndian.Uint32(b[8:]); got != 7 {
		t.Errorf("frame_count = %d", got)
	}
}
