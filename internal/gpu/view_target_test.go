package gpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestNewViewTargetValidation(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	tests := []struct {
		name          string
		width, height uint32
		samples       uint32
		wantErr       bool
	}{
		{"single sample", 64, 32, 1, false},
		{"msaa4", 64, 32, 4, false},
		{"msaa8", 64, 32, 8, false},
		{"zero width", 0, 32, 4, true},
		{"zero height", 64, 0, 4, true},
		{"three samples", 64, 32, 3, true},
		{"zero samples", 64, 32, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vt, err := NewViewTarget(device, tt.width, tt.height, tt.samples, gputypes.TextureFormatBGRA8Unorm)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTarget) {
					t.Fatalf("err = %v, want ErrInvalidTarget", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer vt.Destroy()
			if vt.SampleCount() != tt.samples {
				t.Errorf("SampleCount = %d", vt.SampleCount())
			}
		})
	}

	if _, err := NewViewTarget(nil, 1, 1, 1, gputypes.TextureFormatBGRA8Unorm); !errors.Is(err, ErrNilDevice) {
		t.Errorf("nil device err = %v", err)
	}
}

func TestViewTargetPostProcessPingPong(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	vt, err := NewViewTarget(device, 16, 16, 4, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatal(err)
	}
	defer vt.Destroy()

	if vt.MainIndex() != 0 {
		t.Fatalf("initial main index = %d", vt.MainIndex())
	}
	first := vt.PostProcessWrite()
	second := vt.PostProcessWrite()

	if first.SourceIndex == first.DestinationIndex {
		t.Error("first write reads and writes the same buffer")
	}
	if second.SourceIndex != first.DestinationIndex {
		t.Errorf("second source = %d, want previous destination %d", second.SourceIndex, first.DestinationIndex)
	}
	if second.DestinationIndex != first.SourceIndex {
		t.Errorf("second destination = %d, want %d", second.DestinationIndex, first.SourceIndex)
	}
	if vt.MainIndex() != second.DestinationIndex {
		t.Errorf("main index = %d, want %d", vt.MainIndex(), second.DestinationIndex)
	}

	vt.BeginFrame()
	if vt.MainIndex() != 0 {
		t.Errorf("BeginFrame left main index at %d", vt.MainIndex())
	}
}

func TestViewTargetMainAttachment(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	msaa, err := NewViewTarget(device, 16, 16, 4, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatal(err)
	}
	defer msaa.Destroy()

	a := msaa.MainAttachment(gputypes.LoadOpClear, gputypes.Color{A: 1})
	if a.ResolveTarget == nil {
		t.Error("multisampled attachment has no resolve target")
	}
	if a.LoadOp != gputypes.LoadOpClear || a.StoreOp != gputypes.StoreOpStore {
		t.Errorf("ops = %v/%v", a.LoadOp, a.StoreOp)
	}

	single, err := NewViewTarget(device, 16, 16, 1, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatal(err)
	}
	defer single.Destroy()

	if a := single.MainAttachment(gputypes.LoadOpLoad, gputypes.Color{}); a.ResolveTarget != nil {
		t.Error("single-sampled attachment has a resolve target")
	}

	d := msaa.DepthAttachment(gputypes.LoadOpClear)
	if d.View == nil || d.DepthClearValue != 1 {
		t.Errorf("depth attachment = %+v", d)
	}
}

func TestViewTargetResize(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	vt, err := NewViewTarget(device, 16, 16, 4, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatal(err)
	}
	defer vt.Destroy()

	if changed, err := vt.Resize(16, 16, 4); changed || err != nil {
		t.Errorf("same size Resize = %v, %v", changed, err)
	}
	if changed, err := vt.Resize(32, 8, 2); !changed || err != nil {
		t.Fatalf("Resize = %v, %v", changed, err)
	}
	if w, h := vt.Size(); w != 32 || h != 8 {
		t.Errorf("Size = %dx%d", w, h)
	}
	if vt.SampleCount() != 2 {
		t.Errorf("SampleCount = %d", vt.SampleCount())
	}
	if _, err := vt.Resize(0, 8, 2); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("zero Resize err = %v", err)
	}
}

func TestViewTargetResizeDefersRelease(t *testing.T) {
	noopDevice, _, cleanup := createNoopDevice(t)
	defer cleanup()
	device := newCountingDevice(noopDevice)

	vt, err := NewViewTarget(device, 16, 16, 4, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vt.Resize(32, 32, 4); err != nil {
		t.Fatal(err)
	}
	if n := device.texturesDestroyed.Load(); n != 0 {
		t.Fatalf("Resize destroyed %d textures, want 0", n)
	}
	// Two post buffers, the MSAA color target and depth.
	stale := vt.takeStale()
	if len(stale) != 4 {
		t.Fatalf("stale textures = %d, want 4", len(stale))
	}
	if again := vt.takeStale(); len(again) != 0 {
		t.Errorf("second takeStale = %d textures, want 0", len(again))
	}
	for i := range stale {
		stale[i].destroy(device)
	}

	// Textures not collected are released with the target.
	if _, err := vt.Resize(8, 8, 1); err != nil {
		t.Fatal(err)
	}
	before := device.texturesDestroyed.Load()
	vt.Destroy()
	// Four stale, plus two post buffers and depth at one sample.
	if got := device.texturesDestroyed.Load() - before; got != 7 {
		t.Errorf("Destroy released %d textures, want 7", got)
	}
}
