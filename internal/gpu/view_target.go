package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DepthFormat is the format of the main depth target.
const DepthFormat = gputypes.TextureFormatDepth32Float

type targetTexture struct {
	texture hal.Texture
	view    hal.TextureView
}

func (t *targetTexture) destroy(device hal.Device) {
	if t.view != nil {
		device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.texture != nil {
		device.DestroyTexture(t.texture)
		t.texture = nil
	}
}

// PostProcessWrite is the pair of buffers a post-process pass uses.
// Source and Destination are always different textures.
type PostProcessWrite struct {
	Source           hal.TextureView
	Destination      hal.TextureView
	SourceIndex      int
	DestinationIndex int
}

// ViewTarget owns the render targets of one view: the main color target
// (multisampled when SampleCount > 1), a depth target with the same
// sample count, and two single-sample post-process buffers. The main
// color target resolves into post-process buffer A.
type ViewTarget struct {
	device  hal.Device
	width   uint32
	height  uint32
	samples uint32
	format  gputypes.TextureFormat

	msaa  targetTexture
	depth targetTexture
	post  [2]targetTexture
	main  int

	// stale holds textures replaced by Resize until takeStale.
	stale []targetTexture
}

// NewViewTarget allocates the textures of a view.
func NewViewTarget(device hal.Device, width, height, samples uint32, format gputypes.TextureFormat) (*ViewTarget, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidTarget, width, height)
	}
	switch samples {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("%w: sample count %d", ErrInvalidTarget, samples)
	}

	t := &ViewTarget{
		device:  device,
		width:   width,
		height:  height,
		samples: samples,
		format:  format,
	}
	if err := t.allocate(); err != nil {
		t.Destroy()
		return nil, err
	}
	return t, nil
}

func (t *ViewTarget) allocate() error {
	var err error
	for i := range t.post {
		t.post[i], err = t.create(fmt.Sprintf("post_process_%c", 'a'+i), t.format, 1,
			gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding, gputypes.TextureAspectAll)
		if err != nil {
			return err
		}
	}
	if t.samples > 1 {
		t.msaa, err = t.create("main_color_msaa", t.format, t.samples,
			gputypes.TextureUsageRenderAttachment, gputypes.TextureAspectAll)
		if err != nil {
			return err
		}
	}
	t.depth, err = t.create("main_depth", DepthFormat, t.samples,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding, gputypes.TextureAspectDepthOnly)
	return err
}

func (t *ViewTarget) create(label string, format gputypes.TextureFormat, samples uint32,
	usage gputypes.TextureUsage, aspect gputypes.TextureAspect) (targetTexture, error) {
	tex, err := t.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return targetTexture{}, fmt.Errorf("create %s: %w", label, err)
	}
	view, err := t.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           label + "_view",
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          aspect,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		t.device.DestroyTexture(tex)
		return targetTexture{}, fmt.Errorf("create %s view: %w", label, err)
	}
	return targetTexture{texture: tex, view: view}, nil
}

// Resize reallocates the textures when the size or sample count changed.
// It reports whether anything was recreated. The replaced textures are
// not destroyed here: submitted frames may still read them. The owner
// collects them with takeStale; Destroy releases any left behind.
func (t *ViewTarget) Resize(width, height, samples uint32) (bool, error) {
	if width == t.width && height == t.height && samples == t.samples {
		return false, nil
	}
	if width == 0 || height == 0 {
		return false, fmt.Errorf("%w: size %dx%d", ErrInvalidTarget, width, height)
	}
	switch samples {
	case 1, 2, 4, 8:
	default:
		return false, fmt.Errorf("%w: sample count %d", ErrInvalidTarget, samples)
	}
	t.retire()
	t.width, t.height, t.samples = width, height, samples
	if err := t.allocate(); err != nil {
		t.destroyLive()
		return false, err
	}
	return true, nil
}

// retire moves the live textures to the stale list.
func (t *ViewTarget) retire() {
	for _, tt := range []*targetTexture{&t.post[0], &t.post[1], &t.msaa, &t.depth} {
		if tt.texture != nil || tt.view != nil {
			t.stale = append(t.stale, *tt)
		}
		*tt = targetTexture{}
	}
	t.main = 0
}

// takeStale returns and forgets the textures replaced by Resize.
func (t *ViewTarget) takeStale() []targetTexture {
	s := t.stale
	t.stale = nil
	return s
}

// BeginFrame points the main output back at post-process buffer A.
func (t *ViewTarget) BeginFrame() { t.main = 0 }

// MainAttachment returns the color attachment for passes drawing into the
// main target. When multisampled, the attachment resolves into the
// current main post-process buffer.
func (t *ViewTarget) MainAttachment(load gputypes.LoadOp, clear gputypes.Color) hal.RenderPassColorAttachment {
	a := hal.RenderPassColorAttachment{
		View:       t.post[t.main].view,
		LoadOp:     load,
		StoreOp:    gputypes.StoreOpStore,
		ClearValue: clear,
	}
	if t.samples > 1 {
		a.View = t.msaa.view
		a.ResolveTarget = t.post[t.main].view
	}
	return a
}

// DepthAttachment returns the main depth attachment.
func (t *ViewTarget) DepthAttachment(load gputypes.LoadOp) *hal.RenderPassDepthStencilAttachment {
	return &hal.RenderPassDepthStencilAttachment{
		View:            t.depth.view,
		DepthLoadOp:     load,
		DepthStoreOp:    gputypes.StoreOpStore,
		DepthClearValue: 1,
	}
}

// PostProcessWrite returns the current main buffer as the source and the
// other buffer as the destination, then makes the destination the new
// main buffer.
func (t *ViewTarget) PostProcessWrite() PostProcessWrite {
	src := t.main
	dst := 1 - src
	t.main = dst
	return PostProcessWrite{
		Source:           t.post[src].view,
		Destination:      t.post[dst].view,
		SourceIndex:      src,
		DestinationIndex: dst,
	}
}

// MainTexture returns the view of the post-process buffer holding the
// latest output.
func (t *ViewTarget) MainTexture() hal.TextureView { return t.post[t.main].view }

// MainIndex returns which post-process buffer holds the latest output.
func (t *ViewTarget) MainIndex() int { return t.main }

// DepthView returns the depth target view.
func (t *ViewTarget) DepthView() hal.TextureView { return t.depth.view }

// SampleCount returns the main target's sample count.
func (t *ViewTarget) SampleCount() uint32 { return t.samples }

// Size returns the target size in pixels.
func (t *ViewTarget) Size() (width, height uint32) { return t.width, t.height }

// Format returns the color format of the targets.
func (t *ViewTarget) Format() gputypes.TextureFormat { return t.format }

// Destroy releases every texture, including stale ones.
func (t *ViewTarget) Destroy() {
	t.destroyLive()
	for i := range t.stale {
		t.stale[i].destroy(t.device)
	}
	t.stale = nil
	t.main = 0
}

func (t *ViewTarget) destroyLive() {
	for i := range t.post {
		t.post[i].destroy(t.device)
	}
	t.msaa.destroy(t.device)
	t.depth.destroy(t.device)
}
