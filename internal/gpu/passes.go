package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Bind group slots shared by the view-dependent passes.
const (
	viewBinding    = 0
	globalsBinding = 11
)

func uniformLayoutEntry(binding uint32, visibility gputypes.ShaderStages) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: visibility,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
}

func textureLayoutEntry(binding uint32, sample gputypes.TextureSampleType, multisampled bool) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Texture: &gputypes.TextureBindingLayout{
			SampleType:    sample,
			ViewDimension: gputypes.TextureViewDimension2D,
			Multisampled:  multisampled,
		},
	}
}

func samplerLayoutEntry(binding uint32, typ gputypes.SamplerBindingType) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: typ},
	}
}

func bufferEntry(binding uint32, buf hal.Buffer, size uint64) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Size: size},
	}
}

func textureEntry(binding uint32, view hal.TextureView) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()},
	}
}

func samplerEntry(binding uint32, s hal.Sampler) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.SamplerBinding{Sampler: s.NativeHandle()},
	}
}

// fullscreenPrimitive draws the full-screen triangle without culling.
func fullscreenPrimitive() gputypes.PrimitiveState {
	return gputypes.PrimitiveState{
		Topology: gputypes.PrimitiveTopologyTriangleList,
		CullMode: gputypes.CullModeNone,
	}
}

func colorTarget(format gputypes.TextureFormat) []gputypes.ColorTargetState {
	return []gputypes.ColorTargetState{{
		Format:    format,
		WriteMask: gputypes.ColorWriteMaskAll,
	}}
}

// requireUniforms panics when the frame's uniform buffers were never
// allocated. Passes run only after the prepare stage, so this is a
// wiring bug rather than a runtime condition.
func requireUniforms(fc *FrameContext, pass string) {
	if fc.ViewUniform == nil {
		panic(fmt.Errorf("%w: %s: view uniform", ErrBindingUnavailable, pass))
	}
	if fc.Globals == nil {
		panic(fmt.Errorf("%w: %s: globals uniform", ErrBindingUnavailable, pass))
	}
}

func requireView(view hal.TextureView, pass, what string) {
	if view == nil {
		panic(fmt.Errorf("%w: %s: %s", ErrBindingUnavailable, pass, what))
	}
}

// fullscreenPass records a pass drawing one full-screen triangle.
func fullscreenPass(fc *FrameContext, label string, attachment hal.RenderPassColorAttachment,
	pipeline hal.RenderPipeline, group hal.BindGroup) {
	w, h := fc.Target.Size()
	rp := fc.Encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:            label,
		ColorAttachments: []hal.RenderPassColorAttachment{attachment},
	})
	rp.SetViewport(0, 0, float32(w), float32(h), 0, 1)
	rp.SetPipeline(pipeline)
	rp.SetBindGroup(0, group, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()
}
