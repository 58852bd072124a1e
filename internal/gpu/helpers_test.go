package gpu

import (
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/terra/internal/shader"
)

func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func newTestLoader() *shader.Loader {
	return shader.NewLoader(Shaders())
}

// failingDevice fails render pipeline creation.
type failingDevice struct {
	hal.Device
}

func (failingDevice) CreateRenderPipeline(*hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	return nil, errFailingDevice
}

type testError string

func (e testError) Error() string { return string(e) }

const errFailingDevice = testError("pipeline rejected")

// countingDevice counts texture destruction.
type countingDevice struct {
	hal.Device
	texturesDestroyed *atomic.Int32
}

func newCountingDevice(d hal.Device) countingDevice {
	return countingDevice{Device: d, texturesDestroyed: new(atomic.Int32)}
}

func (d countingDevice) DestroyTexture(tex hal.Texture) {
	d.texturesDestroyed.Add(1)
	d.Device.DestroyTexture(tex)
}

// heldQueue reports completion only up to an index the test sets.
type heldQueue struct {
	hal.Queue
	completed *atomic.Uint64
}

func newHeldQueue(q hal.Queue) heldQueue {
	return heldQueue{Queue: q, completed: new(atomic.Uint64)}
}

func (q heldQueue) PollCompleted() uint64 { return q.completed.Load() }
