package observer

import (
	"sync"

	"github.com/gogpu/gpucontext"
)

// FrameInput is the input accumulated over one frame.
type FrameInput struct {
	MotionX, MotionY float32
	ScrollLines      float32
	ScrollPixels     float32
	Keys             Direction
}

// DefaultBindings maps keys to movement directions: WASD, Q/E for
// down/up, and Shift/Space as alternates.
func DefaultBindings() map[gpucontext.Key]Direction {
	return map[gpucontext.Key]Direction{
		gpucontext.KeyW:         Forward,
		gpucontext.KeyS:         Back,
		gpucontext.KeyA:         Left,
		gpucontext.KeyD:         Right,
		gpucontext.KeyQ:         Down,
		gpucontext.KeyE:         Up,
		gpucontext.KeyLeftShift: Down,
		gpucontext.KeySpace:     Up,
	}
}

// InputState accumulates events from a host's event sources between
// frames. Event callbacks arrive on the UI thread while Drain runs on the
// simulation schedule, so all access is locked.
type InputState struct {
	mu       sync.Mutex
	bindings map[gpucontext.Key]Direction
	held     map[gpucontext.Key]bool

	motionX, motionY float32
	lines, pixels    float32

	lastX, lastY float64
	hasLast      bool

	// Set when a richer source is attached; the basic EventSource
	// callbacks for the same data are then ignored to avoid double counting.
	pointerAttached bool
	scrollAttached  bool
}

// NewInputState creates an input accumulator with DefaultBindings.
func NewInputState() *InputState {
	return &InputState{
		bindings: DefaultBindings(),
		held:     make(map[gpucontext.Key]bool),
	}
}

// Bind maps a key to a movement direction, replacing any previous binding.
func (s *InputState) Bind(key gpucontext.Key, dir Direction) {
	s.mu.Lock()
	s.bindings[key] = dir
	s.mu.Unlock()
}

// AttachEvents registers key, mouse move and scroll callbacks.
// OnScroll deltas are treated as lines.
func (s *InputState) AttachEvents(src gpucontext.EventSource) {
	src.OnKeyPress(func(k gpucontext.Key, _ gpucontext.Modifiers) { s.SetKey(k, true) })
	src.OnKeyRelease(func(k gpucontext.Key, _ gpucontext.Modifiers) { s.SetKey(k, false) })
	src.OnMouseMove(func(x, y float64) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.pointerAttached {
			return
		}
		if s.hasLast {
			s.motionX += float32(x - s.lastX)
			s.motionY += float32(y - s.lastY)
		}
		s.lastX, s.lastY, s.hasLast = x, y, true
	})
	src.OnScroll(func(_, dy float64) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.scrollAttached {
			s.lines += float32(dy)
		}
	})
	src.OnFocus(func(focused bool) {
		if !focused {
			s.ReleaseAll()
		}
	})
}

// AttachPointer registers for pointer move deltas.
func (s *InputState) AttachPointer(src gpucontext.PointerEventSource) {
	s.mu.Lock()
	s.pointerAttached = true
	s.mu.Unlock()
	src.OnPointer(func(ev gpucontext.PointerEvent) {
		if ev.Type == gpucontext.PointerMove {
			s.AddMotion(float32(ev.DeltaX), float32(ev.DeltaY))
		}
	})
}

// AttachScroll registers for detailed scroll events. Page deltas count
// as lines.
func (s *InputState) AttachScroll(src gpucontext.ScrollEventSource) {
	s.mu.Lock()
	s.scrollAttached = true
	s.mu.Unlock()
	src.OnScrollEvent(func(ev gpucontext.ScrollEvent) {
		if ev.DeltaMode == gpucontext.ScrollDeltaPixel {
			s.AddScroll(ScrollPixel, float32(ev.DeltaY))
			return
		}
		s.AddScroll(ScrollLine, float32(ev.DeltaY))
	})
}

// AddMotion accumulates a pointer motion delta.
func (s *InputState) AddMotion(dx, dy float32) {
	s.mu.Lock()
	s.motionX += dx
	s.motionY += dy
	s.mu.Unlock()
}

// AddScroll accumulates a scroll delta.
func (s *InputState) AddScroll(unit ScrollUnit, amount float32) {
	s.mu.Lock()
	if unit == ScrollPixel {
		s.pixels += amount
	} else {
		s.lines += amount
	}
	s.mu.Unlock()
}

// SetKey records a key press or release.
func (s *InputState) SetKey(key gpucontext.Key, down bool) {
	s.mu.Lock()
	if down {
		s.held[key] = true
	} else {
		delete(s.held, key)
	}
	s.mu.Unlock()
}

// ReleaseAll clears every held key.
func (s *InputState) ReleaseAll() {
	s.mu.Lock()
	clear(s.held)
	s.mu.Unlock()
}

// Drain returns the input since the last call and resets the motion and
// scroll accumulators. Held keys persist until released.
func (s *InputState) Drain() FrameInput {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := FrameInput{
		MotionX:      s.motionX,
		MotionY:      s.motionY,
		ScrollLines:  s.lines,
		ScrollPixels: s.pixels,
	}
	for k := range s.held {
		in.Keys |= s.bindings[k]
	}
	s.motionX, s.motionY = 0, 0
	s.lines, s.pixels = 0, 0
	return in
}
