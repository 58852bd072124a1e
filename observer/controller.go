package observer

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// PitchLimit keeps pitch strictly inside the vertical poles, where yaw
// becomes ambiguous.
const PitchLimit = math.Pi/2 - 0.01

// Direction is a set of movement keys held during a frame.
type Direction uint8

// Movement directions, relative to the observer's orientation.
const (
	Forward Direction = 1 << iota
	Back
	Left
	Right
	Down
	Up
)

// ScrollUnit is the unit of a scroll delta.
type ScrollUnit uint8

// Scroll units. Line units come from wheel notches, pixel units from
// touchpads and smooth scrolling.
const (
	ScrollLine ScrollUnit = iota
	ScrollPixel
)

// Settings tune the controller.
type Settings struct {
	SensitivityX float32 `yaml:"sensitivity_x"`
	SensitivityY float32 `yaml:"sensitivity_y"`
	InitialSpeed float32 `yaml:"initial_speed"`
	MinSpeed     float32 `yaml:"min_speed"`
	LineScale    float32 `yaml:"line_scale"`
	PixelScale   float32 `yaml:"pixel_scale"`
}

// DefaultSettings returns the stock fly-camera tuning.
func DefaultSettings() Settings {
	return Settings{
		SensitivityX: 0.003,
		SensitivityY: 0.002,
		InitialSpeed: 50,
		MinSpeed:     1,
		LineScale:    5,
		PixelScale:   0.25,
	}
}

// Transform is the observer's position and orientation.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

// NewTransform returns a transform at pos with identity rotation.
func NewTransform(pos mgl32.Vec3) Transform {
	return Transform{Position: pos, Rotation: mgl32.QuatIdent()}
}

// Matrix returns the world-from-view matrix.
func (t Transform) Matrix() mgl32.Mat4 {
	return mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z()).Mul4(t.Rotation.Mat4())
}

// Forward returns the view direction (-Z rotated by the orientation).
func (t Transform) Forward() mgl32.Vec3 {
	return t.Rotation.Rotate(mgl32.Vec3{0, 0, -1})
}

// Controller turns accumulated input into observer motion.
//
// Pointer motion rotates the view without time scaling, because the deltas
// already cover the whole interval since the previous frame. Key movement
// is scaled by frame time and the travel speed.
type Controller struct {
	settings  Settings
	transform Transform

	speed     float32
	speedInit bool
}

// NewController creates a controller starting at the given transform.
func NewController(settings Settings, start Transform) *Controller {
	if start.Rotation == (mgl32.Quat{}) {
		start.Rotation = mgl32.QuatIdent()
	}
	return &Controller{settings: settings, transform: start}
}

// Transform returns the current observer transform.
func (c *Controller) Transform() Transform { return c.transform }

// Position returns the current observer position.
func (c *Controller) Position() mgl32.Vec3 { return c.transform.Position }

// Speed returns the travel speed, initializing it on first use.
func (c *Controller) Speed() float32 {
	if !c.speedInit {
		c.speed = c.settings.InitialSpeed
		c.speedInit = true
	}
	return c.speed
}

// Look applies a pointer motion delta in pixels.
func (c *Controller) Look(dx, dy float32) {
	if dx == 0 && dy == 0 {
		return
	}
	yaw, pitch, roll := EulerYXZ(c.transform.Rotation)
	yaw += -dx * c.settings.SensitivityX
	pitch = mgl32.Clamp(pitch-dy*c.settings.SensitivityY, -PitchLimit, PitchLimit)
	c.transform.Rotation = FromEulerYXZ(yaw, pitch, roll)
}

// Scroll adjusts the travel speed. The result never drops below MinSpeed.
func (c *Controller) Scroll(unit ScrollUnit, amount float32) {
	speed := c.Speed()
	switch unit {
	case ScrollPixel:
		speed += amount * c.settings.PixelScale
	default:
		speed += amount * c.settings.LineScale
	}
	c.speed = max(speed, c.settings.MinSpeed)
}

// Move translates the observer along the held directions for dt.
// Opposing directions cancel; no input means no movement.
func (c *Controller) Move(dir Direction, dt time.Duration) {
	var v mgl32.Vec3
	if dir&Forward != 0 {
		v[2]--
	}
	if dir&Back != 0 {
		v[2]++
	}
	if dir&Left != 0 {
		v[0]--
	}
	if dir&Right != 0 {
		v[0]++
	}
	if dir&Down != 0 {
		v[1]--
	}
	if dir&Up != 0 {
		v[1]++
	}
	if v.LenSqr() == 0 {
		return
	}
	step := c.transform.Rotation.Rotate(v.Normalize()).Mul(c.Speed() * float32(dt.Seconds()))
	c.transform.Position = c.transform.Position.Add(step)
}

// Update applies one frame of drained input.
func (c *Controller) Update(in FrameInput, dt time.Duration) {
	c.Look(in.MotionX, in.MotionY)
	if in.ScrollLines != 0 {
		c.Scroll(ScrollLine, in.ScrollLines)
	}
	if in.ScrollPixels != 0 {
		c.Scroll(ScrollPixel, in.ScrollPixels)
	}
	c.Move(in.Keys, dt)
}
