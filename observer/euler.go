package observer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// EulerYXZ decomposes a rotation into yaw (about Y), pitch (about X) and
// roll (about Z), applied in that order: R = Ry(yaw) * Rx(pitch) * Rz(roll).
func EulerYXZ(q mgl32.Quat) (yaw, pitch, roll float32) {
	m := q.Normalize().Mat4()
	sp := mgl32.Clamp(-m.At(1, 2), -1, 1)
	pitch = float32(math.Asin(float64(sp)))
	yaw = float32(math.Atan2(float64(m.At(0, 2)), float64(m.At(2, 2))))
	roll = float32(math.Atan2(float64(m.At(1, 0)), float64(m.At(1, 1))))
	return yaw, pitch, roll
}

// FromEulerYXZ is the inverse of EulerYXZ.
func FromEulerYXZ(yaw, pitch, roll float32) mgl32.Quat {
	qy := mgl32.QuatRotate(yaw, mgl32.Vec3{0, 1, 0})
	qx := mgl32.QuatRotate(pitch, mgl32.Vec3{1, 0, 0})
	qz := mgl32.QuatRotate(roll, mgl32.Vec3{0, 0, 1})
	return qy.Mul(qx).Mul(qz)
}
