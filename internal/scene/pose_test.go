package scene

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const eps = 1e-9

func assertVec(t *testing.T, want, got r3.Vec) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps, "X")
	assert.InDelta(t, want.Y, got.Y, eps, "Y")
	assert.InDelta(t, want.Z, got.Z, eps, "Z")
}

func TestEuler_YawRotatesAboutY(t *testing.T) {
	q := Euler(0, 90, 0)

	assertVec(t, r3.Vec{Z: -1}, Rotate(q, Right))
	assertVec(t, Up, Rotate(q, Up))
	assertVec(t, r3.Vec{X: 1}, Rotate(q, Forward))
}

func TestEuler_PitchAndRoll(t *testing.T) {
	tests := []struct {
		name             string
		pitch, yaw, roll float64
		in, want         r3.Vec
	}{
		{"pitch 90 tips forward down", 90, 0, 0, Forward, r3.Vec{Y: -1}},
		{"roll 90 turns right to up", 0, 0, 90, Right, Up},
		{"identity", 0, 0, 0, r3.Vec{X: 1, Y: 2, Z: 3}, r3.Vec{X: 1, Y: 2, Z: 3}},
		// roll first, then yaw: right -> up (roll) -> up (yaw leaves Y alone)
		{"roll then yaw", 0, 90, 90, Right, Up},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertVec(t, tt.want, Rotate(Euler(tt.pitch, tt.yaw, tt.roll), tt.in))
		})
	}
}

func TestFromTo(t *testing.T) {
	dirs := []r3.Vec{Right, Up, Forward, {X: -1}, {Y: -1}, {X: 1, Y: 1, Z: 1}}
	for _, from := range dirs {
		for _, to := range dirs {
			q := FromTo(from, to)
			assertVec(t, r3.Unit(to), Rotate(q, r3.Unit(from)))
		}
	}
	assert.Equal(t, IdentityRotation, FromTo(r3.Vec{}, Up))
}

func TestSegment(t *testing.T) {
	tr := Segment(r3.Vec{}, r3.Vec{X: 2}, 0.01, 1.0)
	assertVec(t, r3.Vec{X: 1}, tr.Position)
	assertVec(t, r3.Vec{X: 0.02, Y: 1, Z: 0.02}, tr.Scale)
	// cylinder axis (+Y) must lie along the segment
	assertVec(t, Right, Rotate(tr.Rotation, Up))

	half := Segment(r3.Vec{}, r3.Vec{Y: 0.1}, 0.005, 0.5)
	assertVec(t, r3.Vec{Y: 0.025}, half.Position)
	assert.InDelta(t, 0.025, half.Scale.Y, eps)

	zero := Segment(r3.Vec{X: 1}, r3.Vec{X: 1}, 0.01, 1.0)
	assertVec(t, r3.Vec{X: 1}, zero.Position)
	assert.Equal(t, IdentityRotation, zero.Rotation)
}

func TestLookAt(t *testing.T) {
	q := LookAt(r3.Vec{X: 1}, r3.Vec{})
	assertVec(t, r3.Vec{X: -1}, Rotate(q, Forward))
}

func TestRigidTransform(t *testing.T) {
	rig := NewRigid(r3.Vec{Y: 1}, quat.Scale(2, AxisAngle(Up, math.Pi/2)))
	pos, rot := rig.ToReferenceSpace(Right, IdentityRotation)
	assertVec(t, r3.Vec{Y: 1, Z: -1}, pos)
	assertVec(t, r3.Vec{Z: -1}, Rotate(rot, Right))

	p, r := Identity{}.ToReferenceSpace(Right, IdentityRotation)
	assert.Equal(t, Right, p)
	assert.Equal(t, IdentityRotation, r)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, IdentityRotation, Normalize(quat.Number{}))
	n := Normalize(quat.Number{Real: 2})
	assert.InDelta(t, 1.0, n.Real, eps)
}
