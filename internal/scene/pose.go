package scene

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Unit axes of the render space.
var (
	Right   = r3.Vec{X: 1}
	Up      = r3.Vec{Y: 1}
	Forward = r3.Vec{Z: 1}
)

// IdentityRotation is the zero rotation.
var IdentityRotation = quat.Number{Real: 1}

// Transform is the placement of a visual object relative to its parent.
type Transform struct {
	Position r3.Vec
	Rotation quat.Number
	Scale    r3.Vec
}

// Uniform returns a scale vector with all components set to s.
func Uniform(s float64) r3.Vec {
	return r3.Vec{X: s, Y: s, Z: s}
}

// AxisAngle returns the rotation of rad radians about axis.
func AxisAngle(axis r3.Vec, rad float64) quat.Number {
	u := r3.Unit(axis)
	s := math.Sin(rad / 2)
	return quat.Number{Real: math.Cos(rad / 2), Imag: u.X * s, Jmag: u.Y * s, Kmag: u.Z * s}
}

// Euler converts Euler angles in degrees (pitch about X, yaw about Y, roll
// about Z) into a rotation. Roll is applied first, then pitch, then yaw.
func Euler(pitch, yaw, roll float64) quat.Number {
	qx := AxisAngle(Right, deg2rad(pitch))
	qy := AxisAngle(Up, deg2rad(yaw))
	qz := AxisAngle(Forward, deg2rad(roll))
	return quat.Mul(qy, quat.Mul(qx, qz))
}

// Rotate applies rotation q to v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// Normalize scales q to unit length. A zero quaternion becomes the identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return IdentityRotation
	}
	return quat.Scale(1/n, q)
}

// FromTo returns the shortest rotation taking direction from onto direction to.
// Zero-length inputs yield the identity.
func FromTo(from, to r3.Vec) quat.Number {
	if r3.Norm(from) == 0 || r3.Norm(to) == 0 {
		return IdentityRotation
	}
	f := r3.Unit(from)
	t := r3.Unit(to)
	d := r3.Dot(f, t)
	switch {
	case d >= 1-1e-9:
		return IdentityRotation
	case d <= -1+1e-9:
		axis := r3.Cross(Right, f)
		if r3.Norm(axis) < 1e-6 {
			axis = r3.Cross(Up, f)
		}
		return AxisAngle(axis, math.Pi)
	}
	return AxisAngle(r3.Cross(f, t), math.Acos(d))
}

// Segment returns the transform of a unit cylinder (axis along +Y, height 2)
// stretched from start toward end. lengthFactor shortens the segment from the
// start point; thickness is the cylinder radius.
func Segment(start, end r3.Vec, thickness, lengthFactor float64) Transform {
	dir := r3.Sub(end, start)
	length := r3.Norm(dir)
	scaled := length * lengthFactor

	tip := start
	rot := IdentityRotation
	if length > 0 {
		unit := r3.Scale(1/length, dir)
		tip = r3.Add(start, r3.Scale(scaled, unit))
		rot = FromTo(Up, unit)
	}
	return Transform{
		Position: r3.Scale(0.5, r3.Add(start, tip)),
		Rotation: rot,
		Scale:    r3.Vec{X: thickness * 2, Y: scaled / 2, Z: thickness * 2},
	}
}

// LookAt returns the rotation that points Forward from "from" toward "to".
func LookAt(from, to r3.Vec) quat.Number {
	return FromTo(Forward, r3.Sub(to, from))
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
