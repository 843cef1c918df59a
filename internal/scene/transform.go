package scene

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// CoordinateTransform maps a pose from sender-local space into the display's
// aligned reference space.
type CoordinateTransform interface {
	ToReferenceSpace(position r3.Vec, rotation quat.Number) (r3.Vec, quat.Number)
}

// Identity is the transform used before any alignment has been established.
type Identity struct{}

func (Identity) ToReferenceSpace(position r3.Vec, rotation quat.Number) (r3.Vec, quat.Number) {
	return position, rotation
}

// Rigid is an established alignment: rotate, then translate.
type Rigid struct {
	Rotation quat.Number
	Offset   r3.Vec
}

// NewRigid builds a Rigid transform, normalizing the rotation.
func NewRigid(offset r3.Vec, rotation quat.Number) Rigid {
	return Rigid{Rotation: Normalize(rotation), Offset: offset}
}

func (t Rigid) ToReferenceSpace(position r3.Vec, rotation quat.Number) (r3.Vec, quat.Number) {
	return r3.Add(Rotate(t.Rotation, position), t.Offset), quat.Mul(t.Rotation, rotation)
}
