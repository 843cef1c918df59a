package outbound

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrlink/internal/scene"
	"github.com/banshee-data/vrlink/internal/wire"
)

// Pose is a tracked device pose in the headset's own space.
type Pose struct {
	Position r3.Vec
	Rotation quat.Number
}

// Hand is one controller's pose and inputs.
type Hand struct {
	Pose
	Trigger float64
	// Buttons: B/Y, A/X, thumbstick, index trigger, hand trigger.
	Buttons [5]bool
}

// Input is one sample of operator input. Nil fields are not tracked.
type Input struct {
	Head      *Pose
	LeftHand  *Hand
	RightHand *Hand
}

// InputSource samples operator input on the render goroutine.
type InputSource interface {
	Sample() Input
}

// InputFunc adapts a function to InputSource.
type InputFunc func() Input

func (f InputFunc) Sample() Input { return f() }

// NoInput reports no tracked devices.
var NoInput InputSource = InputFunc(func() Input { return Input{} })

// BuildCommand assembles a fresh command message. Tracked poses are mapped
// into the aligned space with xf before they are sent.
func BuildCommand(timestamp float32, edit wire.TrajectoryEdit, in Input, xf scene.CoordinateTransform) *wire.CommandMessage {
	if xf == nil {
		xf = scene.Identity{}
	}
	msg := &wire.CommandMessage{
		Timestamp:      timestamp,
		TrajectoryEdit: edit,
	}
	if in.Head != nil {
		pos, rot := xf.ToReferenceSpace(in.Head.Position, in.Head.Rotation)
		msg.Head = &wire.HeadPose{Pos: vec32(pos), Quat: quat32(rot)}
	}
	msg.LeftHand = handState(in.LeftHand, xf)
	msg.RightHand = handState(in.RightHand, xf)
	return msg
}

func handState(h *Hand, xf scene.CoordinateTransform) *wire.HandState {
	if h == nil {
		return nil
	}
	pos, rot := xf.ToReferenceSpace(h.Position, h.Rotation)
	return &wire.HandState{
		WristPos:     vec32(pos),
		WristQuat:    quat32(rot),
		TriggerState: float32(h.Trigger),
		ButtonState:  h.Buttons,
	}
}

func vec32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

// quat32 orders a quaternion w, x, y, z.
func quat32(q quat.Number) [4]float32 {
	return [4]float32{float32(q.Real), float32(q.Imag), float32(q.Jmag), float32(q.Kmag)}
}
