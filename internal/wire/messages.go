// Package wire defines the message schemas exchanged with the workstation and
// their binary encoding. Every message is a single BSON document; large
// payloads (images) travel as a chunked transfer, see ChunkedTransferReader.
package wire

import "fmt"

// Schema names, used in DecodeError and logs.
const (
	SchemaPose       = "pose"
	SchemaSensor     = "tactile"
	SchemaForce      = "force"
	SchemaLog        = "log"
	SchemaImage      = "image"
	SchemaTrajectory = "trajectory"
	SchemaCommand    = "command"
)

// Message is implemented by every schema type.
type Message interface {
	Schema() string
	// Validate checks constraints BSON itself cannot express, such as
	// minimum array lengths.
	Validate() error
}

// PoseMessage carries both robot tool-centre-point poses. Each TCP array is
// x, y, z followed by the rotation quaternion w, x, y, z.
type PoseMessage struct {
	LeftRobotTCP      []float32 `bson:"leftRobotTCP"`
	RightRobotTCP     []float32 `bson:"rightRobotTCP"`
	LeftGripperState  []float32 `bson:"leftGripperState,omitempty"`
	RightGripperState []float32 `bson:"rightGripperState,omitempty"`
}

// PoseFloats is the minimum length of a TCP pose array.
const PoseFloats = 7

func (PoseMessage) Schema() string { return SchemaPose }

func (m PoseMessage) Validate() error {
	if err := minLen("leftRobotTCP", m.LeftRobotTCP, PoseFloats); err != nil {
		return err
	}
	return minLen("rightRobotTCP", m.RightRobotTCP, PoseFloats)
}

// Arrow is a displacement vector from Start to End in sensor space.
type Arrow struct {
	Start []float32 `bson:"start"`
	End   []float32 `bson:"end"`
}

func (a Arrow) validate(field string) error {
	if err := minLen(field+".start", a.Start, 3); err != nil {
		return err
	}
	return minLen(field+".end", a.End, 3)
}

// SensorMessage is one tactile sensor's deformation field.
type SensorMessage struct {
	DeviceID string    `bson:"device_id"`
	Arrows   []Arrow   `bson:"arrows"`
	Scale    []float32 `bson:"scale"`
}

func (SensorMessage) Schema() string { return SchemaSensor }

func (m SensorMessage) Validate() error {
	if m.DeviceID == "" {
		return fmt.Errorf("device_id is empty")
	}
	for i, a := range m.Arrows {
		if err := a.validate(fmt.Sprintf("arrows[%d]", i)); err != nil {
			return err
		}
	}
	return minLen("scale", m.Scale, 3)
}

// ForceMessage is one force sensor's resultant arrow.
type ForceMessage struct {
	DeviceID string    `bson:"device_id"`
	Arrow    Arrow     `bson:"arrow"`
	Scale    []float32 `bson:"scale"`
}

func (ForceMessage) Schema() string { return SchemaForce }

func (m ForceMessage) Validate() error {
	if err := m.Arrow.validate("arrow"); err != nil {
		return err
	}
	return minLen("scale", m.Scale, 3)
}

// LogMessage is a line of workstation log output.
type LogMessage struct {
	Text string `bson:"text"`
}

func (LogMessage) Schema() string { return SchemaLog }
func (LogMessage) Validate() error { return nil }

// Image is one tagged sub-image with its placement. Rotation is Euler degrees.
type Image struct {
	ID          string    `bson:"id"`
	InHeadSpace bool      `bson:"inHeadSpace"`
	LeftOrRight bool      `bson:"leftOrRight"`
	Position    []float32 `bson:"position"`
	Rotation    []float32 `bson:"rotation"`
	Scale       []float32 `bson:"scale"`
	Image       []byte    `bson:"image"`
}

// ImageMessage is the payload of one chunked image transfer.
type ImageMessage struct {
	Images []Image `bson:"images"`
}

func (ImageMessage) Schema() string { return SchemaImage }

func (m ImageMessage) Validate() error {
	for i, img := range m.Images {
		if img.ID == "" {
			return fmt.Errorf("images[%d].id is empty", i)
		}
		for _, f := range []struct {
			name string
			v    []float32
		}{
			{"position", img.Position},
			{"rotation", img.Rotation},
			{"scale", img.Scale},
		} {
			if err := minLen(fmt.Sprintf("images[%d].%s", i, f.name), f.v, 3); err != nil {
				return err
			}
		}
	}
	return nil
}

// TrajectoryPoint is a pose relative to the sender's local frame. Angles are
// in degrees.
type TrajectoryPoint struct {
	X     float32 `bson:"x"`
	Y     float32 `bson:"y"`
	Z     float32 `bson:"z"`
	Roll  float32 `bson:"roll"`
	Pitch float32 `bson:"pitch"`
	Yaw   float32 `bson:"yaw"`
}

// TrajectoryFrame is a complete predicted trajectory. Each frame replaces the
// previous one entirely.
type TrajectoryFrame struct {
	Points    []TrajectoryPoint `bson:"points"`
	Timestamp float32           `bson:"timestamp"`
}

func (TrajectoryFrame) Schema() string { return SchemaTrajectory }

// Validate rejects documents with no points field. An explicit empty array
// decodes to a non-nil slice and is a valid frame that clears the trajectory.
func (m TrajectoryFrame) Validate() error {
	if m.Points == nil {
		return fmt.Errorf("points is missing")
	}
	return nil
}

// TrajectoryEdit is the operator's interaction with the displayed trajectory.
// EditedPointQuat is w, x, y, z.
type TrajectoryEdit struct {
	SelectedPointIndex int32      `bson:"selectedPointIndex"`
	IsEditing          bool       `bson:"isEditing"`
	EditedPointPos     [3]float32 `bson:"editedPointPos"`
	EditedPointQuat    [4]float32 `bson:"editedPointQuat"`
}

// HeadPose is the headset pose in the aligned space. Quat is w, x, y, z.
type HeadPose struct {
	Pos  [3]float32 `bson:"pos"`
	Quat [4]float32 `bson:"quat"`
}

// HandState is one controller's pose and inputs. ButtonState is
// B/Y, A/X, thumbstick, index trigger, hand trigger.
type HandState struct {
	WristPos     [3]float32 `bson:"wristPos"`
	WristQuat    [4]float32 `bson:"wristQuat"`
	TriggerState float32    `bson:"triggerState"`
	ButtonState  [5]bool    `bson:"buttonState"`
}

// CommandMessage is the outbound teleoperation snapshot. It holds only value
// types and pointers to values that are never mutated after construction, so a
// published CommandMessage can be shared freely.
type CommandMessage struct {
	Timestamp      float32        `bson:"timestamp"`
	TrajectoryEdit TrajectoryEdit `bson:"trajectoryEdit"`
	Head           *HeadPose      `bson:"head,omitempty"`
	LeftHand       *HandState     `bson:"leftHand,omitempty"`
	RightHand      *HandState     `bson:"rightHand,omitempty"`
}

func (CommandMessage) Schema() string { return SchemaCommand }
func (CommandMessage) Validate() error { return nil }

func minLen(field string, v []float32, n int) error {
	if len(v) < n {
		return fmt.Errorf("%s has %d values, need at least %d", field, len(v), n)
	}
	return nil
}
