package wire

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_PoseRoundTrip(t *testing.T) {
	in := PoseMessage{
		LeftRobotTCP:  []float32{0.5, 0.25, 1, 1, 0, 0, 0},
		RightRobotTCP: []float32{-0.5, 0.25, 1, 0.5, 0.5, 0.5, 0.5},
	}
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode[PoseMessage](data)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("pose mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_TrajectoryRoundTrip(t *testing.T) {
	in := TrajectoryFrame{
		Points: []TrajectoryPoint{
			{X: 0, Y: 0, Z: 0},
			{X: 1, Y: 0, Z: 0, Yaw: 90},
		},
		Timestamp: 12.5,
	}
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode[TrajectoryFrame](data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecode_EmptyTrajectory(t *testing.T) {
	data, err := Encode(TrajectoryFrame{Points: []TrajectoryPoint{}, Timestamp: 2})
	require.NoError(t, err)

	out, err := Decode[TrajectoryFrame](data)
	require.NoError(t, err)
	assert.NotNil(t, out.Points)
	assert.Empty(t, out.Points)
	assert.Equal(t, float32(2), out.Timestamp)
}

func TestDecode_CommandRoundTrip(t *testing.T) {
	in := CommandMessage{
		Timestamp: 3.25,
		TrajectoryEdit: TrajectoryEdit{
			SelectedPointIndex: 4,
			IsEditing:          true,
			EditedPointPos:     [3]float32{1, 2, 3},
			EditedPointQuat:    [4]float32{1, 0, 0, 0},
		},
		LeftHand: &HandState{
			WristPos:     [3]float32{0.5, 0, 0},
			WristQuat:    [4]float32{1, 0, 0, 0},
			TriggerState: 0.75,
			ButtonState:  [5]bool{true, false, false, true, false},
		},
	}
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode[CommandMessage](data)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, out.Head)
	assert.Nil(t, out.RightHand)
}

func TestDecode_Errors(t *testing.T) {
	shortPose, err := Encode(PoseMessage{
		LeftRobotTCP:  []float32{0, 0, 0},
		RightRobotTCP: []float32{0, 0, 0, 1, 0, 0, 0},
	})
	require.NoError(t, err)

	badSensor, err := Encode(SensorMessage{
		DeviceID: "tactile0",
		Arrows:   []Arrow{{Start: []float32{0, 0}, End: []float32{0, 0, 1}}},
		Scale:    []float32{1, 1, 1},
	})
	require.NoError(t, err)

	poseDoc, err := Encode(PoseMessage{
		LeftRobotTCP:  []float32{0, 0, 0, 1, 0, 0, 0},
		RightRobotTCP: []float32{0, 0, 0, 1, 0, 0, 0},
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		data   []byte
		decode func([]byte) error
	}{
		{"empty", nil, func(b []byte) error { _, err := Decode[PoseMessage](b); return err }},
		{"three bytes", []byte{1, 2, 3}, func(b []byte) error { _, err := Decode[LogMessage](b); return err }},
		{"garbage", []byte{0xff, 0xff, 0xff, 0x7f, 0x02, 0x61, 0x00}, func(b []byte) error { _, err := Decode[TrajectoryFrame](b); return err }},
		{"truncated length", []byte{0x40, 0, 0, 0, 0x08, 0x61, 0x00, 0x01, 0x00}, func(b []byte) error { _, err := Decode[ImageMessage](b); return err }},
		{"short tcp", shortPose, func(b []byte) error { _, err := Decode[PoseMessage](b); return err }},
		{"short arrow", badSensor, func(b []byte) error { _, err := Decode[SensorMessage](b); return err }},
		{"pose as trajectory", poseDoc, func(b []byte) error { _, err := Decode[TrajectoryFrame](b); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decode(tt.data)
			require.Error(t, err)
			var de *DecodeError
			assert.True(t, errors.As(err, &de), "want *DecodeError, got %T", err)
		})
	}
}

func TestDecode_SchemaInError(t *testing.T) {
	_, err := Decode[ForceMessage]([]byte{0, 1})
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, SchemaForce, de.Schema)
	assert.Contains(t, err.Error(), "decode force")
}

func TestImageMessage_Validate(t *testing.T) {
	ok := Image{ID: "cam0", Position: []float32{0, 0, 1}, Rotation: []float32{0, 0, 0}, Scale: []float32{1, 1, 1}}
	assert.NoError(t, ImageMessage{Images: []Image{ok}}.Validate())

	noID := ok
	noID.ID = ""
	assert.Error(t, ImageMessage{Images: []Image{noID}}.Validate())

	noScale := ok
	noScale.Scale = []float32{1}
	assert.Error(t, ImageMessage{Images: []Image{noScale}}.Validate())
}
