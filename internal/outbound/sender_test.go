package outbound

import (
	"context"
	"errors"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrlink/internal/httputil"
	"github.com/banshee-data/vrlink/internal/monitoring"
	"github.com/banshee-data/vrlink/internal/scene"
	"github.com/banshee-data/vrlink/internal/timeutil"
	"github.com/banshee-data/vrlink/internal/wire"
)

// captureTransport records every payload it is asked to send.
type captureTransport struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (c *captureTransport) Send(_ context.Context, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.payloads = append(c.payloads, append([]byte(nil), p...))
	return nil
}

func (c *captureTransport) Close() error   { return nil }
func (c *captureTransport) String() string { return "capture" }

func (c *captureTransport) decoded(t *testing.T) []wire.CommandMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []wire.CommandMessage
	for _, p := range c.payloads {
		msg, err := wire.Decode[wire.CommandMessage](p)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func (c *captureTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func TestSender_NoSnapshot(t *testing.T) {
	s := NewSender(&captureTransport{}, 30, nil, nil)
	assert.ErrorIs(t, s.SendOnce(context.Background()), ErrNoSnapshot)
	sent, failed := s.Stats()
	assert.Zero(t, sent)
	assert.Zero(t, failed)
}

func TestSender_LatestSnapshotWins(t *testing.T) {
	tr := &captureTransport{}
	m := monitoring.NewMetrics()
	s := NewSender(tr, 30, nil, m)

	s.Publish(&wire.CommandMessage{Timestamp: 1})
	s.Publish(&wire.CommandMessage{Timestamp: 2})
	require.NoError(t, s.SendOnce(context.Background()))
	require.NoError(t, s.SendOnce(context.Background()))

	got := tr.decoded(t)
	require.Len(t, got, 2)
	assert.Equal(t, float32(2), got[0].Timestamp)
	assert.Equal(t, float32(2), got[1].Timestamp)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboundSent))
}

func TestSender_FailureNotRetried(t *testing.T) {
	tr := &captureTransport{err: errors.New("network unreachable")}
	m := monitoring.NewMetrics()
	s := NewSender(tr, 30, nil, m)
	s.Publish(&wire.CommandMessage{})

	assert.Error(t, s.SendOnce(context.Background()))
	assert.Error(t, s.SendOnce(context.Background()))
	_, failed := s.Stats()
	assert.Equal(t, uint64(2), failed)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboundFailed))

	tr.mu.Lock()
	tr.err = nil
	tr.mu.Unlock()
	assert.NoError(t, s.SendOnce(context.Background()))
	assert.Equal(t, 1, tr.count())
}

func TestSender_RunSendsPerTick(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	tr := &captureTransport{}
	s := NewSender(tr, 10, clock, nil)
	s.Publish(&wire.CommandMessage{Timestamp: 7})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	clock.BlockUntil(1)
	for i := 1; i <= 3; i++ {
		clock.Advance(100 * time.Millisecond)
		deadline := time.Now().Add(2 * time.Second)
		for tr.count() < i && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 3, tr.count())
}

func TestHTTPTransport_PostsToUnity(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	tr := NewHTTPTransport(client, "10.0.0.5", 8000)
	assert.Equal(t, "http://10.0.0.5:8000/unity", tr.String())

	s := NewSender(tr, 30, nil, nil)
	s.Publish(&wire.CommandMessage{Timestamp: 1.5})
	require.NoError(t, s.SendOnce(context.Background()))

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "POST", reqs[0].Method)
	assert.Equal(t, ContentType, reqs[0].ContentType)
	msg, err := wire.Decode[wire.CommandMessage](reqs[0].Body)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), msg.Timestamp)

	client.Err = errors.New("refused")
	assert.Error(t, s.SendOnce(context.Background()))
}

func TestUDPTransport_Loopback(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	tr, err := DialUDP("127.0.0.1", port)
	require.NoError(t, err)
	defer tr.Close()

	payload, err := wire.Encode(&wire.CommandMessage{Timestamp: 4})
	require.NoError(t, err)
	require.NoError(t, tr.Send(context.Background(), payload))

	pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	msg, err := wire.Decode[wire.CommandMessage](buf[:n])
	require.NoError(t, err)
	assert.Equal(t, float32(4), msg.Timestamp)
}

func TestBuildCommand(t *testing.T) {
	edit := wire.TrajectoryEdit{SelectedPointIndex: 2}
	in := Input{
		Head: &Pose{Position: r3.Vec{Y: 1.5}, Rotation: scene.IdentityRotation},
		RightHand: &Hand{
			Pose:    Pose{Position: r3.Vec{X: 0.25}, Rotation: scene.IdentityRotation},
			Trigger: 0.5,
			Buttons: [5]bool{false, true},
		},
	}
	xf := scene.NewRigid(r3.Vec{Z: 1}, quat.Number{Real: 1})

	msg := BuildCommand(3, edit, in, xf)
	want := &wire.CommandMessage{
		Timestamp:      3,
		TrajectoryEdit: edit,
		Head:           &wire.HeadPose{Pos: [3]float32{0, 1.5, 1}, Quat: [4]float32{1, 0, 0, 0}},
		RightHand: &wire.HandState{
			WristPos:     [3]float32{0.25, 0, 1},
			WristQuat:    [4]float32{1, 0, 0, 0},
			TriggerState: 0.5,
			ButtonState:  [5]bool{false, true},
		},
	}
	if diff := cmp.Diff(want, msg); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}

	bare := BuildCommand(0, wire.TrajectoryEdit{SelectedPointIndex: -1}, NoInput.Sample(), nil)
	assert.Nil(t, bare.Head)
	assert.Nil(t, bare.LeftHand)
	assert.Nil(t, bare.RightHand)
}

func TestBuildCommand_QuaternionOrder(t *testing.T) {
	q := scene.AxisAngle(scene.Up, math.Pi/2)
	msg := BuildCommand(0, wire.TrajectoryEdit{SelectedPointIndex: -1},
		Input{LeftHand: &Hand{Pose: Pose{Rotation: q}}}, scene.Identity{})
	require.NotNil(t, msg.LeftHand)

	h := float32(math.Sqrt2 / 2)
	assert.InDeltaSlice(t, []float32{h, 0, h, 0}, msg.LeftHand.WristQuat[:], 1e-6)
}
