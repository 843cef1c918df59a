package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vrlink/internal/config"
	"github.com/banshee-data/vrlink/internal/monitoring"
	"github.com/banshee-data/vrlink/internal/scene"
	"github.com/banshee-data/vrlink/internal/stream"
	"github.com/banshee-data/vrlink/internal/testutil"
	"github.com/banshee-data/vrlink/internal/timeutil"
	"github.com/banshee-data/vrlink/internal/wire"
)

func init() {
	monitoring.SetLogger(nil)
}

type captureTransport struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *captureTransport) Send(_ context.Context, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, append([]byte(nil), p...))
	return nil
}

func (c *captureTransport) Close() error   { return nil }
func (c *captureTransport) String() string { return "capture" }

func (c *captureTransport) last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.payloads) == 0 {
		return nil
	}
	return c.payloads[len(c.payloads)-1]
}

type harness struct {
	bridge    *Bridge
	sockets   *stream.MemorySocketFactory
	clock     *timeutil.MockClock
	transport *captureTransport
	sink      *scene.Recorder
	cancel    context.CancelFunc
	done      chan error
}

func headlessConfig() *config.BridgeConfig {
	off := ""
	cfg := config.EmptyBridgeConfig()
	cfg.MonitorListen = &off
	cfg.HealthListen = &off
	return cfg
}

func newHarness(t *testing.T, cfg *config.BridgeConfig) *harness {
	t.Helper()
	h := &harness{
		sockets:   stream.NewMemorySocketFactory(),
		clock:     timeutil.NewMockClock(time.Unix(1000, 0)),
		transport: &captureTransport{},
		sink:      scene.NewRecorder(),
		done:      make(chan error, 1),
	}
	b, err := New(Options{
		Config:        cfg,
		Sink:          h.sink,
		Clock:         h.clock,
		SocketFactory: h.sockets,
		Transport:     h.transport,
	})
	require.NoError(t, err)
	h.bridge = b
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.bridge.Run(ctx) }()
	// Render loop, sender and stats ticker.
	h.clock.BlockUntil(3)
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not stop")
		return nil
	}
}

func (h *harness) push(t *testing.T, port int, msg wire.Message) {
	t.Helper()
	b, err := wire.Encode(msg)
	require.NoError(t, err)
	h.sockets.Socket(port).Push(b)
}

// renderUntil advances one render interval at a time until cond holds.
func (h *harness) renderUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	testutil.WaitFor(t, 5*time.Second, what, func() bool {
		h.clock.Advance(h.bridge.loop.Interval())
		return cond()
	})
}

func TestBridge_EndToEnd(t *testing.T) {
	h := newHarness(t, headlessConfig())
	h.start(t)

	assert.ElementsMatch(t, []int{10001, 10002, 10003, 10004, 10005, 10006}, h.sockets.Binds())

	h.push(t, 10006, &wire.TrajectoryFrame{
		Points:    []wire.TrajectoryPoint{{X: 0}, {X: 1}, {X: 2}},
		Timestamp: 1,
	})
	h.push(t, 10001, &wire.PoseMessage{
		LeftRobotTCP:  []float32{0, 0, 0, 1, 0, 0, 0},
		RightRobotTCP: []float32{1, 0, 0, 1, 0, 0, 0},
	})
	h.push(t, 10003, &wire.LogMessage{Text: "grasp ok"})

	h.renderUntil(t, "frame and pose to be applied", func() bool {
		v := h.bridge.TrajectoryView()
		s := h.bridge.visualizer.Summary()
		return v != nil && v.Frame == 1 && s.Updates.Poses == 1 && s.Updates.Logs == 1
	})
	assert.Len(t, h.bridge.TrajectoryView().Points, 3)
	assert.Equal(t, []string{"grasp ok"}, h.bridge.Logs())

	// Selection through the monitor goes via the render queue.
	rec := httptest.NewRecorder()
	h.bridge.Monitor().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/selection",
		strings.NewReader(`{"action":"select","index":1}`)))
	testutil.AssertStatusCode(t, rec.Code, http.StatusAccepted)
	h.renderUntil(t, "selection to apply", func() bool {
		return h.bridge.TrajectoryView().Selected == 1
	})

	// The sender picks up the command published after the drain.
	testutil.WaitFor(t, 5*time.Second, "command with the selection to be sent", func() bool {
		h.clock.Advance(h.bridge.loop.Interval())
		p := h.transport.last()
		if p == nil {
			return false
		}
		msg, err := wire.Decode[wire.CommandMessage](p)
		return err == nil && msg.TrajectoryEdit.SelectedPointIndex == 1
	})

	st := h.bridge.Status()
	assert.NotEmpty(t, st.SessionID)
	require.Len(t, st.Streams, 6)
	for _, s := range st.Streams {
		if s.Name == config.StreamTrajectory {
			assert.Equal(t, uint64(1), s.Messages)
		}
	}
	assert.Equal(t, "receiving", st.StreamStates[config.StreamPose])
	assert.Equal(t, "capture", st.Outbound.Transport)

	require.NoError(t, h.stop(t))
	for _, p := range h.sockets.Binds() {
		assert.True(t, h.sockets.Socket(p).Closed(), "port %d left open", p)
	}
	assert.Equal(t, "closed", h.bridge.Status().StreamStates[config.StreamImage])
}

func TestBridge_BadDatagramDoesNotStopStream(t *testing.T) {
	h := newHarness(t, headlessConfig())
	h.start(t)

	h.sockets.Socket(10006).Push([]byte{0x01, 0x02})
	h.push(t, 10006, &wire.TrajectoryFrame{Points: []wire.TrajectoryPoint{{X: 1}}})

	h.renderUntil(t, "frame after garbage", func() bool {
		v := h.bridge.TrajectoryView()
		return v != nil && v.Frame == 1
	})
	snap := h.bridge.Listener(config.StreamTrajectory).Stats().Snapshot()
	assert.Equal(t, uint64(1), snap.DecodeErrors)
	assert.Equal(t, uint64(1), snap.Messages)
	require.NoError(t, h.stop(t))
}

func TestBridge_ForeignDocumentKeepsSelection(t *testing.T) {
	h := newHarness(t, headlessConfig())
	h.start(t)

	h.push(t, 10006, &wire.TrajectoryFrame{Points: []wire.TrajectoryPoint{{X: 0}, {X: 1}, {X: 2}}})
	h.renderUntil(t, "first frame", func() bool {
		v := h.bridge.TrajectoryView()
		return v != nil && v.Frame == 1
	})
	rec := httptest.NewRecorder()
	h.bridge.Monitor().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/selection",
		strings.NewReader(`{"action":"select","index":1}`)))
	testutil.AssertStatusCode(t, rec.Code, http.StatusAccepted)
	h.renderUntil(t, "selection to apply", func() bool {
		return h.bridge.TrajectoryView().Selected == 1
	})

	// A pose document on the trajectory port has no points field.
	h.push(t, 10006, &wire.PoseMessage{
		LeftRobotTCP:  []float32{0, 0, 0, 1, 0, 0, 0},
		RightRobotTCP: []float32{0, 0, 0, 1, 0, 0, 0},
	})
	h.push(t, 10006, &wire.TrajectoryFrame{Points: []wire.TrajectoryPoint{{X: 0}, {X: 1}}})
	h.renderUntil(t, "second frame", func() bool {
		return h.bridge.TrajectoryView().Frame == 2
	})

	v := h.bridge.TrajectoryView()
	assert.Len(t, v.Points, 2)
	assert.Equal(t, 1, v.Selected)
	snap := h.bridge.Listener(config.StreamTrajectory).Stats().Snapshot()
	assert.Equal(t, uint64(1), snap.DecodeErrors)
	assert.Equal(t, uint64(2), snap.Messages)
	require.NoError(t, h.stop(t))
}

func TestBridge_ChunkedImage(t *testing.T) {
	h := newHarness(t, headlessConfig())
	h.start(t)

	payload, err := wire.Encode(&wire.ImageMessage{Images: []wire.Image{{
		ID: "wrist", Position: []float32{0, 0, 1}, Rotation: []float32{0, 0, 0},
		Scale: []float32{1, 1, 1}, Image: make([]byte, 5000),
	}}})
	require.NoError(t, err)
	var rec datagrams
	require.NoError(t, wire.WriteChunked(&rec, payload, 1400))
	h.sockets.Socket(10004).Push(rec...)

	h.renderUntil(t, "image panel", func() bool {
		return len(h.bridge.visualizer.Summary().Images) == 1
	})
	require.NoError(t, h.stop(t))
}

// datagrams collects each Write as one datagram.
type datagrams [][]byte

func (d *datagrams) Write(p []byte) (int, error) {
	*d = append(*d, append([]byte(nil), p...))
	return len(p), nil
}

func TestBridge_BindFailure(t *testing.T) {
	h := newHarness(t, headlessConfig())
	h.sockets.Err = errors.New("address already in use")

	err := h.bridge.Run(context.Background())
	var te *stream.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "bind", te.Op)
}

func TestBridge_HealthFollowsStreams(t *testing.T) {
	h := newHarness(t, headlessConfig())
	ctx := context.Background()

	st, err := h.bridge.Health().Check(ctx, "vrlink.stream.pose")
	require.NoError(t, err)
	assert.Equal(t, "NOT_SERVING", st.String())

	h.start(t)
	st, err = h.bridge.Health().Check(ctx, "vrlink.stream.pose")
	require.NoError(t, err)
	assert.Equal(t, "SERVING", st.String())

	require.NoError(t, h.stop(t))
	st, err = h.bridge.Health().Check(ctx, "vrlink.stream.pose")
	require.NoError(t, err)
	assert.Equal(t, "NOT_SERVING", st.String())
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := headlessConfig()
	bad := "carrier-pigeon"
	cfg.OutboundTransport = &bad
	_, err := New(Options{Config: cfg, Transport: &captureTransport{}})
	assert.Error(t, err)
}
