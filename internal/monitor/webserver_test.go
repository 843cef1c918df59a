package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vrlink/internal/monitoring"
	"github.com/banshee-data/vrlink/internal/testutil"
	"github.com/banshee-data/vrlink/internal/trajectory"
)

type fakeBackend struct {
	status Status
	view   *trajectory.View
	logs   []string
}

func (f *fakeBackend) Status() Status                   { return f.status }
func (f *fakeBackend) TrajectoryView() *trajectory.View { return f.view }
func (f *fakeBackend) Logs() []string                   { return f.logs }

// fakeControls records the operations run by queued tasks.
type fakeControls struct {
	calls []string
}

func (f *fakeControls) SetHovered(index int, on bool) bool {
	f.calls = append(f.calls, "hover")
	return true
}

func (f *fakeControls) SetSelected(index int, on bool) bool {
	f.calls = append(f.calls, "select")
	return true
}

func (f *fakeControls) ClearAllStates() { f.calls = append(f.calls, "clear") }
func (f *fakeControls) ClearImages()    { f.calls = append(f.calls, "clear_images") }

func sampleView() *trajectory.View {
	return &trajectory.View{
		Frame: 3, Mode: "pooled", Space: "local", Selected: 1, Hovered: trajectory.None,
		Points: []trajectory.PointView{
			{Index: 0, X: 0, Y: 0, Z: 0, Highlight: "normal"},
			{Index: 1, X: 1, Y: 0, Z: 0.5, Highlight: "selected"},
			{Index: 2, X: 2, Y: 0, Z: 1, Highlight: "normal"},
		},
	}
}

func newTestServer(t *testing.T) (*WebServer, *fakeBackend, *fakeControls, *testutil.TaskRecorder) {
	t.Helper()
	backend := &fakeBackend{
		status: Status{Version: "test", SessionID: "abc", QueueDepth: 2},
		view:   sampleView(),
		logs:   []string{"hello", "world"},
	}
	controls := &fakeControls{}
	queue := &testutil.TaskRecorder{}
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics()
	require.NoError(t, m.Register(reg))
	m.OutboundSent.Add(4)

	ws := NewWebServer(WebServerConfig{
		Address:  "127.0.0.1:0",
		Backend:  backend,
		Controls: controls,
		Queue:    queue,
		Gatherer: reg,
	})
	return ws, backend, controls, queue
}

func serve(ws *WebServer, method, path string, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	ws, _, _, _ := newTestServer(t)

	rec := serve(ws, http.MethodGet, "/api/status", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "test", got.Version)
	assert.Equal(t, "abc", got.SessionID)
	assert.Equal(t, 2, got.QueueDepth)

	rec = serve(ws, http.MethodPost, "/api/status", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestSelectionIsQueued(t *testing.T) {
	ws, _, controls, queue := newTestServer(t)

	for _, body := range []string{
		`{"action":"hover","index":2}`,
		`{"action":"select","index":1,"on":false}`,
		`{"action":"clear"}`,
	} {
		rec := serve(ws, http.MethodPost, "/api/selection", body)
		testutil.AssertStatusCode(t, rec.Code, http.StatusAccepted)
	}

	// Nothing touches render state until the queue drains.
	assert.Empty(t, controls.calls)
	assert.Equal(t, 3, queue.Len())
	queue.RunAll()
	assert.Equal(t, []string{"hover", "select", "clear"}, controls.calls)
}

func TestSelectionRejectsBadRequests(t *testing.T) {
	ws, _, _, queue := newTestServer(t)

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, `{"action":`, http.StatusBadRequest},
		{"unknown action", http.MethodPost, `{"action":"drag","index":0}`, http.StatusBadRequest},
		{"negative index", http.MethodPost, `{"action":"select","index":-3}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(ws, tt.method, "/api/selection", tt.body)
			testutil.AssertStatusCode(t, rec.Code, tt.want)
		})
	}
	assert.Zero(t, queue.Len())
}

func TestClearImagesIsQueued(t *testing.T) {
	ws, _, controls, queue := newTestServer(t)

	rec := serve(ws, http.MethodPost, "/api/images/clear", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusAccepted)
	queue.RunAll()
	assert.Equal(t, []string{"clear_images"}, controls.calls)

	rec = serve(ws, http.MethodGet, "/api/images/clear", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestLogs(t *testing.T) {
	ws, backend, _, _ := newTestServer(t)

	rec := serve(ws, http.MethodGet, "/api/logs", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var body struct {
		Lines []string `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"hello", "world"}, body.Lines)

	backend.logs = nil
	rec = serve(ws, http.MethodGet, "/api/logs", "")
	assert.Contains(t, rec.Body.String(), `"lines":[]`)
}

func TestMetricsEndpoint(t *testing.T) {
	ws, _, _, _ := newTestServer(t)

	rec := serve(ws, http.MethodGet, "/metrics", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "vrlink_outbound_sent_total 4")
}

func TestTrajectoryCharts(t *testing.T) {
	ws, backend, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	ws.handleTrajectoryChart(rec, httptest.NewRequest(http.MethodGet, "/debug/trajectory", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Active trajectory")

	rec = httptest.NewRecorder()
	ws.handleTrajectoryPNG(rec, httptest.NewRequest(http.MethodGet, "/debug/trajectory.png", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	backend.view = nil
	rec = httptest.NewRecorder()
	ws.handleTrajectoryPNG(rec, httptest.NewRequest(http.MethodGet, "/debug/trajectory.png", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestStartAndShutdown(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	ws, _, _, _ := newTestServer(t)
	ws.address = addr

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Start(ctx) }()

	var resp *http.Response
	testutil.WaitFor(t, 2*time.Second, "monitor to accept connections", func() bool {
		resp, err = http.Get("http://" + addr + "/api/status")
		return err == nil
	})
	resp.Body.Close()
	testutil.AssertStatusCode(t, resp.StatusCode, http.StatusOK)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
