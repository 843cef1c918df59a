package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsweb"

	"github.com/banshee-data/vrlink/internal/httputil"
	"github.com/banshee-data/vrlink/internal/monitoring"
	"github.com/banshee-data/vrlink/internal/telemetry"
	"github.com/banshee-data/vrlink/internal/trajectory"
)

var logf = monitoring.Tagged("monitor")

// Status is the body of GET /api/status.
type Status struct {
	Version      string                      `json:"version"`
	SessionID    string                      `json:"session_id"`
	Uptime       string                      `json:"uptime"`
	Streams      []monitoring.StreamSnapshot `json:"streams"`
	StreamStates map[string]string           `json:"stream_states"`
	QueueDepth   int                         `json:"queue_depth"`
	RenderTicks  uint64                      `json:"render_ticks"`
	Trajectory   *trajectory.View            `json:"trajectory,omitempty"`
	Telemetry    *telemetry.Summary          `json:"telemetry,omitempty"`
	Outbound     OutboundStatus              `json:"outbound"`
}

// OutboundStatus counts command snapshots sent to the workstation.
type OutboundStatus struct {
	Transport string `json:"transport"`
	Sent      uint64 `json:"sent"`
	Failed    uint64 `json:"failed"`
}

// Backend supplies read-only state. Every method must be safe to call from
// HTTP goroutines.
type Backend interface {
	Status() Status
	TrajectoryView() *trajectory.View
	Logs() []string
}

// Controls are the render-thread operations the monitor may request. They
// are only ever invoked from tasks run by the render queue.
type Controls interface {
	SetHovered(index int, on bool) bool
	SetSelected(index int, on bool) bool
	ClearAllStates()
	ClearImages()
}

// Enqueuer posts a task onto the render queue.
type Enqueuer interface {
	Enqueue(task func())
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address  string
	Backend  Backend
	Controls Controls
	Queue    Enqueuer
	// Gatherer serves /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// WebServer is the operator HTTP interface.
type WebServer struct {
	address  string
	backend  Backend
	controls Controls
	queue    Enqueuer
	gatherer prometheus.Gatherer
	server   *http.Server
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:  config.Address,
		backend:  config.Backend,
		controls: config.Controls,
		queue:    config.Queue,
		gatherer: config.Gatherer,
	}
	if ws.gatherer == nil {
		ws.gatherer = prometheus.DefaultGatherer
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the routed handler.
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}

// Start serves until ctx is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", ws.address)
	if err != nil {
		return fmt.Errorf("monitor listen on %s: %w", ws.address, err)
	}
	errCh := make(chan error, 1)
	go func() {
		logf("Starting HTTP server on %s", lis.Addr())
		errCh <- ws.server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("monitor server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			logf("HTTP server force close error: %v", err)
		}
	}
	logf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/selection", ws.handleSelection)
	mux.HandleFunc("/api/images/clear", ws.handleClearImages)
	mux.HandleFunc("/api/logs", ws.handleLogs)
	mux.Handle("/metrics", promhttp.HandlerFor(ws.gatherer, promhttp.HandlerOpts{}))

	debug := tsweb.Debugger(mux)
	debug.HandleFunc("trajectory", "Active trajectory (interactive chart)", ws.handleTrajectoryChart)
	debug.HandleFunc("trajectory.png", "Active trajectory, top-down PNG", ws.handleTrajectoryPNG)
	debug.KVFunc("Frames reconciled", func() any {
		if v := ws.backend.TrajectoryView(); v != nil {
			return v.Frame
		}
		return 0
	})
	debug.KVFunc("Render queue depth", func() any { return ws.backend.Status().QueueDepth })

	return mux
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ws.backend.Status())
}

// selectionRequest is the body of POST /api/selection.
type selectionRequest struct {
	Action string `json:"action"`
	Index  int    `json:"index"`
	On     *bool  `json:"on"`
}

func (ws *WebServer) handleSelection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req selectionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	on := req.On == nil || *req.On

	var task func()
	switch req.Action {
	case "hover":
		task = func() { ws.controls.SetHovered(req.Index, on) }
	case "select":
		task = func() { ws.controls.SetSelected(req.Index, on) }
	case "clear":
		task = ws.controls.ClearAllStates
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown action %q", req.Action))
		return
	}
	if req.Action != "clear" && req.Index < 0 {
		httputil.BadRequest(w, "index must be non-negative")
		return
	}
	ws.queue.Enqueue(task)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"queued": req.Action, "index": req.Index})
}

func (ws *WebServer) handleClearImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	ws.queue.Enqueue(ws.controls.ClearImages)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"queued": "clear_images"})
}

func (ws *WebServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	lines := ws.backend.Logs()
	if lines == nil {
		lines = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"lines": lines})
}
