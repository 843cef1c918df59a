// Package bridge assembles the inbound listeners, the render loop, the
// visualizers, the outbound sender and the operator surfaces into one
// process, and owns their lifecycle.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/vrlink/internal/config"
	"github.com/banshee-data/vrlink/internal/dispatch"
	"github.com/banshee-data/vrlink/internal/httputil"
	"github.com/banshee-data/vrlink/internal/monitor"
	"github.com/banshee-data/vrlink/internal/monitoring"
	"github.com/banshee-data/vrlink/internal/outbound"
	"github.com/banshee-data/vrlink/internal/scene"
	"github.com/banshee-data/vrlink/internal/stream"
	"github.com/banshee-data/vrlink/internal/telemetry"
	"github.com/banshee-data/vrlink/internal/timeutil"
	"github.com/banshee-data/vrlink/internal/trajectory"
	"github.com/banshee-data/vrlink/internal/version"
	"github.com/banshee-data/vrlink/internal/wire"
)

var logf = monitoring.Tagged("bridge")

// Options are the bridge's collaborators. Only Config is required.
type Options struct {
	Config *config.BridgeConfig
	// Sink receives every scene mutation. Nil records into a scene.Recorder.
	Sink scene.Sink
	// Input samples the operator's head and hands. Nil reports nothing tracked.
	Input outbound.InputSource
	// Clock drives the render loop, the sender and the stats ticker.
	Clock timeutil.Clock
	// SocketFactory opens the inbound sockets. Nil uses real UDP sockets.
	SocketFactory stream.UDPSocketFactory
	// Transport overrides the configured outbound transport.
	Transport outbound.Transport
	// HTTPClient is used by the http outbound transport.
	HTTPClient httputil.HTTPClient
	// Registry receives the Prometheus collectors. Nil creates a private one.
	Registry *prometheus.Registry
}

// Bridge is one running vrlink session.
type Bridge struct {
	cfg       *config.BridgeConfig
	clock     timeutil.Clock
	sessionID uuid.UUID
	started   time.Time
	input     outbound.InputSource
	xf        scene.CoordinateTransform

	metrics  *monitoring.Metrics
	registry *prometheus.Registry

	queue      *dispatch.Queue
	loop       *dispatch.Loop
	reconciler *trajectory.Reconciler
	visualizer *telemetry.Visualizer
	listeners  []*stream.Listener
	transport  outbound.Transport
	sender     *outbound.Sender
	health     *monitor.Health
	web        *monitor.WebServer

	stateMu sync.Mutex
	states  map[string]stream.State
}

// New wires a bridge from opts. Nothing is bound until Run.
func New(opts Options) (*Bridge, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.EmptyBridgeConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	sink := opts.Sink
	if sink == nil {
		sink = scene.NewRecorder()
	}
	input := opts.Input
	if input == nil {
		input = outbound.NoInput
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	b := &Bridge{
		cfg:       cfg,
		clock:     clock,
		sessionID: uuid.New(),
		started:   clock.Now(),
		input:     input,
		xf:        cfg.GetAlignment(),
		metrics:   monitoring.NewMetrics(),
		registry:  registry,
		states:    make(map[string]stream.State),
	}
	if err := b.metrics.Register(registry); err != nil {
		return nil, err
	}

	b.queue = dispatch.NewQueue(b.metrics)
	b.loop = dispatch.NewLoop(b.queue, cfg.GetRenderRateHz(), clock)
	b.reconciler = trajectory.NewReconciler(sink, trajectory.Options{
		Mode:       cfg.GetVisualMode(),
		Space:      cfg.GetVisualSpace(),
		Transform:  b.xf,
		WarmPoints: cfg.GetPoolWarmPoints(),
		PointSize:  cfg.GetPointSize(),
		AxisLength: cfg.GetAxisLength(),
		LineWidth:  cfg.GetLineWidth(),
		Metrics:    b.metrics,
	})
	b.visualizer = telemetry.NewVisualizer(sink, telemetry.Options{})

	transport := opts.Transport
	if transport == nil {
		var err error
		if transport, err = newTransport(cfg, opts.HTTPClient); err != nil {
			return nil, err
		}
	}
	b.transport = transport
	b.sender = outbound.NewSender(transport, cfg.GetSendRateHz(), clock, b.metrics)
	b.loop.AfterDrain(b.publishCommand)

	names := make([]string, 0, 6)
	for _, sp := range cfg.StreamPorts() {
		names = append(names, sp.Name)
		b.states[sp.Name] = stream.StateUnbound
		b.listeners = append(b.listeners, stream.NewListener(stream.Config{
			Name:             sp.Name,
			Address:          cfg.StreamAddress(sp.Port),
			RcvBuf:           cfg.GetRcvBuf(),
			Chunked:          sp.Name == config.StreamImage,
			MaxTransferBytes: cfg.GetMaxImageBytes(),
			Handler:          b.handlerFor(sp.Name),
			Queue:            b.queue,
			Stats:            monitoring.NewStreamStats(sp.Name, b.metrics),
			SocketFactory:    opts.SocketFactory,
			OnStateChange:    b.setState,
		}))
	}
	b.health = monitor.NewHealth(names...)
	b.web = monitor.NewWebServer(monitor.WebServerConfig{
		Address:  cfg.GetMonitorListen(),
		Backend:  b,
		Controls: controls{b.reconciler, b.visualizer},
		Queue:    b.queue,
		Gatherer: registry,
	})
	return b, nil
}

func newTransport(cfg *config.BridgeConfig, client httputil.HTTPClient) (outbound.Transport, error) {
	host, port := cfg.GetWorkstationHost(), cfg.GetWorkstationPort()
	if cfg.GetOutboundTransport() == config.TransportHTTP {
		if client == nil {
			client = httputil.NewClient(2 * time.Second)
		}
		return outbound.NewHTTPTransport(client, host, port), nil
	}
	t, err := outbound.DialUDP(host, port)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// handlerFor maps a stream to its decoder and render-thread apply function.
func (b *Bridge) handlerFor(name string) stream.Handler {
	switch name {
	case config.StreamPose:
		return stream.Decoded[wire.PoseMessage](b.visualizer.UpdateRobot)
	case config.StreamArrow:
		return stream.Decoded[wire.SensorMessage](b.visualizer.UpdateArrows)
	case config.StreamLog:
		return stream.Decoded[wire.LogMessage](b.visualizer.AppendLog)
	case config.StreamImage:
		return stream.Decoded[wire.ImageMessage](b.visualizer.UpdateImages)
	case config.StreamForce:
		return stream.Decoded[wire.ForceMessage](b.visualizer.UpdateForce)
	case config.StreamTrajectory:
		return stream.Decoded[wire.TrajectoryFrame](b.reconciler.Apply)
	}
	panic("bridge: no handler for stream " + name)
}

// publishCommand runs on the render goroutine after every drain.
func (b *Bridge) publishCommand() {
	ts := float32(b.clock.Now().Sub(b.started).Seconds())
	b.sender.Publish(outbound.BuildCommand(ts, b.reconciler.EditSnapshot(), b.input.Sample(), b.xf))
}

func (b *Bridge) setState(name string, s stream.State) {
	b.stateMu.Lock()
	b.states[name] = s
	b.stateMu.Unlock()
	b.health.SetStream(name, s)
}

// Run binds every stream and serves until ctx ends. A bind failure closes
// whatever was already bound and is returned before anything starts.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.transport.Close()
	for _, l := range b.listeners {
		if err := l.Bind(); err != nil {
			for _, bound := range b.listeners {
				bound.Close()
			}
			return err
		}
	}
	logf("session %s started, %s", b.sessionID, version.String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(b.listeners)+5)
	run := func(name string, f func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	for _, l := range b.listeners {
		stop := context.AfterFunc(ctx, func() { l.Close() })
		defer stop()
		run("stream "+l.Name(), func(context.Context) error { return l.Serve() })
	}
	run("render loop", b.loop.Run)
	run("sender", b.sender.Run)
	run("stats", b.logStats)
	if addr := b.cfg.GetMonitorListen(); addr != "" {
		run("monitor", b.web.Start)
	}
	if addr := b.cfg.GetHealthListen(); addr != "" {
		run("health", func(ctx context.Context) error { return b.health.Serve(ctx, addr) })
	}

	<-ctx.Done()
	wg.Wait()
	b.health.Shutdown()
	close(errCh)
	logf("session %s stopped", b.sessionID)
	return <-errCh
}

// logStats logs per-stream counters every log interval.
func (b *Bridge) logStats(ctx context.Context) error {
	ticker := b.clock.NewTicker(b.cfg.GetLogInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			for _, l := range b.listeners {
				s := l.Stats().Snapshot()
				logf("%-10s datagrams=%d bytes=%d messages=%d errors=%d (decode=%d protocol=%d transport=%d)",
					s.Name, s.Datagrams, s.Bytes, s.Messages, s.Errors(), s.DecodeErrors, s.ProtocolErrors, s.TransportErrors)
			}
			sent, failed := b.sender.Stats()
			logf("queue=%d frames=%d outbound sent=%d failed=%d", b.queue.Len(), b.reconciler.LastView().Frame, sent, failed)
		}
	}
}

// Listener returns the named stream's listener, or nil.
func (b *Bridge) Listener(name string) *stream.Listener {
	for _, l := range b.listeners {
		if l.Name() == name {
			return l
		}
	}
	return nil
}

// Sender returns the outbound sender.
func (b *Bridge) Sender() *outbound.Sender { return b.sender }

// Health returns the gRPC health service.
func (b *Bridge) Health() *monitor.Health { return b.health }

// Monitor returns the operator web server.
func (b *Bridge) Monitor() *monitor.WebServer { return b.web }

// Status implements monitor.Backend.
func (b *Bridge) Status() monitor.Status {
	st := monitor.Status{
		Version:      version.Version,
		SessionID:    b.sessionID.String(),
		Uptime:       b.clock.Now().Sub(b.started).Round(time.Second).String(),
		StreamStates: make(map[string]string, len(b.listeners)),
		QueueDepth:   b.queue.Len(),
		RenderTicks:  b.loop.Ticks(),
		Trajectory:   b.reconciler.LastView(),
		Telemetry:    b.visualizer.Summary(),
	}
	for _, l := range b.listeners {
		st.Streams = append(st.Streams, l.Stats().Snapshot())
	}
	b.stateMu.Lock()
	for name, s := range b.states {
		st.StreamStates[name] = s.String()
	}
	b.stateMu.Unlock()
	st.Outbound.Transport = b.transport.String()
	st.Outbound.Sent, st.Outbound.Failed = b.sender.Stats()
	return st
}

// TrajectoryView implements monitor.Backend.
func (b *Bridge) TrajectoryView() *trajectory.View { return b.reconciler.LastView() }

// Logs implements monitor.Backend.
func (b *Bridge) Logs() []string { return b.visualizer.Logs() }

// controls routes monitor requests to the render-thread owners.
type controls struct {
	*trajectory.Reconciler
	vis *telemetry.Visualizer
}

func (c controls) ClearImages() { c.vis.ClearImages() }
