package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/vrlink/internal/stream"
)

// ServiceName is the health service name reported for an inbound stream.
func ServiceName(streamName string) string {
	return "vrlink.stream." + streamName
}

// Health serves the standard gRPC health protocol. The overall "" service
// is SERVING while the bridge runs; each stream flips to SERVING once its
// socket is bound.
type Health struct {
	server *health.Server
}

// NewHealth returns a health service with every stream NOT_SERVING.
func NewHealth(streams ...string) *Health {
	h := &Health{server: health.NewServer()}
	for _, name := range streams {
		h.server.SetServingStatus(ServiceName(name), healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return h
}

// SetStream records a listener state change. It matches the signature of
// stream.Config.OnStateChange.
func (h *Health) SetStream(name string, state stream.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == stream.StateBound || state == stream.StateReceiving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus(ServiceName(name), status)
}

// Check reports the current status of service.
func (h *Health) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.server.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Shutdown marks every service NOT_SERVING.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}

// Register adds the health service to s.
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Serve listens on addr and serves the health protocol until ctx is
// cancelled. Every service is marked NOT_SERVING before the server stops.
func (h *Health) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("health listen on %s: %w", addr, err)
	}
	return h.ServeListener(ctx, lis)
}

// ServeListener is Serve on an existing listener.
func (h *Health) ServeListener(ctx context.Context, lis net.Listener) error {
	s := grpc.NewServer()
	h.Register(s)

	errCh := make(chan error, 1)
	go func() {
		logf("gRPC health listening on %s", lis.Addr())
		errCh <- s.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("health server: %w", err)
	case <-ctx.Done():
	}
	h.Shutdown()
	s.GracefulStop()
	<-errCh
	logf("gRPC health server stopped")
	return nil
}
