package monitoring

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Error class labels used on the stream_errors_total counter.
const (
	ErrorClassDecode    = "decode"
	ErrorClassProtocol  = "protocol"
	ErrorClassTransport = "transport"
)

// Metrics holds the Prometheus collectors for the bridge.
type Metrics struct {
	DatagramsReceived *prometheus.CounterVec
	BytesReceived     *prometheus.CounterVec
	MessagesDecoded   *prometheus.CounterVec
	StreamErrors      *prometheus.CounterVec

	QueueDepth       prometheus.Gauge
	TasksExecuted    prometheus.Counter
	FramesReconciled prometheus.Counter

	OutboundSent   prometheus.Counter
	OutboundFailed prometheus.Counter
}

// NewMetrics creates the collectors. They are not registered until Register is called.
func NewMetrics() *Metrics {
	return &Metrics{
		DatagramsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vrlink",
				Subsystem: "stream",
				Name:      "datagrams_received_total",
				Help:      "Total number of UDP datagrams read per stream",
			},
			[]string{"stream"},
		),
		BytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vrlink",
				Subsystem: "stream",
				Name:      "bytes_received_total",
				Help:      "Total number of payload bytes read per stream",
			},
			[]string{"stream"},
		),
		MessagesDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vrlink",
				Subsystem: "stream",
				Name:      "messages_decoded_total",
				Help:      "Total number of messages decoded and handed to the render queue",
			},
			[]string{"stream"},
		),
		StreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vrlink",
				Subsystem: "stream",
				Name:      "errors_total",
				Help:      "Total number of dropped messages by error class",
			},
			[]string{"stream", "class"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vrlink",
				Subsystem: "render",
				Name:      "queue_depth",
				Help:      "Tasks pending on the render queue at the last drain",
			},
		),
		TasksExecuted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vrlink",
				Subsystem: "render",
				Name:      "tasks_executed_total",
				Help:      "Total number of tasks run by the render loop",
			},
		),
		FramesReconciled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vrlink",
				Subsystem: "trajectory",
				Name:      "frames_reconciled_total",
				Help:      "Total number of trajectory frames applied to the scene",
			},
		),
		OutboundSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vrlink",
				Subsystem: "outbound",
				Name:      "sent_total",
				Help:      "Total number of command snapshots transmitted",
			},
		),
		OutboundFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vrlink",
				Subsystem: "outbound",
				Name:      "failed_total",
				Help:      "Total number of command snapshots that failed to transmit",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.DatagramsReceived,
		m.BytesReceived,
		m.MessagesDecoded,
		m.StreamErrors,
		m.QueueDepth,
		m.TasksExecuted,
		m.FramesReconciled,
		m.OutboundSent,
		m.OutboundFailed,
	}
}

// Register adds every collector to reg. Collectors that are already registered
// with reg are skipped, so registering twice is harmless.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}
