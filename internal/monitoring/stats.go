package monitoring

import (
	"sync/atomic"
)

// StreamStats counts traffic and failures for one inbound stream. All methods
// are safe for concurrent use; the listener goroutine writes while the monitor
// and the periodic stats logger read.
type StreamStats struct {
	name    string
	metrics *Metrics

	datagrams     atomic.Uint64
	bytes         atomic.Uint64
	messages      atomic.Uint64
	decodeErrs    atomic.Uint64
	protocolErrs  atomic.Uint64
	transportErrs atomic.Uint64
}

// StreamSnapshot is a point-in-time copy of StreamStats.
type StreamSnapshot struct {
	Name            string `json:"name"`
	Datagrams       uint64 `json:"datagrams"`
	Bytes           uint64 `json:"bytes"`
	Messages        uint64 `json:"messages"`
	DecodeErrors    uint64 `json:"decode_errors"`
	ProtocolErrors  uint64 `json:"protocol_errors"`
	TransportErrors uint64 `json:"transport_errors"`
}

// NewStreamStats creates stats for the named stream. m may be nil, in which
// case only the in-process counters are kept.
func NewStreamStats(name string, m *Metrics) *StreamStats {
	return &StreamStats{name: name, metrics: m}
}

// Name returns the stream name the stats were created for.
func (s *StreamStats) Name() string { return s.name }

// AddDatagram records one datagram of n bytes.
func (s *StreamStats) AddDatagram(n int) {
	s.datagrams.Add(1)
	s.bytes.Add(uint64(n))
	if s.metrics != nil {
		s.metrics.DatagramsReceived.WithLabelValues(s.name).Inc()
		s.metrics.BytesReceived.WithLabelValues(s.name).Add(float64(n))
	}
}

// AddMessage records one decoded message handed to the render queue.
func (s *StreamStats) AddMessage() {
	s.messages.Add(1)
	if s.metrics != nil {
		s.metrics.MessagesDecoded.WithLabelValues(s.name).Inc()
	}
}

func (s *StreamStats) AddDecodeError() {
	s.decodeErrs.Add(1)
	s.incError(ErrorClassDecode)
}

func (s *StreamStats) AddProtocolError() {
	s.protocolErrs.Add(1)
	s.incError(ErrorClassProtocol)
}

func (s *StreamStats) AddTransportError() {
	s.transportErrs.Add(1)
	s.incError(ErrorClassTransport)
}

func (s *StreamStats) incError(class string) {
	if s.metrics != nil {
		s.metrics.StreamErrors.WithLabelValues(s.name, class).Inc()
	}
}

// Snapshot returns the current counter values.
func (s *StreamStats) Snapshot() StreamSnapshot {
	return StreamSnapshot{
		Name:            s.name,
		Datagrams:       s.datagrams.Load(),
		Bytes:           s.bytes.Load(),
		Messages:        s.messages.Load(),
		DecodeErrors:    s.decodeErrs.Load(),
		ProtocolErrors:  s.protocolErrs.Load(),
		TransportErrors: s.transportErrs.Load(),
	}
}

// Errors returns the total number of dropped messages across all classes.
func (ss StreamSnapshot) Errors() uint64 {
	return ss.DecodeErrors + ss.ProtocolErrors + ss.TransportErrors
}
