// Package outbound sends the operator's command snapshot to the workstation
// on a fixed tick.
package outbound

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/banshee-data/vrlink/internal/monitoring"
	"github.com/banshee-data/vrlink/internal/timeutil"
	"github.com/banshee-data/vrlink/internal/wire"
)

// ErrNoSnapshot is returned by SendOnce before anything has been published.
var ErrNoSnapshot = errors.New("outbound: no snapshot published")

// Sender transmits the most recently published snapshot once per tick. There
// is no backlog: a snapshot published twice between ticks is sent once, and a
// failed send is not retried.
type Sender struct {
	transport Transport
	clock     timeutil.Clock
	interval  time.Duration
	metrics   *monitoring.Metrics
	logf      func(format string, v ...interface{})

	latest  atomic.Pointer[wire.CommandMessage]
	sent    atomic.Uint64
	failed  atomic.Uint64
	failing bool
}

// NewSender returns a sender ticking rateHz times per second.
func NewSender(t Transport, rateHz float64, clock timeutil.Clock, metrics *monitoring.Metrics) *Sender {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if rateHz <= 0 {
		rateHz = 30
	}
	return &Sender{
		transport: t,
		clock:     clock,
		interval:  time.Duration(float64(time.Second) / rateHz),
		metrics:   metrics,
		logf:      monitoring.Tagged("outbound"),
	}
}

// Publish replaces the snapshot. msg must not be modified afterwards.
func (s *Sender) Publish(msg *wire.CommandMessage) {
	s.latest.Store(msg)
}

// Latest returns the current snapshot, or nil.
func (s *Sender) Latest() *wire.CommandMessage { return s.latest.Load() }

// Stats returns the number of sent and failed messages.
func (s *Sender) Stats() (sent, failed uint64) {
	return s.sent.Load(), s.failed.Load()
}

// SendOnce encodes and sends the current snapshot. It must not run
// concurrently with Run.
func (s *Sender) SendOnce(ctx context.Context) error {
	msg := s.latest.Load()
	if msg == nil {
		return ErrNoSnapshot
	}
	payload, err := wire.Encode(msg)
	if err == nil {
		err = s.transport.Send(ctx, payload)
	}
	if err != nil {
		s.failed.Add(1)
		if s.metrics != nil {
			s.metrics.OutboundFailed.Inc()
		}
		if !s.failing {
			s.logf("send to %s failing: %v", s.transport, err)
			s.failing = true
		}
		return err
	}
	s.sent.Add(1)
	if s.metrics != nil {
		s.metrics.OutboundSent.Inc()
	}
	if s.failing {
		s.logf("send to %s recovered", s.transport)
		s.failing = false
	}
	return nil
}

// Run sends on every tick until ctx is done. Send errors are logged, not
// returned.
func (s *Sender) Run(ctx context.Context) error {
	s.logf("sending to %s every %v", s.transport, s.interval)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.SendOnce(ctx)
		}
	}
}
