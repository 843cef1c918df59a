// Package stream receives one class of telemetry per UDP socket and hands the
// decoded messages to the render queue.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/vrlink/internal/monitoring"
	"github.com/banshee-data/vrlink/internal/wire"
)

// State is a listener's lifecycle position.
type State int32

const (
	StateUnbound State = iota
	StateBound
	StateReceiving
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateReceiving:
		return "receiving"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Enqueuer accepts tasks for the render thread. dispatch.Queue implements it.
type Enqueuer interface {
	Enqueue(task func())
}

// Config describes one stream listener.
type Config struct {
	// Name identifies the stream in logs, metrics and health.
	Name string
	// Address is the host:port to bind.
	Address string
	// RcvBuf is the requested socket receive buffer; 0 leaves the OS default.
	RcvBuf int
	// Chunked selects chunked transfer reassembly instead of one message per
	// datagram.
	Chunked bool
	// MaxTransferBytes caps chunked transfers; 0 uses the wire default.
	MaxTransferBytes int

	Handler       Handler
	Queue         Enqueuer
	Stats         *monitoring.StreamStats
	SocketFactory UDPSocketFactory

	// OnStateChange, if set, is called after every transition.
	OnStateChange func(name string, s State)
}

// Listener owns one UDP socket. A single goroutine reads it in a tight loop, so
// messages from one stream are enqueued in receive order.
type Listener struct {
	cfg   Config
	stats *monitoring.StreamStats
	logf  func(format string, v ...interface{})

	mu    sync.Mutex
	conn  UDPSocket
	state atomic.Int32
}

// NewListener returns an unbound listener.
func NewListener(cfg Config) *Listener {
	if cfg.SocketFactory == nil {
		cfg.SocketFactory = NewRealUDPSocketFactory()
	}
	stats := cfg.Stats
	if stats == nil {
		stats = monitoring.NewStreamStats(cfg.Name, nil)
	}
	return &Listener{
		cfg:   cfg,
		stats: stats,
		logf:  monitoring.Tagged("stream:" + cfg.Name),
	}
}

// Name returns the stream name.
func (l *Listener) Name() string { return l.cfg.Name }

// State returns the current lifecycle state.
func (l *Listener) State() State { return State(l.state.Load()) }

// Stats returns the listener's counters.
func (l *Listener) Stats() *monitoring.StreamStats { return l.stats }

func (l *Listener) setState(s State) {
	l.state.Store(int32(s))
	if l.cfg.OnStateChange != nil {
		l.cfg.OnStateChange(l.cfg.Name, s)
	}
}

// LocalAddr returns the bound address, or nil before Bind.
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Bind opens the socket. Failures are *TransportError.
func (l *Listener) Bind() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.State() != StateUnbound {
		return ErrAlreadyBound
	}
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Address)
	if err != nil {
		return &TransportError{Stream: l.cfg.Name, Op: "resolve", Err: err}
	}
	conn, err := l.cfg.SocketFactory.ListenUDP("udp", addr)
	if err != nil {
		return &TransportError{Stream: l.cfg.Name, Op: "bind", Err: err}
	}
	if l.cfg.RcvBuf > 0 {
		if err := conn.SetReadBuffer(l.cfg.RcvBuf); err != nil {
			l.logf("failed to set receive buffer to %d: %v", l.cfg.RcvBuf, err)
		}
	}
	l.conn = conn
	l.setState(StateBound)
	l.logf("bound %s", conn.LocalAddr())
	return nil
}

// Serve runs the receive loop until the socket is closed, then returns nil.
// Decode, protocol and transient transport errors are logged and counted; they
// never end the loop.
func (l *Listener) Serve() error {
	l.mu.Lock()
	conn := l.conn
	if l.State() == StateClosed {
		l.mu.Unlock()
		return nil
	}
	if conn == nil || l.State() != StateBound {
		l.mu.Unlock()
		return ErrNotBound
	}
	l.setState(StateReceiving)
	l.mu.Unlock()

	src := &socketReader{conn: conn, stats: l.stats}
	var chunks *wire.ChunkedTransferReader
	var buf []byte
	if l.cfg.Chunked {
		chunks = wire.NewChunkedTransferReader(src, l.cfg.MaxTransferBytes)
	} else {
		buf = make([]byte, wire.MaxDatagramSize)
	}

	for {
		var payload []byte
		var err error
		if chunks != nil {
			payload, err = chunks.ReadTransfer()
		} else {
			var n int
			n, err = src.ReadDatagram(buf)
			if err == nil {
				payload = append([]byte(nil), buf[:n]...)
			}
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.setState(StateClosed)
				l.logf("stopped")
				return nil
			}
			l.report(err)
			continue
		}

		task, err := l.cfg.Handler(payload)
		if err != nil {
			l.report(err)
			continue
		}
		l.stats.AddMessage()
		l.cfg.Queue.Enqueue(task)
	}
}

func (l *Listener) report(err error) {
	var de *wire.DecodeError
	var pe *wire.ProtocolError
	switch {
	case errors.As(err, &de):
		l.stats.AddDecodeError()
	case errors.As(err, &pe):
		l.stats.AddProtocolError()
	default:
		l.stats.AddTransportError()
		err = &TransportError{Stream: l.cfg.Name, Op: "read", Err: err}
	}
	l.logf("dropped: %v", err)
}

// Run binds the listener, closes it when ctx ends and serves until then.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.Bind(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()
	return l.Serve()
}

// Close closes the socket, unblocking Serve. It is safe to call more than
// once and before Bind.
func (l *Listener) Close() error {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	if l.State() == StateBound {
		l.setState(StateClosed)
	}
	l.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// socketReader adapts a UDPSocket to wire.DatagramReader and counts traffic.
type socketReader struct {
	conn  UDPSocket
	stats *monitoring.StreamStats
}

func (r *socketReader) ReadDatagram(p []byte) (int, error) {
	n, _, err := r.conn.ReadFromUDP(p)
	if err != nil {
		return 0, err
	}
	r.stats.AddDatagram(n)
	return n, nil
}
