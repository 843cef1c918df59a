package stream

import (
	"fmt"
	"net"
	"sync"
)

// MemorySocket is an in-process UDPSocket fed with Push. Reads block while the
// queue is empty, like a quiet network socket, until Close.
type MemorySocket struct {
	mu         sync.Mutex
	datagrams  [][]byte
	next       int
	readErrors []error
	readBuffer int
	local      *net.UDPAddr
	source     *net.UDPAddr

	ready     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// NewMemorySocket returns an empty socket reporting the given local port.
func NewMemorySocket(port int) *MemorySocket {
	return &MemorySocket{
		local:  &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port},
		source: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0},
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Push queues datagrams for ReadFromUDP. Each slice is copied.
func (m *MemorySocket) Push(datagrams ...[]byte) {
	m.mu.Lock()
	for _, d := range datagrams {
		m.datagrams = append(m.datagrams, append([]byte(nil), d...))
	}
	m.mu.Unlock()
	m.signal()
}

// FailNextRead makes the next ReadFromUDP return err instead of a datagram.
func (m *MemorySocket) FailNextRead(err error) {
	m.mu.Lock()
	m.readErrors = append(m.readErrors, err)
	m.mu.Unlock()
	m.signal()
}

func (m *MemorySocket) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Pending reports how many datagrams are queued but unread.
func (m *MemorySocket) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.datagrams) - m.next
}

// ReadFromUDP implements UDPSocket.
func (m *MemorySocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	for {
		select {
		case <-m.closed:
			return 0, nil, &net.OpError{Op: "read", Net: "udp", Addr: m.local, Err: net.ErrClosed}
		default:
		}

		m.mu.Lock()
		if len(m.readErrors) > 0 {
			err := m.readErrors[0]
			m.readErrors = m.readErrors[1:]
			m.mu.Unlock()
			return 0, nil, err
		}
		if m.next < len(m.datagrams) {
			d := m.datagrams[m.next]
			m.datagrams[m.next] = nil
			m.next++
			m.compactLocked()
			m.mu.Unlock()
			return copy(b, d), m.source, nil
		}
		m.mu.Unlock()

		select {
		case <-m.closed:
		case <-m.ready:
		}
	}
}

// compactLocked drops the read prefix once it is at least half the queue, so a
// long replay does not hold a slot per datagram ever pushed.
func (m *MemorySocket) compactLocked() {
	if m.next < 64 || m.next*2 < len(m.datagrams) {
		return
	}
	n := copy(m.datagrams, m.datagrams[m.next:])
	clear(m.datagrams[n:])
	m.datagrams = m.datagrams[:n]
	m.next = 0
}

// SetReadBuffer records the requested size.
func (m *MemorySocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	m.readBuffer = bytes
	m.mu.Unlock()
	return nil
}

// ReadBuffer returns the size recorded by SetReadBuffer.
func (m *MemorySocket) ReadBuffer() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBuffer
}

// Close unblocks pending reads. It is safe to call more than once.
func (m *MemorySocket) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

// Closed reports whether Close has been called.
func (m *MemorySocket) Closed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// LocalAddr implements UDPSocket.
func (m *MemorySocket) LocalAddr() net.Addr { return m.local }

// MemorySocketFactory hands out one MemorySocket per port, creating it on
// first use so datagrams can be pushed before or after a listener binds.
type MemorySocketFactory struct {
	mu      sync.Mutex
	sockets map[int]*MemorySocket
	binds   []int

	// Err, when set, is returned by every ListenUDP call.
	Err error
}

// NewMemorySocketFactory returns an empty factory.
func NewMemorySocketFactory() *MemorySocketFactory {
	return &MemorySocketFactory{sockets: make(map[int]*MemorySocket)}
}

// Socket returns the socket for port, creating it if needed.
func (f *MemorySocketFactory) Socket(port int) *MemorySocket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.socketLocked(port)
}

func (f *MemorySocketFactory) socketLocked(port int) *MemorySocket {
	s, ok := f.sockets[port]
	if !ok {
		s = NewMemorySocket(port)
		f.sockets[port] = s
	}
	return s
}

// Binds lists the ports passed to ListenUDP, in call order.
func (f *MemorySocketFactory) Binds() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.binds...)
}

// ListenUDP implements UDPSocketFactory.
func (f *MemorySocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if laddr == nil {
		return nil, fmt.Errorf("memory socket needs a local address")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binds = append(f.binds, laddr.Port)
	return f.socketLocked(laddr.Port), nil
}
