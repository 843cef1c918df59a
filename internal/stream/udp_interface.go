package stream

import "net"

// UDPSocket is the subset of *net.UDPConn a listener needs. The abstraction
// lets tests and pcap replay feed datagrams without a real network.
//
// ReadFromUDP must block until a datagram arrives and must return an error
// wrapping net.ErrClosed once Close has been called.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory creates sockets for listeners.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory opens operating system sockets with net.ListenUDP.
type RealUDPSocketFactory struct{}

// NewRealUDPSocketFactory returns the default socket factory.
func NewRealUDPSocketFactory() *RealUDPSocketFactory {
	return &RealUDPSocketFactory{}
}

// ListenUDP binds a UDP socket. *net.UDPConn already satisfies UDPSocket.
func (f *RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
