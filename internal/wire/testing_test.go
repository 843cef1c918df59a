package wire

import "io"

// datagramSource replays a fixed list of datagrams and then reports io.EOF.
type datagramSource struct {
	datagrams [][]byte
	next      int
}

func (s *datagramSource) ReadDatagram(p []byte) (int, error) {
	if s.next >= len(s.datagrams) {
		return 0, io.EOF
	}
	n := copy(p, s.datagrams[s.next])
	s.next++
	return n, nil
}

// datagramRecorder captures each Write as a separate datagram.
type datagramRecorder struct {
	datagrams [][]byte
}

func (r *datagramRecorder) Write(p []byte) (int, error) {
	r.datagrams = append(r.datagrams, append([]byte(nil), p...))
	return len(p), nil
}
