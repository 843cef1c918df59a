package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySocket_CompactsReadPrefix(t *testing.T) {
	m := NewMemorySocket(10001)
	buf := make([]byte, 8)
	want := byte(0)
	for round := 0; round < 20; round++ {
		for i := 0; i < 50; i++ {
			m.Push([]byte{byte(round*50 + i)})
		}
		for i := 0; i < 50; i++ {
			n, _, err := m.ReadFromUDP(buf)
			require.NoError(t, err)
			require.Equal(t, 1, n)
			require.Equal(t, want, buf[0], "datagram out of order")
			want++
		}
	}

	m.mu.Lock()
	held, next := len(m.datagrams), m.next
	m.mu.Unlock()
	assert.Less(t, held, 128, "read datagrams are still held")
	assert.LessOrEqual(t, next, held)
	assert.Equal(t, 0, m.Pending())
}

func TestMemorySocket_CompactKeepsUnread(t *testing.T) {
	m := NewMemorySocket(10001)
	for i := 0; i < 100; i++ {
		m.Push([]byte{byte(i)})
	}
	buf := make([]byte, 8)
	for i := 0; i < 70; i++ {
		_, _, err := m.ReadFromUDP(buf)
		require.NoError(t, err)
	}
	assert.Equal(t, 30, m.Pending())

	_, _, err := m.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, byte(70), buf[0])
	assert.Equal(t, 29, m.Pending())
}
