package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/vrlink/internal/monitoring"
	"github.com/banshee-data/vrlink/internal/timeutil"
)

// Replay feeds the UDP payloads of a packet capture into memory sockets keyed
// by destination port. Listeners bound through SocketFactory receive them as
// if they had arrived on the network, so the whole pipeline can run against a
// recorded session.
type Replay struct {
	sockets *MemorySocketFactory
	clock   timeutil.Clock
	speed   float64
	logf    func(format string, v ...interface{})
}

// NewReplay returns a replay paced at speed times the captured rate. A speed
// of 0 or less replays as fast as possible.
func NewReplay(speed float64, clock timeutil.Clock) *Replay {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Replay{
		sockets: NewMemorySocketFactory(),
		clock:   clock,
		speed:   speed,
		logf:    monitoring.Tagged("replay"),
	}
}

// SocketFactory returns the factory listeners must bind through.
func (r *Replay) SocketFactory() *MemorySocketFactory { return r.sockets }

// RunFile replays a pcap file. See Feed.
func (r *Replay) RunFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open capture %s: %w", path, err)
	}
	defer f.Close()
	n, err := r.Feed(ctx, f)
	if err != nil {
		return fmt.Errorf("replay %s: %w", path, err)
	}
	r.logf("capture %s complete: %d datagrams", path, n)
	return nil
}

// Feed reads a pcap stream and pushes every UDP payload to the socket for its
// destination port. It returns the number of datagrams delivered. Sockets are
// left open once the capture is exhausted; listeners stop when closed.
func (r *Replay) Feed(ctx context.Context, src io.Reader) (int, error) {
	rd, err := pcapgo.NewReader(src)
	if err != nil {
		return 0, fmt.Errorf("read pcap header: %w", err)
	}

	var (
		delivered int
		first     time.Time
		start     time.Time
	)
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		data, ci, err := rd.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return delivered, nil
		}
		if err != nil {
			return delivered, fmt.Errorf("read packet %d: %w", delivered, err)
		}

		packet := gopacket.NewPacket(data, rd.LinkType(), gopacket.NoCopy)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}

		if r.speed > 0 {
			if first.IsZero() {
				first, start = ci.Timestamp, r.clock.Now()
			}
			due := start.Add(time.Duration(float64(ci.Timestamp.Sub(first)) / r.speed))
			if wait := r.clock.Until(due); wait > 0 {
				select {
				case <-ctx.Done():
					return delivered, ctx.Err()
				case <-r.clock.After(wait):
				}
			}
		}

		r.sockets.Socket(int(udp.DstPort)).Push(udp.Payload)
		delivered++
	}
}
