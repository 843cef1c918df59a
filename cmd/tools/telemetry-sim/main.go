// Command telemetry-sim plays the workstation side of the link: it sends
// synthetic trajectory, pose, tactile, force, log and image traffic to a
// vrlink bridge and prints the command snapshots it sends back.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/banshee-data/vrlink/internal/config"
	"github.com/banshee-data/vrlink/internal/wire"
)

func main() {
	host := flag.String("host", "127.0.0.1", "bridge host")
	cfgPath := flag.String("config", "", "bridge config to read stream ports from (defaults otherwise)")
	rate := flag.Float64("rate", 10, "frames per second")
	frames := flag.Int("n", 0, "number of frames to send (0 = until interrupted)")
	points := flag.Int("points", 16, "trajectory points per frame")
	chunk := flag.Int("chunk", 1400, "image chunk size in bytes")
	listen := flag.String("listen", ":8000", "address to receive command snapshots on (empty disables)")
	flag.Parse()

	cfg := config.EmptyBridgeConfig()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.LoadBridgeConfig(*cfgPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conns := map[string]*net.UDPConn{}
	for _, sp := range cfg.StreamPorts() {
		raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(*host, strconv.Itoa(sp.Port)))
		if err != nil {
			log.Fatalf("resolve %s: %v", sp.Name, err)
		}
		conn, err := net.DialUDP("udp", nil, raddr)
		if err != nil {
			log.Fatalf("dial %s: %v", sp.Name, err)
		}
		defer conn.Close()
		conns[sp.Name] = conn
	}

	if *listen != "" {
		go receiveCommands(ctx, *listen)
	}

	sim := &simulator{conns: conns, points: *points, chunk: *chunk}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / *rate))
	defer ticker.Stop()
	start := time.Now()
	for i := 0; *frames == 0 || i < *frames; i++ {
		if err := sim.step(i, time.Since(start).Seconds()); err != nil {
			log.Printf("frame %d: %v", i, err)
		}
		if (i+1)%50 == 0 {
			log.Printf("%d frames sent", i+1)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	log.Printf("✓ Sent %d frames", *frames)
}

type simulator struct {
	conns  map[string]*net.UDPConn
	points int
	chunk  int
}

func (s *simulator) send(stream string, msg wire.Message) error {
	b, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	_, err = s.conns[stream].Write(b)
	return err
}

// step sends one frame's worth of traffic. Images and log lines are sent
// less often than the pose streams.
func (s *simulator) step(i int, t float64) error {
	if err := s.send(config.StreamTrajectory, helix(s.points, t)); err != nil {
		return fmt.Errorf("trajectory: %w", err)
	}

	sway := float32(0.05 * math.Sin(t))
	if err := s.send(config.StreamPose, &wire.PoseMessage{
		LeftRobotTCP:      []float32{-0.3, 1.0 + sway, 0.4, 1, 0, 0, 0},
		RightRobotTCP:     []float32{0.3, 1.0 - sway, 0.4, 1, 0, 0, 0},
		LeftGripperState:  []float32{float32(0.5 + 0.5*math.Sin(t))},
		RightGripperState: []float32{float32(0.5 + 0.5*math.Cos(t))},
	}); err != nil {
		return fmt.Errorf("pose: %w", err)
	}

	for _, dev := range []string{"tactile1", "tactile2"} {
		if err := s.send(config.StreamArrow, tactile(dev, t)); err != nil {
			return fmt.Errorf("arrows: %w", err)
		}
	}
	for _, side := range []string{"left", "right"} {
		f := float32(0.1 + 0.05*math.Sin(t))
		if err := s.send(config.StreamForce, &wire.ForceMessage{
			DeviceID: side,
			Arrow:    wire.Arrow{Start: []float32{0, 0, 0}, End: []float32{0, f, 0}},
			Scale:    []float32{0.02, 1, 0.01},
		}); err != nil {
			return fmt.Errorf("force: %w", err)
		}
	}

	if i%10 == 0 {
		if err := s.send(config.StreamLog, &wire.LogMessage{Text: fmt.Sprintf("sim frame %d at %.1fs", i, t)}); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}
	if i%50 == 0 {
		payload, err := wire.Encode(cameraImages(i))
		if err != nil {
			return fmt.Errorf("image: %w", err)
		}
		if err := wire.WriteChunked(s.conns[config.StreamImage], payload, s.chunk); err != nil {
			return fmt.Errorf("image: %w", err)
		}
	}
	return nil
}

func helix(n int, t float64) *wire.TrajectoryFrame {
	frame := &wire.TrajectoryFrame{Timestamp: float32(t)}
	for i := 0; i < n; i++ {
		a := t + float64(i)*0.3
		frame.Points = append(frame.Points, wire.TrajectoryPoint{
			X:   float32(0.2 * math.Cos(a)),
			Y:   float32(0.02 * float64(i)),
			Z:   float32(0.4 + 0.2*math.Sin(a)),
			Yaw: float32(math.Mod(a*180/math.Pi, 360)),
		})
	}
	return frame
}

func tactile(device string, t float64) *wire.SensorMessage {
	m := &wire.SensorMessage{DeviceID: device, Scale: []float32{0.004, 1, 0.002}}
	for i := 0; i < 9; i++ {
		x, y := float32(i%3)*0.01, float32(i/3)*0.01
		d := float32(0.1 * math.Abs(math.Sin(t+float64(i))))
		m.Arrows = append(m.Arrows, wire.Arrow{Start: []float32{x, y, 0}, End: []float32{x, y, d}})
	}
	return m
}

func cameraImages(i int) *wire.ImageMessage {
	msg := &wire.ImageMessage{}
	for eye, right := range []bool{false, true} {
		msg.Images = append(msg.Images, wire.Image{
			ID:          fmt.Sprintf("head_cam_%d", eye),
			InHeadSpace: true,
			LeftOrRight: right,
			Position:    []float32{0, 0, 1},
			Rotation:    []float32{0, 0, 0},
			Scale:       []float32{0.64, 0.48, 1},
			Image:       gradientPNG(160, 120, uint8(i)),
		})
	}
	return msg
}

func gradientPNG(w, h int, shift uint8) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x) + shift, G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func receiveCommands(ctx context.Context, addr string) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		log.Printf("command listener disabled: %v", err)
		return
	}
	context.AfterFunc(ctx, func() { pc.Close() })
	buf := make([]byte, wire.MaxDatagramSize)
	var n int
	for {
		size, _, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		msg, err := wire.Decode[wire.CommandMessage](buf[:size])
		if err != nil {
			log.Printf("bad command: %v", err)
			continue
		}
		n++
		if n%30 == 1 {
			log.Printf("command #%d t=%.2f selected=%d editing=%v", n, msg.Timestamp,
				msg.TrajectoryEdit.SelectedPointIndex, msg.TrajectoryEdit.IsEditing)
		}
	}
}
