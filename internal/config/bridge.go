package config

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrlink/internal/scene"
	"github.com/banshee-data/vrlink/internal/trajectory"
	"github.com/banshee-data/vrlink/internal/wire"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/vrlink.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Outbound transport names.
const (
	TransportUDP  = "udp"
	TransportHTTP = "http"
)

// Stream names, in the order ports are listed in the config.
const (
	StreamPose       = "pose"
	StreamArrow      = "arrow"
	StreamLog        = "log"
	StreamImage      = "image"
	StreamForce      = "force"
	StreamTrajectory = "trajectory"
)

// Alignment is the rigid transform from the headset's space into the
// aligned reference space. Rotation is ordered w, x, y, z.
type Alignment struct {
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"`
}

// BridgeConfig is the root configuration for the bridge process. Every
// field is optional; the Get* accessors supply defaults for omitted ones.
type BridgeConfig struct {
	// Inbound streams
	BindAddress    *string `json:"bind_address,omitempty"`
	PosePort       *int    `json:"pose_port,omitempty"`
	ArrowPort      *int    `json:"arrow_port,omitempty"`
	LogPort        *int    `json:"log_port,omitempty"`
	ImagePort      *int    `json:"image_port,omitempty"`
	ForcePort      *int    `json:"force_port,omitempty"`
	TrajectoryPort *int    `json:"trajectory_port,omitempty"`
	RcvBuf         *int    `json:"rcv_buf,omitempty"`
	MaxImageBytes  *int    `json:"max_image_bytes,omitempty"`

	// Outbound
	WorkstationHost   *string  `json:"workstation_host,omitempty"`
	WorkstationPort   *int     `json:"workstation_port,omitempty"`
	OutboundTransport *string  `json:"outbound_transport,omitempty"`
	SendRateHz        *float64 `json:"send_rate_hz,omitempty"`

	// Rendering
	RenderRateHz   *float64   `json:"render_rate_hz,omitempty"`
	VisualMode     *string    `json:"visual_mode,omitempty"`
	VisualSpace    *string    `json:"visual_space,omitempty"`
	PoolWarmPoints *int       `json:"pool_warm_points,omitempty"`
	PointSize      *float64   `json:"point_size,omitempty"`
	AxisLength     *float64   `json:"axis_length,omitempty"`
	LineWidth      *float64   `json:"line_width,omitempty"`
	Alignment      *Alignment `json:"alignment,omitempty"`

	// Operator surfaces
	MonitorListen *string `json:"monitor_listen,omitempty"`
	HealthListen  *string `json:"health_listen,omitempty"`
	LogInterval   *string `json:"log_interval,omitempty"` // duration string like "10s"
}

// EmptyBridgeConfig returns a BridgeConfig with every field unset.
func EmptyBridgeConfig() *BridgeConfig {
	return &BridgeConfig{}
}

// LoadBridgeConfig loads a BridgeConfig from a JSON file. The file must
// have a .json extension and be under 1MB. Omitted fields keep their
// defaults, so partial configs are safe.
func LoadBridgeConfig(path string) (*BridgeConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyBridgeConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching from the
// current directory up towards the repository root. Panics if the file
// cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *BridgeConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/telemetry-sim/
	}
	for _, path := range candidates {
		if cfg, err := LoadBridgeConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *BridgeConfig) Validate() error {
	ports := map[int]string{}
	for _, sp := range c.StreamPorts() {
		if sp.Port < 1 || sp.Port > 65535 {
			return fmt.Errorf("%s_port must be between 1 and 65535, got %d", sp.Name, sp.Port)
		}
		if other, dup := ports[sp.Port]; dup {
			return fmt.Errorf("%s_port and %s_port are both %d", other, sp.Name, sp.Port)
		}
		ports[sp.Port] = sp.Name
	}
	if c.WorkstationPort != nil && (*c.WorkstationPort < 1 || *c.WorkstationPort > 65535) {
		return fmt.Errorf("workstation_port must be between 1 and 65535, got %d", *c.WorkstationPort)
	}
	if c.RcvBuf != nil && *c.RcvBuf < 0 {
		return fmt.Errorf("rcv_buf must be non-negative, got %d", *c.RcvBuf)
	}
	if c.MaxImageBytes != nil && *c.MaxImageBytes <= 0 {
		return fmt.Errorf("max_image_bytes must be positive, got %d", *c.MaxImageBytes)
	}
	switch t := c.GetOutboundTransport(); t {
	case TransportUDP, TransportHTTP:
	default:
		return fmt.Errorf("outbound_transport must be %q or %q, got %q", TransportUDP, TransportHTTP, t)
	}
	if c.SendRateHz != nil && *c.SendRateHz <= 0 {
		return fmt.Errorf("send_rate_hz must be positive, got %f", *c.SendRateHz)
	}
	if c.RenderRateHz != nil && *c.RenderRateHz <= 0 {
		return fmt.Errorf("render_rate_hz must be positive, got %f", *c.RenderRateHz)
	}
	if c.VisualMode != nil {
		if _, err := trajectory.ParseMode(*c.VisualMode); err != nil {
			return fmt.Errorf("visual_mode: %w", err)
		}
	}
	if c.VisualSpace != nil {
		if _, err := trajectory.ParseSpace(*c.VisualSpace); err != nil {
			return fmt.Errorf("visual_space: %w", err)
		}
	}
	if c.PoolWarmPoints != nil && *c.PoolWarmPoints < 0 {
		return fmt.Errorf("pool_warm_points must be non-negative, got %d", *c.PoolWarmPoints)
	}
	for name, v := range map[string]*float64{"point_size": c.PointSize, "axis_length": c.AxisLength, "line_width": c.LineWidth} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	if c.Alignment != nil {
		r := c.Alignment.Rotation
		if math.Sqrt(r[0]*r[0]+r[1]*r[1]+r[2]*r[2]+r[3]*r[3]) < 1e-9 {
			return fmt.Errorf("alignment.rotation must be a non-zero quaternion")
		}
	}
	if c.LogInterval != nil && *c.LogInterval != "" {
		if _, err := time.ParseDuration(*c.LogInterval); err != nil {
			return fmt.Errorf("invalid log_interval '%s': %w", *c.LogInterval, err)
		}
	}
	return nil
}

// StreamPort names one inbound stream's port.
type StreamPort struct {
	Name string
	Port int
}

// StreamPorts lists every inbound stream with its resolved port.
func (c *BridgeConfig) StreamPorts() []StreamPort {
	return []StreamPort{
		{StreamPose, intOr(c.PosePort, 10001)},
		{StreamArrow, intOr(c.ArrowPort, 10002)},
		{StreamLog, intOr(c.LogPort, 10003)},
		{StreamImage, intOr(c.ImagePort, 10004)},
		{StreamForce, intOr(c.ForcePort, 10005)},
		{StreamTrajectory, intOr(c.TrajectoryPort, 10006)},
	}
}

// StreamAddress returns the listen address for a stream port.
func (c *BridgeConfig) StreamAddress(port int) string {
	return net.JoinHostPort(c.GetBindAddress(), strconv.Itoa(port))
}

// GetBindAddress returns the inbound bind address, all interfaces by default.
func (c *BridgeConfig) GetBindAddress() string {
	if c.BindAddress == nil {
		return ""
	}
	return *c.BindAddress
}

// GetRcvBuf returns the socket receive buffer size. Zero leaves the OS default.
func (c *BridgeConfig) GetRcvBuf() int {
	return intOr(c.RcvBuf, 4<<20)
}

// GetMaxImageBytes returns the cap on a chunked transfer's total length.
func (c *BridgeConfig) GetMaxImageBytes() int {
	return intOr(c.MaxImageBytes, wire.DefaultMaxTransferBytes)
}

// GetWorkstationHost returns the outbound destination host.
func (c *BridgeConfig) GetWorkstationHost() string {
	if c.WorkstationHost == nil || *c.WorkstationHost == "" {
		return "127.0.0.1"
	}
	return *c.WorkstationHost
}

// GetWorkstationPort returns the outbound destination port.
func (c *BridgeConfig) GetWorkstationPort() int {
	return intOr(c.WorkstationPort, 8000)
}

// GetOutboundTransport returns "udp" or "http".
func (c *BridgeConfig) GetOutboundTransport() string {
	if c.OutboundTransport == nil || *c.OutboundTransport == "" {
		return TransportUDP
	}
	return *c.OutboundTransport
}

// GetSendRateHz returns the outbound tick rate.
func (c *BridgeConfig) GetSendRateHz() float64 {
	return floatOr(c.SendRateHz, 30)
}

// GetRenderRateHz returns the render loop tick rate.
func (c *BridgeConfig) GetRenderRateHz() float64 {
	return floatOr(c.RenderRateHz, 72)
}

// GetVisualMode returns the reconciler's slot strategy.
func (c *BridgeConfig) GetVisualMode() trajectory.Mode {
	if c.VisualMode == nil {
		return trajectory.ModePooled
	}
	m, err := trajectory.ParseMode(*c.VisualMode)
	if err != nil {
		return trajectory.ModePooled
	}
	return m
}

// GetVisualSpace returns the space trajectory points are drawn in.
func (c *BridgeConfig) GetVisualSpace() trajectory.Space {
	if c.VisualSpace == nil {
		return trajectory.SpaceLocal
	}
	s, err := trajectory.ParseSpace(*c.VisualSpace)
	if err != nil {
		return trajectory.SpaceLocal
	}
	return s
}

// GetPoolWarmPoints returns how many point slots to create up front.
func (c *BridgeConfig) GetPoolWarmPoints() int {
	return intOr(c.PoolWarmPoints, 32)
}

// GetPointSize returns the point sphere diameter in metres.
func (c *BridgeConfig) GetPointSize() float64 {
	return floatOr(c.PointSize, 0.02)
}

// GetAxisLength returns the per-point axis length in metres.
func (c *BridgeConfig) GetAxisLength() float64 {
	return floatOr(c.AxisLength, 0.1)
}

// GetLineWidth returns the connecting line width in metres.
func (c *BridgeConfig) GetLineWidth() float64 {
	return floatOr(c.LineWidth, 0.005)
}

// GetAlignment returns the headset-to-reference transform, identity when unset.
func (c *BridgeConfig) GetAlignment() scene.CoordinateTransform {
	if c.Alignment == nil {
		return scene.Identity{}
	}
	p, r := c.Alignment.Position, c.Alignment.Rotation
	return scene.NewRigid(
		r3.Vec{X: p[0], Y: p[1], Z: p[2]},
		quat.Number{Real: r[0], Imag: r[1], Jmag: r[2], Kmag: r[3]},
	)
}

// GetMonitorListen returns the monitor HTTP listen address. Empty disables it.
func (c *BridgeConfig) GetMonitorListen() string {
	if c.MonitorListen == nil {
		return ":8090"
	}
	return *c.MonitorListen
}

// GetHealthListen returns the gRPC health listen address. Empty disables it.
func (c *BridgeConfig) GetHealthListen() string {
	if c.HealthListen == nil {
		return ":50061"
	}
	return *c.HealthListen
}

// GetLogInterval returns how often per-stream stats are logged.
func (c *BridgeConfig) GetLogInterval() time.Duration {
	if c.LogInterval == nil || *c.LogInterval == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(*c.LogInterval)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
