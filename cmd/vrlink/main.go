// Command vrlink runs the headset side of the teleoperation link: it
// receives workstation telemetry on six UDP streams, reconciles it into the
// scene, and sends the operator's command snapshot back on a fixed tick.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/banshee-data/vrlink/internal/bridge"
	"github.com/banshee-data/vrlink/internal/config"
	"github.com/banshee-data/vrlink/internal/stream"
	"github.com/banshee-data/vrlink/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON config file (default: "+config.DefaultConfigPath+" if present)")
	replayPath  = flag.String("replay", "", "Replay a pcap capture instead of listening on the network")
	replaySpeed = flag.Float64("replay-speed", 1.0, "Replay pacing multiplier; 0 replays as fast as possible")
	showVersion = flag.Bool("version", false, "Print version and exit")
	monitorAddr = flag.String("monitor", "", "Override monitor_listen (empty string keeps the config value)")
	workstation = flag.String("workstation", "", "Override the workstation destination as host:port")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := bridge.Options{Config: cfg}
	var replay *stream.Replay
	if *replayPath != "" {
		replay = stream.NewReplay(*replaySpeed, nil)
		opts.SocketFactory = replay.SocketFactory()
	}

	b, err := bridge.New(opts)
	if err != nil {
		log.Fatalf("failed to create bridge: %v", err)
	}

	var wg sync.WaitGroup
	if replay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := replay.RunFile(ctx, *replayPath)
			switch {
			case ctx.Err() != nil:
			case err != nil:
				log.Printf("replay failed: %v", err)
			default:
				log.Printf("replay finished; monitor stays up until interrupted")
			}
		}()
	}

	if err := b.Run(ctx); err != nil {
		stop()
		wg.Wait()
		log.Fatalf("bridge stopped: %v", err)
	}
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func loadConfig() (*config.BridgeConfig, error) {
	path := *configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			path = config.DefaultConfigPath
		}
	}
	cfg := config.EmptyBridgeConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadBridgeConfig(path); err != nil {
			return nil, err
		}
		log.Printf("Loaded config from %s", path)
	}

	if *monitorAddr != "" {
		cfg.MonitorListen = monitorAddr
	}
	if *workstation != "" {
		host, portStr, err := net.SplitHostPort(*workstation)
		if err != nil {
			return nil, fmt.Errorf("invalid -workstation %q: %w", *workstation, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid -workstation port %q: %w", portStr, err)
		}
		cfg.WorkstationHost = &host
		cfg.WorkstationPort = &port
	}
	return cfg, cfg.Validate()
}
