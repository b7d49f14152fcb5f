package main

// rcrelay entrypoint.
//
// Samples a local joystick, listens to the operator websocket, and writes
// control frames to the BLE vehicle until SIGINT/SIGTERM.
//
//	rcrelay [flags] [ip]
//
// Settings come from defaults, then the -c file (or $RCRELAY_CONFIG), then
// RCRELAY_* variables, then the flags below.

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rcrelay/rcrelay/internal/ble"
	"github.com/rcrelay/rcrelay/internal/config"
	"github.com/rcrelay/rcrelay/internal/control"
	"github.com/rcrelay/rcrelay/internal/input"
	"github.com/rcrelay/rcrelay/internal/logging"
	"github.com/rcrelay/rcrelay/internal/netlink"
	"github.com/rcrelay/rcrelay/internal/relay"
	"github.com/rcrelay/rcrelay/internal/supervisor"
)

func main() {
	var (
		configPath  string
		port        int
		frame       string
		backend     string
		device      string
		logLevel    string
		listDevices bool
	)
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.IntVar(&port, "p", 0, "Operator websocket port")
	flag.IntVar(&port, "port", 0, "Operator websocket port")
	flag.StringVar(&frame, "frame", "", "Frame format written to the vehicle: int16le|offset8")
	flag.StringVar(&backend, "backend", "", "Joystick backend: auto|evdev|winmm|joystick|none")
	flag.StringVar(&device, "device", "", "Joystick device id (see -list-devices). If empty, the first one found.")
	flag.StringVar(&logLevel, "log-level", "", "debug|info|warn|error")
	flag.BoolVar(&listDevices, "list-devices", false, "Print joystick devices and their calibration, then exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [ip]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	if ip := flag.Arg(0); ip != "" {
		cfg.Network.Host = ip
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "p", "port":
			cfg.Network.Port = port
		case "frame":
			cfg.BLE.FrameFormat = frame
		case "backend":
			cfg.Input.Backend = backend
		case "device":
			cfg.Input.Device = device
		case "log-level":
			cfg.Log.Level = logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(2)
	}

	if listDevices {
		if err := printDevices(cfg.Input.Backend); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := logging.New(os.Stdout, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger.Logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}
	target, err := cfg.Target()
	if err != nil {
		return err
	}

	platform, err := input.Open(cfg.Input.Backend)
	if err != nil {
		logger.Warn("joystick backend unavailable, relaying network input only", slog.String("error", err.Error()))
		platform = input.Unavailable{Reason: err}
	}
	defer platform.Close()

	samplerOpts := []func(*input.Sampler){input.WithLogger(logger)}
	if cfg.Input.Device != "" {
		samplerOpts = append(samplerOpts, input.WithDevice(input.DeviceID(cfg.Input.Device)))
	}
	sampler := input.NewSampler(platform, samplerOpts...)

	dispatcher := relay.NewDispatcher(cfg.Relay.QueueSize)

	session := ble.NewSession(ble.NewAdapter(ble.NewRadio(), ble.WithLogger(logger)), target)
	receiver := netlink.NewReceiver(cfg.URL(), dispatcher,
		netlink.WithLogger(logger),
		netlink.WithKeepalive(cfg.Network.PingInterval.Duration(), cfg.Network.PongTimeout.Duration()))

	delay := cfg.Relay.ReconnectDelay.Duration()
	links := []*supervisor.Supervisor{
		supervisor.New(session, supervisor.WithLogger(logger), supervisor.WithDelay(delay)),
		supervisor.New(receiver, supervisor.WithLogger(logger), supervisor.WithDelay(delay)),
	}

	logger.Info("relay starting",
		slog.String("ws", cfg.URL()),
		slog.String("vehicle", target.Name),
		slog.String("frame", engineCfg.Frame.String()),
		slog.String("input", platform.Name()))

	engine := relay.NewEngine(engineCfg, sampler, dispatcher, session,
		relay.WithLogger(logger),
		relay.WithNormalizer(cfg.Normalizer()),
		relay.WithLinks(links...))

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printDevices(backend string) error {
	p, err := input.Open(backend)
	if err != nil {
		return err
	}
	defer p.Close()

	ids, err := p.Enumerate()
	if err != nil {
		if errors.Is(err, input.ErrDeviceAbsent) {
			fmt.Printf("no joystick devices (backend=%s)\n", p.Name())
			return nil
		}
		return err
	}
	for _, id := range ids {
		cal, err := p.Capabilities(id)
		if err != nil {
			fmt.Printf("id=%s backend=%s error=%q\n", id, p.Name(), err)
			continue
		}
		fmt.Printf("id=%s backend=%s name=%q buttons=%d\n", id, p.Name(), cal.Name, cal.ButtonCount)
		for i, r := range cal.Axes {
			switch a := control.Axis(i); {
			case !cal.Has(a):
				fmt.Printf("  axis %-2s absent\n", a)
			case r.Valid():
				fmt.Printf("  axis %-2s min=%d max=%d\n", a, r.Min, r.Max)
			}
		}
	}
	return nil
}
