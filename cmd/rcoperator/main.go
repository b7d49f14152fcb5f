package main

// rcoperator entrypoint.
//
// Serves the operator websocket that relays dial. Every line typed on stdin
// is pushed to all connected relays ("exit" shuts down); a local joystick, if
// present, contributes left/right/forward/backward keywords each poll.

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcrelay/rcrelay/internal/config"
	"github.com/rcrelay/rcrelay/internal/control"
	"github.com/rcrelay/rcrelay/internal/input"
	"github.com/rcrelay/rcrelay/internal/logging"
	"github.com/rcrelay/rcrelay/internal/netlink"
	"github.com/rcrelay/rcrelay/internal/relay"
)

const exitCommand = "exit"

func main() {
	var (
		configPath string
		addr       string
		backend    string
		logLevel   string
	)
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&addr, "addr", "", "Listen address (default from config, :5000)")
	flag.StringVar(&backend, "backend", "", "Joystick backend: auto|evdev|winmm|joystick|none")
	flag.StringVar(&logLevel, "log-level", "", "debug|info|warn|error")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Operator.Addr = addr
		case "backend":
			cfg.Input.Backend = backend
		case "log-level":
			cfg.Log.Level = logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(2)
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

	if err := run(ctx, cfg, os.Stdin, logger.Logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, console io.Reader, logger *slog.Logger) error {
	queue := relay.NewDispatcher(cfg.Relay.QueueSize)
	srv := netlink.NewServer(cfg.Network.Path,
		netlink.WithServerLogger(logger),
		netlink.WithServerKeepalive(cfg.Network.PingInterval.Duration(), cfg.Network.PongTimeout.Duration()))

	httpSrv := &http.Server{
		Addr:              cfg.Operator.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	platform, err := input.Open(cfg.Input.Backend)
	if err != nil {
		platform = input.Unavailable{Reason: err}
	}
	defer platform.Close()
	sampler := input.NewSampler(platform, input.WithLogger(logger))

	// Closing the queue is the single shutdown trigger: a signal or "exit".
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			queue.Close()
		case <-stopped:
		}
	}()
	go readConsole(console, queue, logger)

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()

	var g errgroup.Group
	g.Go(func() error {
		logger.Info("operator listening", slog.String("addr", cfg.Operator.Addr), slog.String("path", cfg.Network.Path))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			queue.Close()
			return err
		}
		return nil
	})
	g.Go(func() error {
		pollDirections(pollCtx, sampler, cfg.NeutralBand(), cfg.Input.PollInterval.Duration(), cfg.Input.RescanInterval.Duration(), queue, logger)
		return nil
	})
	g.Go(func() error {
		err := srv.Pump(context.WithoutCancel(ctx), queue)
		stopPolling()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		return err
	})
	return g.Wait()
}

// readConsole queues each stdin line until "exit", which closes the queue.
// "exit" and the keywords match in any case; other lines pass through as
// typed. EOF only stops reading, so the operator can run detached.
func readConsole(r io.Reader, queue *relay.Dispatcher, logger *slog.Logger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, exitCommand) {
			logger.Info("exit requested")
			queue.Close()
			return
		}
		if kw := strings.ToLower(line); control.IsKeyword(kw) {
			line = kw
		}
		if err := queue.Post(control.Command{Source: control.SourceConsole, Keyword: line}); err != nil {
			return
		}
	}
}

func pollDirections(ctx context.Context, sampler *input.Sampler, band control.NeutralBand, every, rescanEvery time.Duration, queue *relay.Dispatcher, logger *slog.Logger) {
	poll := time.NewTicker(every)
	defer poll.Stop()
	rescan := time.NewTicker(rescanEvery)
	defer rescan.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rescan.C:
			if sampler.Detached() {
				sampler.Rescan()
			}
		case <-poll.C:
			r, err := sampler.Poll()
			if err != nil {
				continue
			}
			for _, dir := range control.Directions(r.Sample, r.Calibration, band) {
				logger.Debug("joystick", slog.String("direction", dir))
				if err := queue.Post(control.Command{Source: control.SourceLocal, Keyword: dir}); err != nil {
					return
				}
			}
		}
	}
}
