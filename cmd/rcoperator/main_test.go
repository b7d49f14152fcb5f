package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rcrelay/rcrelay/internal/config"
	"github.com/rcrelay/rcrelay/internal/input"
	"github.com/rcrelay/rcrelay/internal/relay"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Operator.Addr = "127.0.0.1:0"
	cfg.Input.Backend = input.BackendNone
	cfg.Input.PollInterval = config.Duration(5 * time.Millisecond)
	return cfg
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestExitLineStopsOperator(t *testing.T) {
	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), testConfig(), strings.NewReader("takeoff\nleft\nexit\n"), discard())
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("operator ignored exit")
	}
}

func TestSignalStopsOperator(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, testConfig(), strings.NewReader(""), discard()) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("operator ignored cancellation")
	}
}

func TestConsoleIgnoresCase(t *testing.T) {
	queue := relay.NewDispatcher(8)
	readConsole(strings.NewReader("Takeoff\n  LEFT \nHello\nExit\nland\n"), queue, discard())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, want := range []string{"takeoff", "left", "Hello"} {
		cmd, err := queue.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if cmd.Keyword != want {
			t.Fatalf("keyword = %q, want %q", cmd.Keyword, want)
		}
	}
	if _, err := queue.Next(ctx); !errors.Is(err, relay.ErrClosed) {
		t.Fatalf("queue not closed by Exit: %v", err)
	}
}
