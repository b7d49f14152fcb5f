// Package supervisor keeps a link alive: discover, connect, run until it
// breaks, wait a fixed delay, try again. It never gives up on its own; only
// cancelling the context stops it.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultDelay is the fixed wait between a failure and the next attempt.
const DefaultDelay = 5 * time.Second

// ErrLinkClosed can be returned by Link.Run when the peer closed cleanly; it
// is still followed by a backoff and reconnect.
var ErrLinkClosed = errors.New("link closed")

// Link is one reconnectable transport.
type Link interface {
	Name() string
	// Connect performs discovery and connection. It returns when the link
	// is usable or the attempt failed.
	Connect(ctx context.Context) error
	// Run serves a connected link and returns when it breaks or ctx ends.
	Run(ctx context.Context) error
	// Close releases the connection. It is called after every Run and
	// after a failed Connect.
	Close() error
}

// WithLogger sets the logger for the supervisor
func WithLogger(logger *slog.Logger) func(s *Supervisor) {
	return func(s *Supervisor) {
		s.logger = logger.With(slog.String("component", "supervisor"), slog.String("link", s.link.Name()))
	}
}

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) func(s *Supervisor) {
	return func(s *Supervisor) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithObserver registers fn to be called, in order, on every state change.
// fn runs on the supervisor goroutine and must not block.
func WithObserver(fn func(Status)) func(s *Supervisor) {
	return func(s *Supervisor) {
		s.observers = append(s.observers, fn)
	}
}

// Supervisor owns the Status of exactly one Link.
type Supervisor struct {
	link  Link
	delay time.Duration

	mu     sync.RWMutex
	status Status

	observers []func(Status)
	logger    *slog.Logger
}

func New(link Link, options ...func(s *Supervisor)) *Supervisor {
	s := &Supervisor{
		link:   link,
		delay:  DefaultDelay,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Status returns the current state. Safe for concurrent use.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Supervisor) Name() string { return s.link.Name() }

func (s *Supervisor) set(state State, err error) {
	s.mu.Lock()
	s.status = Status{State: state, Err: err}
	st := s.status
	s.mu.Unlock()

	for _, fn := range s.observers {
		fn(st)
	}
}

// Run supervises the link until ctx is cancelled. It always returns nil
// after reaching Stopped; failures are logged, not returned.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.set(Stopped, nil)

	var lastErr error
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.set(Discovering, lastErr)
		if err := s.link.Connect(ctx); err != nil {
			_ = s.link.Close()
			if ctx.Err() != nil {
				return nil
			}
			lastErr = fmt.Errorf("connect: %w", err)
			s.logger.Warn("connect failed", slog.String("error", err.Error()), slog.Duration("retry", s.delay))
			if !s.backoff(ctx, lastErr) {
				return nil
			}
			continue
		}

		lastErr = nil
		s.set(Connected, nil)
		s.logger.Info("link connected")

		err := s.link.Run(ctx)
		_ = s.link.Close()
		if ctx.Err() != nil {
			s.logger.Info("link closed on shutdown")
			return nil
		}
		if err == nil {
			err = ErrLinkClosed
		}
		lastErr = err
		s.logger.Warn("link failed", slog.String("error", err.Error()), slog.Duration("retry", s.delay))
		if !s.backoff(ctx, lastErr) {
			return nil
		}
	}
}

func (s *Supervisor) backoff(ctx context.Context, err error) bool {
	s.set(BackoffWait, err)
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
