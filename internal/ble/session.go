package ble

import (
	"context"
	"sync"
	"sync/atomic"
)

// Session binds an Adapter to one Target so a supervisor can manage it.
// Send may be called from the relay send loop at any time; when the link is
// down it fails fast with ErrDisconnected.
type Session struct {
	adapter *Adapter
	target  Target

	mu     sync.Mutex
	link   *Link
	failed chan error

	sent atomic.Uint64
}

func NewSession(a *Adapter, t Target) *Session {
	return &Session{adapter: a, target: t}
}

func (s *Session) Name() string { return "ble:" + s.target.Name }

func (s *Session) Connect(ctx context.Context) error {
	link, err := s.adapter.Connect(ctx, s.target)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.link = link
	s.failed = make(chan error, 1)
	s.mu.Unlock()
	return nil
}

// Run blocks until a Send fails or ctx ends.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	failed := s.failed
	s.mu.Unlock()
	if failed == nil {
		return ErrDisconnected
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-failed:
		return err
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	link := s.link
	s.link = nil
	s.failed = nil
	s.mu.Unlock()
	s.adapter.Disconnect(link)
	return nil
}

// Send writes one payload on the current link. Write failures are handed to
// Run so the supervisor backs off and reconnects.
func (s *Session) Send(payload []byte) error {
	s.mu.Lock()
	link, failed := s.link, s.failed
	s.mu.Unlock()
	if link == nil {
		return ErrDisconnected
	}

	if err := s.adapter.Send(link, payload); err != nil {
		select {
		case failed <- err:
		default:
		}
		return err
	}
	s.sent.Add(1)
	return nil
}

// Connected reports whether Send currently has a live link.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link.Connected()
}

// Sent counts successful writes over the session's lifetime.
func (s *Session) Sent() uint64 { return s.sent.Load() }
