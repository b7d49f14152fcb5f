// Package ble writes control frames to the vehicle's GATT characteristic.
package ble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"
)

// DefaultScanTimeout bounds discovery.
const DefaultScanTimeout = 5 * time.Second

var (
	// ErrNotFound means no advertiser matched the target name before the
	// scan timeout. It is a retry condition, not a fault.
	ErrNotFound = errors.New("target not advertising")

	ErrConnect      = errors.New("connect failed")
	ErrWrite        = errors.New("write failed")
	ErrDisconnected = errors.New("link not connected")
)

// Target identifies the vehicle: an advertised name plus the service and
// characteristic frames are written to.
type Target struct {
	Name           string
	Service        bluetooth.UUID
	Characteristic bluetooth.UUID
	ScanTimeout    time.Duration
}

// ParseTarget builds a Target from the textual UUID form.
func ParseTarget(name, service, characteristic string, scanTimeout time.Duration) (Target, error) {
	svc, err := bluetooth.ParseUUID(service)
	if err != nil {
		return Target{}, fmt.Errorf("service uuid %q: %w", service, err)
	}
	chr, err := bluetooth.ParseUUID(characteristic)
	if err != nil {
		return Target{}, fmt.Errorf("characteristic uuid %q: %w", characteristic, err)
	}
	if scanTimeout <= 0 {
		scanTimeout = DefaultScanTimeout
	}
	return Target{Name: name, Service: svc, Characteristic: chr, ScanTimeout: scanTimeout}, nil
}

// Link is one live connection to the target characteristic.
type Link struct {
	Peer Advertisement

	mu        sync.Mutex
	peer      Peripheral
	char      Characteristic
	connected atomic.Bool
}

// Connected reports whether frames can currently be written.
func (l *Link) Connected() bool { return l != nil && l.connected.Load() }

// WithLogger sets the logger for the adapter
func WithLogger(logger *slog.Logger) func(a *Adapter) {
	return func(a *Adapter) {
		a.logger = logger.With(slog.String("component", "ble"))
	}
}

// Adapter connects to and writes frames over a Radio. It never reconnects
// on its own; that is the supervisor's job.
type Adapter struct {
	radio  Radio
	logger *slog.Logger
}

func NewAdapter(radio Radio, options ...func(a *Adapter)) *Adapter {
	a := &Adapter{
		radio:  radio,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Connect scans for t.Name, connects, and resolves the characteristic.
func (a *Adapter) Connect(ctx context.Context, t Target) (*Link, error) {
	timeout := t.ScanTimeout
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	a.logger.Info("scanning", slog.String("name", t.Name), slog.Duration("timeout", timeout))
	ad, err := a.radio.Scan(ctx, timeout, func(name string) bool { return name == t.Name })
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %q after %s", ErrNotFound, t.Name, timeout)
		}
		return nil, fmt.Errorf("%w: scan: %v", ErrConnect, err)
	}
	a.logger.Info("found target", slog.String("name", ad.Name), slog.String("address", ad.Address), slog.Int("rssi", int(ad.RSSI)))

	peer, err := a.radio.Connect(ctx, ad)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, ad.Address, err)
	}
	char, err := peer.Characteristic(t.Service, t.Characteristic)
	if err != nil {
		_ = peer.Disconnect()
		return nil, fmt.Errorf("%w: characteristic %s: %v", ErrConnect, t.Characteristic, err)
	}

	l := &Link{Peer: ad, peer: peer, char: char}
	l.connected.Store(true)
	return l, nil
}

// Send writes exactly one payload. A disconnected link fails immediately;
// a radio error marks the link disconnected.
func (a *Adapter) Send(l *Link, payload []byte) error {
	if !l.Connected() {
		return ErrDisconnected
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected.Load() {
		return ErrDisconnected
	}
	n, err := l.char.Write(payload)
	if err == nil && n != len(payload) {
		err = fmt.Errorf("short write %d/%d", n, len(payload))
	}
	if err != nil {
		l.connected.Store(false)
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Disconnect tears the link down. Calling it twice is harmless.
func (a *Adapter) Disconnect(l *Link) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected.Store(false)
	if l.peer == nil {
		return
	}
	if err := l.peer.Disconnect(); err != nil {
		a.logger.Warn("disconnect", slog.String("address", l.Peer.Address), slog.String("error", err.Error()))
	}
	l.peer = nil
}
