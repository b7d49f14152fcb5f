// Package bletest provides an in-memory ble.Radio for tests.
package bletest

import (
	"context"
	"errors"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/rcrelay/rcrelay/internal/ble"
)

// Radio advertises a fixed set of names and records every write.
type Radio struct {
	mu sync.Mutex

	Advertising []string
	ConnectErr  error
	CharErr     error
	// FailWrites makes the next n writes return an error.
	FailWrites int

	scans       int
	connects    int
	disconnects int
	writes      [][]byte
	written     chan []byte
}

func NewRadio(names ...string) *Radio {
	return &Radio{Advertising: names, written: make(chan []byte, 256)}
}

func (r *Radio) Scan(ctx context.Context, timeout time.Duration, match func(name string) bool) (ble.Advertisement, error) {
	r.mu.Lock()
	r.scans++
	names := append([]string(nil), r.Advertising...)
	r.mu.Unlock()

	for i, n := range names {
		if match(n) {
			return ble.Advertisement{Name: n, Address: "00:00:00:00:00:0" + string(rune('1'+i)), RSSI: -40}, nil
		}
	}
	select {
	case <-ctx.Done():
		return ble.Advertisement{}, ctx.Err()
	case <-time.After(min(timeout, 10*time.Millisecond)):
	}
	return ble.Advertisement{}, ble.ErrNotFound
}

func (r *Radio) Connect(ctx context.Context, ad ble.Advertisement) (ble.Peripheral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
	if r.ConnectErr != nil {
		return nil, r.ConnectErr
	}
	return &peripheral{r: r}, nil
}

// SetAdvertising replaces the advertised names.
func (r *Radio) SetAdvertising(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Advertising = names
}

// FailNextWrites makes the next n writes fail.
func (r *Radio) FailNextWrites(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailWrites = n
}

// Writes returns a copy of every successful write so far.
func (r *Radio) Writes() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.writes...)
}

// Written delivers each successful write as it happens.
func (r *Radio) Written() <-chan []byte { return r.written }

func (r *Radio) Counts() (scans, connects, disconnects int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans, r.connects, r.disconnects
}

type peripheral struct {
	r *Radio
}

func (p *peripheral) Characteristic(service, characteristic bluetooth.UUID) (ble.Characteristic, error) {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	if p.r.CharErr != nil {
		return nil, p.r.CharErr
	}
	return p, nil
}

func (p *peripheral) Disconnect() error {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	p.r.disconnects++
	return nil
}

func (p *peripheral) Write(b []byte) (int, error) {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	if p.r.FailWrites > 0 {
		p.r.FailWrites--
		return 0, errors.New("gatt write: not connected")
	}
	cp := append([]byte(nil), b...)
	p.r.writes = append(p.r.writes, cp)
	select {
	case p.r.written <- cp:
	default:
	}
	return len(b), nil
}
