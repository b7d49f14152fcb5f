package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// Advertisement is a scan hit.
type Advertisement struct {
	Name    string
	Address string
	RSSI    int16

	addr bluetooth.Address
}

// Radio is the slice of a BLE central the adapter needs.
type Radio interface {
	// Scan returns the first advertiser whose local name satisfies match,
	// or ErrNotFound once timeout elapses.
	Scan(ctx context.Context, timeout time.Duration, match func(name string) bool) (Advertisement, error)
	Connect(ctx context.Context, ad Advertisement) (Peripheral, error)
}

// Peripheral is a connected device.
type Peripheral interface {
	Characteristic(service, characteristic bluetooth.UUID) (Characteristic, error)
	Disconnect() error
}

// Characteristic accepts writes.
type Characteristic interface {
	Write(p []byte) (int, error)
}

type tinygoRadio struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error

	// The host stack supports one scan at a time.
	scanMu sync.Mutex
}

// NewRadio returns a Radio on the host's default Bluetooth adapter.
func NewRadio() Radio {
	return &tinygoRadio{adapter: bluetooth.DefaultAdapter}
}

func (r *tinygoRadio) enable() error {
	r.enableOnce.Do(func() {
		r.enableErr = r.adapter.Enable()
	})
	return r.enableErr
}

func (r *tinygoRadio) Scan(ctx context.Context, timeout time.Duration, match func(name string) bool) (Advertisement, error) {
	if err := r.enable(); err != nil {
		return Advertisement{}, fmt.Errorf("enable adapter: %w", err)
	}
	r.scanMu.Lock()
	defer r.scanMu.Unlock()

	stopTimer := time.AfterFunc(timeout, func() { _ = r.adapter.StopScan() })
	defer stopTimer.Stop()
	stopCtx := context.AfterFunc(ctx, func() { _ = r.adapter.StopScan() })
	defer stopCtx()

	var (
		found Advertisement
		ok    bool
	)
	err := r.adapter.Scan(func(a *bluetooth.Adapter, res bluetooth.ScanResult) {
		if ok || !match(res.LocalName()) {
			return
		}
		found = Advertisement{Name: res.LocalName(), Address: res.Address.String(), RSSI: res.RSSI, addr: res.Address}
		ok = true
		_ = a.StopScan()
	})
	if err != nil {
		return Advertisement{}, err
	}
	if ctx.Err() != nil {
		return Advertisement{}, ctx.Err()
	}
	if !ok {
		return Advertisement{}, ErrNotFound
	}
	return found, nil
}

func (r *tinygoRadio) Connect(ctx context.Context, ad Advertisement) (Peripheral, error) {
	if err := r.enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}
	dev, err := r.adapter.Connect(ad.addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		_ = dev.Disconnect()
		return nil, ctx.Err()
	}
	return &tinygoPeripheral{device: dev}, nil
}

type tinygoPeripheral struct {
	device bluetooth.Device
}

func (p *tinygoPeripheral) Characteristic(service, characteristic bluetooth.UUID) (Characteristic, error) {
	svcs, err := p.device.DiscoverServices([]bluetooth.UUID{service})
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	if len(svcs) == 0 {
		return nil, errors.New("service not found")
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{characteristic})
	if err != nil {
		return nil, fmt.Errorf("discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, errors.New("characteristic not found")
	}
	return &tinygoCharacteristic{char: chars[0]}, nil
}

func (p *tinygoPeripheral) Disconnect() error {
	return p.device.Disconnect()
}

type tinygoCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *tinygoCharacteristic) Write(p []byte) (int, error) {
	return c.char.WriteWithoutResponse(p)
}
