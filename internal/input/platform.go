// Package input samples a local joystick through a pluggable platform
// backend and hands raw readings to the normalizer.
package input

import (
	"errors"
	"fmt"

	"github.com/rcrelay/rcrelay/internal/control"
)

var (
	// ErrDeviceAbsent means there is no usable device this cycle.
	ErrDeviceAbsent = errors.New("input device absent")

	// ErrCalibrationUnavailable means the capability query failed; the
	// sampler retries on the next poll.
	ErrCalibrationUnavailable = errors.New("calibration unavailable")

	// ErrDetached is returned by a Platform when the device has gone away
	// for good and the sampler should stop polling it until a rescan.
	ErrDetached = errors.New("device detached")
)

// DeviceID names a device within one Platform, e.g. "/dev/input/event3",
// "winmm:0" or "js:1".
type DeviceID string

// Platform is the capability interface onto the host joystick service.
type Platform interface {
	Name() string
	Enumerate() ([]DeviceID, error)
	Capabilities(id DeviceID) (control.Calibration, error)
	Poll(id DeviceID) (control.RawSample, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendAuto     = "auto"
	BackendEvdev    = "evdev"
	BackendWinmm    = "winmm"
	BackendJoystick = "joystick"
	BackendNone     = "none"
)

// Open returns the named backend. "auto" prefers the native backend for the
// host OS and falls back to the portable joystick library; if nothing loads
// it returns Unavailable rather than an error.
func Open(backend string) (Platform, error) {
	switch backend {
	case BackendNone:
		return Unavailable{Reason: errors.New("disabled by configuration")}, nil
	case BackendJoystick:
		return newGamepad(), nil
	case BackendEvdev, BackendWinmm:
		return openNative(backend)
	case BackendAuto, "":
		if p, err := openNative(""); err == nil {
			return p, nil
		}
		return newGamepad(), nil
	default:
		return nil, fmt.Errorf("unknown input backend %q", backend)
	}
}

// Unavailable is the platform used when no joystick service could be loaded.
// Every call reports the device as absent.
type Unavailable struct {
	Reason error
}

func (u Unavailable) Name() string { return BackendNone }

func (u Unavailable) err() error {
	if u.Reason == nil {
		return ErrDeviceAbsent
	}
	return fmt.Errorf("%w: %v", ErrDeviceAbsent, u.Reason)
}

func (u Unavailable) Enumerate() ([]DeviceID, error) { return nil, u.err() }

func (u Unavailable) Capabilities(DeviceID) (control.Calibration, error) {
	return control.Calibration{}, u.err()
}

func (u Unavailable) Poll(DeviceID) (control.RawSample, error) {
	return control.RawSample{}, u.err()
}

func (u Unavailable) Close() error { return nil }
