package input

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rcrelay/rcrelay/internal/control"
)

// Reading is one successful poll together with the calibration it must be
// interpreted against.
type Reading struct {
	Device      DeviceID
	Sample      control.RawSample
	Calibration control.Calibration
}

// WithLogger sets the logger for the sampler
func WithLogger(logger *slog.Logger) func(s *Sampler) {
	return func(s *Sampler) {
		s.logger = logger.With(slog.String("component", "sampler"), slog.String("backend", s.platform.Name()))
	}
}

// WithDevice pins the sampler to a device id instead of the first one
// enumerated.
func WithDevice(id DeviceID) func(s *Sampler) {
	return func(s *Sampler) {
		s.preferred = id
	}
}

// Sampler polls one device of a Platform. It is not safe for concurrent use;
// the relay drives it from a single ticker goroutine.
type Sampler struct {
	platform  Platform
	preferred DeviceID

	current    DeviceID
	cal        control.Calibration
	calibrated bool
	detached   bool

	logger *slog.Logger
}

func NewSampler(p Platform, options ...func(s *Sampler)) *Sampler {
	if p == nil {
		p = Unavailable{}
	}
	s := &Sampler{
		platform: p,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Device returns the device currently being sampled, if any.
func (s *Sampler) Device() DeviceID { return s.current }

// Detached reports whether the sampler has latched Absent and is waiting for
// Rescan.
func (s *Sampler) Detached() bool { return s.detached }

// Rescan clears the Absent latch; the next Poll re-enumerates and
// recalibrates.
func (s *Sampler) Rescan() {
	s.detached = false
	s.current = ""
	s.calibrated = false
}

// Poll takes one reading. ErrDeviceAbsent and ErrCalibrationUnavailable are
// expected outcomes, never fatal.
func (s *Sampler) Poll() (Reading, error) {
	if s.detached {
		return Reading{}, ErrDeviceAbsent
	}

	if s.current == "" {
		id, err := s.pick()
		if err != nil {
			s.detached = true
			return Reading{}, err
		}
		s.current = id
		s.calibrated = false
	}

	if !s.calibrated {
		cal, err := s.platform.Capabilities(s.current)
		if err != nil {
			if errors.Is(err, ErrDetached) {
				s.detach()
				return Reading{}, fmt.Errorf("%w: %s: %v", ErrDeviceAbsent, s.current, err)
			}
			return Reading{}, fmt.Errorf("%w: %s: %v", ErrCalibrationUnavailable, s.current, err)
		}
		s.cal = cal
		s.calibrated = true
		s.logger.Info("device calibrated",
			slog.String("device", string(s.current)),
			slog.String("name", cal.Name),
			slog.Int("buttons", cal.ButtonCount))
	}

	raw, err := s.platform.Poll(s.current)
	if err != nil {
		id := s.current
		if errors.Is(err, ErrDetached) {
			s.detach()
		}
		return Reading{}, fmt.Errorf("%w: %s: %v", ErrDeviceAbsent, id, err)
	}
	if raw.ButtonCount == 0 {
		raw.ButtonCount = s.cal.ButtonCount
	}
	return Reading{Device: s.current, Sample: raw, Calibration: s.cal}, nil
}

func (s *Sampler) detach() {
	s.logger.Warn("device detached", slog.String("device", string(s.current)))
	s.detached = true
	s.current = ""
	s.calibrated = false
}

func (s *Sampler) pick() (DeviceID, error) {
	ids, err := s.platform.Enumerate()
	if err != nil {
		if errors.Is(err, ErrDeviceAbsent) {
			return "", err
		}
		return "", fmt.Errorf("%w: enumerate: %v", ErrDeviceAbsent, err)
	}
	if len(ids) == 0 {
		return "", ErrDeviceAbsent
	}
	if s.preferred != "" {
		for _, id := range ids {
			if id == s.preferred {
				return id, nil
			}
		}
		return "", fmt.Errorf("%w: %s not attached", ErrDeviceAbsent, s.preferred)
	}
	return ids[0], nil
}
