package input

import (
	"errors"
	"testing"

	"github.com/0xcafed00d/joystick"

	"github.com/rcrelay/rcrelay/internal/control"
)

type fakePlatform struct {
	ids      []DeviceID
	capsErrs []error
	pollErr  error
	sample   control.RawSample
	cal      control.Calibration

	enumerated int
	capsCalls  int
	polls      int
}

func (f *fakePlatform) Name() string { return "fake" }

func (f *fakePlatform) Enumerate() ([]DeviceID, error) {
	f.enumerated++
	return f.ids, nil
}

func (f *fakePlatform) Capabilities(DeviceID) (control.Calibration, error) {
	f.capsCalls++
	if len(f.capsErrs) > 0 {
		err := f.capsErrs[0]
		f.capsErrs = f.capsErrs[1:]
		if err != nil {
			return control.Calibration{}, err
		}
	}
	return f.cal, nil
}

func (f *fakePlatform) Poll(DeviceID) (control.RawSample, error) {
	f.polls++
	return f.sample, f.pollErr
}

func (f *fakePlatform) Close() error { return nil }

func TestSamplerCalibratesBeforeFirstPoll(t *testing.T) {
	p := &fakePlatform{
		ids:    []DeviceID{"js:0"},
		cal:    control.Calibration{Name: "pad", ButtonCount: 3},
		sample: control.RawSample{Buttons: 0b101},
	}
	s := NewSampler(p)

	r, err := s.Poll()
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if p.capsCalls != 1 {
		t.Fatalf("capabilities called %d times", p.capsCalls)
	}
	if r.Device != "js:0" || r.Calibration.Name != "pad" {
		t.Fatalf("unexpected reading %+v", r)
	}
	if r.Sample.ButtonCount != 3 {
		t.Fatalf("button count = %d, want calibration's 3", r.Sample.ButtonCount)
	}

	if _, err := s.Poll(); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if p.capsCalls != 1 {
		t.Fatalf("calibration reloaded: %d calls", p.capsCalls)
	}
}

func TestSamplerRetriesCalibration(t *testing.T) {
	p := &fakePlatform{
		ids:      []DeviceID{"js:0"},
		capsErrs: []error{errors.New("busy"), nil},
	}
	s := NewSampler(p)

	if _, err := s.Poll(); !errors.Is(err, ErrCalibrationUnavailable) {
		t.Fatalf("err = %v, want ErrCalibrationUnavailable", err)
	}
	if p.polls != 0 {
		t.Fatalf("device polled without calibration")
	}
	if _, err := s.Poll(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if p.capsCalls != 2 || p.polls != 1 {
		t.Fatalf("caps=%d polls=%d", p.capsCalls, p.polls)
	}
}

func TestSamplerAbsentLatchesUntilRescan(t *testing.T) {
	p := &fakePlatform{}
	s := NewSampler(p)

	for i := 0; i < 3; i++ {
		if _, err := s.Poll(); !errors.Is(err, ErrDeviceAbsent) {
			t.Fatalf("err = %v, want ErrDeviceAbsent", err)
		}
	}
	if p.enumerated != 1 {
		t.Fatalf("enumerated %d times before rescan", p.enumerated)
	}
	if !s.Detached() {
		t.Fatalf("sampler should be detached")
	}

	p.ids = []DeviceID{"js:1"}
	s.Rescan()
	if _, err := s.Poll(); err != nil {
		t.Fatalf("poll after rescan: %v", err)
	}
	if s.Device() != "js:1" {
		t.Fatalf("device = %q", s.Device())
	}
}

func TestSamplerDetachOnUnplug(t *testing.T) {
	p := &fakePlatform{ids: []DeviceID{"js:0"}}
	s := NewSampler(p)
	if _, err := s.Poll(); err != nil {
		t.Fatal(err)
	}

	p.pollErr = ErrDetached
	if _, err := s.Poll(); !errors.Is(err, ErrDeviceAbsent) {
		t.Fatalf("err = %v, want ErrDeviceAbsent", err)
	}
	if !s.Detached() {
		t.Fatalf("sampler should latch after detach")
	}

	p.pollErr = nil
	if _, err := s.Poll(); !errors.Is(err, ErrDeviceAbsent) {
		t.Fatalf("latched sampler polled again: %v", err)
	}
}

func TestSamplerTransientPollError(t *testing.T) {
	p := &fakePlatform{ids: []DeviceID{"js:0"}, pollErr: errors.New("EAGAIN")}
	s := NewSampler(p)
	if _, err := s.Poll(); !errors.Is(err, ErrDeviceAbsent) {
		t.Fatalf("err = %v, want ErrDeviceAbsent", err)
	}
	if s.Detached() {
		t.Fatalf("transient error must not latch")
	}
}

func TestSamplerPreferredDevice(t *testing.T) {
	p := &fakePlatform{ids: []DeviceID{"js:0", "js:1"}}
	s := NewSampler(p, WithDevice("js:1"))
	if _, err := s.Poll(); err != nil {
		t.Fatal(err)
	}
	if s.Device() != "js:1" {
		t.Fatalf("device = %q", s.Device())
	}

	missing := NewSampler(p, WithDevice("js:9"))
	if _, err := missing.Poll(); !errors.Is(err, ErrDeviceAbsent) {
		t.Fatalf("err = %v, want ErrDeviceAbsent", err)
	}
}

func TestUnavailablePlatform(t *testing.T) {
	p, err := Open(BackendNone)
	if err != nil {
		t.Fatal(err)
	}
	s := NewSampler(p)
	if _, err := s.Poll(); !errors.Is(err, ErrDeviceAbsent) {
		t.Fatalf("err = %v, want ErrDeviceAbsent", err)
	}
	if _, err := Open("bogus"); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

type fakeJoystick struct {
	state  joystick.State
	err    error
	closed bool
}

func (j *fakeJoystick) AxisCount() int                { return 4 }
func (j *fakeJoystick) ButtonCount() int              { return 10 }
func (j *fakeJoystick) Name() string                  { return "fake pad" }
func (j *fakeJoystick) Read() (joystick.State, error) { return j.state, j.err }
func (j *fakeJoystick) Close()                        { j.closed = true }

func TestGamepadBackend(t *testing.T) {
	js := &fakeJoystick{state: joystick.State{AxisData: []int{-32768, 0, 32767, 100}, Buttons: 0b11}}
	g := newGamepad()
	g.open = func(id int) (joystick.Joystick, error) {
		if id != 0 {
			return nil, errors.New("no device")
		}
		return js, nil
	}

	ids, err := g.Enumerate()
	if err != nil || len(ids) != 1 || ids[0] != "js:0" {
		t.Fatalf("enumerate = %v, %v", ids, err)
	}

	s := NewSampler(g)
	r, err := s.Poll()
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if r.Calibration.Range(control.AxisX) != gamepadRange || r.Calibration.Range(control.AxisRX) != gamepadRange {
		t.Fatalf("unexpected calibration %+v", r.Calibration.Axes)
	}
	if r.Calibration.Axes[control.AxisRY].Valid() || r.Calibration.Has(control.AxisRY) || r.Calibration.Has(control.AxisRZ) {
		t.Fatalf("axes beyond AxisCount should be absent: %+v", r.Calibration)
	}

	n := control.NewNormalizer().Normalize(r.Sample, r.Calibration)
	if n.Axes[control.AxisX] != -127 || n.Axes[control.AxisY] != 0 || n.Axes[control.AxisZ] != 127 {
		t.Fatalf("normalized = %v", n.Axes)
	}
	if !n.Buttons[0] || !n.Buttons[1] || n.Buttons[2] {
		t.Fatalf("buttons = %v", n.Buttons)
	}

	js.err = errors.New("read failed")
	if _, err := s.Poll(); !errors.Is(err, ErrDeviceAbsent) {
		t.Fatalf("err = %v", err)
	}
	if !js.closed || !s.Detached() {
		t.Fatalf("failed joystick should be closed and detached")
	}
}

func TestGamepadCentredSticksMissingAxes(t *testing.T) {
	// Four axes, all centred. RZ does not exist and must not read as full
	// deflection under Mode2, which takes pitch from it.
	js := &fakeJoystick{state: joystick.State{AxisData: []int{0, 0, 0, 0}}}
	g := newGamepad()
	g.open = func(id int) (joystick.Joystick, error) {
		if id != 0 {
			return nil, errors.New("no device")
		}
		return js, nil
	}

	r, err := NewSampler(g).Poll()
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	v := control.NewNormalizer().Normalize(r.Sample, r.Calibration).Vector(control.Mode2)
	if v != (control.Vector{}) {
		t.Fatalf("centred sticks -> %v, want all zero", v)
	}
}
