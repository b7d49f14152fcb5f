package control

// Raw joystick readings and the calibration needed to interpret them.

import "fmt"

// Axis identifies one analog control dimension reported by an input device.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	AxisRX
	AxisRY
	AxisRZ

	NumAxes = 6
)

var axisNames = [NumAxes]string{"X", "Y", "Z", "RX", "RY", "RZ"}

func (a Axis) String() string {
	if a < 0 || int(a) >= NumAxes {
		return fmt.Sprintf("Axis(%d)", int(a))
	}
	return axisNames[a]
}

// ParseAxis accepts the names returned by Axis.String, case sensitive.
func ParseAxis(s string) (Axis, error) {
	for i, n := range axisNames {
		if n == s {
			return Axis(i), nil
		}
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// MaxButtons is the width of the RawSample button bitset.
const MaxButtons = 32

// RawSample is a single device reading. It is produced by the sampler and
// discarded once normalized. Axis values are signed because evdev ranges may
// start below zero; winmm readings are always non-negative.
type RawSample struct {
	Axes        [NumAxes]int32
	Buttons     uint32
	ButtonCount int
}

// Pressed reports button i. Bits outside the device's button count, or past
// the bitset width, read as false.
func (s RawSample) Pressed(i int) bool {
	if i < 0 || i >= s.ButtonCount || i >= MaxButtons {
		return false
	}
	return s.Buttons&(1<<uint(i)) != 0
}

// AxisRange is the device-reported raw range of one axis.
type AxisRange struct {
	Min int64
	Max int64
}

// Valid reports whether the range can be used for remapping.
func (r AxisRange) Valid() bool { return r.Min < r.Max }

// Uncalibrated is the range assumed when a device reports nothing usable.
var Uncalibrated = AxisRange{Min: 0, Max: 65535}

// Calibration is loaded once per device session and read-only thereafter.
// Absent marks axes the device does not have; their readings are ignored.
type Calibration struct {
	Name        string
	Axes        [NumAxes]AxisRange
	Absent      [NumAxes]bool
	ButtonCount int
}

// Has reports whether the device has axis a.
func (c Calibration) Has(a Axis) bool {
	return a >= 0 && int(a) < NumAxes && !c.Absent[a]
}

// Range returns the usable range for axis a, falling back to Uncalibrated
// when a present axis reports no range.
func (c Calibration) Range(a Axis) AxisRange {
	if a < 0 || int(a) >= NumAxes {
		return Uncalibrated
	}
	if r := c.Axes[a]; r.Valid() {
		return r
	}
	return Uncalibrated
}
