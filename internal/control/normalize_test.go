package control_test

import (
	"testing"

	"github.com/rcrelay/rcrelay/internal/control"
)

func calibrated(min, max int64) control.Calibration {
	var cal control.Calibration
	for i := range cal.Axes {
		cal.Axes[i] = control.AxisRange{Min: min, Max: max}
	}
	return cal
}

func TestNormalizeAxis(t *testing.T) {
	n := control.NewNormalizer()
	r := control.AxisRange{Min: 0, Max: 65535}

	tests := []struct {
		raw  int32
		want int16
	}{
		{raw: 0, want: -127},
		{raw: 65535, want: 127},
		{raw: 32767, want: 0},
		{raw: 32768, want: 0},
		{raw: 49151, want: 63},
		{raw: 16384, want: -63},
	}
	for _, tt := range tests {
		if got := n.Axis(tt.raw, r); got != tt.want {
			t.Fatalf("Axis(%d) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeClampsOutOfRange(t *testing.T) {
	n := control.NewNormalizer()
	r := control.AxisRange{Min: 1000, Max: 2000}

	for _, raw := range []int32{-5000, 0, 999, 2001, 1 << 30} {
		got := n.Axis(raw, r)
		if got != 127 && got != -127 {
			t.Fatalf("Axis(%d) = %d, want a boundary value", raw, got)
		}
		if raw < 1000 && got != -127 {
			t.Fatalf("Axis(%d) = %d, want -127", raw, got)
		}
		if raw > 2000 && got != 127 {
			t.Fatalf("Axis(%d) = %d, want 127", raw, got)
		}
	}
}

func TestNormalizeDeadzone(t *testing.T) {
	n := control.NewNormalizer()
	// With a range of 254 each raw step is exactly one normalized unit.
	r := control.AxisRange{Min: 0, Max: 254}

	for raw := int32(125); raw <= 129; raw++ {
		if got := n.Axis(raw, r); got != 0 {
			t.Fatalf("Axis(%d) = %d, want deadzone 0", raw, got)
		}
	}
	if got := n.Axis(130, r); got != 3 {
		t.Fatalf("Axis(130) = %d, want 3", got)
	}
	if got := n.Axis(124, r); got != -3 {
		t.Fatalf("Axis(124) = %d, want -3", got)
	}
}

func TestNormalizeUncalibratedFallback(t *testing.T) {
	n := control.NewNormalizer()
	bad := control.AxisRange{Min: 10, Max: 10}
	if got, want := n.Axis(65535, bad), n.Axis(65535, control.Uncalibrated); got != want {
		t.Fatalf("invalid range gave %d, want uncalibrated %d", got, want)
	}

	var cal control.Calibration
	raw := control.RawSample{}
	raw.Axes[control.AxisX] = 65535
	out := n.Normalize(raw, cal)
	if out.Axes[control.AxisX] != 127 {
		t.Fatalf("X = %d, want 127 with empty calibration", out.Axes[control.AxisX])
	}
}

func TestNormalizeMissingAxesReadCentered(t *testing.T) {
	n := control.NewNormalizer()
	cal := calibrated(-32768, 32767)
	cal.Absent[control.AxisRY] = true
	cal.Absent[control.AxisRZ] = true
	cal.Axes[control.AxisRZ] = control.AxisRange{}

	// Absent axes report zero from the driver; a [0,65535] fallback would
	// turn that into full negative deflection.
	var raw control.RawSample
	out := n.Normalize(raw, cal)
	if out.Axes != [control.NumAxes]int16{} {
		t.Fatalf("centered sticks gave %v", out.Axes)
	}
	if v := out.Vector(control.Mode2); v != (control.Vector{}) {
		t.Fatalf("vector = %s, want zero", v)
	}

	raw.Axes[control.AxisRZ] = 32767
	if got := n.Normalize(raw, cal).Axes[control.AxisRZ]; got != 0 {
		t.Fatalf("absent RZ = %d, want 0", got)
	}
	if cal.Has(control.AxisRZ) || !cal.Has(control.AxisZ) {
		t.Fatalf("Has disagrees with Absent: %v", cal.Absent)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	n := control.NewNormalizer()
	cal := calibrated(-32768, 32767)
	cal.ButtonCount = 4

	for seed := int32(-40000); seed < 40000; seed += 777 {
		raw := control.RawSample{Buttons: uint32(seed) & 0xf, ButtonCount: 4}
		for i := range raw.Axes {
			raw.Axes[i] = seed + int32(i*1000)
		}
		a := n.Normalize(raw, cal)
		b := n.Normalize(raw, cal)
		if a.Axes != b.Axes {
			t.Fatalf("axes differ for seed %d: %v vs %v", seed, a.Axes, b.Axes)
		}
		for i := range a.Buttons {
			if a.Buttons[i] != b.Buttons[i] {
				t.Fatalf("button %d differs for seed %d", i, seed)
			}
		}
	}
}

func TestNormalizeButtons(t *testing.T) {
	n := control.NewNormalizer()
	cal := calibrated(0, 65535)
	cal.ButtonCount = 5

	raw := control.RawSample{Buttons: 0b10101 | 1<<20, ButtonCount: 5}
	out := n.Normalize(raw, cal)

	want := []bool{true, false, true, false, true}
	if len(out.Buttons) != len(want) {
		t.Fatalf("len(Buttons) = %d, want %d", len(out.Buttons), len(want))
	}
	for i := range want {
		if out.Buttons[i] != want[i] {
			t.Fatalf("button %d = %v, want %v", i, out.Buttons[i], want[i])
		}
	}
	if raw.Pressed(20) {
		t.Fatalf("bit beyond button count must read false")
	}
	if raw.Pressed(40) {
		t.Fatalf("bit beyond bitset width must read false")
	}
}

func TestNormalizedVectorMode2(t *testing.T) {
	var n control.Normalized
	n.Axes[control.AxisX] = 1
	n.Axes[control.AxisY] = 2
	n.Axes[control.AxisZ] = 3
	n.Axes[control.AxisRZ] = 4

	v := n.Vector(control.Mode2)
	if v.Yaw != 1 || v.Throttle != 2 || v.Roll != 3 || v.Pitch != 4 {
		t.Fatalf("unexpected vector: %s", v)
	}
}
