package control

import "math"

const (
	// DefaultHalfRange bounds normalized axes to [-127, 127].
	DefaultHalfRange = 127
	// DefaultDeadzone absorbs jitter around center.
	DefaultDeadzone = 2
)

// Normalizer remaps raw device readings onto the canonical signed range.
// The zero value uses DefaultHalfRange and no deadzone; use NewNormalizer for
// the usual settings.
type Normalizer struct {
	HalfRange int
	Deadzone  int
}

func NewNormalizer() Normalizer {
	return Normalizer{HalfRange: DefaultHalfRange, Deadzone: DefaultDeadzone}
}

// Normalized is the result of one Normalize call.
type Normalized struct {
	Axes    [NumAxes]int16
	Buttons []bool
}

// Normalize is pure: the same sample and calibration always give the same
// result. Axes the device lacks read as centered.
func (n Normalizer) Normalize(raw RawSample, cal Calibration) Normalized {
	var out Normalized
	for a := Axis(0); a < NumAxes; a++ {
		if !cal.Has(a) {
			continue
		}
		out.Axes[a] = n.Axis(raw.Axes[a], cal.Range(a))
	}

	count := raw.ButtonCount
	if cal.ButtonCount > 0 {
		count = cal.ButtonCount
	}
	if count > 0 {
		out.Buttons = make([]bool, count)
		s := raw
		s.ButtonCount = count
		for i := range out.Buttons {
			out.Buttons[i] = s.Pressed(i)
		}
	}
	return out
}

// Axis maps one raw reading through r:
//
//	clamp(round((raw - neutral) * half / (full/2)), -half, +half)
//
// with neutral = (min+max)/2, then collapses |v| <= Deadzone to 0.
func (n Normalizer) Axis(raw int32, r AxisRange) int16 {
	if !r.Valid() {
		r = Uncalibrated
	}
	half := n.HalfRange
	if half <= 0 {
		half = DefaultHalfRange
	}

	full := float64(r.Max - r.Min)
	neutral := float64(r.Min+r.Max) / 2
	v := math.Round((float64(raw) - neutral) * float64(half) / (full / 2))

	switch {
	case v > float64(half):
		v = float64(half)
	case v < -float64(half):
		v = -float64(half)
	}

	out := int(v)
	if out >= -n.Deadzone && out <= n.Deadzone {
		return 0
	}
	return int16(out)
}
