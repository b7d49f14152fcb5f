package control

// NeutralBand is the raw window, on the 0..65535 scale, in which a stick is
// considered centered for keyword output.
type NeutralBand struct {
	Low  int64
	High int64
}

// DefaultNeutralBand matches the joystick-bridging operator's thresholds.
var DefaultNeutralBand = NeutralBand{Low: 32000, High: 33500}

// Directions turns the X/Y stick into direction keywords. X yields left or
// right, Y yields backward or forward; both may fire in one sample. Readings
// are rescaled to 0..65535 through cal first so thresholds are device
// independent.
func Directions(raw RawSample, cal Calibration, band NeutralBand) []string {
	var out []string

	if cal.Has(AxisX) {
		x := rescale(raw.Axes[AxisX], cal.Range(AxisX))
		switch {
		case x < band.Low:
			out = append(out, KeywordLeft)
		case x > band.High:
			out = append(out, KeywordRight)
		}
	}

	if cal.Has(AxisY) {
		y := rescale(raw.Axes[AxisY], cal.Range(AxisY))
		switch {
		case y < band.Low:
			out = append(out, KeywordBackward)
		case y > band.High:
			out = append(out, KeywordForward)
		}
	}
	return out
}

func rescale(v int32, r AxisRange) int64 {
	x := int64(v)
	if x < r.Min {
		x = r.Min
	}
	if x > r.Max {
		x = r.Max
	}
	return (x - r.Min) * Uncalibrated.Max / (r.Max - r.Min)
}
