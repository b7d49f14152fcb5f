package input

// Fixed binary layouts returned by the platform joystick services. Each is
// decoded from bytes with explicit offsets; nothing is aliased in memory.
//
// JOYCAPSW (winmm, 728 bytes, little endian):
//
//	off  size  field
//	  0     2  wMid
//	  2     2  wPid
//	  4    64  szPname   (32 UTF-16 code units, NUL terminated)
//	 68     4  wXmin     72 wXmax
//	 76     4  wYmin     80 wYmax
//	 84     4  wZmin     88 wZmax
//	 92     4  wNumButtons
//	 96     4  wPeriodMin  100 wPeriodMax
//	104     4  wRmin    108 wRmax      (RX)
//	112     4  wUmin    116 wUmax      (RY)
//	120     4  wVmin    124 wVmax      (RZ)
//	128     4  wCaps    132 wMaxAxes   136 wNumAxes   140 wMaxButtons
//	           wCaps: 0x01 HASZ, 0x02 HASR, 0x04 HASU, 0x08 HASV
//	144   584  szRegKey, szOEMVxD      (ignored)
//
// JOYINFOEX (winmm, 52 bytes): 13 little-endian uint32
//
//	dwSize dwFlags dwXpos dwYpos dwZpos dwRpos dwUpos dwVpos
//	dwButtons dwButtonNumber dwPOV dwReserved1 dwReserved2
//
// input_absinfo (Linux evdev, 24 bytes, host order): six int32
//
//	value minimum maximum fuzz flat resolution

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"

	"github.com/rcrelay/rcrelay/internal/control"
)

const (
	JoyCapsSize   = 728
	JoyInfoExSize = 52
	AbsInfoSize   = 24

	joyCapsNameOffset = 4
	joyCapsNameLen    = 32
	joyCapsAxesOffset = 4 + joyCapsNameLen*2
)

var ErrShortBuffer = errors.New("short buffer")

// joyCaps field offsets relative to joyCapsAxesOffset, in uint32 units.
var joyCapsAxisFields = [control.NumAxes][2]int{
	control.AxisX:  {0, 1},
	control.AxisY:  {2, 3},
	control.AxisZ:  {4, 5},
	control.AxisRX: {9, 10},
	control.AxisRY: {11, 12},
	control.AxisRZ: {13, 14},
}

const (
	joyCapsNumButtons = 6
	joyCapsCaps       = 15
	joyCapsNumAxes    = 17
)

// wCaps bits. X and Y are always present.
const (
	joyCapsHasZ = 0x01
	joyCapsHasR = 0x02
	joyCapsHasU = 0x04
	joyCapsHasV = 0x08
)

var joyCapsAxisBits = [control.NumAxes]uint32{
	control.AxisZ:  joyCapsHasZ,
	control.AxisRX: joyCapsHasR,
	control.AxisRY: joyCapsHasU,
	control.AxisRZ: joyCapsHasV,
}

// DecodeJoyCaps reads the calibration out of a JOYCAPSW block.
func DecodeJoyCaps(b []byte) (control.Calibration, error) {
	if len(b) < joyCapsAxesOffset+19*4 {
		return control.Calibration{}, fmt.Errorf("%w: JOYCAPSW needs %d bytes, got %d", ErrShortBuffer, JoyCapsSize, len(b))
	}

	field := func(i int) uint32 {
		off := joyCapsAxesOffset + i*4
		return binary.LittleEndian.Uint32(b[off : off+4])
	}

	cal := control.Calibration{
		Name:        decodeUTF16Z(b[joyCapsNameOffset : joyCapsNameOffset+joyCapsNameLen*2]),
		ButtonCount: int(field(joyCapsNumButtons)),
	}
	caps := field(joyCapsCaps)
	numAxes := int(field(joyCapsNumAxes))
	for a, f := range joyCapsAxisFields {
		if bit := joyCapsAxisBits[a]; bit != 0 && caps&bit == 0 {
			cal.Absent[a] = true
			continue
		}
		cal.Axes[a] = control.AxisRange{Min: int64(field(f[0])), Max: int64(field(f[1]))}
	}
	// wNumAxes bounds the count when wCaps claims more.
	present := 0
	for a := range cal.Absent {
		if cal.Absent[a] {
			continue
		}
		present++
		if present > numAxes && numAxes > 0 {
			cal.Absent[a] = true
			cal.Axes[a] = control.AxisRange{}
		}
	}
	return cal, nil
}

// DecodeJoyInfoEx reads axis positions and the button bitset out of a
// JOYINFOEX block. winmm RX/RY/RZ are reported as R/U/V.
func DecodeJoyInfoEx(b []byte) (control.RawSample, error) {
	if len(b) < JoyInfoExSize {
		return control.RawSample{}, fmt.Errorf("%w: JOYINFOEX needs %d bytes, got %d", ErrShortBuffer, JoyInfoExSize, len(b))
	}
	dw := func(i int) uint32 { return binary.LittleEndian.Uint32(b[i*4 : i*4+4]) }

	var s control.RawSample
	for a := 0; a < control.NumAxes; a++ {
		s.Axes[a] = int32(dw(2 + a))
	}
	s.Buttons = dw(8)
	return s, nil
}

// EncodeJoyInfoExHeader writes dwSize and dwFlags into a JOYINFOEX buffer
// before it is handed to joyGetPosEx.
func EncodeJoyInfoExHeader(b []byte, flags uint32) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(len(b)))
	binary.LittleEndian.PutUint32(b[4:8], flags)
}

// AbsInfo mirrors struct input_absinfo.
type AbsInfo struct {
	Value      int32
	Min        int32
	Max        int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// DecodeAbsInfo reads an input_absinfo filled in by EVIOCGABS.
func DecodeAbsInfo(b []byte) (AbsInfo, error) {
	if len(b) < AbsInfoSize {
		return AbsInfo{}, fmt.Errorf("%w: input_absinfo needs %d bytes, got %d", ErrShortBuffer, AbsInfoSize, len(b))
	}
	v := func(i int) int32 { return int32(binary.NativeEndian.Uint32(b[i*4 : i*4+4])) }
	return AbsInfo{
		Value:      v(0),
		Min:        v(1),
		Max:        v(2),
		Fuzz:       v(3),
		Flat:       v(4),
		Resolution: v(5),
	}, nil
}

func decodeUTF16Z(b []byte) string {
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		c := binary.LittleEndian.Uint16(b[i : i+2])
		if c == 0 {
			break
		}
		u = append(u, c)
	}
	return string(utf16.Decode(u))
}
