package control

// Wire framing for the BLE characteristic.
//
//	int16le  8 bytes   int16 LE x4: throttle, yaw, pitch, roll
//	offset8  4 bytes   uint8 x4 (value+128): X, Y, Z, RZ stick order,
//	                   i.e. yaw, throttle, roll, pitch under Mode2
//
// Keywords are not framed; the token bytes are written as-is.

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FrameFormat selects the binary encoding used by the transport adapter.
type FrameFormat int

const (
	FrameInt16LE FrameFormat = iota
	FrameOffset8
)

const (
	Int16LEFrameSize = 8
	Offset8FrameSize = 4
)

var ErrFrameSize = errors.New("unexpected frame size")

func (f FrameFormat) String() string {
	switch f {
	case FrameInt16LE:
		return "int16le"
	case FrameOffset8:
		return "offset8"
	default:
		return fmt.Sprintf("FrameFormat(%d)", int(f))
	}
}

// ParseFrameFormat accepts the names returned by String.
func ParseFrameFormat(s string) (FrameFormat, error) {
	switch s {
	case "int16le", "":
		return FrameInt16LE, nil
	case "offset8":
		return FrameOffset8, nil
	default:
		return 0, fmt.Errorf("unknown frame format %q", s)
	}
}

// Size is the encoded length in bytes.
func (f FrameFormat) Size() int {
	if f == FrameOffset8 {
		return Offset8FrameSize
	}
	return Int16LEFrameSize
}

// Encode serializes the stick fields of v. Auxiliary channels are dropped.
func (f FrameFormat) Encode(v Vector) []byte {
	switch f {
	case FrameOffset8:
		return []byte{
			offsetByte(v.Yaw),
			offsetByte(v.Throttle),
			offsetByte(v.Roll),
			offsetByte(v.Pitch),
		}
	default:
		b := make([]byte, Int16LEFrameSize)
		binary.LittleEndian.PutUint16(b[0:2], uint16(v.Throttle))
		binary.LittleEndian.PutUint16(b[2:4], uint16(v.Yaw))
		binary.LittleEndian.PutUint16(b[4:6], uint16(v.Pitch))
		binary.LittleEndian.PutUint16(b[6:8], uint16(v.Roll))
		return b
	}
}

// Decode is the inverse of Encode. offset8 only recovers values in -128..127.
func (f FrameFormat) Decode(b []byte) (Vector, error) {
	if len(b) != f.Size() {
		return Vector{}, fmt.Errorf("%w: %s wants %d bytes, got %d", ErrFrameSize, f, f.Size(), len(b))
	}
	switch f {
	case FrameOffset8:
		return Vector{
			Yaw:      int16(b[0]) - 128,
			Throttle: int16(b[1]) - 128,
			Roll:     int16(b[2]) - 128,
			Pitch:    int16(b[3]) - 128,
		}, nil
	default:
		return Vector{
			Throttle: int16(binary.LittleEndian.Uint16(b[0:2])),
			Yaw:      int16(binary.LittleEndian.Uint16(b[2:4])),
			Pitch:    int16(binary.LittleEndian.Uint16(b[4:6])),
			Roll:     int16(binary.LittleEndian.Uint16(b[6:8])),
		}, nil
	}
}

// Payload is the bytes written for c: a framed vector, or the keyword token.
func (f FrameFormat) Payload(c Command) []byte {
	if c.IsKeyword() {
		return []byte(c.Keyword)
	}
	return f.Encode(c.Vector)
}

func offsetByte(v int16) byte {
	switch {
	case v > 127:
		v = 127
	case v < -128:
		v = -128
	}
	return byte(v + 128)
}
