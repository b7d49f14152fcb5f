package control_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/rcrelay/rcrelay/internal/control"
)

func TestInt16LEFrameLayout(t *testing.T) {
	v := control.Vector{Roll: 1, Pitch: -2, Yaw: 0x0304, Throttle: 1500, Camera: 9, Command: 9, HasAux: true}
	got := control.FrameInt16LE.Encode(v)
	want := []byte{
		0xdc, 0x05, // throttle 1500
		0x04, 0x03, // yaw
		0xfe, 0xff, // pitch -2
		0x01, 0x00, // roll
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("frame = % x, want % x", got, want)
	}
}

func TestInt16LEFrameRoundTrip(t *testing.T) {
	f := control.FrameInt16LE
	for x := math.MinInt16; x <= math.MaxInt16; x += 97 {
		v := control.Vector{
			Roll:     int16(x),
			Pitch:    int16(-x - 1),
			Yaw:      int16(x / 2),
			Throttle: int16(x / 3),
		}
		got, err := f.Decode(f.Encode(v))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != v {
			t.Fatalf("round trip %s -> %s", v, got)
		}
	}
}

func TestOffset8Frame(t *testing.T) {
	v := control.Vector{Roll: 127, Pitch: -127, Yaw: 0, Throttle: 10}
	got := control.FrameOffset8.Encode(v)
	want := []byte{128, 138, 255, 1}
	if !bytes.Equal(got, want) {
		t.Fatalf("frame = %v, want %v", got, want)
	}

	back, err := control.FrameOffset8.Decode(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back != v {
		t.Fatalf("round trip %s -> %s", v, back)
	}

	wide := control.FrameOffset8.Encode(control.Vector{Throttle: 1500, Yaw: -1500})
	if wide[0] != 0 || wide[1] != 255 {
		t.Fatalf("out of range values not saturated: %v", wide)
	}
}

func TestFrameDecodeSize(t *testing.T) {
	if _, err := control.FrameInt16LE.Decode(make([]byte, 4)); !errors.Is(err, control.ErrFrameSize) {
		t.Fatalf("err = %v, want ErrFrameSize", err)
	}
}

func TestPayloadKeywordBypassesFraming(t *testing.T) {
	c := control.Command{Source: control.SourceNetwork, Keyword: "left"}
	for _, f := range []control.FrameFormat{control.FrameInt16LE, control.FrameOffset8} {
		if got := f.Payload(c); string(got) != "left" {
			t.Fatalf("%s payload = %q, want %q", f, got, "left")
		}
	}
}

func TestParseFrameFormat(t *testing.T) {
	for _, f := range []control.FrameFormat{control.FrameInt16LE, control.FrameOffset8} {
		got, err := control.ParseFrameFormat(f.String())
		if err != nil || got != f {
			t.Fatalf("ParseFrameFormat(%q) = %v, %v", f.String(), got, err)
		}
	}
	if _, err := control.ParseFrameFormat("int32"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
