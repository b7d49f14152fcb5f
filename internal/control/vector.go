package control

import (
	"fmt"
	"math"
)

// Vector is the canonical control unit exchanged through the relay. Only the
// four stick fields reach the wire; Camera and Command are accepted from the
// network and dropped before framing.
type Vector struct {
	Roll     int16
	Pitch    int16
	Yaw      int16
	Throttle int16

	Camera  int16
	Command int16
	HasAux  bool
}

func (v Vector) String() string {
	return fmt.Sprintf("roll=%d pitch=%d yaw=%d throttle=%d", v.Roll, v.Pitch, v.Yaw, v.Throttle)
}

// Sticks strips the auxiliary channels.
func (v Vector) Sticks() Vector {
	return Vector{Roll: v.Roll, Pitch: v.Pitch, Yaw: v.Yaw, Throttle: v.Throttle}
}

// AxisMap assigns device axes to vector fields.
type AxisMap struct {
	Roll     Axis
	Pitch    Axis
	Yaw      Axis
	Throttle Axis
}

// Mode2 is the usual RC transmitter layout: left stick yaw/throttle, right
// stick roll/pitch.
var Mode2 = AxisMap{Roll: AxisZ, Pitch: AxisRZ, Yaw: AxisX, Throttle: AxisY}

// Vector picks the mapped axes out of n.
func (n Normalized) Vector(m AxisMap) Vector {
	return Vector{
		Roll:     n.axis(m.Roll),
		Pitch:    n.axis(m.Pitch),
		Yaw:      n.axis(m.Yaw),
		Throttle: n.axis(m.Throttle),
	}
}

func (n Normalized) axis(a Axis) int16 {
	if a < 0 || int(a) >= NumAxes {
		return 0
	}
	return n.Axes[a]
}

// saturate16 truncates toward zero and clamps into the int16 range.
func saturate16(f float64) int16 {
	f = math.Trunc(f)
	switch {
	case f > math.MaxInt16:
		return math.MaxInt16
	case f < math.MinInt16:
		return math.MinInt16
	}
	return int16(f)
}

// Source tags where a Command came from.
type Source string

const (
	SourceLocal   Source = "local"
	SourceNetwork Source = "network"
	SourceConsole Source = "console"
)

// Command is what flows through the dispatcher: either a numeric vector or a
// bare keyword that bypasses numeric framing.
type Command struct {
	Source  Source
	Keyword string
	Vector  Vector
}

// IsKeyword reports whether c carries a bare keyword instead of a vector.
func (c Command) IsKeyword() bool { return c.Keyword != "" }

func (c Command) String() string {
	if c.IsKeyword() {
		return fmt.Sprintf("%s keyword=%q", c.Source, c.Keyword)
	}
	return fmt.Sprintf("%s %s", c.Source, c.Vector)
}
