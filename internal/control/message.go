package control

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MovePrefix is stripped from numeric messages before splitting.
const MovePrefix = "moveDrone:"

// Keywords accepted verbatim from the network channel.
const (
	KeywordLeft     = "left"
	KeywordRight    = "right"
	KeywordForward  = "forward"
	KeywordBackward = "backward"
	KeywordTakeoff  = "takeoff"
)

var keywords = map[string]struct{}{
	KeywordLeft:     {},
	KeywordRight:    {},
	KeywordForward:  {},
	KeywordBackward: {},
	KeywordTakeoff:  {},
}

// ErrMalformedMessage is returned for text that matches no accepted grammar.
var ErrMalformedMessage = errors.New("malformed message")

// IsKeyword reports whether s is one of the bare keyword commands.
func IsKeyword(s string) bool {
	_, ok := keywords[s]
	return ok
}

// ParseMessage decodes one network text message:
//
//	[moveDrone:]roll,pitch,yaw,throttle
//	[moveDrone:]roll,pitch,yaw,throttle,camera,command
//	left | right | forward | backward | takeoff
//
// Numeric fields may be decimals; they are truncated toward zero and saturated
// to the int16 range.
func ParseMessage(msg string) (Command, error) {
	text := strings.TrimSpace(msg)
	if IsKeyword(text) {
		return Command{Source: SourceNetwork, Keyword: text}, nil
	}

	text = strings.TrimPrefix(text, MovePrefix)
	fields := strings.Split(text, ",")
	if len(fields) != 4 && len(fields) != 6 {
		return Command{}, fmt.Errorf("%w: %d fields in %q", ErrMalformedMessage, len(fields), msg)
	}

	vals := make([]int16, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
			return Command{}, fmt.Errorf("%w: field %d %q", ErrMalformedMessage, i+1, f)
		}
		vals[i] = saturate16(x)
	}

	v := Vector{Roll: vals[0], Pitch: vals[1], Yaw: vals[2], Throttle: vals[3]}
	if len(vals) == 6 {
		v.Camera, v.Command, v.HasAux = vals[4], vals[5], true
	}
	return Command{Source: SourceNetwork, Vector: v}, nil
}

// FormatMessage renders v in the 4-field grammar accepted by ParseMessage.
func FormatMessage(v Vector) string {
	return fmt.Sprintf("%s%d,%d,%d,%d", MovePrefix, v.Roll, v.Pitch, v.Yaw, v.Throttle)
}
