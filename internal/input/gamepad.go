package input

// Portable backend on github.com/0xcafed00d/joystick. The library reports
// axes as signed 16-bit values and does not expose device ranges, so the
// calibration is fixed at [-32768, 32767].

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/0xcafed00d/joystick"

	"github.com/rcrelay/rcrelay/internal/control"
)

const gamepadMaxDevices = 4

var gamepadRange = control.AxisRange{Min: -32768, Max: 32767}

type gamepad struct {
	open func(id int) (joystick.Joystick, error)

	mu  sync.Mutex
	js  map[DeviceID]joystick.Joystick
	max int
}

func newGamepad() *gamepad {
	return &gamepad{open: joystick.Open, js: map[DeviceID]joystick.Joystick{}, max: gamepadMaxDevices}
}

func (g *gamepad) Name() string { return BackendJoystick }

func (g *gamepad) Enumerate() ([]DeviceID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []DeviceID
	for i := 0; i < g.max; i++ {
		id := DeviceID("js:" + strconv.Itoa(i))
		if _, ok := g.js[id]; ok {
			out = append(out, id)
			continue
		}
		js, err := g.open(i)
		if err != nil {
			continue
		}
		g.js[id] = js
		out = append(out, id)
	}
	return out, nil
}

func (g *gamepad) get(id DeviceID) (joystick.Joystick, error) {
	if js, ok := g.js[id]; ok {
		return js, nil
	}
	s, ok := strings.CutPrefix(string(id), "js:")
	if !ok {
		return nil, fmt.Errorf("not a joystick device: %q", id)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("not a joystick device: %q", id)
	}
	js, err := g.open(n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetached, err)
	}
	g.js[id] = js
	return js, nil
}

func (g *gamepad) Capabilities(id DeviceID) (control.Calibration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	js, err := g.get(id)
	if err != nil {
		return control.Calibration{}, err
	}
	cal := control.Calibration{Name: js.Name(), ButtonCount: min(js.ButtonCount(), control.MaxButtons)}
	for a := 0; a < control.NumAxes; a++ {
		if a < js.AxisCount() {
			cal.Axes[a] = gamepadRange
		} else {
			cal.Absent[a] = true
		}
	}
	return cal, nil
}

func (g *gamepad) Poll(id DeviceID) (control.RawSample, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	js, err := g.get(id)
	if err != nil {
		return control.RawSample{}, err
	}
	st, err := js.Read()
	if err != nil {
		js.Close()
		delete(g.js, id)
		return control.RawSample{}, fmt.Errorf("%w: %v", ErrDetached, err)
	}

	s := control.RawSample{Buttons: st.Buttons, ButtonCount: min(js.ButtonCount(), control.MaxButtons)}
	for a := 0; a < len(st.AxisData) && a < control.NumAxes; a++ {
		s.Axes[a] = int32(st.AxisData[a])
	}
	return s, nil
}

func (g *gamepad) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, js := range g.js {
		js.Close()
		delete(g.js, id)
	}
	return nil
}
