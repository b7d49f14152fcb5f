package input

// /proc/bus/input/devices parsing. Joysticks are the entries that carry a
// jsN handler; the matching eventN node is what gets opened.

import (
	"strings"
)

type procDevice struct {
	name     string
	handlers []string
}

func parseProcInputDevices(b []byte) []procDevice {
	blocks := strings.Split(string(b), "\n\n")
	var out []procDevice
	for _, blk := range blocks {
		info := procDevice{}
		for _, line := range strings.Split(blk, "\n") {
			if strings.HasPrefix(line, "N: Name=") {
				parts := strings.SplitN(line, "=", 2)
				if len(parts) == 2 {
					info.name = strings.Trim(parts[1], " \"")
				}
			}
			if strings.HasPrefix(line, "H: Handlers=") {
				parts := strings.SplitN(line, "=", 2)
				if len(parts) == 2 {
					info.handlers = strings.Fields(parts[1])
				}
			}
		}
		if info.name != "" || len(info.handlers) > 0 {
			out = append(out, info)
		}
	}
	return out
}

func (d procDevice) handler(prefix string) string {
	for _, h := range d.handlers {
		if strings.HasPrefix(h, prefix) {
			return h
		}
	}
	return ""
}

// joystickEventNodes returns /dev/input/eventN for every joystick-class
// device, in /proc order.
func joystickEventNodes(b []byte) []DeviceID {
	var out []DeviceID
	for _, d := range parseProcInputDevices(b) {
		if d.handler("js") == "" {
			continue
		}
		ev := d.handler("event")
		if ev == "" {
			continue
		}
		out = append(out, DeviceID("/dev/input/"+ev))
	}
	return out
}
