//go:build linux

package input

// Linux evdev backend:
// - joystick discovery through /proc/bus/input/devices
// - ioctl helpers: EVIOCGABS for range + current value, EVIOCGBIT/EVIOCGKEY
//   for buttons, EVIOCGNAME for the product name
//
// Polling is stateless: every Poll asks the kernel for the current absolute
// values, so no event stream has to be parsed and nothing blocks.

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/rcrelay/rcrelay/internal/control"
)

// Minimal Linux input constants
const (
	EV_KEY = 0x01
	EV_ABS = 0x03

	BTN_MISC = 0x100
	KEY_MAX  = 0x2ff
)

// ABS codes in control.Axis order: ABS_X, ABS_Y, ABS_Z, ABS_RX, ABS_RY, ABS_RZ.
var absCodes = [control.NumAxes]int{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}

const (
	ABS_MAX = 0x3f

	keyBitmapLen = KEY_MAX/8 + 1
	absBitmapLen = ABS_MAX/8 + 1
)

// ioctl request encoding (Linux _IOC macro)
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocRead = 2
)

func ioc(dir uint32, typ uint32, nr uint32, size uint32) uintptr {
	return uintptr((dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift))
}

func evioCGAbs(absCode int) uintptr {
	// EVIOCGABS(abs) = _IOR('E', 0x40 + abs, struct input_absinfo)
	return ioc(iocRead, uint32('E'), uint32(0x40+absCode), AbsInfoSize)
}

func evioCGBit(ev int, size int) uintptr {
	// EVIOCGBIT(ev, len) = _IOC(_IOC_READ, 'E', 0x20 + ev, len)
	return ioc(iocRead, uint32('E'), uint32(0x20+ev), uint32(size))
}

func evioCGKey(size int) uintptr {
	// EVIOCGKEY(len) = _IOC(_IOC_READ, 'E', 0x18, len)
	return ioc(iocRead, uint32('E'), 0x18, uint32(size))
}

func evioCGName(size int) uintptr {
	// EVIOCGNAME(len) = _IOC(_IOC_READ, 'E', 0x06, len)
	return ioc(iocRead, uint32('E'), 0x06, uint32(size))
}

func ioctlBuf(fd int, req uintptr, buf []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

func getAbsInfo(fd int, absCode int) (AbsInfo, error) {
	var buf [AbsInfoSize]byte
	if err := ioctlBuf(fd, evioCGAbs(absCode), buf[:]); err != nil {
		return AbsInfo{}, err
	}
	return DecodeAbsInfo(buf[:])
}

func bitSet(bitmap []byte, bit int) bool {
	return bitmap[bit/8]&(1<<uint(bit%8)) != 0
}

type evdevDevice struct {
	f    *os.File
	axes [control.NumAxes]bool
	keys []int // supported button codes, bit i of RawSample.Buttons is keys[i]
}

type evdev struct {
	procPath string

	mu      sync.Mutex
	devices map[DeviceID]*evdevDevice
}

func openNative(name string) (Platform, error) {
	if name != "" && name != BackendEvdev {
		return nil, fmt.Errorf("input backend %q is not available on linux", name)
	}
	if _, err := os.Stat("/proc/bus/input/devices"); err != nil {
		return nil, err
	}
	return &evdev{procPath: "/proc/bus/input/devices", devices: map[DeviceID]*evdevDevice{}}, nil
}

func (e *evdev) Name() string { return BackendEvdev }

func (e *evdev) Enumerate() ([]DeviceID, error) {
	b, err := os.ReadFile(e.procPath)
	if err != nil {
		return nil, err
	}
	return joystickEventNodes(b), nil
}

func (e *evdev) Capabilities(id DeviceID) (control.Calibration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closeLocked(id)
	f, err := os.OpenFile(string(id), os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return control.Calibration{}, fmt.Errorf("%w: %v", ErrDetached, err)
		}
		return control.Calibration{}, err
	}
	fd := int(f.Fd())
	d := &evdevDevice{f: f}

	cal := control.Calibration{}
	name := make([]byte, 256)
	if err := ioctlBuf(fd, evioCGName(len(name)), name); err == nil {
		cal.Name = cString(name)
	}

	// EVIOCGABS succeeds with a zeroed absinfo for codes the device lacks,
	// so presence comes from the EV_ABS capability bitmap.
	absBits := make([]byte, absBitmapLen)
	if err := ioctlBuf(fd, evioCGBit(EV_ABS, len(absBits)), absBits); err != nil {
		f.Close()
		return control.Calibration{}, fmt.Errorf("%s: EVIOCGBIT(EV_ABS): %w", id, err)
	}

	found := 0
	for a, code := range absCodes {
		cal.Absent[a] = true
		if !bitSet(absBits, code) {
			continue
		}
		info, err := getAbsInfo(fd, code)
		if err != nil {
			continue
		}
		d.axes[a] = true
		cal.Absent[a] = false
		cal.Axes[a] = control.AxisRange{Min: int64(info.Min), Max: int64(info.Max)}
		found++
	}
	if found == 0 {
		f.Close()
		return control.Calibration{}, fmt.Errorf("%s reports no absolute axes", id)
	}

	bits := make([]byte, keyBitmapLen)
	if err := ioctlBuf(fd, evioCGBit(EV_KEY, len(bits)), bits); err == nil {
		for code := BTN_MISC; code <= KEY_MAX && len(d.keys) < control.MaxButtons; code++ {
			if bitSet(bits, code) {
				d.keys = append(d.keys, code)
			}
		}
	}
	cal.ButtonCount = len(d.keys)

	e.devices[id] = d
	return cal, nil
}

func (e *evdev) Poll(id DeviceID) (control.RawSample, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.devices[id]
	if !ok {
		return control.RawSample{}, fmt.Errorf("%s polled before capabilities", id)
	}
	fd := int(d.f.Fd())

	s := control.RawSample{ButtonCount: len(d.keys)}
	for a, code := range absCodes {
		if !d.axes[a] {
			continue
		}
		info, err := getAbsInfo(fd, code)
		if err != nil {
			return control.RawSample{}, e.pollErr(id, err)
		}
		s.Axes[a] = info.Value
	}

	if len(d.keys) > 0 {
		state := make([]byte, keyBitmapLen)
		if err := ioctlBuf(fd, evioCGKey(len(state)), state); err != nil {
			return control.RawSample{}, e.pollErr(id, err)
		}
		for i, code := range d.keys {
			if bitSet(state, code) {
				s.Buttons |= 1 << uint(i)
			}
		}
	}
	return s, nil
}

func (e *evdev) pollErr(id DeviceID, err error) error {
	if errors.Is(err, unix.ENODEV) || errors.Is(err, unix.EBADF) {
		e.closeLocked(id)
		return fmt.Errorf("%w: %v", ErrDetached, err)
	}
	return err
}

func (e *evdev) closeLocked(id DeviceID) {
	if d, ok := e.devices[id]; ok {
		d.f.Close()
		delete(e.devices, id)
	}
}

func (e *evdev) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.devices {
		e.closeLocked(id)
	}
	return nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
