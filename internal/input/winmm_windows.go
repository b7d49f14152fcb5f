//go:build windows

package input

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/rcrelay/rcrelay/internal/control"
)

const (
	joyErrNoError   = 0
	joyErrUnplugged = 167
	joyReturnAll    = 0xff
)

var (
	modWinmm = windows.NewLazySystemDLL("winmm.dll")

	procJoyGetNumDevs = modWinmm.NewProc("joyGetNumDevs")
	procJoyGetDevCaps = modWinmm.NewProc("joyGetDevCapsW")
	procJoyGetPosEx   = modWinmm.NewProc("joyGetPosEx")
)

type winmm struct {
	mu sync.Mutex
}

func openNative(name string) (Platform, error) {
	if name != "" && name != BackendWinmm {
		return nil, fmt.Errorf("input backend %q is not available on windows", name)
	}
	if err := modWinmm.Load(); err != nil {
		return nil, err
	}
	return &winmm{}, nil
}

func (w *winmm) Name() string { return BackendWinmm }

func (w *winmm) Enumerate() ([]DeviceID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, _, _ := procJoyGetNumDevs.Call()
	var out []DeviceID
	for i := uintptr(0); i < n; i++ {
		if _, err := joyGetDevCaps(uint32(i)); err == nil {
			out = append(out, DeviceID("winmm:"+strconv.Itoa(int(i))))
		}
	}
	return out, nil
}

func (w *winmm) Capabilities(id DeviceID) (control.Calibration, error) {
	idx, err := winmmIndex(id)
	if err != nil {
		return control.Calibration{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	buf, err := joyGetDevCaps(idx)
	if err != nil {
		return control.Calibration{}, err
	}
	return DecodeJoyCaps(buf)
}

func (w *winmm) Poll(id DeviceID) (control.RawSample, error) {
	idx, err := winmmIndex(id)
	if err != nil {
		return control.RawSample{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := make([]byte, JoyInfoExSize)
	EncodeJoyInfoExHeader(buf, joyReturnAll)
	r, _, _ := procJoyGetPosEx.Call(uintptr(idx), uintptr(unsafe.Pointer(&buf[0])))
	switch r {
	case joyErrNoError:
		return DecodeJoyInfoEx(buf)
	case joyErrUnplugged:
		return control.RawSample{}, fmt.Errorf("%w: joyGetPosEx(%d) unplugged", ErrDetached, idx)
	default:
		return control.RawSample{}, fmt.Errorf("joyGetPosEx(%d) = %d", idx, r)
	}
}

func (w *winmm) Close() error { return nil }

func joyGetDevCaps(idx uint32) ([]byte, error) {
	buf := make([]byte, JoyCapsSize)
	r, _, _ := procJoyGetDevCaps.Call(uintptr(idx), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if r != joyErrNoError {
		return nil, fmt.Errorf("joyGetDevCapsW(%d) = %d", idx, r)
	}
	return buf, nil
}

func winmmIndex(id DeviceID) (uint32, error) {
	s, ok := strings.CutPrefix(string(id), "winmm:")
	if !ok {
		return 0, fmt.Errorf("not a winmm device: %q", id)
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not a winmm device: %q", id)
	}
	return uint32(n), nil
}
