//go:build !linux && !windows

package input

import "fmt"

func openNative(name string) (Platform, error) {
	if name == "" {
		return nil, fmt.Errorf("no native input backend on this platform")
	}
	return nil, fmt.Errorf("input backend %q is not available on this platform", name)
}
