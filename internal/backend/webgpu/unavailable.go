//go:build !windows

package webgpu

import (
	"runtime"

	"github.com/born-ml/dyntensor/internal/device"
	"github.com/pkg/errors"
)

// IsAvailable reports whether WebGPU can be used on this system.
func IsAvailable() bool { return false }

func open(device.Config) (device.Backend, error) {
	return nil, errors.Errorf("webgpu: not supported on %s", runtime.GOOS)
}
