// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend for GPU-accelerated kernels.
//
// WebGPU is a cross-platform graphics and compute API. The binding used here ships
// native libraries for Windows; on other platforms the backend is registered but reports
// itself unavailable.
//
// Example:
//
//	import (
//	    "github.com/born-ml/dyntensor/backend/webgpu"
//	    "github.com/born-ml/dyntensor/device"
//	)
//
//	func main() {
//	    cfg := device.DefaultConfig()
//	    if webgpu.IsAvailable() {
//	        cfg.Backend = webgpu.Name
//	    }
//	    ctx, err := device.New(cfg)
//	    ...
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/dyntensor/internal/backend/webgpu"
)

// Name is the registered backend name.
const Name = internalwebgpu.Name

// IsAvailable checks if WebGPU is available on the current system.
//
// This function attempts to initialize a WebGPU adapter to verify
// that a compatible GPU and drivers are present. It's useful for
// graceful fallback to the host backend when GPU is not available.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
