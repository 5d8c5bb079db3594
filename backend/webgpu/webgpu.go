//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package webgpu

import (
	internalwebgpu "github.com/born-ml/dyntensor/internal/backend/webgpu"
	"github.com/born-ml/dyntensor/internal/device"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements device.Backend.
var _ device.Backend = (*Backend)(nil)

// New creates a standalone WebGPU backend with arenas sized from cfg.
//
// This function initializes the WebGPU device and returns a backend
// ready for kernel launches. Call Release() when done to free GPU resources.
//
// Returns an error if WebGPU initialization fails (e.g., no compatible GPU).
func New(cfg device.Config) (*Backend, error) {
	return internalwebgpu.New(cfg)
}
