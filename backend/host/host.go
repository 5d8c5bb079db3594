// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package host provides the emulated accelerator backend.
//
// The host backend keeps device memory in private arenas and runs kernels on a stream
// goroutine, so code written against it behaves the same way on a real GPU: launches are
// asynchronous and values only cross between host and device through explicit transfers.
//
// It is registered under Name and is the default backend. Most programs select it through
// device.Config rather than constructing it directly.
package host

import (
	internalhost "github.com/born-ml/dyntensor/internal/backend/host"
	"github.com/born-ml/dyntensor/internal/device"
)

// Name is the registered backend name.
const Name = internalhost.Name

// Backend represents the host backend implementation.
type Backend = internalhost.Backend

// Compile-time check that Backend implements device.Backend.
var _ device.Backend = (*Backend)(nil)

// New creates a standalone host backend with arenas sized from cfg.
//
// Example:
//
//	b, err := host.New(device.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Release()
func New(cfg device.Config) (*Backend, error) {
	return internalhost.New(cfg)
}
