// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package device

import (
	// Register the built-in backends.
	_ "github.com/born-ml/dyntensor/internal/backend/host"
	_ "github.com/born-ml/dyntensor/internal/backend/webgpu"

	"github.com/born-ml/dyntensor/internal/device"
)

// EnvBackend is the environment variable that selects the default backend by name.
const EnvBackend = device.EnvBackend

// Context is an initialized device with its memory arenas.
type Context = device.Context

// Config configures a Context.
type Config = device.Config

// Ptr addresses an element of the value heap.
type Ptr = device.Ptr

// IndexPtr addresses a word of the index heap.
type IndexPtr = device.IndexPtr

// MemoryStats reports device memory usage of a Context.
type MemoryStats = device.MemoryStats

// HeapStats is a snapshot of one arena's allocator.
type HeapStats = device.HeapStats

// Backend is the interface device implementations satisfy.
type Backend = device.Backend

// ErrOutOfMemory is returned (wrapped) when an arena cannot satisfy an allocation.
var ErrOutOfMemory = device.ErrOutOfMemory

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return device.DefaultConfig()
}

// New creates a Context on the backend named by cfg.Backend.
//
// Example:
//
//	cfg := device.DefaultConfig()
//	cfg.Backend = "webgpu"
//	ctx, err := device.New(cfg)
func New(cfg Config) (*Context, error) {
	return device.New(cfg)
}

// Init creates the process-wide default Context once; later calls return the same Context
// and ignore their configuration.
func Init(cfg Config) (*Context, error) {
	return device.Init(cfg)
}

// Default returns the Context created by Init, or nil.
func Default() *Context {
	return device.Default()
}

// Backends returns the names of all registered backends.
func Backends() []string {
	return device.Backends()
}
