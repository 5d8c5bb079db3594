// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package device owns the accelerator that tensors and kernels run on.
//
// # Overview
//
// A Context is an initialized device: a backend plus the allocators of its two memory
// arenas. The value heap holds float32 tensor data; the index heap holds uint32 words used
// for pointer tables and int arrays, so that kernels can dereference per-instance pointers
// without host involvement.
//
// Available backends:
//   - host: an emulated accelerator running on a private stream goroutine (default)
//   - webgpu: GPU compute through WebGPU (Windows)
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/dyntensor/device"
//	    "github.com/born-ml/dyntensor/tensor"
//	)
//
//	func main() {
//	    ctx, err := device.New(device.DefaultConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer ctx.Close()
//
//	    w, _ := tensor.NewTensor2D(ctx, 128, 64)
//	    defer w.Release()
//	}
//
// The backend can be chosen with Config.Backend or the DYNTENSOR_BACKEND environment
// variable.
//
// # Execution Model
//
// Kernels are queued on a single stream and run asynchronously in issuance order. Transfers
// and Synchronize block, and report the first asynchronous kernel failure since the previous
// blocking call.
package device
