// Package main provides the dyntensor CLI.
//
// Usage:
//
//	dyntensor version
//	dyntensor devices
//	dyntensor [-backend webgpu] [-size 64] selfcheck
//
// selfcheck runs every kernel on the chosen backend and compares the results with the host
// reference implementations.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/born-ml/dyntensor/device"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

var (
	flagBackend = flag.String("backend", device.DefaultConfig().Backend,
		"Backend to use, one of the names listed by the devices command.")
	flagHeap  = flag.Int("heap", 1<<20, "Value heap size, in float32 elements.")
	flagIndex = flag.Int("index", 1<<14, "Index heap size, in uint32 words.")
	flagSeed  = flag.Uint64("seed", 42, "Seed of the initialization RNG.")
	flagSize  = flag.Int("size", 64, "Problem size used by selfcheck (at least 2).")
)

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()

	ok := true
	err := exceptions.TryCatch[error](func() {
		switch cmd := flag.Arg(0); cmd {
		case "version":
			fmt.Printf("dyntensor %s\n", version)
		case "devices":
			listDevices()
		case "selfcheck":
			ok = selfCheck(must.M1(device.New(config())), max(*flagSize, 2))
		case "":
			usage()
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
			usage()
			ok = false
		}
	})
	if err != nil {
		klog.Errorf("Error:\n%+v", err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "dyntensor %s: device-resident tensors and batched kernels\n\n", version)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  version    Show version")
	fmt.Fprintln(out, "  devices    List registered backends and whether they can be opened")
	fmt.Fprintln(out, "  selfcheck  Run all kernels and compare them with the host reference")
	fmt.Fprintln(out, "\nFlags:")
	flag.PrintDefaults()
}

func config() device.Config {
	cfg := device.DefaultConfig()
	cfg.Backend = *flagBackend
	cfg.HeapSize = *flagHeap
	cfg.IndexHeapSize = *flagIndex
	cfg.Seed = *flagSeed
	return cfg
}

// listDevices tries to open every registered backend with small arenas.
func listDevices() {
	for _, name := range device.Backends() {
		cfg := config()
		cfg.Backend = name
		cfg.HeapSize, cfg.IndexHeapSize = 1024, 256
		ctx, err := device.New(cfg)
		if err != nil {
			fmt.Printf("%-8s unavailable: %v\n", name, err)
			continue
		}
		fmt.Printf("%-8s %s\n", name, ctx.Name())
		must.M(ctx.Close())
	}
}
