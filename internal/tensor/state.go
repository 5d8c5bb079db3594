package tensor

import "fmt"

// State records which memory space of a tensor holds the latest values.
type State uint8

const (
	// Synced: host shadow and device copy agree.
	Synced State = iota
	// HostAhead: the host shadow was written since the last transfer.
	HostAhead
	// DeviceAhead: a kernel wrote the device copy since the last transfer.
	DeviceAhead
	// Divergent: both sides were written independently, e.g. a kernel result and its host
	// reference computation. Only a transfer, Verify or Zero leaves this state.
	Divergent
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Synced:
		return "Synced"
	case HostAhead:
		return "HostAhead"
	case DeviceAhead:
		return "DeviceAhead"
	case Divergent:
		return "Divergent"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// HostReadable reports whether the host shadow holds the latest values.
func (s State) HostReadable() bool { return s == Synced || s == HostAhead }

// DeviceReadable reports whether the device copy holds the latest values.
func (s State) DeviceReadable() bool { return s == Synced || s == DeviceAhead }

// afterHostWrite returns the state after the host shadow is written.
func (s State) afterHostWrite() State {
	switch s {
	case Synced:
		return HostAhead
	case DeviceAhead:
		return Divergent
	default:
		return s
	}
}

// afterDeviceWrite returns the state after a kernel writes the device copy.
func (s State) afterDeviceWrite() State {
	switch s {
	case Synced:
		return DeviceAhead
	case HostAhead:
		return Divergent
	default:
		return s
	}
}

// noCopy may be embedded into structs which must not be copied after first use.
// See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

// Lock is a no-op used by the go vet copylocks checker.
func (*noCopy) Lock() {}

// Unlock is a no-op used by the go vet copylocks checker.
func (*noCopy) Unlock() {}
