// Package neterr distinguishes the simulation's two error classes:
// fatal configuration mistakes the façade surfaces to its caller, and
// silent runtime drops that the protocol modules log (under DEBUG, or
// under their own protocol's source) and move on from. See spec §7.
package neterr

import (
	"errors"
	"fmt"
)

// Sentinel runtime-drop conditions. These are never returned up through
// the façade; modules check for them internally and log+continue.
var (
	ErrNoRoute     = errors.New("no routing table entry for destination")
	ErrNoARPEntry  = errors.New("no ARP mapping for next hop")
	ErrStaleLSP    = errors.New("duplicate or stale LSP, dropped")
	ErrBGPLoop     = errors.New("as-path loop, update dropped")
	ErrPeerGone    = errors.New("peer channel closed")
)

// ConfigError is a fatal façade-level configuration mistake: unknown
// device, a port already bound, or a command unsupported on the device
// kind it was sent to. The façade returns these; it never panics on
// them and never proceeds past them.
type ConfigError struct {
	Op     string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Op, e.Detail)
}

// NewConfigError builds a ConfigError for op with the given detail.
func NewConfigError(op, detail string) *ConfigError {
	return &ConfigError{Op: op, Detail: detail}
}

// UnknownDeviceError reports a façade command addressed to a device
// name that was never registered.
func UnknownDeviceError(name string) *ConfigError {
	return NewConfigError("unknown-device", fmt.Sprintf("device %q is not registered", name))
}

// DuplicatePortError reports an attempt to bind a port already in use
// on a device.
func DuplicatePortError(device string, port int) *ConfigError {
	return NewConfigError("duplicate-port", fmt.Sprintf("port %d already bound on %q", port, device))
}

// UnsupportedCommandError reports a command sent to a device kind that
// cannot service it (e.g. Ping on a switch).
func UnsupportedCommandError(device, command, kind string) *ConfigError {
	return NewConfigError("unsupported-command", fmt.Sprintf("%q does not support %s on a %s", device, command, kind))
}
