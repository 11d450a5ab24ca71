// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reactor is the FD-readable-callback abstraction qrtr.Bus and qrtr.Client
// run their dispatch loops on: register a socket fd plus a callback, block
// in Poll until something is ready, and let the callback run inline.

package reactor

// FDEventType is a bitmask of the conditions a registered fd can report.
type FDEventType uint8

const (
	EventRead FDEventType = 1 << iota
	EventWrite
	EventError
)

// FDCallback is invoked with the fd that became ready and which of the
// registered conditions fired.
type FDCallback func(fd uintptr, events FDEventType)

// Reactor multiplexes readability/writability across registered file
// descriptors. One Reactor backs exactly one qrtr.Bus's control socket
// plus all of that Bus's qrtr.Client sockets — matching the spec's "one
// event loop per Bus" scheduling model.
type Reactor interface {
	// Register starts watching fd for the given events; cb runs inline
	// from Poll whenever one of them fires.
	Register(fd uintptr, events FDEventType, cb FDCallback) error

	// Unregister stops watching fd. Safe to call even if fd was never
	// registered.
	Unregister(fd uintptr) error

	// Poll blocks until at least one registered fd is ready or timeoutMs
	// elapses (negative means block indefinitely), dispatching callbacks
	// for everything ready before returning.
	Poll(timeoutMs int) error

	// Close releases the reactor's own underlying descriptor (epoll fd,
	// IOCP handle, …). Registered fds are not closed; that remains the
	// caller's responsibility.
	Close() error
}

// New constructs the platform-appropriate Reactor.
func New() (Reactor, error) {
	return newReactor()
}
