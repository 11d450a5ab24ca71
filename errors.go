// File: errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Domain-level error values returned by Bus and Client, built on top of
// api.Error/api.ErrorCode the way the teacher's own packages report
// errors (see api/errors.go), specialized to the error kinds spec.md §7
// enumerates.

package qrtr

import "github.com/linux-mobile-broadband/qrtr-go/api"

// Sentinel errors returned by Bus and Client operations. Callers should
// compare with errors.Is; all of them are *api.Error values, so ErrorCode
// is also recoverable with errors.As.
var (
	// ErrBusClosed is returned by WaitForNode called after Close. The
	// query methods report a closed Bus as an empty result instead.
	ErrBusClosed = api.NewError(api.ErrCodeCancelled, "bus is closed")

	// ErrClientClosed is returned by Send called after Close.
	ErrClientClosed = api.NewError(api.ErrCodeCancelled, "client is closed")

	// ErrWaitTimeout is returned by WaitForNode when its timeoutMs elapses
	// before the awaited node is published.
	ErrWaitTimeout = api.NewError(api.ErrCodeTimedOut, "wait for node: timed out")

	// ErrNodeUnknown is returned by GetNode (as opposed to PeekNode, which
	// returns ok=false instead) when asked for a node id that is not
	// currently published on the Bus.
	ErrNodeUnknown = api.NewError(api.ErrCodeUnknownPort, "node unknown")
)
