//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// QRTR (AF_QIPCRTR) is a Linux-only address family; there is no socket to
// react to on any other platform, so construction simply fails rather than
// carrying dead IOCP/kqueue plumbing.

package reactor

import "github.com/linux-mobile-broadband/qrtr-go/api"

func newReactor() (Reactor, error) {
	return nil, api.NewError(api.ErrCodeSocketCreate, "qrtr is only supported on linux")
}
