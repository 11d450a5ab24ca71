//go:build !linux
// +build !linux

// File: socket_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// AF_QIPCRTR is a Linux-only address family; every other platform fails
// socket construction immediately rather than carrying dead syscall
// plumbing, matching reactor/reactor_stub.go.

package qrtr

import "github.com/linux-mobile-broadband/qrtr-go/api"

type sockaddrQrtr struct {
	family uint16
	node   uint32
	port   uint32
}

func newQrtrSocket() (int, error) {
	return -1, api.NewError(api.ErrCodeSocketCreate, "qrtr is only supported on linux")
}

func bindAny(int) error                                { return api.ErrNotSupported }
func getsockname(int) (sockaddrQrtr, error)             { return sockaddrQrtr{}, api.ErrNotSupported }
func sendTo(int, []byte, uint32, uint32) error          { return api.ErrNotSupported }
func recvFrom(int, []byte) (int, uint32, uint32, error) { return 0, 0, 0, api.ErrNotSupported }
func closeSocket(int) error                             { return nil }
func isWouldBlock(error) bool                           { return false }
