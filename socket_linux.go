//go:build linux
// +build linux

// File: socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw QRTR datagram socket syscalls. AF_QIPCRTR (42) and struct
// sockaddr_qrtr are not known to golang.org/x/sys/unix's Sockaddr
// marshaling helpers (Bind/Sendto/Recvfrom/Getsockname only recognize a
// fixed set of address families), so this file talks to the kernel one
// level below those helpers: raw unix.Syscall/Syscall6 calls against
// our own sockaddr_qrtr layout, the same unsafe-pointer style the teacher
// uses in reactor/reactor_linux.go to poke epoll_event.Pad.

package qrtr

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// sockaddrQrtr mirrors the kernel's struct sockaddr_qrtr:
//
//	__kernel_sa_family_t sq_family; // u16
//	__u32                sq_node;
//	__u32                sq_port;
//
// The compiler pads 2 bytes after sq_family to align sq_node; this layout
// reproduces that padding explicitly so unsafe.Pointer casts line up.
type sockaddrQrtr struct {
	family uint16
	_      uint16
	node   uint32
	port   uint32
}

const sizeofSockaddrQrtr = unsafe.Sizeof(sockaddrQrtr{})

func newQrtrSocket() (fd int, err error) {
	// SOCK_NONBLOCK so the reactor's epoll-driven Register/Poll loop never
	// blocks the single dispatch path on a single datagram read.
	fd, err = unix.Socket(AFQIPCRTR, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("qrtr socket: %w", err)
	}
	return fd, nil
}

func bindAny(fd int) error {
	// An all-zero sockaddr_qrtr lets the kernel auto-assign both the local
	// node and a free port.
	addr := sockaddrQrtr{family: AFQIPCRTR}
	_, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd),
		uintptr(unsafe.Pointer(&addr)), uintptr(sizeofSockaddrQrtr))
	if errno != 0 {
		return fmt.Errorf("qrtr bind: %w", errno)
	}
	return nil
}

func getsockname(fd int) (sockaddrQrtr, error) {
	var addr sockaddrQrtr
	size := uint32(sizeofSockaddrQrtr)
	_, _, errno := unix.Syscall(unix.SYS_GETSOCKNAME, uintptr(fd),
		uintptr(unsafe.Pointer(&addr)), uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return sockaddrQrtr{}, fmt.Errorf("qrtr getsockname: %w", errno)
	}
	if addr.family != AFQIPCRTR {
		return sockaddrQrtr{}, fmt.Errorf("qrtr getsockname: unexpected family %d", addr.family)
	}
	return addr, nil
}

func sendTo(fd int, buf []byte, node, port uint32) error {
	addr := sockaddrQrtr{family: AFQIPCRTR, node: node, port: port}
	var bufPtr unsafe.Pointer
	if len(buf) > 0 {
		bufPtr = unsafe.Pointer(&buf[0])
	}
	_, _, errno := unix.Syscall6(unix.SYS_SENDTO, uintptr(fd),
		uintptr(bufPtr), uintptr(len(buf)), 0,
		uintptr(unsafe.Pointer(&addr)), uintptr(sizeofSockaddrQrtr))
	if errno != 0 {
		return fmt.Errorf("qrtr sendto: %w", errno)
	}
	return nil
}

func recvFrom(fd int, buf []byte) (n int, node, port uint32, err error) {
	var addr sockaddrQrtr
	size := uint32(sizeofSockaddrQrtr)
	var bufPtr unsafe.Pointer
	if len(buf) > 0 {
		bufPtr = unsafe.Pointer(&buf[0])
	}
	r, _, errno := unix.Syscall6(unix.SYS_RECVFROM, uintptr(fd),
		uintptr(bufPtr), uintptr(len(buf)), 0,
		uintptr(unsafe.Pointer(&addr)), uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		// Returned bare (not wrapped) so callers on a non-blocking socket can
		// errors.Is(err, unix.EAGAIN) to detect "nothing left to read" rather
		// than a real I/O failure.
		if errno == unix.EAGAIN || errno == unix.EWOULDBLOCK {
			return 0, 0, 0, errno
		}
		return 0, 0, 0, fmt.Errorf("qrtr recvfrom: %w", errno)
	}
	return int(r), addr.node, addr.port, nil
}

func closeSocket(fd int) error {
	return unix.Close(fd)
}

// isWouldBlock reports whether err is the EAGAIN/EWOULDBLOCK recvFrom
// returns bare (unwrapped) when a non-blocking socket has nothing left to
// read.
func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}
