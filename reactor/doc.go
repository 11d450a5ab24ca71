// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the FD-readable-callback event reactor used by
// qrtr.Bus and qrtr.Client: epoll on Linux, a construction-time error
// everywhere else, since QRTR itself is Linux-only.
package reactor
