// File: client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Client is a per-(node,port) datagram channel: its own QRTR socket bound
// to an auto-assigned local port, multiplexed on the owning Bus's shared
// event loop so every OnMessage callback, like every Bus event, runs on
// that one dispatch goroutine. Ported from libqrtr-glib's qrtr-client.h
// (qrtr_client_new/peek_node/get_port/send); message delivery is this
// repo's Go-idiomatic stand-in for the ::client-message signal.

package qrtr

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/linux-mobile-broadband/qrtr-go/api"
	"github.com/linux-mobile-broadband/qrtr-go/reactor"
)

// Client sends and receives datagrams with one port on one Node.
type Client struct {
	bus  *Bus
	node *Node
	port uint32 // the node's port this client talks to, not its own local port

	fd int

	msgMu     sync.Mutex
	onMessage func([]byte)

	closed    int32 // atomic; Send/Close may race with the reactor callback goroutine
	closeOnce sync.Once
}

// NewClient opens a Client socket for talking to port on node, registered
// on this Bus's shared reactor.
func (b *Bus) NewClient(node *Node, port uint32) (*Client, error) {
	fd, err := newQrtrSocket()
	if err != nil {
		return nil, err
	}
	if err := bindAny(fd); err != nil {
		closeSocket(fd)
		return nil, err
	}

	c := &Client{bus: b, node: node, port: port, fd: fd}
	if err := b.rct.Register(uintptr(fd), reactor.EventRead, c.onReadable); err != nil {
		closeSocket(fd)
		return nil, err
	}
	return c, nil
}

// PeekNode returns the Node this client talks to.
func (c *Client) PeekNode() *Node { return c.node }

// GetNode is PeekNode; kept for symmetry with qrtr_client_get_node (Go's GC
// removes the reference-counting distinction the C API made).
func (c *Client) GetNode() *Node { return c.node }

// Port returns the node port this client communicates with.
func (c *Client) Port() uint32 { return c.port }

// OnMessage registers the callback invoked, on the Bus's dispatch
// goroutine, once per received datagram, in kernel delivery order.
// Replaces any previously registered callback.
func (c *Client) OnMessage(fn func([]byte)) {
	c.msgMu.Lock()
	defer c.msgMu.Unlock()
	c.onMessage = fn
}

// Send transmits message to this client's (node, port) destination.
func (c *Client) Send(message []byte) error {
	if atomic.LoadInt32(&c.closed) != 0 {
		return ErrClientClosed
	}
	return sendTo(c.fd, message, c.node.ID(), c.port)
}

// onReadable runs inline from the shared Reactor's Poll, on the pollLoop
// goroutine; reading is pure socket I/O, so the resulting callback is
// handed to the Bus executor the same way control-packet dispatch is.
func (c *Client) onReadable(fd uintptr, events reactor.FDEventType) {
	for {
		buf := make([]byte, 65536)
		n, _, _, err := recvFrom(int(fd), buf)
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			log.Warn().Err(err).Uint32("port", c.port).Msg("qrtr: client socket i/o failure, closing")
			c.Close()
			return
		}
		data := buf[:n]
		if submitErr := c.bus.executor.Submit(func() { c.dispatch(data) }); submitErr != nil {
			return
		}
	}
}

func (c *Client) dispatch(data []byte) {
	c.msgMu.Lock()
	fn := c.onMessage
	c.msgMu.Unlock()
	if fn != nil {
		fn(data)
	}
}

var _ api.GracefulShutdown = (*Client)(nil)

// Shutdown is Close, satisfying api.GracefulShutdown.
func (c *Client) Shutdown() error { return c.Close() }

// Close unregisters and closes the client's socket. Idempotent; further
// Send calls return ErrClientClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.closed, 1)
		c.bus.rct.Unregister(uintptr(c.fd))
		err = closeSocket(c.fd)
	})
	return err
}
