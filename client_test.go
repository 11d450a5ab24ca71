package qrtr

import (
	"syscall"
	"testing"
	"time"
)

// newTestClient builds a Client without a QRTR socket; a plain unix
// datagram socket stands in so Close has a real descriptor to release.
func newTestClient(t *testing.T, b *Bus, node *Node) *Client {
	t.Helper()
	fd, err := syscall.Socket(syscall.AF_UNIX, syscall.SOCK_DGRAM, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	return &Client{bus: b, node: node, port: 1024, fd: int(fd)}
}

func TestClientAccessors(t *testing.T) {
	b := newTestBus(t)
	node := newNode(b, 5)
	c := newTestClient(t, b, node)

	if c.PeekNode() != node || c.GetNode() != node {
		t.Fatal("PeekNode/GetNode did not return the node the client was built with")
	}
	if c.Port() != 1024 {
		t.Fatalf("Port() = %d, want 1024", c.Port())
	}
}

func TestClientDispatchInvokesOnMessage(t *testing.T) {
	b := newTestBus(t)
	node := newNode(b, 5)
	c := newTestClient(t, b, node)

	received := make(chan []byte, 1)
	c.OnMessage(func(data []byte) { received <- data })

	c.dispatch([]byte("hello"))

	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Fatalf("dispatch delivered %q, want %q", data, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("OnMessage callback never ran")
	}
}

func TestClientDispatchWithNoCallbackDoesNotPanic(t *testing.T) {
	b := newTestBus(t)
	node := newNode(b, 5)
	c := newTestClient(t, b, node)
	c.dispatch([]byte("hello")) // must not panic
}

func TestClientSendAfterCloseFails(t *testing.T) {
	b := newTestBus(t)
	node := newNode(b, 5)
	c := newTestClient(t, b, node)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Send([]byte("x")); err != ErrClientClosed {
		t.Fatalf("Send after Close = %v, want ErrClientClosed", err)
	}
}

func TestClientCloseIsIdempotent(t *testing.T) {
	b := newTestBus(t)
	node := newNode(b, 5)
	c := newTestClient(t, b, node)

	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v, want nil (idempotent)", err)
	}
}

func TestClientShutdownIsClose(t *testing.T) {
	b := newTestBus(t)
	node := newNode(b, 5)
	c := newTestClient(t, b, node)

	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := c.Send([]byte("x")); err != ErrClientClosed {
		t.Fatalf("Send after Shutdown = %v, want ErrClientClosed", err)
	}
}
