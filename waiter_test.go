package qrtr

import (
	"context"
	"testing"
	"time"
)

func TestNodeWaiterCompleteIsExclusive(t *testing.T) {
	b := newTestBus(t)
	w := newNodeWaiter(5)
	node := &Node{id: 5}

	if ok := w.complete(node, nil); !ok {
		t.Fatal("first complete() call returned false")
	}
	if ok := w.complete(nil, ErrWaitTimeout); ok {
		t.Fatal("second complete() call returned true, want exclusive single-fire")
	}

	got, err := w.wait(context.Background(), b)
	if err != nil || got != node {
		t.Fatalf("wait() = (%v, %v), want (%v, nil) from the first completion", got, err, node)
	}
}

func TestNodeWaiterCompleteCancelsTimer(t *testing.T) {
	w := newNodeWaiter(5)
	timer := newFakeCancelable()
	w.setTimer(timer)

	w.complete(&Node{id: 5}, nil)
	if !timer.cancelled {
		t.Fatal("complete() did not cancel the installed timer")
	}
}

func TestNodeWaiterSetTimerAfterCompleteCancelsImmediately(t *testing.T) {
	w := newNodeWaiter(5)
	w.complete(&Node{id: 5}, nil)

	timer := newFakeCancelable()
	w.setTimer(timer)
	if !timer.cancelled {
		t.Fatal("setTimer after complete() should cancel the timer immediately")
	}
}

func TestNodeWaiterWaitTimeoutPath(t *testing.T) {
	b := newTestBus(t)
	w := newNodeWaiter(5)
	w.complete(nil, ErrWaitTimeout)

	got, err := w.wait(context.Background(), b)
	if got != nil || err != ErrWaitTimeout {
		t.Fatalf("wait() = (%v, %v), want (nil, ErrWaitTimeout)", got, err)
	}
}

func TestNodeWaiterWaitRespectsContextCancellation(t *testing.T) {
	b := newTestBus(t)
	w := newNodeWaiter(5)
	b.waiters[5] = append(b.waiters[5], w)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := w.wait(ctx, b)
	if err != context.DeadlineExceeded {
		t.Fatalf("wait() err = %v, want context.DeadlineExceeded", err)
	}
	if len(b.waiters[5]) != 0 {
		t.Fatalf("b.waiters[5] = %v, want empty after ctx cancellation cleanup", b.waiters[5])
	}
}
