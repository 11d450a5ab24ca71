// File: waiter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The wait_for_node dual-completion primitive: a caller blocks until either
// the awaited node is published or a timeout elapses, whichever happens
// first, and the loser is always canceled rather than left to fire later.
// Ported from qrtr-control-socket.c's WaitForNodeContext, which races a
// GSource timeout against the control socket's own dispatch callback the
// same way; here the race is between Bus.firePublish (or Bus.Close) calling
// complete() and the Scheduler's timer callback calling it with a timeout
// error, both funneled through the Bus's single loop goroutine so exactly
// one of them ever wins. A ctx cancellation races the same way: it submits
// its own completion back through the Bus loop rather than walking away
// and leaving the waiter registered.

package qrtr

import (
	"context"
	"sync"

	"github.com/linux-mobile-broadband/qrtr-go/api"
)

// nodeWaiter is one pending WaitForNode call.
type nodeWaiter struct {
	nodeID uint32

	mu       sync.Mutex
	fired    bool
	resultCh chan api.Result[*Node]
	timer    api.Cancelable
}

func newNodeWaiter(nodeID uint32) *nodeWaiter {
	return &nodeWaiter{
		nodeID:   nodeID,
		resultCh: make(chan api.Result[*Node], 1),
	}
}

// setTimer attaches the Cancelable for this waiter's timeout side, so a
// successful complete() can cancel the still-pending timer. Must be called
// before the timer can possibly fire.
func (w *nodeWaiter) setTimer(c api.Cancelable) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		c.Cancel()
		return
	}
	w.timer = c
}

// complete delivers a result if, and only if, nothing has completed this
// waiter yet. Returns false if the waiter had already fired (the caller
// should treat that as a no-op: its own path lost the race). Must run on
// the Bus's loop goroutine, the same goroutine every other waiter
// mutation runs on.
func (w *nodeWaiter) complete(node *Node, err error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		return false
	}
	w.fired = true
	if w.timer != nil {
		w.timer.Cancel()
	}
	w.resultCh <- api.Result[*Node]{Value: node, Err: err}
	return true
}

// wait blocks until complete() delivers a result or ctx is canceled,
// whichever comes first. A ctx cancellation submits its own completion
// back through b's loop goroutine (completeWaiterWithError), unsubscribing
// the waiter from b.waiters and canceling its timeout timer exactly as a
// normal completion would — mirroring Bus.timeoutWaiter rather than
// leaving the waiter registered for some later event to clean up. If that
// submission loses the race against a real completion (or the Bus is
// already closed and rejects the submission), resultCh already holds the
// winning result, so the final read is authoritative either way.
func (w *nodeWaiter) wait(ctx context.Context, b *Bus) (*Node, error) {
	select {
	case r := <-w.resultCh:
		return r.Value, r.Err
	case <-ctx.Done():
		err := ctx.Err()
		done := make(chan struct{})
		if submitErr := b.executor.Submit(func() {
			b.completeWaiterWithError(w, err)
			close(done)
		}); submitErr == nil {
			<-done
		}
		r := <-w.resultCh
		return r.Value, r.Err
	}
}
