package qrtr

import "testing"

func TestNodeAddRemoveService(t *testing.T) {
	n := newNode(nil, 5)
	info := n.addService(0x42, 10, 1, 0)
	if info.Service != 0x42 || info.Port != 10 {
		t.Fatalf("addService returned %+v", info)
	}
	if n.isEmpty() {
		t.Fatal("isEmpty() = true right after addService")
	}
	if port, ok := n.LookupPort(0x42); !ok || port != 10 {
		t.Fatalf("LookupPort(0x42) = (%d, %v), want (10, true)", port, ok)
	}
	if service, ok := n.LookupService(10); !ok || service != 0x42 {
		t.Fatalf("LookupService(10) = (0x%x, %v), want (0x42, true)", service, ok)
	}

	if _, ok := n.removeService(10); !ok {
		t.Fatal("removeService(10) reported not-found")
	}
	if !n.isEmpty() {
		t.Fatal("isEmpty() = false after removing the only service")
	}
}

func TestNodeHasServicesAndServices(t *testing.T) {
	n := newNode(nil, 5)
	if n.HasServices() {
		t.Fatal("HasServices() = true on a fresh node")
	}
	n.addService(0x42, 10, 1, 0)
	if !n.HasServices() {
		t.Fatal("HasServices() = false after addService")
	}
	if len(n.Services()) != 1 {
		t.Fatalf("Services() returned %d entries, want 1", len(n.Services()))
	}
}

func TestNodePublishState(t *testing.T) {
	n := newNode(nil, 5)
	if n.isPublished() {
		t.Fatal("isPublished() = true on a fresh node")
	}
	n.publish()
	if !n.isPublished() {
		t.Fatal("isPublished() = false after publish()")
	}
}

func TestNodePendingServices(t *testing.T) {
	n := newNode(nil, 5)
	n.addPending(ServiceInfo{Service: 0x1, Port: 10})
	n.addPending(ServiceInfo{Service: 0x2, Port: 11})

	pending := n.takePending()
	if len(pending) != 2 || pending[0].Service != 0x1 || pending[1].Service != 0x2 {
		t.Fatalf("takePending() = %+v, want [{Service:1} {Service:2}]", pending)
	}

	if again := n.takePending(); len(again) != 0 {
		t.Fatalf("takePending() after drain = %v, want empty", again)
	}
}

func TestNodeRemovePendingDropsMatchingPort(t *testing.T) {
	n := newNode(nil, 5)
	n.addPending(ServiceInfo{Service: 0x1, Port: 10})
	n.addPending(ServiceInfo{Service: 0x2, Port: 11})

	n.removePending(10)

	pending := n.takePending()
	if len(pending) != 1 || pending[0].Service != 0x2 {
		t.Fatalf("takePending() = %+v, want only {Service:2}", pending)
	}
}

func TestNodeRemovePendingNoMatchIsNoop(t *testing.T) {
	n := newNode(nil, 5)
	n.addPending(ServiceInfo{Service: 0x1, Port: 10})

	n.removePending(99) // no entry bound to this port

	pending := n.takePending()
	if len(pending) != 1 || pending[0].Service != 0x1 {
		t.Fatalf("takePending() = %+v, want unchanged [{Service:1}]", pending)
	}
}

type fakeCancelable struct {
	cancelled bool
	done      chan struct{}
}

func newFakeCancelable() *fakeCancelable { return &fakeCancelable{done: make(chan struct{})} }

func (f *fakeCancelable) Cancel() error {
	f.cancelled = true
	return nil
}
func (f *fakeCancelable) Done() <-chan struct{} { return f.done }
func (f *fakeCancelable) Err() error            { return nil }

func TestNodeResetTimerCancelsPrevious(t *testing.T) {
	n := newNode(nil, 5)
	first := newFakeCancelable()
	second := newFakeCancelable()

	n.resetTimer(first)
	n.resetTimer(second)

	if !first.cancelled {
		t.Fatal("resetTimer did not cancel the previously installed timer")
	}
	if second.cancelled {
		t.Fatal("resetTimer cancelled the newly installed timer")
	}
}

func TestNodeCancelTimer(t *testing.T) {
	n := newNode(nil, 5)
	timer := newFakeCancelable()
	n.resetTimer(timer)
	n.cancelTimer()

	if !timer.cancelled {
		t.Fatal("cancelTimer did not cancel the pending timer")
	}

	// idempotent: calling again with no timer installed must not panic
	n.cancelTimer()
}

func TestNodeOnRemovedFiresOnce(t *testing.T) {
	n := newNode(nil, 5)
	calls := 0
	n.OnRemoved(func() { calls++ })
	n.OnRemoved(func() { calls++ })

	n.markRemoved()
	if calls != 2 {
		t.Fatalf("calls = %d after markRemoved, want 2", calls)
	}

	n.markRemoved()
	if calls != 2 {
		t.Fatalf("calls = %d after second markRemoved, want 2 (no double-fire)", calls)
	}
}

func TestNodeOnRemovedAfterAlreadyRemovedFiresImmediately(t *testing.T) {
	n := newNode(nil, 5)
	n.markRemoved()

	fired := false
	n.OnRemoved(func() { fired = true })
	if !fired {
		t.Fatal("OnRemoved did not fire immediately for an already-removed node")
	}
}
