// File: node.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Node is a QRTR bus participant: an id, its ServiceTable, and a
// non-owning relation back to the Bus that created it. Ported from
// libqrtr-glib's qrtr-node.c; the Bus owns every Node exclusively
// (qrtr_control_socket_peek_node/get_node), so the back pointer here is
// documentation of a relation, never a second owner.

package qrtr

import (
	"sync"

	"github.com/linux-mobile-broadband/qrtr-go/api"
)

// Node identifies one QRTR bus participant and the services it exposes.
// Created by Bus on the first service arrival for a node id, destroyed by
// Bus when the node's ServiceTable empties (or the Bus itself closes).
// The zero value is not usable; obtain a Node only from a Bus.
type Node struct {
	id  uint32
	bus *Bus // non-owning: Bus outlives every Node it hands out

	mu          sync.Mutex
	table       *ServiceTable
	published   bool
	pendingAdds []ServiceInfo  // services added while unpublished, flushed at publish
	timer       api.Cancelable // pending debounce timer, bus loop goroutine only

	removedMu   sync.Mutex
	removed     bool
	removedSubs []func()
}

func newNode(bus *Bus, id uint32) *Node {
	return &Node{
		id:    id,
		bus:   bus,
		table: newServiceTable(),
	}
}

// ID returns the node's QRTR bus node id.
func (n *Node) ID() uint32 { return n.id }

// LookupPort resolves a service to the port of its highest-version
// instance on this node.
func (n *Node) LookupPort(service uint32) (uint32, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.table.lookupPort(service)
}

// LookupService resolves a port to the service bound to it.
func (n *Node) LookupService(port uint32) (uint32, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.table.lookupService(port)
}

// HasServices reports whether this node currently exposes any service.
// Restored from qrtr_node_has_services, which libqrtr-glib exposes as
// public API rather than an internal-only check.
func (n *Node) HasServices() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.table.isEmpty()
}

// Services lists every ServiceInfo currently exposed by this node, in the
// order the kernel announced them. Restored from qrtr-node.c's
// service_list enumeration.
func (n *Node) Services() []ServiceInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.table.all()
}

// addService records a newly announced service and returns its ServiceInfo.
// Called only from the Bus loop goroutine.
func (n *Node) addService(service, port, version, instance uint32) ServiceInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.table.add(service, port, version, instance)
}

// removeService deletes the service bound to port, if any. Called only
// from the Bus loop goroutine.
func (n *Node) removeService(port uint32) (ServiceInfo, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.table.remove(port)
}

// isEmpty reports whether the node currently exposes no services.
func (n *Node) isEmpty() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.table.isEmpty()
}

// isPublished reports the node's current publish state.
func (n *Node) isPublished() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.published
}

// publish marks the node published; the caller (Bus) is responsible for
// emitting node-added and flushing pending service-added events exactly
// once, guarded by this same transition.
func (n *Node) publish() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = true
}

// addPending records a service-added event to replay once the node
// publishes, per the debounced model's "node-added precedes any
// service-added the subscriber observes" ordering.
func (n *Node) addPending(info ServiceInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pendingAdds = append(n.pendingAdds, info)
}

// removePending drops the buffered service-added record for port, if any.
// Used when a service is removed again before the node ever published, so
// a publish that happens later does not replay a service-added for a
// service the table no longer has.
func (n *Node) removePending(port uint32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, info := range n.pendingAdds {
		if info.Port == port {
			n.pendingAdds = append(n.pendingAdds[:i], n.pendingAdds[i+1:]...)
			return
		}
	}
}

// takePending returns and clears the buffered pre-publish service list.
func (n *Node) takePending() []ServiceInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	p := n.pendingAdds
	n.pendingAdds = nil
	return p
}

// resetTimer cancels any previously scheduled debounce timer and installs
// c as the new one, matching §4.2's "cancel any pending timer and start a
// new one" discipline, which keeps a burst from producing a duplicate
// node-added.
func (n *Node) resetTimer(c api.Cancelable) {
	n.mu.Lock()
	old := n.timer
	n.timer = c
	n.mu.Unlock()
	if old != nil {
		old.Cancel()
	}
}

// cancelTimer cancels and clears any pending debounce timer, used whenever
// the Bus deletes the node.
func (n *Node) cancelTimer() {
	n.mu.Lock()
	t := n.timer
	n.timer = nil
	n.mu.Unlock()
	if t != nil {
		t.Cancel()
	}
}

// OnRemoved registers fn to run once, when the Bus deletes this node (its
// ServiceTable emptied and, under the debounced publish model, the node
// had already been published) or when the Bus closes. Restored from the node-local "removed"
// signal in qrtr-node.c, kept separate from Bus's node-removed event for
// callers that only hold a Node and never subscribed to the Bus.
func (n *Node) OnRemoved(fn func()) {
	n.removedMu.Lock()
	defer n.removedMu.Unlock()
	if n.removed {
		n.removedMu.Unlock()
		fn()
		n.removedMu.Lock()
		return
	}
	n.removedSubs = append(n.removedSubs, fn)
}

// markRemoved fires every OnRemoved subscriber exactly once. Called by Bus
// from its own loop goroutine only.
func (n *Node) markRemoved() {
	n.removedMu.Lock()
	if n.removed {
		n.removedMu.Unlock()
		return
	}
	n.removed = true
	subs := n.removedSubs
	n.removedSubs = nil
	n.removedMu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
