// File: bus.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bus owns the QRTR control socket, parses NEW_SERVER/DEL_SERVER control
// packets, maintains the node/service registry, and implements the
// debounced node-publish state machine plus wait_for_node. Every state
// mutation and every subscriber callback runs on a single internal
// dispatch goroutine (via internal/concurrency.Executor), matching §5's
// "single-threaded cooperative" scheduling model: the rest of the package
// only ever talks to that goroutine through Submit, never by locking Bus
// state directly. Grounded on qrtr-control-socket.c (initable_init,
// qrtr_ctrl_message_cb, add_service_info/remove_service_info,
// wait_for_node_*) for control flow, and qrtr-bus.h for the debounced
// publish model this library picked (see SPEC_FULL.md Supplemented
// Features).

package qrtr

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/linux-mobile-broadband/qrtr-go/api"
	"github.com/linux-mobile-broadband/qrtr-go/control"
	"github.com/linux-mobile-broadband/qrtr-go/internal/concurrency"
	"github.com/linux-mobile-broadband/qrtr-go/reactor"
)

// publishTimeoutNanos is PUBLISH_TIMEOUT_MS from §4.2: the debounce window
// a newly-seen node's service burst must go quiet for before node-added
// fires.
const publishTimeoutNanos = int64(100 * time.Millisecond)

// EventKind classifies a Bus notification.
type EventKind int

const (
	EventNodeAdded EventKind = iota
	EventNodeRemoved
	EventServiceAdded
	EventServiceRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventNodeAdded:
		return "node-added"
	case EventNodeRemoved:
		return "node-removed"
	case EventServiceAdded:
		return "service-added"
	case EventServiceRemoved:
		return "service-removed"
	default:
		return "unknown"
	}
}

// Event is one discovery notification delivered to every Bus subscriber,
// always from the Bus's own dispatch goroutine.
type Event struct {
	Kind    EventKind
	NodeID  uint32
	Service uint32 // meaningful for EventServiceAdded/EventServiceRemoved only
}

// Bus is the QRTR discovery/routing entry point: one control socket, one
// node registry, one dispatch goroutine.
type Bus struct {
	fd                    int
	localNode, localPort  uint32
	rct                   reactor.Reactor
	executor              *concurrency.Executor
	scheduler             *concurrency.Scheduler
	control               *control.ConfigStore

	nodes   map[uint32]*Node
	waiters map[uint32][]*nodeWaiter

	subMu     sync.Mutex
	subs      map[int]func(Event)
	nextSubID int

	lookupTimeoutMs int
	lookupDone      bool
	lookupTimer     api.Cancelable
	idleTimer       api.Cancelable
	readyCh         chan struct{}
	readyErr        error

	closeOnce sync.Once
	stopPoll  chan struct{}
	pollDone  chan struct{}
}

// NewBus creates a Bus: opens a QRTR control socket, registers this
// process as a listener via NEW_LOOKUP, and starts the dispatch loop.
//
// If lookupTimeoutMs is zero, NewBus returns as soon as the socket is set
// up and the caller must itself wait for events. If positive, NewBus
// blocks until either the kernel's NEW_LOOKUP reply burst has gone idle
// for one debounce interval, or lookupTimeoutMs elapses with no reply at
// all — in which case it returns ErrCodeLookupTimeout. ctx cancellation
// during that wait aborts construction and tears everything down.
func NewBus(ctx context.Context, lookupTimeoutMs int) (*Bus, error) {
	fd, err := newQrtrSocket()
	if err != nil {
		return nil, api.NewError(api.ErrCodeSocketCreate, "open qrtr socket: "+err.Error())
	}
	if err := bindAny(fd); err != nil {
		closeSocket(fd)
		return nil, api.NewError(api.ErrCodeSocketIO, "bind qrtr socket: "+err.Error())
	}
	addr, err := getsockname(fd)
	if err != nil {
		closeSocket(fd)
		return nil, api.NewError(api.ErrCodeSocketIO, "getsockname: "+err.Error())
	}
	if err := sendTo(fd, encodeNewLookup(), addr.node, QRTRPortCtrl); err != nil {
		closeSocket(fd)
		return nil, api.NewError(api.ErrCodeSocketIO, "send new_lookup: "+err.Error())
	}

	rct, err := reactor.New()
	if err != nil {
		closeSocket(fd)
		return nil, err
	}

	b := &Bus{
		fd:              fd,
		localNode:       addr.node,
		localPort:       addr.port,
		rct:             rct,
		executor:        concurrency.NewExecutor(),
		scheduler:       concurrency.NewScheduler(),
		control:         control.NewConfigStore(),
		nodes:           make(map[uint32]*Node),
		waiters:         make(map[uint32][]*nodeWaiter),
		subs:            make(map[int]func(Event)),
		lookupTimeoutMs: lookupTimeoutMs,
		readyCh:         make(chan struct{}),
		stopPoll:        make(chan struct{}),
		pollDone:        make(chan struct{}),
	}

	b.control.SetConfig(map[string]any{"lookup_timeout_ms": lookupTimeoutMs})
	b.control.RegisterDebugProbe("node_count", func() any { return b.nodeCount() })
	b.control.RegisterDebugProbe("published_node_count", func() any { return b.publishedNodeCount() })

	if err := rct.Register(uintptr(fd), reactor.EventRead, b.onReadable); err != nil {
		b.teardownSocket()
		return nil, err
	}
	go b.pollLoop()

	if lookupTimeoutMs <= 0 {
		close(b.readyCh)
		return b, nil
	}

	b.executor.Submit(b.scheduleLookupDeadline)
	select {
	case <-b.readyCh:
		if b.readyErr != nil {
			b.Close()
			return nil, b.readyErr
		}
		return b, nil
	case <-ctx.Done():
		b.Close()
		return nil, ctx.Err()
	}
}

// LocalNode returns this process's own QRTR node id.
func (b *Bus) LocalNode() uint32 { return b.localNode }

// Control exposes this Bus's live config/stats/debug-probe surface.
func (b *Bus) Control() api.Control { return b.control }

/***** dispatch loop *****/

func (b *Bus) pollLoop() {
	defer close(b.pollDone)
	for {
		select {
		case <-b.stopPoll:
			return
		default:
		}
		if err := b.rct.Poll(200); err != nil {
			log.Error().Err(err).Msg("qrtr: reactor poll failed")
			return
		}
	}
}

// onReadable runs on the pollLoop goroutine (inline from Reactor.Poll). It
// only does socket I/O; every resulting state mutation is handed to the
// executor so it happens exclusively on the Bus's single dispatch
// goroutine, per the single-threaded cooperative model in §5.
func (b *Bus) onReadable(fd uintptr, events reactor.FDEventType) {
	for {
		buf := make([]byte, ctrlPacketSize)
		n, _, _, err := recvFrom(int(fd), buf)
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			log.Warn().Err(err).Msg("qrtr: control socket i/o failure")
			return
		}
		data := buf[:n]
		if submitErr := b.executor.Submit(func() { b.handlePacket(data) }); submitErr != nil {
			return // bus closed concurrently
		}
	}
}

func (b *Bus) handlePacket(buf []byte) {
	b.noteLookupProgress()

	pkt, ok := decodeCtrlPacket(buf)
	if !ok {
		log.Debug().Msg("qrtr: short packet received: ignoring")
		return
	}

	switch pkt.cmd {
	case qrtrTypeNewServer:
		version, instance := splitInstance(pkt.instance)
		b.addServiceInfo(pkt.node, pkt.port, pkt.service, version, instance)
	case qrtrTypeDelServer:
		version, instance := splitInstance(pkt.instance)
		b.removeServiceInfo(pkt.node, pkt.port, pkt.service, version, instance)
	default:
		log.Debug().Uint32("cmd", pkt.cmd).Msg("qrtr: unknown packet type received")
	}
}

/***** registry mutation (dispatch goroutine only) *****/

func (b *Bus) addServiceInfo(nodeID, port, service, version, instance uint32) {
	node, exists := b.nodes[nodeID]
	if !exists {
		node = newNode(b, nodeID)
		b.nodes[nodeID] = node
		log.Debug().Uint32("node", nodeID).Msg("qrtr: created new node")
	}

	info := node.addService(service, port, version, instance)

	if node.isPublished() {
		b.emit(Event{Kind: EventServiceAdded, NodeID: nodeID, Service: service})
		return
	}

	node.addPending(info)
	b.armPublishTimer(node)
}

func (b *Bus) removeServiceInfo(nodeID, port, service, version, instance uint32) {
	node, exists := b.nodes[nodeID]
	if !exists {
		log.Warn().Uint32("node", nodeID).Msg("qrtr: cannot remove service info: nonexistent node")
		return
	}

	if _, ok := node.removeService(port); !ok {
		return
	}

	if node.isPublished() {
		b.emit(Event{Kind: EventServiceRemoved, NodeID: nodeID, Service: service})
	} else {
		// Never announced yet: drop the buffered service-added record too,
		// or firePublish would replay a ghost event for a service the table
		// no longer has.
		node.removePending(port)
	}

	if !node.isEmpty() {
		return
	}

	node.cancelTimer()
	delete(b.nodes, nodeID)
	if node.isPublished() {
		log.Debug().Uint32("node", nodeID).Msg("qrtr: removing node")
		b.emit(Event{Kind: EventNodeRemoved, NodeID: nodeID})
		node.markRemoved()
	}
}

// armPublishTimer (re)schedules nodeID's debounce timer, canceling any
// prior one first — the one-node-added-per-burst guarantee from §4.2 and
// invariant 7.
func (b *Bus) armPublishTimer(node *Node) {
	c, err := b.scheduler.Schedule(publishTimeoutNanos, func() {
		b.executor.Submit(func() { b.firePublish(node) })
	})
	if err != nil {
		log.Error().Err(err).Msg("qrtr: failed to arm publish timer")
		return
	}
	node.resetTimer(c)
}

// firePublish runs on the dispatch goroutine (via executor.Submit from the
// scheduler callback). It publishes node unless it was removed or already
// published in the meantime, flushing every service-added event buffered
// during the debounce window.
func (b *Bus) firePublish(node *Node) {
	if b.nodes[node.id] != node {
		return // node was removed (and possibly replaced) before the timer fired
	}
	if node.isPublished() {
		return
	}
	node.publish()
	b.emit(Event{Kind: EventNodeAdded, NodeID: node.id})
	for _, info := range node.takePending() {
		b.emit(Event{Kind: EventServiceAdded, NodeID: node.id, Service: info.Service})
	}
	b.completeWaiters(node)
}

func (b *Bus) completeWaiters(node *Node) {
	waiters := b.waiters[node.id]
	delete(b.waiters, node.id)
	for _, w := range waiters {
		w.complete(node, nil)
	}
}

/***** queries *****/

// PeekNode looks up a node without implying a distinct ownership
// transfer — Go's garbage collector makes qrtr_control_socket_peek_node
// and qrtr_control_socket_get_node equivalent, so both are exposed for
// call-site clarity. Hides unpublished nodes, per the decision recorded in
// SPEC_FULL.md's Supplemented Features.
func (b *Bus) PeekNode(nodeID uint32) (*Node, bool) {
	result := make(chan *Node, 1)
	if err := b.executor.Submit(func() {
		node, ok := b.nodes[nodeID]
		if ok && node.isPublished() {
			result <- node
		} else {
			result <- nil
		}
	}); err != nil {
		return nil, false
	}
	node := <-result
	return node, node != nil
}

// GetNode is PeekNode, returning ErrNodeUnknown instead of ok=false.
func (b *Bus) GetNode(nodeID uint32) (*Node, error) {
	node, ok := b.PeekNode(nodeID)
	if !ok {
		return nil, ErrNodeUnknown
	}
	return node, nil
}

// PeekNodes lists every currently published node.
func (b *Bus) PeekNodes() []*Node {
	result := make(chan []*Node, 1)
	if err := b.executor.Submit(func() {
		out := make([]*Node, 0, len(b.nodes))
		for _, node := range b.nodes {
			if node.isPublished() {
				out = append(out, node)
			}
		}
		result <- out
	}); err != nil {
		return nil
	}
	return <-result
}

// GetNodes is an alias of PeekNodes kept for symmetry with the original
// peek/get pairing; Go's GC removes any distinction between the two.
func (b *Bus) GetNodes() []*Node { return b.PeekNodes() }

func (b *Bus) nodeCount() int {
	result := make(chan int, 1)
	if err := b.executor.Submit(func() { result <- len(b.nodes) }); err != nil {
		return 0
	}
	return <-result
}

func (b *Bus) publishedNodeCount() int {
	result := make(chan int, 1)
	if err := b.executor.Submit(func() {
		n := 0
		for _, node := range b.nodes {
			if node.isPublished() {
				n++
			}
		}
		result <- n
	}); err != nil {
		return 0
	}
	return <-result
}

/***** wait_for_node *****/

// WaitForNode resolves with the node as soon as it is published, or with
// ErrWaitTimeout if timeoutMs elapses first (0 means no timeout, wait
// forever or until ctx is canceled). Multiple concurrent waiters for the
// same node id all complete, in subscription order, off the same
// node-added event — see completeWaiters. Ported from
// qrtr_control_socket_wait_for_node's dual-completion WaitForNodeContext:
// whichever of the publish signal or the timer fires first takes
// exclusive ownership of the result and cancels the other.
func (b *Bus) WaitForNode(ctx context.Context, nodeID uint32, timeoutMs int) (*Node, error) {
	if node, ok := b.PeekNode(nodeID); ok {
		return node, nil
	}

	w := newNodeWaiter(nodeID)
	registered := make(chan struct{})
	if err := b.executor.Submit(func() {
		if b.nodes == nil {
			w.complete(nil, ErrBusClosed)
			close(registered)
			return
		}
		if node, ok := b.nodes[nodeID]; ok && node.isPublished() {
			w.complete(node, nil)
			close(registered)
			return
		}
		b.waiters[nodeID] = append(b.waiters[nodeID], w)
		if timeoutMs > 0 {
			c, err := b.scheduler.Schedule(int64(timeoutMs)*int64(time.Millisecond), func() {
				b.executor.Submit(func() { b.timeoutWaiter(w) })
			})
			if err == nil {
				w.setTimer(c)
			}
		}
		close(registered)
	}); err != nil {
		return nil, ErrBusClosed
	}
	<-registered

	return w.wait(ctx, b)
}

func (b *Bus) timeoutWaiter(w *nodeWaiter) {
	b.completeWaiterWithError(w, ErrWaitTimeout)
}

// completeWaiterWithError completes w with err and unsubscribes it from
// b.waiters. If something else already completed w it does nothing: every
// other completion path (publish, Close, registration) has already taken
// w out of b.waiters or never put it there. Shared by the timeout path and wait()'s ctx-cancellation cleanup, both
// of which race a live publish the same way.
func (b *Bus) completeWaiterWithError(w *nodeWaiter, err error) {
	if !w.complete(nil, err) {
		return
	}
	list := b.waiters[w.nodeID]
	for i, other := range list {
		if other == w {
			b.waiters[w.nodeID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.waiters[w.nodeID]) == 0 {
		delete(b.waiters, w.nodeID)
	}
}

/***** subscription *****/

// Subscribe registers fn to receive every Event from this point on,
// always invoked from the Bus's dispatch goroutine. The returned function
// unsubscribes; calling it more than once is a no-op.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.subMu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subs[id] = fn
	b.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.subMu.Lock()
			delete(b.subs, id)
			b.subMu.Unlock()
		})
	}
}

func (b *Bus) emit(ev Event) {
	b.subMu.Lock()
	snapshot := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		snapshot = append(snapshot, fn)
	}
	b.subMu.Unlock()

	for _, fn := range snapshot {
		fn(ev)
	}
}

/***** initial lookup gating *****/

func (b *Bus) scheduleLookupDeadline() {
	c, err := b.scheduler.Schedule(int64(b.lookupTimeoutMs)*int64(time.Millisecond), func() {
		b.executor.Submit(b.completeLookupTimeout)
	})
	if err != nil {
		log.Error().Err(err).Msg("qrtr: failed to arm lookup deadline")
		return
	}
	b.lookupTimer = c
}

// noteLookupProgress runs on the dispatch goroutine for every received
// packet while the initial lookup gate is still open; it (re)arms the
// idle-detection timer that declares the lookup burst settled.
func (b *Bus) noteLookupProgress() {
	if b.lookupDone || b.lookupTimeoutMs <= 0 {
		return
	}
	if b.idleTimer != nil {
		b.idleTimer.Cancel()
	}
	c, err := b.scheduler.Schedule(publishTimeoutNanos, func() {
		b.executor.Submit(b.completeLookupSuccess)
	})
	if err != nil {
		return
	}
	b.idleTimer = c
}

func (b *Bus) completeLookupSuccess() {
	if b.lookupDone {
		return
	}
	b.lookupDone = true
	if b.lookupTimer != nil {
		b.lookupTimer.Cancel()
	}
	close(b.readyCh)
}

func (b *Bus) completeLookupTimeout() {
	if b.lookupDone {
		return
	}
	if b.idleTimer != nil {
		return // replies have arrived: the idle timer settles the lookup
	}
	b.lookupDone = true
	if b.idleTimer != nil {
		b.idleTimer.Cancel()
	}
	b.readyErr = api.NewError(api.ErrCodeLookupTimeout, "initial NEW_LOOKUP did not complete in time")
	close(b.readyCh)
}

/***** lifecycle *****/

var _ api.GracefulShutdown = (*Bus)(nil)

// Shutdown is Close, satisfying api.GracefulShutdown for callers that
// manage a mix of components uniformly.
func (b *Bus) Shutdown() error { return b.Close() }

// Close tears down the Bus: stops the dispatch goroutine and poll loop,
// closes the control socket, and cascades removal to every remaining
// node (canceling their debounce timers and firing their removed
// callbacks without emitting a node-removed event, since no subscriber
// outlives Close anyway). Idempotent.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopPoll)
		<-b.pollDone
		b.rct.Unregister(uintptr(b.fd))
		b.rct.Close()

		done := make(chan struct{})
		b.executor.Submit(func() {
			for _, node := range b.nodes {
				node.cancelTimer()
				node.markRemoved()
			}
			b.nodes = nil
			for _, list := range b.waiters {
				for _, w := range list {
					w.complete(nil, api.ErrClosed)
				}
			}
			b.waiters = nil
			close(done)
		})
		<-done

		b.scheduler.Close()
		b.executor.Close()
		err = closeSocket(b.fd)
	})
	return err
}

// teardownSocket releases resources acquired before the dispatch loop was
// started, used only by NewBus's own error paths.
func (b *Bus) teardownSocket() {
	b.rct.Close()
	closeSocket(b.fd)
	b.scheduler.Close()
	b.executor.Close()
}

