// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Min-heap timer scheduler. Backs the per-node publish debounce timer and
// wait_for_node's timeout side.

package concurrency

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/linux-mobile-broadband/qrtr-go/api"
)

// timerItem is one pending scheduled callback.
type timerItem struct {
	deadline time.Time
	fn       func()
	index    int
	canceled bool
	handle   *cancelHandle
}

type timerHeap []*timerItem

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	item := x.(*timerItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// errCanceled is the Err() reported by a cancelHandle that was canceled
// rather than fired.
var errCanceled = errors.New("concurrency: timer canceled")

var (
	_ api.Scheduler  = (*Scheduler)(nil)
	_ api.Cancelable = (*cancelHandle)(nil)
)

// cancelHandle implements api.Cancelable for a scheduled timer.
type cancelHandle struct {
	s    *Scheduler
	item *timerItem

	mu   sync.Mutex
	done chan struct{}
	err  error
}

// Cancel aborts the timer if it has not fired yet; a no-op once fired.
func (c *cancelHandle) Cancel() error {
	c.s.mu.Lock()
	if c.item.index < 0 {
		// Already taken off the heap: fired (or firing) or canceled before.
		c.s.mu.Unlock()
		return nil
	}
	heap.Remove(&c.s.timers, c.item.index)
	c.item.canceled = true
	c.s.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	default:
		c.err = errCanceled
		close(c.done)
	}
	return nil
}

// Done reports completion, whether fired or canceled.
func (c *cancelHandle) Done() <-chan struct{} { return c.done }

// Err reports why Done closed; nil if the timer fired normally.
func (c *cancelHandle) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *cancelHandle) markFired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// Scheduler runs one goroutine that sleeps until the nearest pending
// timer's deadline, fires it, and reschedules for the next one. Every
// Schedule call resets the goroutine's wait rather than leaving a stale OS
// timer running. Cancel only takes the timer off the heap; the goroutine
// recomputes its wait the next time it wakes.
type Scheduler struct {
	mu     sync.Mutex
	timers timerHeap
	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// NewScheduler creates a running Scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	heap.Init(&s.timers)
	go s.run()
	return s
}

// Now returns wall-clock time in nanoseconds.
func (s *Scheduler) Now() int64 { return time.Now().UnixNano() }

// Schedule arranges for fn to run, on the scheduler's own goroutine, after
// delayNanos elapses. The returned handle cancels the timer; cancellation
// and firing are mutually exclusive (whichever happens first wins), the
// property wait_for_node's dual-completion path depends on.
func (s *Scheduler) Schedule(delayNanos int64, fn func()) (api.Cancelable, error) {
	item := &timerItem{
		deadline: time.Now().Add(time.Duration(delayNanos)),
		fn:       fn,
	}
	h := &cancelHandle{s: s, item: item, done: make(chan struct{})}
	item.handle = h

	s.mu.Lock()
	heap.Push(&s.timers, item)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return h, nil
}

// Cancel aborts a pending timer previously returned by Schedule, satisfying
// api.Scheduler. Equivalent to calling c.Cancel() directly.
func (s *Scheduler) Cancel(c api.Cancelable) error {
	return c.Cancel()
}

// Close stops the scheduler goroutine. Pending timers are dropped without
// firing.
func (s *Scheduler) Close() error {
	close(s.stop)
	<-s.done
	return nil
}

func (s *Scheduler) run() {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		var wait time.Duration
		if s.timers.Len() == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.timers[0].deadline)
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-s.stop:
			return
		case <-s.notify:
			continue
		case <-timer.C:
			s.fireDue()
		}
	}
}

func (s *Scheduler) fireDue() {
	now := time.Now()
	for {
		s.mu.Lock()
		if s.timers.Len() == 0 || s.timers[0].deadline.After(now) {
			s.mu.Unlock()
			return
		}
		item := heap.Pop(&s.timers).(*timerItem)
		s.mu.Unlock()

		if item.canceled {
			continue
		}
		item.fn()
		item.handle.markFired()
	}
}
