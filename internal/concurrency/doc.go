// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package concurrency provides the single-loop dispatch primitives used by
// qrtr.Bus: a serializing Executor (all submitted closures run on one
// goroutine, in submission order) and a Scheduler for one-shot timers
// (the per-node publish debounce, wait_for_node timeouts, the initial
// lookup-settle watchdog).
package concurrency
