// Package control
// Author: momentics <momentics@gmail.com>
//
// Live configuration, stats, and debug-probe surface for qrtr.Bus,
// satisfying api.Control.
package control
