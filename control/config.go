// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with live stats and reload propagation.
// Backs qrtr.Bus's api.Control surface: a Bus exposes its lookup_timeout_ms
// as config and its node counts (all registered nodes and published nodes)
// as stats, through this one store.

package control

import (
	"sync"

	"github.com/linux-mobile-broadband/qrtr-go/api"
)

var _ api.Control = (*ConfigStore)(nil)

// StatsFunc is queried on every Stats() call to obtain one live metric.
type StatsFunc func() any

// ConfigStore is a dynamic key/value config map plus a set of live stats
// probes, with reload-listener propagation on config changes.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	probes    map[string]StatsFunc
	listeners []func()
}

// NewConfigStore initializes an empty config/stats store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config: make(map[string]any),
		probes: make(map[string]StatsFunc),
	}
}

// GetConfig returns a copy of all config values.
func (cs *ConfigStore) GetConfig() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	snap := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		snap[k] = v
	}
	return snap
}

// SetConfig merges new values and dispatches reload hooks.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) error {
	cs.mu.Lock()
	for k, v := range newCfg {
		cs.config[k] = v
	}
	listeners := append([]func(){}, cs.listeners...)
	cs.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// OnReload registers a listener invoked synchronously after every SetConfig.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// RegisterDebugProbe registers a named live-metric callback; its result is
// included in the next Stats() call.
func (cs *ConfigStore) RegisterDebugProbe(name string, fn func() any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.probes[name] = fn
}

// Stats evaluates every registered probe and returns the aggregated result.
func (cs *ConfigStore) Stats() map[string]any {
	cs.mu.RLock()
	probes := make(map[string]StatsFunc, len(cs.probes))
	for k, v := range cs.probes {
		probes[k] = v
	}
	cs.mu.RUnlock()

	out := make(map[string]any, len(probes))
	for k, fn := range probes {
		out[k] = fn()
	}
	return out
}
