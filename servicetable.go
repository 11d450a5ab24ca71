// File: servicetable.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ServiceTable holds one node's (service, port, version, instance) tuples
// behind three coherent views: an insertion-ordered flat list, a
// per-service list kept sorted ascending by version (lookup_port returns
// the last, i.e. highest-version, entry), and a port index. Ported from
// the service_list/service_index/port_index triple in libqrtr-glib's
// qrtr-node.c (qrtr_node_add_service_info / qrtr_node_remove_service_info
// / qrtr_node_lookup_port / qrtr_node_lookup_service).

package qrtr

import (
	"sort"

	"github.com/rs/zerolog/log"
)

// ServiceInfo is immutable once inserted into a ServiceTable. Identity for
// removal purposes is Port alone: QRTR guarantees at most one service per
// (node, port).
type ServiceInfo struct {
	Service  uint32
	Port     uint32
	Version  uint32
	Instance uint32
}

// ServiceTable indexes a node's services by both service number (sorted by
// version) and port.
type ServiceTable struct {
	flat      []ServiceInfo
	byService map[uint32][]ServiceInfo
	byPort    map[uint32]ServiceInfo
}

func newServiceTable() *ServiceTable {
	return &ServiceTable{
		byService: make(map[uint32][]ServiceInfo),
		byPort:    make(map[uint32]ServiceInfo),
	}
}

// add inserts a new ServiceInfo. A port collision is a logic error on the
// kernel's part (QRTR guarantees uniqueness); it is logged and the new
// entry overwrites the old one rather than being silently dropped, so
// lookups never point at a stale port.
func (t *ServiceTable) add(service, port, version, instance uint32) ServiceInfo {
	info := ServiceInfo{Service: service, Port: port, Version: version, Instance: instance}

	if _, exists := t.byPort[port]; exists {
		log.Warn().Uint32("port", port).Msg("qrtr: service table: port collision, overwriting")
		t.removeLocked(port)
	}

	t.flat = append(t.flat, info)
	t.byPort[port] = info

	list := t.byService[service]
	i := sort.Search(len(list), func(i int) bool { return list[i].Version > version })
	list = append(list, ServiceInfo{})
	copy(list[i+1:], list[i:])
	list[i] = info
	t.byService[service] = list

	return info
}

// remove deletes the entry at port from all three structures. Returns
// false (and logs) if port is unknown — the Bus forwards the kernel's
// stale DEL_SERVER silently in that case.
func (t *ServiceTable) remove(port uint32) (ServiceInfo, bool) {
	info, ok := t.byPort[port]
	if !ok {
		log.Warn().Uint32("port", port).Msg("qrtr: service table: remove of unknown port")
		return ServiceInfo{}, false
	}
	t.removeLocked(port)
	return info, true
}

func (t *ServiceTable) removeLocked(port uint32) {
	info, ok := t.byPort[port]
	if !ok {
		return
	}
	delete(t.byPort, port)

	for i, e := range t.flat {
		if e.Port == port {
			t.flat = append(t.flat[:i], t.flat[i+1:]...)
			break
		}
	}

	list := t.byService[info.Service]
	for i, e := range list {
		if e.Port == port {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.byService, info.Service)
	} else {
		t.byService[info.Service] = list
	}
}

// lookupPort returns the port of the highest-version entry for service,
// which is the last element of the per-service list (ties broken by
// last-inserted, since equal-version inserts land after existing equal
// entries in the ascending-by-version ordering — see add's sort.Search).
func (t *ServiceTable) lookupPort(service uint32) (uint32, bool) {
	list := t.byService[service]
	if len(list) == 0 {
		return 0, false
	}
	return list[len(list)-1].Port, true
}

// lookupService returns the service bound to port.
func (t *ServiceTable) lookupService(port uint32) (uint32, bool) {
	info, ok := t.byPort[port]
	if !ok {
		return 0, false
	}
	return info.Service, true
}

// isEmpty reports whether the table holds no services.
func (t *ServiceTable) isEmpty() bool {
	return len(t.flat) == 0
}

// all returns every ServiceInfo currently held, in insertion order.
// Restored from qrtr-node.c's service_list enumeration, which the spec.md
// distillation dropped in favor of the two single-entry lookups.
func (t *ServiceTable) all() []ServiceInfo {
	out := make([]ServiceInfo, len(t.flat))
	copy(out, t.flat)
	return out
}
