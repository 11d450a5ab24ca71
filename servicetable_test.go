package qrtr

import "testing"

func TestServiceTableAddLookup(t *testing.T) {
	table := newServiceTable()
	table.add(0x42, 10, 1, 0)
	table.add(0x42, 11, 2, 0)

	port, ok := table.lookupPort(0x42)
	if !ok || port != 11 {
		t.Fatalf("lookupPort(0x42) = (%d, %v), want (11, true) — highest version should win", port, ok)
	}

	service, ok := table.lookupService(10)
	if !ok || service != 0x42 {
		t.Fatalf("lookupService(10) = (0x%x, %v), want (0x42, true)", service, ok)
	}

	if _, ok := table.lookupPort(0x99); ok {
		t.Fatal("lookupPort(0x99) unexpectedly found a result for an unknown service")
	}
	if _, ok := table.lookupService(999); ok {
		t.Fatal("lookupService(999) unexpectedly found a result for an unknown port")
	}
}

func TestServiceTableVersionTieBreak(t *testing.T) {
	table := newServiceTable()
	table.add(0x42, 10, 1, 0)
	table.add(0x42, 11, 1, 0)

	port, ok := table.lookupPort(0x42)
	if !ok || port != 11 {
		t.Fatalf("lookupPort(0x42) = (%d, %v), want (11, true) — last-inserted of equal versions should win", port, ok)
	}
}

func TestServiceTablePortCollisionOverwrites(t *testing.T) {
	table := newServiceTable()
	table.add(0x42, 10, 1, 0)
	table.add(0x43, 10, 1, 0)

	if _, ok := table.lookupPort(0x42); ok {
		t.Fatal("old service still reachable after port collision overwrite")
	}
	service, ok := table.lookupService(10)
	if !ok || service != 0x43 {
		t.Fatalf("lookupService(10) = (0x%x, %v), want (0x43, true) after collision", service, ok)
	}
	if len(table.all()) != 1 {
		t.Fatalf("all() returned %d entries, want 1 after collision overwrite", len(table.all()))
	}
}

func TestServiceTableRemove(t *testing.T) {
	table := newServiceTable()
	table.add(0x42, 10, 1, 0)
	table.add(0x42, 11, 2, 0)

	info, ok := table.remove(10)
	if !ok || info.Port != 10 {
		t.Fatalf("remove(10) = (%+v, %v), want ok with Port 10", info, ok)
	}
	if _, ok := table.lookupService(10); ok {
		t.Fatal("port 10 still present after remove")
	}
	if port, ok := table.lookupPort(0x42); !ok || port != 11 {
		t.Fatalf("lookupPort(0x42) after removing port 10 = (%d, %v), want (11, true)", port, ok)
	}

	if _, ok := table.remove(10); ok {
		t.Fatal("remove(10) unexpectedly succeeded a second time")
	}
}

func TestServiceTableRemoveLastEntryForServiceClearsIndex(t *testing.T) {
	table := newServiceTable()
	table.add(0x42, 10, 1, 0)
	table.remove(10)

	if _, ok := table.lookupPort(0x42); ok {
		t.Fatal("lookupPort(0x42) succeeded after removing its only entry")
	}
	if !table.isEmpty() {
		t.Fatal("isEmpty() = false after removing the only entry")
	}
}

func TestServiceTableAllPreservesInsertionOrder(t *testing.T) {
	table := newServiceTable()
	table.add(0x1, 1, 1, 0)
	table.add(0x2, 2, 1, 0)
	table.add(0x3, 3, 1, 0)

	all := table.all()
	if len(all) != 3 {
		t.Fatalf("all() returned %d entries, want 3", len(all))
	}
	for i, want := range []uint32{1, 2, 3} {
		if all[i].Port != want {
			t.Fatalf("all()[%d].Port = %d, want %d", i, all[i].Port, want)
		}
	}
}

func TestServiceTableIsEmpty(t *testing.T) {
	table := newServiceTable()
	if !table.isEmpty() {
		t.Fatal("isEmpty() = false for a freshly constructed table")
	}
	table.add(0x1, 1, 1, 0)
	if table.isEmpty() {
		t.Fatal("isEmpty() = true after an add")
	}
}
