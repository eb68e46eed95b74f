package vhci

import "testing"

func TestPortTableAcquireMatchesHubSpeed(t *testing.T) {
	tbl := NewPortTable([]AvailablePort{
		{Port: 1, HubSpeed: HubSpeedHigh},
		{Port: 2, HubSpeed: HubSpeedSuper},
	})

	p, ok := tbl.Acquire(DeviceSpeedHigh)
	if !ok || p.Port != 1 {
		t.Fatalf("Acquire(High) = %+v, %v", p, ok)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}

	p, ok = tbl.Acquire(DeviceSpeedSuperPlus)
	if !ok || p.Port != 2 {
		t.Fatalf("Acquire(SuperPlus) = %+v, %v", p, ok)
	}
	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", tbl.Len())
	}
}

func TestPortTableAcquireUnroutableSpeed(t *testing.T) {
	tbl := NewPortTable([]AvailablePort{{Port: 1, HubSpeed: HubSpeedHigh}})
	if _, ok := tbl.Acquire(DeviceSpeedUnknown); ok {
		t.Fatalf("Acquire(Unknown) should fail")
	}
	if _, ok := tbl.Acquire(DeviceSpeedWireless); ok {
		t.Fatalf("Acquire(Wireless) should fail")
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (nothing acquired)", tbl.Len())
	}
}

func TestPortTableNoFreePort(t *testing.T) {
	tbl := NewPortTable(nil)
	if _, ok := tbl.Acquire(DeviceSpeedHigh); ok {
		t.Fatalf("Acquire on empty table should fail")
	}
}

// Property 3 & 4: no duplicates across acquire/release, and a failed
// attach leaves the port count unchanged (release restores exactly what
// was acquired).
func TestPortTableUniquenessUnderChurn(t *testing.T) {
	initial := []AvailablePort{
		{Port: 1, HubSpeed: HubSpeedHigh},
		{Port: 2, HubSpeed: HubSpeedSuper},
		{Port: 3, HubSpeed: HubSpeedHigh},
	}
	tbl := NewPortTable(initial)

	for i := 0; i < 100; i++ {
		p, ok := tbl.Acquire(DeviceSpeedHigh)
		if !ok {
			p, ok = tbl.Acquire(DeviceSpeedSuper)
		}
		if !ok {
			t.Fatalf("round %d: table unexpectedly empty", i)
		}
		seen := map[uint16]bool{}
		for _, q := range tbl.Snapshot() {
			if seen[q.Port] {
				t.Fatalf("round %d: duplicate port %d in table", i, q.Port)
			}
			seen[q.Port] = true
		}
		tbl.Release(p) // simulate attach failing: port goes right back
	}

	if tbl.Len() != len(initial) {
		t.Fatalf("Len() = %d, want %d after churn", tbl.Len(), len(initial))
	}
}
