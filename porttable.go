package vhci

// AvailablePort is a free port on a virtual host controller.
type AvailablePort struct {
	Port     uint16
	HubSpeed HubSpeed
}

// PortTable is an in-memory index of currently-free ports, keyed by hub
// speed. It is not safe for concurrent use on its own: the façade
// serializes acquire-then-write as a single atomic attach operation with
// its own mutex (spec.md §5).
type PortTable struct {
	ports []AvailablePort
}

// NewPortTable builds a table from an initial set of free ports, as
// produced by parsing the controller status surface at open time.
func NewPortTable(ports []AvailablePort) *PortTable {
	t := &PortTable{ports: append([]AvailablePort(nil), ports...)}
	return t
}

// Acquire removes and returns the first free port whose hub speed matches
// the requested device speed, scanning in insertion order (O(n); port
// counts are small). Returns false if the device speed maps to no hub
// (Unknown, Wireless) or no matching port is free.
func (t *PortTable) Acquire(speed DeviceSpeed) (AvailablePort, bool) {
	hub, ok := speed.HubSpeed()
	if !ok {
		return AvailablePort{}, false
	}
	for i, p := range t.ports {
		if p.HubSpeed == hub {
			t.ports = append(t.ports[:i], t.ports[i+1:]...)
			return p, true
		}
	}
	return AvailablePort{}, false
}

// Release returns a port to the free table, appending it to the tail.
func (t *PortTable) Release(p AvailablePort) {
	t.ports = append(t.ports, p)
}

// Snapshot returns a read-only view of the currently free ports.
func (t *PortTable) Snapshot() []AvailablePort {
	return t.ports
}

// Len reports how many ports are currently free.
func (t *PortTable) Len() int {
	return len(t.ports)
}
