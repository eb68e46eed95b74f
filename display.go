package vhci

import "fmt"

// Names resolves a vendor/product ID pair to human-readable strings.
// Parsing usb.ids itself is explicitly out of scope (spec.md §1); this is
// the seam a caller plugs a real resolver into.
type Names interface {
	Lookup(vendor, product uint16) (vendorName, productName string)
}

// NoNames is the default Names implementation: it renders IDs in hex
// instead of resolving them, the same fallback `lsusb`-style tools use
// when usb.ids isn't available.
type NoNames struct{}

func (NoNames) Lookup(vendor, product uint16) (string, string) {
	return fmt.Sprintf("0x%04x", vendor), fmt.Sprintf("0x%04x", product)
}

// Display renders one imported device per spec.md §4.6's contract,
// returning the empty string for idle ports (status PortAvailable or
// PortInitializing) per invariant 6 — those carry no meaningful device
// fields and must not be shown.
func Display(idev ImportedDevice, names Names) string {
	if idev.Status.Idle() {
		return ""
	}

	vendorName, productName := names.Lookup(idev.Vendor, idev.Product)
	busnum, devnum := SplitDevID(idev.DevID)

	out := fmt.Sprintf("Port %02d: <%s> at %s\n", idev.Record.Port, idev.Status, idev.Speed)
	out += fmt.Sprintf("       %s : %s\n", vendorName, productName)

	busid := idev.LocalBusID
	if idev.Record.Host != "" {
		out += fmt.Sprintf("  %s -> usbip://%s:%s/%s\n", busid, idev.Record.Host, idev.Record.Service, idev.Record.BusID)
	} else {
		out += fmt.Sprintf("  %s -> unknown host, remote port and remote busid\n", busid)
	}
	out += fmt.Sprintf("           -> remote bus/dev %03d/%03d", busnum, devnum)
	return out
}
