package vhci

import (
	"testing"
	"testing/fstest"
)

const statusHeader = "hub port sta spd dev      sockfd local_busid\n"

func baseFS() fstest.MapFS {
	return fstest.MapFS{
		"bus/platform/devices/vhci_hcd.0/nports": {Data: []byte("4\n")},
		"bus/platform/devices/vhci_hcd.0/status": {Data: []byte(
			statusHeader +
				"hs  0000 006 002 00010002 000010 2-1\n" +
				"hs  0001 004 000 00000000 000000 0-0\n" +
				"hs  0002 004 000 00000000 000000 0-0\n" +
				"ss  0003 006 002 00080002 000011 2-2\n",
		)},
		"bus/usb/devices/2-1/idVendor":  {Data: []byte("dead\n")},
		"bus/usb/devices/2-1/idProduct": {Data: []byte("beef\n")},
		"bus/usb/devices/2-2/idVendor":  {Data: []byte("dead\n")},
		"bus/usb/devices/2-2/idProduct": {Data: []byte("beef\n")},
	}
}

func TestOpenSysfsChannelEnumeration(t *testing.T) {
	_, ports, idevs, err := OpenSysfsChannel(baseFS())
	if err != nil {
		t.Fatalf("OpenSysfsChannel: %v", err)
	}
	if len(ports) != 2 {
		t.Fatalf("got %d free ports, want 2", len(ports))
	}
	if len(idevs) != 2 {
		t.Fatalf("got %d imported devices, want 2", len(idevs))
	}

	byBusID := map[string]ImportedDevice{}
	for _, d := range idevs {
		byBusID[d.LocalBusID] = d
	}

	d1, ok := byBusID["2-1"]
	if !ok {
		t.Fatalf("missing device at busid 2-1")
	}
	if d1.DevID != 0x00010002 || d1.Vendor != 0xdead || d1.Product != 0xbeef {
		t.Errorf("device 2-1 = %+v", d1)
	}
	if d1.Status != PortInUse {
		t.Errorf("device 2-1 status = %v, want PortInUse", d1.Status)
	}

	d2, ok := byBusID["2-2"]
	if !ok {
		t.Fatalf("missing device at busid 2-2")
	}
	if d2.DevID != 0x00080002 {
		t.Errorf("device 2-2 devid = %#x", d2.DevID)
	}
}

func TestOpenSysfsChannelZeroPorts(t *testing.T) {
	fsys := fstest.MapFS{
		"bus/platform/devices/vhci_hcd.0/nports": {Data: []byte("0\n")},
	}
	_, _, _, err := OpenSysfsChannel(fsys)
	if err == nil {
		t.Fatal("expected error for zero nports")
	}
}

func TestOpenSysfsChannelUnreadable(t *testing.T) {
	_, _, _, err := OpenSysfsChannel(fstest.MapFS{})
	if err == nil {
		t.Fatal("expected error when nports is unreadable")
	}
}

func TestReadStatusReparsesEveryCall(t *testing.T) {
	fsys := baseFS()
	c, _, idevs, err := OpenSysfsChannel(fsys)
	if err != nil {
		t.Fatalf("OpenSysfsChannel: %v", err)
	}
	if len(idevs) != 2 {
		t.Fatalf("got %d imported devices, want 2", len(idevs))
	}

	fsys["bus/platform/devices/vhci_hcd.0/status"] = &fstest.MapFile{Data: []byte(
		statusHeader +
			"hs  0000 006 002 00010002 000010 2-1\n" +
			"hs  0001 004 000 00000000 000000 0-0\n" +
			"hs  0002 004 000 00000000 000000 0-0\n" +
			"ss  0003 004 000 00080000 000000 0-0\n",
	)}
	delete(fsys, "bus/usb/devices/2-2/idVendor")
	delete(fsys, "bus/usb/devices/2-2/idProduct")

	ports, idevs, err := c.ReadStatus()
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if len(idevs) != 1 {
		t.Fatalf("got %d imported devices after detach, want 1", len(idevs))
	}
	if len(ports) != 3 {
		t.Fatalf("got %d free ports after detach, want 3", len(ports))
	}
}

func TestWriteAttachFormatsPayload(t *testing.T) {
	fsys := baseFS()
	c, _, _, err := OpenSysfsChannel(fsys)
	if err != nil {
		t.Fatalf("OpenSysfsChannel: %v", err)
	}

	var gotPath, gotPayload string
	withWriteFile(func(path, payload string) error {
		gotPath, gotPayload = path, payload
		return nil
	})(c)

	if err := c.WriteAttach(1, 0x00020002, DeviceSpeedHigh, AttachConn{FD: 7}); err != nil {
		t.Fatalf("WriteAttach: %v", err)
	}
	if gotPath != "bus/platform/devices/vhci_hcd.0/attach" {
		t.Errorf("attach path = %q", gotPath)
	}
	if gotPayload != "1 7 131074 3" {
		t.Errorf("attach payload = %q", gotPayload)
	}
}

func TestWriteDetachRemovesPortRecord(t *testing.T) {
	dir := t.TempDir()
	fsys := baseFS()
	c, _, _, err := OpenSysfsChannel(fsys, WithStateDir(dir))
	if err != nil {
		t.Fatalf("OpenSysfsChannel: %v", err)
	}
	withWriteFile(func(string, string) error { return nil })(c)

	rec := PortRecord{Port: 2, Host: "10.0.0.5", Service: "3240", BusID: "1-1"}
	if err := WritePortRecord(dir, rec); err != nil {
		t.Fatalf("WritePortRecord: %v", err)
	}
	if _, err := ReadPortRecord(dir, 2); err != nil {
		t.Fatalf("ReadPortRecord before detach: %v", err)
	}

	if err := c.WriteDetach(2); err != nil {
		t.Fatalf("WriteDetach: %v", err)
	}
	if _, err := ReadPortRecord(dir, 2); err == nil {
		t.Fatal("expected port record to be removed after detach")
	}
}
