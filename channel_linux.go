package vhci

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Sysfs locations for the VHCI host controller, relative to an fs.FS
// rooted at /sys (production) or a testing/fstest.MapFS (tests),
// grounded on the retrieved driver-sysfs_test.go.go mock tree.
const (
	linuxBusType       = "platform"
	linuxDeviceName    = "vhci_hcd.0"
	linuxHCDSyspath    = "bus/" + linuxBusType + "/devices/" + linuxDeviceName
	linuxUSBDevicesDir = "bus/usb/devices"
)

// DefaultStateDir is the directory holding on-disk port records
// (spec.md §6, "Persistent state (Linux)").
const DefaultStateDir = "/var/run/vhci_hcd"

// SysfsChannel is the Linux Channel implementation: attach, detach and
// status are a sysfs text protocol under vhci_hcd.0 (spec.md §4.5.1, §6).
// Reads go through fsys so tests can substitute a fstest.MapFS exactly as
// the retrieved driver-sysfs_test.go.go does; writes go through writeFile,
// which defaults to opening the real file under sysRoot but can be
// substituted in tests that don't have a real sysfs tree to write to.
type SysfsChannel struct {
	fsys     fs.FS
	hc       *sysfsNode
	numCtrl  int
	sysRoot  string // real filesystem root backing fsys, for writes ("/sys" in production)
	stateDir string
	writeFile func(path string, payload string) error
}

// SysfsChannelOption configures a SysfsChannel at construction time.
type SysfsChannelOption func(*SysfsChannel)

// WithSysRoot overrides the real filesystem root used to resolve
// attach/detach sysfs attribute paths for writing (default "/sys").
func WithSysRoot(root string) SysfsChannelOption {
	return func(c *SysfsChannel) { c.sysRoot = root }
}

// WithStateDir overrides the on-disk port record directory (default
// DefaultStateDir).
func WithStateDir(dir string) SysfsChannelOption {
	return func(c *SysfsChannel) { c.stateDir = dir }
}

// withWriteFile substitutes the function used to write attach/detach
// payloads, for tests that exercise the rollback path without a real
// sysfs tree.
func withWriteFile(fn func(path, payload string) error) SysfsChannelOption {
	return func(c *SysfsChannel) { c.writeFile = fn }
}

// OpenSysfsChannel discovers vhci_hcd.0 under fsys, learns its port and
// controller topology (spec.md §4.5.1's "On open" paragraph), and returns
// a ready channel plus its initial status snapshot for Driver.Open to seed
// the port table and imported-device list from.
func OpenSysfsChannel(fsys fs.FS, opts ...SysfsChannelOption) (*SysfsChannel, []AvailablePort, []ImportedDevice, error) {
	hc := newSysfsNode(fsys, linuxHCDSyspath)

	nports, err := ParseUintAttribute(hc, "nports", 32)
	if err != nil {
		return nil, nil, nil, wrapErrorf(ErrKindTopology, err, "reading nports")
	}
	if nports == 0 {
		return nil, nil, nil, newErrorf(ErrKindTopology, "vhci_hcd.0 reports zero ports")
	}

	numCtrl, err := countControllers(hc)
	if err != nil {
		return nil, nil, nil, err
	}

	c := &SysfsChannel{
		fsys:     fsys,
		hc:       hc,
		numCtrl:  numCtrl,
		sysRoot:  "/sys",
		stateDir: DefaultStateDir,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.writeFile == nil {
		c.writeFile = c.defaultWriteFile
	}

	ports, idevs, err := c.ReadStatus()
	if err != nil {
		return nil, nil, nil, err
	}

	busy := make(map[uint16]bool, len(idevs))
	for _, idev := range idevs {
		busy[uint16(idev.Record.Port)] = true
	}
	if err := pruneStalePortRecords(c.stateDir, busy); err != nil {
		return nil, nil, nil, err
	}

	return c, ports, idevs, nil
}

// countControllers counts platform siblings of hc named "vhci_hcd.<N>",
// following the teacher-adjacent driver-vhci_libudev.go.go's countControllers
// and spec.md §4.5.1's "count platform-parent children" rule.
func countControllers(hc *sysfsNode) (int, error) {
	parent, ok := hc.Parent()
	if !ok {
		return 0, newErrorf(ErrKindTopology, "vhci_hcd.0 has no parent platform device")
	}
	pn := parent.(*sysfsNode)
	names, err := pn.listChildren()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range names {
		if strings.HasPrefix(n, "vhci_hcd.") {
			count++
		}
	}
	if count == 0 {
		return 0, ErrNoFreeControllers
	}
	return count, nil
}

// ReadStatus re-parses every controller's status attribute, matching
// spec.md §4.5.1: iterate status, status.1, ..., skip each one's header
// line, and classify every remaining line as either a free port or a
// busy/initializing device.
func (c *SysfsChannel) ReadStatus() ([]AvailablePort, []ImportedDevice, error) {
	var ports []AvailablePort
	var idevs []ImportedDevice

	for i := 0; i < c.numCtrl; i++ {
		name := "status"
		if i > 0 {
			name = fmt.Sprintf("status.%d", i)
		}
		raw, err := c.hc.Attribute(name)
		if err != nil {
			return nil, nil, err
		}
		lines := strings.Split(raw, "\n")
		if len(lines) > 0 {
			lines = lines[1:] // drop header
		}
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			port, idev, err := c.parseStatusLine(line)
			if err != nil {
				return nil, nil, err
			}
			if idev != nil {
				idevs = append(idevs, *idev)
			} else {
				ports = append(ports, port)
			}
		}
	}
	return ports, idevs, nil
}

// parseStatusLine parses one status line. If the line's status is
// PortAvailable it returns only an AvailablePort; otherwise it returns an
// ImportedDevice, reading the remaining tokens and materializing the
// device's vendor/product via the usb subsystem's attribute store (spec.md
// §4.5.1's "queries the OS USB subsystem for device attributes keyed by
// busid"). Concrete shape grounded on scenario S3 and on the Sscanf format
// string in driver-vhci_libudev.go.go ("%2s %d %d %d %x %d %31s").
func (c *SysfsChannel) parseStatusLine(line string) (AvailablePort, *ImportedDevice, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return AvailablePort{}, nil, newErrorf(ErrKindAttribute, "malformed status line %q", line)
	}

	hub, err := ParseHubSpeed(strings.ToLower(fields[0]))
	if err != nil {
		return AvailablePort{}, nil, err
	}
	portN, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return AvailablePort{}, nil, wrapErrorf(ErrKindAttribute, err, "parsing port in %q", line)
	}
	statusN, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return AvailablePort{}, nil, wrapErrorf(ErrKindAttribute, err, "parsing status in %q", line)
	}
	status, err := ParseDeviceStatus(uint32(statusN))
	if err != nil {
		return AvailablePort{}, nil, err
	}

	port := AvailablePort{Port: uint16(portN), HubSpeed: hub}
	if status == PortAvailable {
		return port, nil, nil
	}
	if len(fields) < 7 {
		return AvailablePort{}, nil, newErrorf(ErrKindAttribute, "malformed busy status line %q", line)
	}

	speedN, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return AvailablePort{}, nil, wrapErrorf(ErrKindAttribute, err, "parsing device speed in %q", line)
	}
	devidTok := strings.TrimPrefix(strings.TrimPrefix(fields[4], "0x"), "0X")
	devid, err := strconv.ParseUint(devidTok, 16, 32)
	if err != nil {
		return AvailablePort{}, nil, wrapErrorf(ErrKindAttribute, err, "parsing devid in %q", line)
	}
	busid := fields[6]

	idev := ImportedDevice{
		DevID:      uint32(devid),
		Speed:      DeviceSpeed(speedN),
		Status:     status,
		LocalBusID: busid,
		Record:     PortRecord{Port: int32(portN)},
	}

	node := newSysfsNode(c.fsys, path.Join(linuxUSBDevicesDir, busid))
	if v, err := ParseHexUintAttribute(node, "idVendor", 16); err == nil {
		idev.Vendor = uint16(v)
	}
	if p, err := ParseHexUintAttribute(node, "idProduct", 16); err == nil {
		idev.Product = uint16(p)
	}
	// ReadPortRecord only succeeds if this process previously attached the
	// device and persisted its remote host/service/busid; Host stays empty
	// otherwise, which Display renders as "unknown host" per spec.md §4.6.
	if rec, err := ReadPortRecord(c.stateDir, uint16(portN)); err == nil {
		rec.Port = int32(portN)
		idev.Record = rec
	}

	return port, &idev, nil
}

// WriteAttach writes the driver's attach command: "<port> <fd> <devid>
// <speed>" to the attach sysfs attribute, exactly as spec.md §4.5.1 and
// driver-vhci_libudev.go.go's doAttachDevice. When conn.Host is set, it
// then persists a port record from conn.Host/Service/BusID so a later
// ReadPortRecord can recover
// which remote host/busid own the port (spec.md §3, §6 Lifecycle).
func (c *SysfsChannel) WriteAttach(port uint16, devid uint32, speed DeviceSpeed, conn AttachConn) error {
	payload := fmt.Sprintf("%d %d %d %d", port, conn.FD, devid, uint32(speed))
	if err := c.writeAttr("attach", payload); err != nil {
		return err
	}
	if conn.Host == "" {
		return nil
	}
	return WritePortRecord(c.stateDir, PortRecord{
		Port:    int32(port),
		BusID:   conn.BusID,
		Service: conn.Service,
		Host:    conn.Host,
	})
}

// WriteDetach writes the port number to the detach sysfs attribute. The
// exact filename is inferred by symmetry with attach (spec.md §9 Open
// Question 1; resolved in DESIGN.md).
func (c *SysfsChannel) WriteDetach(port uint16) error {
	if err := c.writeAttr("detach", fmt.Sprintf("%d", port)); err != nil {
		return err
	}
	return RemovePortRecord(c.stateDir, port)
}

func (c *SysfsChannel) writeAttr(name, payload string) error {
	p := path.Join(c.hc.Syspath(), name)
	if err := c.writeFile(p, payload); err != nil {
		return wrapErrorf(ErrKindIO, err, "writing %s", name)
	}
	return nil
}

// defaultWriteFile opens "<sysRoot>/<relative path>" read-write and writes
// payload, matching spec.md §4.5.1's "open <syspath>/attach read-write".
func (c *SysfsChannel) defaultWriteFile(relPath, payload string) error {
	full := filepath.Join(c.sysRoot, filepath.FromSlash(relPath))
	f, err := os.OpenFile(full, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(payload)
	return err
}

// Close releases no resources: the sysfs channel holds no persistent
// handle, unlike the Windows DeviceIoControl channel.
func (c *SysfsChannel) Close() error { return nil }

var _ Channel = (*SysfsChannel)(nil)
