package vhci

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// cfgmgr32 bindings for device interface discovery, following the same
// NewLazySystemDLL/NewProc/SyscallN calling idiom used elsewhere in this
// module for Win32 APIs golang.org/x/sys/windows does not wrap directly.
var (
	modcfgmgr32 = windows.NewLazySystemDLL("cfgmgr32.dll")

	procCMGetDeviceInterfaceListSizeW = modcfgmgr32.NewProc("CM_Get_Device_Interface_List_SizeW")
	procCMGetDeviceInterfaceListW     = modcfgmgr32.NewProc("CM_Get_Device_Interface_ListW")
)

const (
	crSuccess     = 0
	crBufferSmall = 0x1A

	cmGetDeviceInterfaceListPresent = 0
)

// vhciDeviceInterfaceGUID is {B4030C06-DC5F-4FCC-87EB-E5515A0935C0}, the
// device interface class exposed by the VHCI kernel driver.
var vhciDeviceInterfaceGUID = windows.GUID{
	Data1: 0xB4030C06,
	Data2: 0xDC5F,
	Data3: 0x4FCC,
	Data4: [8]byte{0x87, 0xEB, 0xE5, 0x51, 0x5A, 0x09, 0x35, 0xC0},
}

// deviceInterfaceList retrieves every device interface path published
// under guid, growing the buffer on CR_BUFFER_SMALL exactly as
// utils.rs's get_device_interface_list does.
func deviceInterfaceList(guid *windows.GUID) ([]string, error) {
	for {
		var size uint32
		r0, _, _ := syscall.SyscallN(
			procCMGetDeviceInterfaceListSizeW.Addr(),
			uintptr(unsafe.Pointer(&size)),
			uintptr(unsafe.Pointer(guid)),
			0,
			uintptr(cmGetDeviceInterfaceListPresent),
		)
		if r0 != crSuccess {
			return nil, newErrorf(ErrKindIoctl, "CM_Get_Device_Interface_List_SizeW failed: %#x", r0)
		}
		if size <= 1 {
			return nil, nil
		}

		buf := make([]uint16, size)
		r0, _, _ = syscall.SyscallN(
			procCMGetDeviceInterfaceListW.Addr(),
			uintptr(unsafe.Pointer(guid)),
			0,
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(size),
			uintptr(cmGetDeviceInterfaceListPresent),
		)
		if r0 == crBufferSmall {
			continue
		}
		if r0 != crSuccess {
			return nil, newErrorf(ErrKindIoctl, "CM_Get_Device_Interface_ListW failed: %#x", r0)
		}
		return splitMultiSZ(buf), nil
	}
}

// splitMultiSZ splits a double-null-terminated, null-separated UTF-16
// string list into Go strings, skipping empty entries.
func splitMultiSZ(buf []uint16) []string {
	var out []string
	start := 0
	for i, c := range buf {
		if c == 0 {
			if i > start {
				out = append(out, windows.UTF16ToString(buf[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

// IoctlChannel is the Windows Channel implementation: the VHCI driver is
// reached by DeviceIoControl requests against the device interface
// discovered via CM_Get_Device_Interface_List (spec.md §4.5.2).
type IoctlChannel struct {
	handle windows.Handle
}

// OpenIoctlChannel discovers the single VHCI device interface and opens a
// handle to it. Zero matches is reported as ErrInterfaceNotFound (no
// driver installed/loaded); more than one is a hard error, since the spec
// assumes exactly one VHCI instance per machine.
func OpenIoctlChannel() (*IoctlChannel, error) {
	paths, err := deviceInterfaceList(&vhciDeviceInterfaceGUID)
	if err != nil {
		return nil, err
	}
	switch len(paths) {
	case 0:
		return nil, ErrInterfaceNotFound
	case 1:
		// exactly one, fall through
	default:
		return nil, wrapErrorf(ErrKindOpen, ErrMultipleInterface, "found %d device interfaces", len(paths))
	}

	path, err := windows.UTF16PtrFromString(paths[0])
	if err != nil {
		return nil, wrapErrorf(ErrKindOpen, err, "encoding device path")
	}
	h, err := windows.CreateFile(
		path,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return nil, wrapErrorf(ErrKindOpen, err, "opening device interface")
	}
	return &IoctlChannel{handle: h}, nil
}

// ReadStatus issues GetImportedDevices, regrowing the output buffer
// geometrically until the driver stops signalling ERROR_INSUFFICIENT_BUFFER,
// matching ioctl.rs's GetImportedDevices::RECV regrow strategy. The
// response carries only imported devices; free ports are not enumerable
// through this IOCTL, so the free list is always empty on Windows and the
// façade tracks free ports purely from the driver's total port count minus
// what GetImportedDevices reports busy.
func (c *IoctlChannel) ReadStatus() ([]AvailablePort, []ImportedDevice, error) {
	out, err := relay(c.handle, fnGetImportedDevices, nil, doublingSize(ImportedDeviceEncodedSize+4, 24))
	if err != nil {
		return nil, nil, err
	}
	idevs, err := decodeImportedDevicesResponse(out)
	if err != nil {
		return nil, nil, wrapErrorf(ErrKindCodec, err, "decoding GetImportedDevices response")
	}
	for i := range idevs {
		idevs[i].Status = PortInUse
		idevs[i].LocalBusID = idevs[i].Record.BusID
	}
	return nil, idevs, nil
}

// WriteAttach issues PluginHardware. Unlike Linux, the driver dials the
// remote host itself rather than taking ownership of an fd the caller
// already connected, so conn.FD is unused here and conn.Host/Service/BusID
// carry everything the driver needs (spec.md §4.5.2). The IOCTL's own
// response carries the assigned port, which WriteAttach compares against
// the port the façade took from the port table, failing on a mismatch.
func (c *IoctlChannel) WriteAttach(port uint16, devid uint32, speed DeviceSpeed, conn AttachConn) error {
	payload, err := encodeDeviceLocation(conn.Host, conn.Service, conn.BusID)
	if err != nil {
		return err
	}
	out, err := relay(c.handle, fnPluginHardware, payload, onceSize(8))
	if err != nil {
		return err
	}
	assigned, err := decodeAttachResponse(out)
	if err != nil {
		return err
	}
	if assigned != port {
		return newErrorf(ErrKindIoctl, "driver assigned port %d, requested %d", assigned, port)
	}
	return nil
}

// WriteDetach issues PlugoutHardware with the 4-byte port payload.
func (c *IoctlChannel) WriteDetach(port uint16) error {
	return relayNoOutput(c.handle, fnPlugoutHardware, encodeDetachPort(port))
}

// Close releases the device interface handle.
func (c *IoctlChannel) Close() error {
	return windows.CloseHandle(c.handle)
}

var _ Channel = (*IoctlChannel)(nil)
