package vhci

// Channel is the OS-specific transport between the façade and the VHCI
// kernel driver: sysfs read/write on Linux, DeviceIoControl request/
// response framing on Windows. Both implementations share this contract so
// the façade's attach/detach/status logic is platform-independent.
// AttachConn carries whatever the OS-specific channel needs to bind a
// remote device to a local port. Linux hands an already-connected socket's
// raw descriptor to the kernel; Windows instead tells the driver which
// host to dial itself. The façade fills the fields its platform uses (FD
// only on Linux) from the caller's net.Conn and the remote busid learned
// out of band (spec.md §4.6
// notes Attach's identity of the remote device arrives this way, outside
// this library's scope).
type AttachConn struct {
	FD      int    // Linux: raw fd of the connected socket; ownership transfers to the kernel on success.
	Host    string // Windows: remote host the driver should dial.
	Service string // Windows: remote port/service the driver should dial.
	BusID   string // Remote busid on the host, persisted in the port record.
}

type Channel interface {
	// ReadStatus re-parses the driver's current status surface into the
	// free-port table and the list of currently imported devices. Called
	// at open time and on every ImportedDevices call (no caching).
	ReadStatus() ([]AvailablePort, []ImportedDevice, error)

	// WriteAttach tells the driver to bind devid at the given speed to
	// port, using whichever of conn's fields the platform needs.
	WriteAttach(port uint16, devid uint32, speed DeviceSpeed, conn AttachConn) error

	// WriteDetach tells the driver to release port.
	WriteDetach(port uint16) error

	// Close releases any OS resources held by the channel (file/handle).
	Close() error
}
