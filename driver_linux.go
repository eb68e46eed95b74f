package vhci

import (
	"net"
	"os"
	"syscall"
)

const platformIsWindows = false

func init() {
	openPlatform = func(cfg Config) (Channel, []AvailablePort, []ImportedDevice, error) {
		c, ports, idevs, err := OpenSysfsChannel(os.DirFS(cfg.SysRoot),
			WithSysRoot(cfg.SysRoot), WithStateDir(cfg.StateDir))
		if err != nil {
			return nil, nil, nil, err
		}
		return c, ports, idevs, nil
	}
	attachConn = linuxAttachConn
}

// linuxAttachConn extracts the raw file descriptor of socket's underlying
// connection, following driver-vhci_libudev.go.go's AttachDevice: the fd is
// handed to the kernel via the attach sysfs write, and ownership of the
// descriptor transfers to the kernel only once that write succeeds.
func linuxAttachConn(socket net.Conn, remoteBusID string) (AttachConn, error) {
	sc, ok := socket.(syscall.Conn)
	if !ok {
		return AttachConn{}, newErrorf(ErrKindOpen, "connection does not expose a raw file descriptor")
	}
	rawConn, err := sc.SyscallConn()
	if err != nil {
		return AttachConn{}, wrapErrorf(ErrKindOpen, err, "accessing raw connection")
	}

	var fd int
	if err := rawConn.Control(func(p uintptr) {
		fd = int(p)
	}); err != nil {
		return AttachConn{}, wrapErrorf(ErrKindOpen, err, "raw I/O on socket")
	}

	host, service, err := net.SplitHostPort(socket.RemoteAddr().String())
	if err != nil {
		host = socket.RemoteAddr().String()
		service = ""
	}
	return AttachConn{FD: fd, Host: host, Service: service, BusID: remoteBusID}, nil
}
