package vhci

import "net"

const platformIsWindows = true

func init() {
	openPlatform = func(cfg Config) (Channel, []AvailablePort, []ImportedDevice, error) {
		c, err := OpenIoctlChannel()
		if err != nil {
			return nil, nil, nil, err
		}
		ports, idevs, err := c.ReadStatus()
		if err != nil {
			c.Close()
			return nil, nil, nil, err
		}
		return c, ports, idevs, nil
	}
	attachConn = windowsAttachConn
}

// windowsAttachConn derives the remote host/service PluginHardware needs
// from socket's address: unlike Linux, the driver dials the remote host
// itself rather than taking ownership of an already-connected fd (spec.md
// §4.5.2), so no descriptor needs to be extracted here.
func windowsAttachConn(socket net.Conn, remoteBusID string) (AttachConn, error) {
	host, service, err := net.SplitHostPort(socket.RemoteAddr().String())
	if err != nil {
		return AttachConn{}, wrapErrorf(ErrKindOpen, err, "parsing remote address")
	}
	return AttachConn{Host: host, Service: service, BusID: remoteBusID}, nil
}
