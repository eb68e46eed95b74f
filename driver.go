package vhci

import (
	"net"
	"slices"
	"sync"

	"github.com/go-kit/log"
)

// guard is the process-wide singleton: spec.md §7 requires at most one
// Driver open per process, since the underlying sysfs/IOCTL resources are
// themselves process-global.
var guard singletonGuard

// Driver is the façade over the platform Channel: it owns the free-port
// table, serializes attach/detach as atomic operations (spec.md §5), and
// reports status without caching (every ImportedDevices call re-parses the
// driver's live state, following driver-vhci_libudev.go.go's
// UpdateAttachedDevices pattern).
type Driver struct {
	mu      sync.Mutex
	channel Channel
	ports   *PortTable
	logger  log.Logger
	metrics *Metrics
	cfg     Config
}

// Option configures a Driver at Open time.
type Option func(*Driver)

// WithLogger attaches a go-kit logger; the default is a no-op logger, so a
// Driver opened without this option is silent.
func WithLogger(logger log.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// WithMetrics attaches a Metrics instance; the default is nil, under which
// every observe call is a no-op.
func WithMetrics(m *Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithConfig overrides the default path configuration (sys-root/state-dir
// on Linux); Windows's openPlatform ignores it, since its channel has no
// filesystem paths to configure.
func WithConfig(cfg Config) Option {
	return func(d *Driver) { d.cfg = cfg }
}

// openPlatform is implemented per-OS (driver_linux.go, driver_windows.go):
// it constructs the Channel and returns the initial port/device snapshot
// Open needs to seed the port table.
var openPlatform func(cfg Config) (Channel, []AvailablePort, []ImportedDevice, error)

// attachConn is implemented per-OS: it derives whatever the platform
// Channel needs from socket to bind devid to a port (spec.md §4.6's note
// that the remote device's identity arrives out of band of this library).
var attachConn func(socket net.Conn, busid string) (AttachConn, error)

// Open acquires the process-wide VHCI driver handle: it is an error to
// call Open twice in the same process without an intervening Close
// (spec.md §7, scenario S1/S2).
func Open(opts ...Option) (*Driver, error) {
	v, err := guard.tryInit(func() (any, error) {
		d := &Driver{
			cfg:    DefaultConfig(),
			logger: newNopLogger(),
		}
		for _, opt := range opts {
			opt(d)
		}
		channel, ports, _, err := openPlatform(d.cfg)
		if err != nil {
			return nil, err
		}
		d.channel = channel
		d.ports = NewPortTable(ports)
		logOpen(d.logger, d.ports.Len(), 0)
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Driver), nil
}

// ImportedDevices re-parses the driver's status surface and returns every
// port that is not PortAvailable (free ports are AvailablePorts, not
// devices). A port in PortInitializing is included; Display renders it as
// the empty string. No caching: spec.md §4.6 requires every call to
// reflect the driver's live state.
func (d *Driver) ImportedDevices() ([]ImportedDevice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, idevs, err := d.channel.ReadStatus()
	if err != nil {
		return nil, err
	}
	return idevs, nil
}

// Attach binds the device reachable through socket to a free port matching
// speed, returning the assigned port. The acquire-then-write is a single
// mutex-protected operation (spec.md §5): if the channel write fails the
// port is released back to the table before returning, and the caller
// retains ownership of socket (it must close it itself; see AttachError).
func (d *Driver) Attach(socket net.Conn, devid uint32, speed DeviceSpeed, remoteBusID string) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	port, ok := d.ports.Acquire(speed)
	if !ok {
		logAttachFailed(d.logger, devid, speed, ErrOutOfPorts)
		d.metrics.observeAttach(false, d.ports.Len())
		return 0, &AttachError{Kind: AttachErrKindOutOfPorts, Err: ErrOutOfPorts}
	}

	conn, err := attachConn(socket, remoteBusID)
	if err != nil {
		d.ports.Release(port)
		logAttachFailed(d.logger, devid, speed, err)
		d.metrics.observeAttach(false, d.ports.Len())
		return 0, &AttachError{Kind: attachErrKind(), Err: err}
	}

	if err := d.channel.WriteAttach(port.Port, devid, speed, conn); err != nil {
		d.ports.Release(port)
		logAttachFailed(d.logger, devid, speed, err)
		d.metrics.observeAttach(false, d.ports.Len())
		return 0, &AttachError{Socket: conn.FD, Kind: attachErrKind(), Err: err}
	}

	logAttach(d.logger, port.Port, devid, speed)
	d.metrics.observeAttach(true, d.ports.Len())
	return port.Port, nil
}

// Detach releases port back through the channel and back into the free
// table, regardless of which speed originally acquired it: ReadStatus
// after the detach write classifies it by whatever hub owns it physically,
// so the table doesn't need to remember. A port the driver does not yet
// report as free is not added to the table.
func (d *Driver) Detach(port uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.channel.WriteDetach(port); err != nil {
		logDetachFailed(d.logger, port, err)
		d.metrics.observeDetach(false, d.ports.Len())
		return err
	}
	if free, _, err := d.channel.ReadStatus(); err == nil {
		for _, p := range free {
			if p.Port == port && !slices.Contains(d.ports.Snapshot(), p) {
				d.ports.Release(p)
			}
		}
	}
	logDetach(d.logger, port)
	d.metrics.observeDetach(true, d.ports.Len())
	return nil
}

// Close releases the channel's OS resources and the process-wide guard, so
// a later Open in the same process can succeed again.
func (d *Driver) Close() error {
	d.mu.Lock()
	err := d.channel.Close()
	d.mu.Unlock()
	guard.terminate(func(v any) {
		_ = v
	})
	return err
}

func attachErrKind() AttachErrorKind {
	if platformIsWindows {
		return AttachErrKindIoctl
	}
	return AttachErrKindSysFs
}
