package vhci

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// newNopLogger is the library's default: silent unless a caller opts in
// via WithLogger, matching the teacher's own quiet-unless-asked library
// surface (its cmd/ tools log, the library itself does not).
func newNopLogger() log.Logger {
	return log.NewNopLogger()
}

// NewLogfmtLogger builds a leveled logfmt logger writing to w, for callers
// that want human-readable structured output without pulling in their own
// go-kit/log setup.
func NewLogfmtLogger(w *os.File) log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(w))
	return log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func logOpen(logger log.Logger, numPorts, numControllers int) {
	level.Info(logger).Log("msg", "driver opened", "ports", numPorts, "controllers", numControllers)
}

func logAttach(logger log.Logger, port uint16, devid uint32, speed DeviceSpeed) {
	level.Info(logger).Log("msg", "device attached", "port", port, "devid", devid, "speed", speed.String())
}

func logAttachFailed(logger log.Logger, devid uint32, speed DeviceSpeed, err error) {
	level.Warn(logger).Log("msg", "attach failed", "devid", devid, "speed", speed.String(), "err", err)
}

func logDetach(logger log.Logger, port uint16) {
	level.Info(logger).Log("msg", "device detached", "port", port)
}

func logDetachFailed(logger log.Logger, port uint16, err error) {
	level.Warn(logger).Log("msg", "detach failed", "port", port, "err", err)
}
