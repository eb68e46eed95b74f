package vhci

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// portRecordPath returns the on-disk path for a port's persisted record,
// matching src/unix/vhci2.rs's "/var/run/vhci_hcd/port<N>" layout.
func portRecordPath(stateDir string, port uint16) string {
	return filepath.Join(stateDir, fmt.Sprintf("port%d", port))
}

// ReadPortRecord reads and parses the on-disk record for port, in the
// "<host> <service> <busid>" whitespace-separated format vhci2.rs's
// PortRecord::FromStr reads. It is best-effort state a caller may not find
// (a port with no record yet, or one of a status line describing a device
// this process did not itself attach).
func ReadPortRecord(stateDir string, port uint16) (PortRecord, error) {
	raw, err := os.ReadFile(portRecordPath(stateDir, port))
	if err != nil {
		return PortRecord{}, wrapErrorf(ErrKindPortRecord, err, "reading port %d record", port)
	}
	fields := strings.Fields(string(raw))
	if len(fields) < 3 {
		return PortRecord{}, newErrorf(ErrKindPortRecord, "malformed port %d record: %q", port, raw)
	}
	return PortRecord{
		Port:    int32(port),
		Host:    fields[0],
		Service: fields[1],
		BusID:   fields[2],
	}, nil
}

// WritePortRecord persists rec under stateDir, creating the directory if
// needed. It is called on a successful attach so a later ReadPortRecord (or
// a process restart) can recover which remote host/busid own the port.
func WritePortRecord(stateDir string, rec PortRecord) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return wrapErrorf(ErrKindPortRecord, err, "creating state dir %q", stateDir)
	}
	line := fmt.Sprintf("%s %s %s\n", rec.Host, rec.Service, rec.BusID)
	path := portRecordPath(stateDir, uint16(rec.Port))
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		return wrapErrorf(ErrKindPortRecord, err, "writing port %d record", rec.Port)
	}
	return nil
}

// RemovePortRecord deletes the persisted record for port, called on detach.
// A record that is already absent is not an error: detach is idempotent
// with respect to the on-disk state.
func RemovePortRecord(stateDir string, port uint16) error {
	err := os.Remove(portRecordPath(stateDir, port))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return wrapErrorf(ErrKindPortRecord, err, "removing port %d record", port)
	}
	return nil
}

// portFromRecordFilename extracts the port number from a "port<N>"
// filename, used when scanning stateDir for records at startup.
func portFromRecordFilename(name string) (uint16, bool) {
	n, ok := strings.CutPrefix(name, "port")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(n, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

// pruneStalePortRecords scans stateDir for persisted records whose port is
// not in busy and removes them: a record survives its device's detach if
// the process that wrote it died before calling WriteDetach, and a fresh
// OpenSysfsChannel is the natural place to reconcile that against the
// driver's live status (spec.md §6, Lifecycle). A missing stateDir is not
// an error: no records have ever been written yet.
func pruneStalePortRecords(stateDir string, busy map[uint16]bool) error {
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return wrapErrorf(ErrKindPortRecord, err, "scanning state dir %q", stateDir)
	}
	for _, e := range entries {
		port, ok := portFromRecordFilename(e.Name())
		if !ok || busy[port] {
			continue
		}
		if err := RemovePortRecord(stateDir, port); err != nil {
			return err
		}
	}
	return nil
}
