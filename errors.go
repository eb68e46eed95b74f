package vhci

import (
	"fmt"

	"github.com/efficientgo/core/errors"
)

// Sentinel errors, following the teacher's errors_common.go style of plain
// comparable values rather than typed wrappers for conditions callers are
// expected to check with errors.Is.
var (
	ErrAlreadyOpen       = errors.New("vhci: driver already open in this process")
	ErrAlreadyInit       = errors.New("vhci: singleton already initializing")
	ErrAlreadyFailed     = errors.New("vhci: singleton permanently failed")
	ErrNotOpen           = errors.New("vhci: driver not open")
	ErrNoFreeControllers = errors.New("vhci: no free controllers")
	ErrOutOfPorts        = errors.New("vhci: no free ports for requested speed")
	ErrInterfaceNotFound = errors.New("vhci: device interface not found")
	ErrMultipleInterface = errors.New("vhci: multiple device interfaces present")
)

// ErrKind classifies an Error for programmatic handling, matching the
// taxonomy in the spec's error handling design.
type ErrKind int

const (
	ErrKindOpen ErrKind = iota
	ErrKindAttribute
	ErrKindTopology
	ErrKindPortRecord
	ErrKindCodec
	ErrKindIO
	ErrKindIoctl
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindOpen:
		return "open"
	case ErrKindAttribute:
		return "attribute"
	case ErrKindTopology:
		return "topology"
	case ErrKindPortRecord:
		return "port-record"
	case ErrKindCodec:
		return "codec"
	case ErrKindIO:
		return "io"
	case ErrKindIoctl:
		return "ioctl"
	default:
		return fmt.Sprintf("ErrKind(%d)", int(k))
	}
}

// Error is the library's structured error type, carrying a kind alongside
// the wrapped cause so callers can branch on the kind without string
// matching while %v/%w still exposes the original error via efficientgo's
// errors.Wrap chain.
type Error struct {
	Kind  ErrKind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

func newErrorf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, cause: errors.Newf(format, args...)}
}

func wrapErrorf(kind ErrKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, cause: errors.Wrapf(cause, format, args...)}
}

// AttachErrorKind classifies why an attach failed.
type AttachErrorKind int

const (
	AttachErrKindOutOfPorts AttachErrorKind = iota
	AttachErrKindSysFs
	AttachErrKindIoctl
)

// AttachError is returned by Driver.Attach on failure. It preserves the
// caller's socket file descriptor so the caller can close or retry the
// connection: on Linux the fd ownership transfers to the kernel only on
// success, so on failure the caller still owns it and must close it.
type AttachError struct {
	Socket int
	Kind   AttachErrorKind
	Err    error
}

func (e *AttachError) Error() string {
	switch e.Kind {
	case AttachErrKindOutOfPorts:
		return "vhci: attach failed: out of ports"
	case AttachErrKindSysFs:
		return fmt.Sprintf("vhci: attach failed: sysfs: %v", e.Err)
	case AttachErrKindIoctl:
		return fmt.Sprintf("vhci: attach failed: ioctl: %v", e.Err)
	default:
		return fmt.Sprintf("vhci: attach failed: %v", e.Err)
	}
}

func (e *AttachError) Unwrap() error { return e.Err }

// DriverErrorCode is a recognized Windows VHCI driver status code returned
// in a DeviceIoControl response, distinct from the Win32 error code of the
// DeviceIoControl call itself.
type DriverErrorCode uint32

const (
	DriverErrInvalidAbi                  DriverErrorCode = 0xE1000008
	DriverErrIncompatibleProtocolVersion DriverErrorCode = 0xE1000005
	DriverErrDevNotConnected             DriverErrorCode = 0x8007048F
)

func (c DriverErrorCode) String() string {
	switch c {
	case DriverErrInvalidAbi:
		return "invalid ABI"
	case DriverErrIncompatibleProtocolVersion:
		return "incompatible protocol version"
	case DriverErrDevNotConnected:
		return "device not connected"
	default:
		return fmt.Sprintf("driver error 0x%08X", uint32(c))
	}
}

// DriverError wraps a recognized or opaque Windows driver status code.
type DriverError struct {
	Code DriverErrorCode
}

func (e *DriverError) Error() string {
	return "vhci: " + e.Code.String()
}

// recognizedDriverError maps a raw status value to a DriverError if it is
// one of the known codes in spec.md §4.5.2; unknown codes are left for the
// caller to handle as an opaque Win32/NTSTATUS value.
func recognizedDriverError(code uint32) (*DriverError, bool) {
	switch DriverErrorCode(code) {
	case DriverErrInvalidAbi, DriverErrIncompatibleProtocolVersion, DriverErrDevNotConnected:
		return &DriverError{Code: DriverErrorCode(code)}, true
	default:
		return nil, false
	}
}
