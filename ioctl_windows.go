package vhci

import (
	"encoding/binary"

	"golang.org/x/sys/windows"
)

// IOCTL control-code bit layout, matching ioctl.rs's ControlCode: the
// lowest 2 bits select the transfer method, the next 12 bits the function
// number, the next 2 bits the required access, and the top 16 bits the
// device type.
const (
	methodBuffered = 0

	fileAnyAccess   = 0
	fileReadAccess  = 1
	fileWriteAccess = 2

	fileDeviceUnknown = 0x00000022

	methodShift = 0
	numShift    = methodShift + 2
	accessShift = numShift + 12
	typeShift   = accessShift + 2
)

// ioctlFunction is the VHCI driver's function code, occupying the 12-bit
// "num" field of the control code.
type ioctlFunction uint32

const (
	fnPluginHardware ioctlFunction = 0x800 + iota
	fnPlugoutHardware
	fnGetImportedDevices
	fnSetPersistent
	fnGetPersistent
)

// controlCode packs a VHCI IOCTL's control code. Every VHCI function uses
// FILE_DEVICE_UNKNOWN, read|write access and METHOD_BUFFERED.
func controlCode(fn ioctlFunction) uint32 {
	access := uint32(fileReadAccess | fileWriteAccess)
	return uint32(fileDeviceUnknown)<<typeShift | access<<accessShift | uint32(fn)<<numShift | methodBuffered
}

// onceSize and doublingSize produce the sequence of output buffer sizes
// relay tries, in the order described by ioctl.rs's IoControl::RegrowIter:
// onceSize yields one size for Attach (there is nothing to grow), and
// doublingSize grows geometrically for GetImportedDevices, whose result
// size isn't known ahead of time. Detach goes through relayNoOutput and
// uses neither.
func onceSize(size int) func() (int, bool) {
	calls := 0
	return func() (int, bool) {
		if calls >= 1 {
			return 0, false
		}
		calls++
		return size, true
	}
}

func doublingSize(base int, maxDoublings int) func() (int, bool) {
	size := base
	doublings := 0
	return func() (int, bool) {
		if doublings > maxDoublings {
			return 0, false
		}
		s := size
		size *= 2
		doublings++
		return s, true
	}
}

// relay drives a single VHCI IOCTL to completion: it issues DeviceIoControl
// with input and a growing output buffer, following ioctl.rs's Door
// protocol: Ok(0 bytes, ERROR_SUCCESS)=done, partial writes accumulate,
// ERROR_MORE_DATA means "keep what was written and call again for more",
// and ERROR_INSUFFICIENT_BUFFER means "grow the buffer and retry this
// call". sizes yields the sequence of total buffer sizes to try; relay
// returns the output slice actually filled, trimmed to the bytes written.
func relay(h windows.Handle, fn ioctlFunction, input []byte, sizes func() (int, bool)) ([]byte, error) {
	code := controlCode(fn)
	var inPtr *byte
	if len(input) > 0 {
		inPtr = &input[0]
	}

	var output []byte
	start := 0
	for {
		size, ok := sizes()
		if !ok {
			return output[:start], nil
		}
		if size > len(output) {
			grown := make([]byte, size)
			copy(grown, output)
			output = grown
		}

		var bytesReturned uint32
		var outPtr *byte
		outSlice := output[start:]
		if len(outSlice) > 0 {
			outPtr = &outSlice[0]
		}
		err := windows.DeviceIoControl(h, code, inPtr, uint32(len(input)), outPtr, uint32(len(outSlice)), &bytesReturned, nil)
		switch {
		case err == nil:
			start += int(bytesReturned)
			if bytesReturned == 0 {
				return output[:start], nil
			}
		case err == windows.ERROR_MORE_DATA:
			start += int(bytesReturned)
		case err == windows.ERROR_INSUFFICIENT_BUFFER:
			// retry this same call on the next, larger size.
		default:
			return nil, wrapErrorf(ErrKindIoctl, err, "DeviceIoControl fn=%#x", fn)
		}
	}
}

// relayNoOutput issues an IOCTL that sends input and expects no response
// body beyond the call's own success/failure, used by Detach.
func relayNoOutput(h windows.Handle, fn ioctlFunction, input []byte) error {
	code := controlCode(fn)
	var inPtr *byte
	if len(input) > 0 {
		inPtr = &input[0]
	}
	var bytesReturned uint32
	err := windows.DeviceIoControl(h, code, inPtr, uint32(len(input)), nil, 0, &bytesReturned, nil)
	if err != nil {
		return wrapErrorf(ErrKindIoctl, err, "DeviceIoControl fn=%#x", fn)
	}
	return nil
}

// encodeDeviceLocation builds the length-prefixed PortRecord-shaped payload
// DeviceLocation::encode produces for the PluginHardware IOCTL: a u32 byte
// count followed by a PortRecord with port=0, service/host filled from the
// remote socket address and busid from the caller's remote busid.
func encodeDeviceLocation(host, service, busid string) ([]byte, error) {
	rec := PortRecord{Port: 0, BusID: busid, Service: service, Host: host}
	body, err := rec.Encode()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(body)+4))
	copy(buf[4:], body)
	return buf, nil
}

// encodeDetachPort builds the length-prefixed 4-byte port payload for the
// PlugoutHardware IOCTL.
func encodeDetachPort(port uint16) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[:4], 8)
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(port)))
	return buf
}

// decodeAttachResponse strips the Attach IOCTL's leading 4-byte length
// prefix and decodes the assigned port number.
func decodeAttachResponse(b []byte) (uint16, error) {
	if len(b) < 8 {
		return 0, newErrorf(ErrKindIoctl, "short Attach response: %d bytes", len(b))
	}
	port, err := DecodePort(b[4:8])
	if err != nil {
		return 0, err
	}
	return uint16(port), nil
}

// decodeImportedDevicesResponse strips the GetImportedDevices IOCTL's
// leading 4-byte length prefix and decodes the trailing run of
// ImportedDevice records.
func decodeImportedDevicesResponse(b []byte) ([]ImportedDevice, error) {
	if len(b) < 4 {
		return nil, nil
	}
	return DecodeImportedDevices(b[4:])
}
