package vhci

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Fixed-size string widths used by the on-wire/on-disk record layout.
const (
	busIDSize  = 32
	serviceLen = 32
	hostLen    = 1025
	padLen     = 3
)

// Byte widths of the encoded records. These are the compile-time constants
// the spec requires: PortRecord must encode to exactly 1096 bytes,
// ImportedDevice to 1108, Port to 4.
const (
	PortEncodedSize         = 4
	PortRecordEncodedSize   = 4 + busIDSize + serviceLen + hostLen + padLen // 1096
	ImportedDeviceEncodedSize = PortRecordEncodedSize + 4 + 4 + 2 + 2       // 1108
)

func init() {
	if PortRecordEncodedSize != 1096 {
		panic(fmt.Sprintf("vhci: PortRecordEncodedSize = %d, want 1096", PortRecordEncodedSize))
	}
	if ImportedDeviceEncodedSize != 1108 {
		panic(fmt.Sprintf("vhci: ImportedDeviceEncodedSize = %d, want 1108", ImportedDeviceEncodedSize))
	}
}

// encodeFixedStr writes the UTF-8 bytes of s into a field of width n,
// zero-padding the remainder. It fails if s does not fit.
func encodeFixedStr(dst []byte, s string, n int) error {
	if len(dst) < n {
		return newErrorf(ErrKindCodec, "destination too small: have %d, need %d", len(dst), n)
	}
	if len(s) > n {
		return newErrorf(ErrKindCodec, "string %q exceeds field width %d", s, n)
	}
	clear(dst[:n])
	copy(dst[:n], s)
	return nil
}

// decodeFixedStr takes the bytes up to the first zero byte (trimming the
// zero padding) and validates them as UTF-8, matching the spec's
// decode_fixed_str contract.
func decodeFixedStr(src []byte) (string, error) {
	end := len(src)
	for i, c := range src {
		if c == 0 {
			end = i
			break
		}
	}
	b := src[:end]
	if !utf8.Valid(b) {
		return "", newErrorf(ErrKindCodec, "fixed string field is not valid UTF-8")
	}
	return string(b), nil
}

// Port is the 4-byte little-endian port number used as the Detach IOCTL
// payload.
type Port int32

func (p Port) Encode() []byte {
	buf := make([]byte, PortEncodedSize)
	binary.LittleEndian.PutUint32(buf, uint32(p))
	return buf
}

func DecodePort(b []byte) (Port, error) {
	if len(b) < PortEncodedSize {
		return 0, newErrorf(ErrKindCodec, "short buffer decoding Port: have %d, need %d", len(b), PortEncodedSize)
	}
	return Port(binary.LittleEndian.Uint32(b)), nil
}

// PortRecord is the location of the remote host that owns an imported
// device: on Windows it is the GetImportedDevices wire record, on Linux it
// is the on-disk persistence format under /var/run/vhci_hcd/port<N>.
type PortRecord struct {
	Port    int32
	BusID   string
	Service string
	Host    string
}

// Encode writes the canonical 1096-byte representation: little-endian
// port, three fixed strings of widths (32, 32, 1025), then 3 zero pad
// bytes restoring 4-byte alignment.
func (r PortRecord) Encode() ([]byte, error) {
	buf := make([]byte, PortRecordEncodedSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Port))
	off := 4
	if err := encodeFixedStr(buf[off:off+busIDSize], r.BusID, busIDSize); err != nil {
		return nil, wrapErrorf(ErrKindCodec, err, "encoding PortRecord.BusID")
	}
	off += busIDSize
	if err := encodeFixedStr(buf[off:off+serviceLen], r.Service, serviceLen); err != nil {
		return nil, wrapErrorf(ErrKindCodec, err, "encoding PortRecord.Service")
	}
	off += serviceLen
	if err := encodeFixedStr(buf[off:off+hostLen], r.Host, hostLen); err != nil {
		return nil, wrapErrorf(ErrKindCodec, err, "encoding PortRecord.Host")
	}
	off += hostLen
	// buf[off:off+padLen] is already zero from make([]byte, ...).
	_ = off
	return buf, nil
}

// DecodePortRecord parses the 1096-byte layout, consuming and discarding
// the trailing 3 pad bytes.
func DecodePortRecord(b []byte) (PortRecord, int, error) {
	if len(b) < PortRecordEncodedSize {
		return PortRecord{}, 0, newErrorf(ErrKindCodec, "short buffer decoding PortRecord: have %d, need %d", len(b), PortRecordEncodedSize)
	}
	var r PortRecord
	r.Port = int32(binary.LittleEndian.Uint32(b[0:4]))
	off := 4
	busid, err := decodeFixedStr(b[off : off+busIDSize])
	if err != nil {
		return PortRecord{}, 0, wrapErrorf(ErrKindCodec, err, "decoding PortRecord.BusID")
	}
	r.BusID = busid
	off += busIDSize
	service, err := decodeFixedStr(b[off : off+serviceLen])
	if err != nil {
		return PortRecord{}, 0, wrapErrorf(ErrKindCodec, err, "decoding PortRecord.Service")
	}
	r.Service = service
	off += serviceLen
	host, err := decodeFixedStr(b[off : off+hostLen])
	if err != nil {
		return PortRecord{}, 0, wrapErrorf(ErrKindCodec, err, "decoding PortRecord.Host")
	}
	r.Host = host
	off += hostLen
	off += padLen // discard trailing pad
	return r, off, nil
}

// ImportedDevice describes one device attached through the VHCI driver.
//
// LocalBusID and Status are not part of the wire/on-disk layout (the
// driver's status surface reports them separately from the persisted
// PortRecord) but are needed to render the Display contract: LocalBusID is
// this host's busid for the device, distinct from Record.BusID (the
// *remote* busid recovered from the on-disk port record), and Status lets
// callers suppress idle ports. Both are left out of Encode/Decode.
type ImportedDevice struct {
	Record     PortRecord
	DevID      uint32
	Speed      DeviceSpeed
	Vendor     uint16
	Product    uint16
	LocalBusID string
	Status     DeviceStatus
}

func (d ImportedDevice) Encode() ([]byte, error) {
	rec, err := d.Record.Encode()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, ImportedDeviceEncodedSize)
	copy(buf, rec)
	off := PortRecordEncodedSize
	binary.LittleEndian.PutUint32(buf[off:off+4], d.DevID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(d.Speed))
	off += 4
	binary.LittleEndian.PutUint16(buf[off:off+2], d.Vendor)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:off+2], d.Product)
	return buf, nil
}

func DecodeImportedDevice(b []byte) (ImportedDevice, int, error) {
	if len(b) < ImportedDeviceEncodedSize {
		return ImportedDevice{}, 0, newErrorf(ErrKindCodec, "short buffer decoding ImportedDevice: have %d, need %d", len(b), ImportedDeviceEncodedSize)
	}
	rec, n, err := DecodePortRecord(b)
	if err != nil {
		return ImportedDevice{}, 0, wrapErrorf(ErrKindCodec, err, "decoding ImportedDevice.Record")
	}
	var d ImportedDevice
	d.Record = rec
	off := n
	d.DevID = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	d.Speed = DeviceSpeed(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	d.Vendor = binary.LittleEndian.Uint16(b[off : off+2])
	off += 2
	d.Product = binary.LittleEndian.Uint16(b[off : off+2])
	off += 2
	return d, off, nil
}

// DecodeImportedDevices decodes a sequence of back-to-back ImportedDevice
// records, the shape returned in the body of a GetImportedDevices response
// after its length prefix.
func DecodeImportedDevices(b []byte) ([]ImportedDevice, error) {
	var out []ImportedDevice
	for len(b) > 0 {
		d, n, err := DecodeImportedDevice(b)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
		b = b[n:]
	}
	return out, nil
}
