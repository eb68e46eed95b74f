package vhci

import (
	"bytes"
	"testing"
)

func TestPortRecordEncodeSize(t *testing.T) {
	cases := []PortRecord{
		{Port: 0, BusID: "1-1", Service: "3240", Host: "127.0.0.1"},
		{Port: 5, BusID: "", Service: "", Host: ""},
	}
	for _, r := range cases {
		b, err := r.Encode()
		if err != nil {
			t.Fatalf("Encode(%+v): %v", r, err)
		}
		if len(b) != PortRecordEncodedSize {
			t.Fatalf("Encode(%+v) len = %d, want %d", r, len(b), PortRecordEncodedSize)
		}
	}
}

func TestPortRecordRoundTrip(t *testing.T) {
	cases := []PortRecord{
		{Port: 0, BusID: "1-1", Service: "3240", Host: "127.0.0.1"},
		{Port: -1, BusID: "2-1.4", Service: "0", Host: "::1"},
	}
	for _, r := range cases {
		b, err := r.Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, n, err := DecodePortRecord(b)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if n != PortRecordEncodedSize {
			t.Fatalf("consumed %d bytes, want %d", n, PortRecordEncodedSize)
		}
		if got != r {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, r)
		}
	}
}

// S2: PortRecord{port=0, busid="1-1", service="3240", host="127.0.0.1"}
// encodes to the exact 1096-byte layout described in spec.md.
func TestPortRecordEncodeExactBytes(t *testing.T) {
	r := PortRecord{Port: 0, BusID: "1-1", Service: "3240", Host: "127.0.0.1"}
	b, err := r.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var want bytes.Buffer
	want.Write([]byte{0, 0, 0, 0})
	want.WriteString("1-1")
	want.Write(make([]byte, 32-3))
	want.WriteString("3240")
	want.Write(make([]byte, 32-4))
	want.WriteString("127.0.0.1")
	want.Write(make([]byte, 1025-9))
	want.Write(make([]byte, 3))

	if want.Len() != PortRecordEncodedSize {
		t.Fatalf("test construction bug: want.Len() = %d", want.Len())
	}
	if !bytes.Equal(b, want.Bytes()) {
		t.Fatalf("encoded bytes mismatch\ngot:  % x\nwant: % x", b, want.Bytes())
	}
}

func TestImportedDeviceEncodeSize(t *testing.T) {
	d := ImportedDevice{
		Record:  PortRecord{Port: 1, BusID: "1-1", Service: "3240", Host: "127.0.0.1"},
		DevID:   DevID(1, 2),
		Speed:   DeviceSpeedHigh,
		Vendor:  0x1234,
		Product: 0xabcd,
	}
	b, err := d.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(b) != ImportedDeviceEncodedSize {
		t.Fatalf("len = %d, want %d", len(b), ImportedDeviceEncodedSize)
	}
}

func TestImportedDeviceRoundTrip(t *testing.T) {
	d := ImportedDevice{
		Record:  PortRecord{Port: 1, BusID: "1-1", Service: "3240", Host: "127.0.0.1"},
		DevID:   DevID(1, 2),
		Speed:   DeviceSpeedHigh,
		Vendor:  0x1234,
		Product: 0xabcd,
	}
	b, err := d.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, n, err := DecodeImportedDevice(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != ImportedDeviceEncodedSize {
		t.Fatalf("consumed %d, want %d", n, ImportedDeviceEncodedSize)
	}
	if got != d {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, d)
	}
}

func TestDecodeImportedDevicesSequence(t *testing.T) {
	d1 := ImportedDevice{Record: PortRecord{BusID: "1-1"}, DevID: DevID(1, 1), Speed: DeviceSpeedHigh}
	d2 := ImportedDevice{Record: PortRecord{BusID: "1-2"}, DevID: DevID(1, 2), Speed: DeviceSpeedSuper}

	b1, _ := d1.Encode()
	b2, _ := d2.Encode()
	buf := append(append([]byte{}, b1...), b2...)

	got, err := DecodeImportedDevices(buf)
	if err != nil {
		t.Fatalf("DecodeImportedDevices: %v", err)
	}
	if len(got) != 2 || got[0] != d1 || got[1] != d2 {
		t.Fatalf("got %+v", got)
	}
}

func TestEncodeFixedStrOverflow(t *testing.T) {
	r := PortRecord{BusID: "this-bus-id-string-is-far-too-long-to-fit-in-32-bytes"}
	if _, err := r.Encode(); err == nil {
		t.Fatalf("expected error encoding oversize BusID")
	}
}

func TestPortEncodeDecode(t *testing.T) {
	p := Port(7)
	got, err := DecodePort(p.Encode())
	if err != nil {
		t.Fatalf("DecodePort: %v", err)
	}
	if got != p {
		t.Fatalf("got %d, want %d", got, p)
	}
	if len(p.Encode()) != PortEncodedSize {
		t.Fatalf("Port encoded size = %d, want %d", len(p.Encode()), PortEncodedSize)
	}
}
