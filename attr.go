package vhci

import "strconv"

// Node abstracts a device node with typed string attributes. Its one
// implementation is the Linux sysfs backend (attr_linux.go); the Windows
// channel does not use a Node. It is the only
// seam through which this package touches the platform's device metadata
// store, matching the spec's treatment of udev as an opaque attribute
// store keyed by (subsystem, sysname).
type Node interface {
	// Attribute returns the raw attribute value, or an error if the
	// attribute does not exist or is not valid UTF-8.
	Attribute(name string) (string, error)
	Sysname() string
	Syspath() string
	Parent() (Node, bool)
}

// ParseAttribute reads the named attribute from n and parses it with the
// given parser, wrapping parse failures into the attribute error taxonomy.
func ParseAttribute[T any](n Node, name string, parse func(string) (T, error)) (T, error) {
	var zero T
	raw, err := n.Attribute(name)
	if err != nil {
		return zero, err
	}
	v, err := parse(raw)
	if err != nil {
		return zero, wrapErrorf(ErrKindAttribute, err, "parsing attribute %q=%q", name, raw)
	}
	return v, nil
}

// ParseUintAttribute is the common case of ParseAttribute for decimal
// unsigned integers (nports, busnum, devnum, bNumInterfaces, ...).
func ParseUintAttribute(n Node, name string, bitSize int) (uint64, error) {
	return ParseAttribute(n, name, func(s string) (uint64, error) {
		return strconv.ParseUint(s, 10, bitSize)
	})
}

// ParseHexUintAttribute parses attributes formatted as bare hex, such as
// idVendor/idProduct under /sys/bus/usb.
func ParseHexUintAttribute(n Node, name string, bitSize int) (uint64, error) {
	return ParseAttribute(n, name, func(s string) (uint64, error) {
		return strconv.ParseUint(s, 16, bitSize)
	})
}
