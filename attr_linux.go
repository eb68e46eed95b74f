package vhci

import (
	"io/fs"
	"path"
	"strings"
	"unicode/utf8"
)

// sysfsNode is the Linux Node implementation: attributes are files under a
// sysfs directory. It is backed by an fs.FS rather than the OS filesystem
// directly so tests can substitute a testing/fstest.MapFS, the same
// approach the retrieved driver-sysfs_test.go uses to mock a vhci_hcd tree.
type sysfsNode struct {
	fsys    fs.FS
	syspath string // path within fsys, always slash-separated, no leading slash
}

func newSysfsNode(fsys fs.FS, syspath string) *sysfsNode {
	return &sysfsNode{fsys: fsys, syspath: strings.TrimPrefix(syspath, "/")}
}

func (n *sysfsNode) Attribute(name string) (string, error) {
	b, err := fs.ReadFile(n.fsys, path.Join(n.syspath, name))
	if err != nil {
		return "", wrapErrorf(ErrKindAttribute, err, "reading attribute %q", name)
	}
	if !utf8.Valid(b) {
		return "", newErrorf(ErrKindAttribute, "attribute %q is not valid UTF-8", name)
	}
	return strings.TrimRight(string(b), "\n"), nil
}

func (n *sysfsNode) Sysname() string {
	return path.Base(n.syspath)
}

func (n *sysfsNode) Syspath() string {
	return n.syspath
}

func (n *sysfsNode) Parent() (Node, bool) {
	parent := path.Dir(n.syspath)
	if parent == "." || parent == n.syspath {
		return nil, false
	}
	return newSysfsNode(n.fsys, parent), true
}

// listChildren returns the names of entries directly under the node,
// mirroring the teacher's os.ReadDir-based enumeration but against the
// node's fs.FS so it is equally mockable.
func (n *sysfsNode) listChildren() ([]string, error) {
	entries, err := fs.ReadDir(n.fsys, n.syspath)
	if err != nil {
		return nil, wrapErrorf(ErrKindAttribute, err, "listing children of %q", n.syspath)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
