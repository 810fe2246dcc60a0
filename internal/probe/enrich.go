package probe

import (
	"github.com/cen-ngc5139/nfsd-trace/internal/event"
	"github.com/cen-ngc5139/nfsd-trace/internal/kmem"
	"github.com/cen-ngc5139/nfsd-trace/internal/layout"
)

// Client is the caller's IPv4 address in network byte order.
type Client struct {
	Addr    uint32
	Missing Field
}

// ResolveClient reads the request's remote address. ok is false when the
// connection is not IPv4, including when the family itself is unreadable;
// such calls produce no record.
func ResolveClient(mem kmem.Reader, l *layout.Layout, rqstp uint64) (c Client, ok bool) {
	var w kmem.Word
	return resolveClient(mem, l, rqstp, &w)
}

func resolveClient(mem kmem.Reader, l *layout.Layout, rqstp uint64, w *kmem.Word) (c Client, ok bool) {
	sa := rqstp + l.RqAddr

	family, err := w.U16(mem, sa+l.SsFamily)
	if err != nil || family != layout.AFInet {
		return Client{}, false
	}

	addr, err := w.BE32(mem, sa+l.SinAddr)
	if err != nil {
		return Client{Missing: FieldAddr}, true
	}
	return Client{Addr: addr}, true
}

// ResolveExportPath follows export -> ex_path.dentry -> d_name.name and copies
// the name into dst. Any broken link leaves dst zeroed and returns false.
func ResolveExportPath(mem kmem.Reader, l *layout.Layout, export uint64, dst *[event.PathLen]byte) bool {
	var w kmem.Word
	return resolveExportPath(mem, l, export, &w, dst)
}

func resolveExportPath(mem kmem.Reader, l *layout.Layout, export uint64, w *kmem.Word, dst *[event.PathLen]byte) bool {
	clear(dst[:])
	if export == 0 {
		return false
	}

	dentry, err := w.Ptr(mem, export+l.ExPath+l.PathDentry)
	if err != nil {
		return false
	}

	name, err := w.Ptr(mem, dentry+l.DName+l.QstrName)
	if err != nil {
		return false
	}

	if _, err := kmem.ReadString(mem, name, dst[:]); err != nil {
		clear(dst[:])
		return false
	}
	return true
}
