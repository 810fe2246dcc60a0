package probe

import "github.com/cen-ngc5139/nfsd-trace/internal/event"

// Build assembles the record. It performs no memory reads; anything the
// decoder or enricher could not fill stays zero.
func Build(d Decoded, c Client, path *[event.PathLen]byte) event.Record {
	rec := event.Record{
		Op:      d.Op,
		Size:    d.Size,
		Addr:    c.Addr,
		Version: d.Version,
	}
	if path != nil {
		rec.Path = *path
		rec.Path[event.PathLen-1] = 0
	}
	return rec
}
