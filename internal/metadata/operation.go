package metadata

import (
	"github.com/cen-ngc5139/nfsd-trace/internal/event"
)

// NFSOperation is a decoded record plus what the host knows about it.
type NFSOperation struct {
	Op         string `json:"op"`
	Size       uint32 `json:"size"`
	Version    uint32 `json:"version"`
	Client     string `json:"client"`
	Export     string `json:"export,omitempty"`
	ExportPath string `json:"export_path,omitempty"`
	Node       string `json:"node,omitempty"`
	CPU        int    `json:"cpu"`
}

// NewNFSOperation decodes rec and resolves the export path and client node
// from the caches.
func NewNFSOperation(cpu int, rec *event.Record) NFSOperation {
	op := NFSOperation{
		Op:      rec.Op.String(),
		Size:    rec.Size,
		Version: uint32(rec.Version),
		Client:  rec.ClientIP().String(),
		Export:  rec.ExportPath(),
		CPU:     cpu,
	}
	if path, ok := LookupExportPath(op.Export); ok {
		op.ExportPath = path
	}
	if node, ok := LookupNode(op.Client); ok {
		op.Node = node
	}
	return op
}
