package probe

import (
	"github.com/cen-ngc5139/nfsd-trace/internal/event"
	"github.com/cen-ngc5139/nfsd-trace/internal/kmem"
	"github.com/cen-ngc5139/nfsd-trace/internal/layout"
)

// Field flags a record field that could not be read.
type Field uint8

const (
	FieldSize Field = 1 << iota
	FieldExport
	FieldAddr
	FieldPath
)

func (f Field) Has(m Field) bool { return f&m != 0 }

// Decoded is the normalized view of a call's arguments. Fields listed in
// Missing are zero.
type Decoded struct {
	Op      event.Op
	Version event.Version
	Size    uint32
	Export  uint64
	Missing Field
}

// argShape decodes one version-specific argument layout. It fills Size,
// Export and Missing.
type argShape interface {
	decode(mem kmem.Reader, l *layout.Layout, call CallContext, w *kmem.Word) Decoded
}

// v4Args: size lives in the per-operation argument (third parameter), the
// export in the compound state's current file handle (second parameter).
type v4Args struct {
	length func(l *layout.Layout) uint64
}

func (s v4Args) decode(mem kmem.Reader, l *layout.Layout, call CallContext, w *kmem.Word) (d Decoded) {
	cstate, args := call.Args[1], call.Args[2]

	export, err := w.Ptr(mem, cstate+l.CurrentFh+l.FhExport)
	if err != nil {
		d.Missing |= FieldExport
	}
	d.Export = export

	size, err := w.U32(mem, args+s.length(l))
	if err != nil {
		d.Missing |= FieldSize
	}
	d.Size = size
	return d
}

// v3Args: both size and export sit in the procedure arguments stored on the
// request (svc_rqst.rq_argp).
type v3Args struct {
	fh    func(l *layout.Layout) uint64
	count func(l *layout.Layout) uint64
}

func (s v3Args) decode(mem kmem.Reader, l *layout.Layout, call CallContext, w *kmem.Word) (d Decoded) {
	argp, err := w.Ptr(mem, call.Rqstp()+l.RqArgp)
	if err != nil {
		d.Missing |= FieldSize | FieldExport
		return d
	}

	size, err := w.U32(mem, argp+s.count(l))
	if err != nil {
		d.Missing |= FieldSize
	}
	d.Size = size

	export, err := w.Ptr(mem, argp+s.fh(l)+l.FhExport)
	if err != nil {
		d.Missing |= FieldExport
	}
	d.Export = export
	return d
}

var shapes = [...]argShape{
	NFSv4Write: v4Args{length: func(l *layout.Layout) uint64 { return l.WrBuflen }},
	NFSv4Read:  v4Args{length: func(l *layout.Layout) uint64 { return l.RdLength }},
	NFSv3Write: v3Args{
		fh:    func(l *layout.Layout) uint64 { return l.V3WriteFh },
		count: func(l *layout.Layout) uint64 { return l.V3WriteCount },
	},
	NFSv3Read: v3Args{
		fh:    func(l *layout.Layout) uint64 { return l.V3ReadFh },
		count: func(l *layout.Layout) uint64 { return l.V3ReadCount },
	},
}

// Decode extracts operation, size, export handle and version for entry.
// Unreadable fields are left zero and flagged in Missing.
func Decode(mem kmem.Reader, l *layout.Layout, entry EntryPoint, call CallContext) Decoded {
	var w kmem.Word
	return decode(mem, l, entry, call, &w)
}

func decode(mem kmem.Reader, l *layout.Layout, entry EntryPoint, call CallContext, w *kmem.Word) Decoded {
	if !entry.valid() {
		return Decoded{Missing: FieldSize | FieldExport}
	}

	d := shapes[entry].decode(mem, l, call, w)
	d.Op, d.Version = entry.Op(), entry.Version()
	return d
}
