// Package layout describes where the probe finds each kernel field it reads.
package layout

import (
	"fmt"
	"strings"
)

// AFInet is the IPv4 socket address family.
const AFInet = 2

// Layout holds byte offsets of every kernel structure member the pipeline
// dereferences. Offsets are relative to the start of the enclosing struct.
type Layout struct {
	// svc_rqst
	RqAddr uint64 `yaml:"rq_addr"`
	RqArgp uint64 `yaml:"rq_argp"`

	// sockaddr_storage / sockaddr_in
	SsFamily uint64 `yaml:"ss_family"`
	SinAddr  uint64 `yaml:"sin_addr"`

	// nfsd4_compound_state.current_fh and svc_fh.fh_export
	CurrentFh uint64 `yaml:"current_fh"`
	FhExport  uint64 `yaml:"fh_export"`

	// NFSv4 operation arguments
	WrBuflen uint64 `yaml:"wr_buflen"`
	RdLength uint64 `yaml:"rd_length"`

	// NFSv3 procedure arguments; both embed an svc_fh named fh
	V3WriteFh    uint64 `yaml:"v3_write_fh"`
	V3WriteCount uint64 `yaml:"v3_write_count"`
	V3ReadFh     uint64 `yaml:"v3_read_fh"`
	V3ReadCount  uint64 `yaml:"v3_read_count"`

	// svc_export.ex_path -> path.dentry -> dentry.d_name -> qstr.name
	ExPath     uint64 `yaml:"ex_path"`
	PathDentry uint64 `yaml:"path_dentry"`
	DName      uint64 `yaml:"d_name"`
	QstrName   uint64 `yaml:"qstr_name"`

	// Source records where the offsets came from.
	Source string `yaml:"source"`
}

// Default returns the x86_64 layout of the structures as declared by the
// kernel program in bpf/nfsd_trace.bpf.c.
func Default() *Layout {
	return &Layout{
		RqAddr: 0x108,
		RqArgp: 0x2a8,

		SsFamily: 0,
		SinAddr:  4,

		CurrentFh: 0,
		FhExport:  0x90,

		WrBuflen: 0x1c,
		RdLength: 0x18,

		V3WriteFh:    0,
		V3WriteCount: 0x178,
		V3ReadFh:     0,
		V3ReadCount:  0x178,

		ExPath:     0x40,
		PathDentry: 8,
		DName:      0x20,
		QstrName:   8,

		Source: "default",
	}
}

func (l *Layout) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "source: %s\n", l.Source)
	for _, f := range l.fields() {
		fmt.Fprintf(&b, "%-28s 0x%x\n", f.name, *f.off)
	}
	return b.String()
}

type field struct {
	strct  string
	member string
	name   string
	off    *uint64
}

// fields lists each offset with the BTF struct and member path it maps to.
// Member paths are dotted when the member sits inside an embedded struct.
func (l *Layout) fields() []field {
	return []field{
		{"svc_rqst", "rq_addr", "svc_rqst.rq_addr", &l.RqAddr},
		{"svc_rqst", "rq_argp", "svc_rqst.rq_argp", &l.RqArgp},
		{"__kernel_sockaddr_storage", "ss_family", "sockaddr_storage.ss_family", &l.SsFamily},
		{"sockaddr_in", "sin_addr", "sockaddr_in.sin_addr", &l.SinAddr},
		{"nfsd4_compound_state", "current_fh", "nfsd4_compound_state.current_fh", &l.CurrentFh},
		{"svc_fh", "fh_export", "svc_fh.fh_export", &l.FhExport},
		{"nfsd4_write", "wr_buflen", "nfsd4_write.wr_buflen", &l.WrBuflen},
		{"nfsd4_read", "rd_length", "nfsd4_read.rd_length", &l.RdLength},
		{"nfsd3_writeargs", "fh", "nfsd3_writeargs.fh", &l.V3WriteFh},
		{"nfsd3_writeargs", "count", "nfsd3_writeargs.count", &l.V3WriteCount},
		{"nfsd3_readargs", "fh", "nfsd3_readargs.fh", &l.V3ReadFh},
		{"nfsd3_readargs", "count", "nfsd3_readargs.count", &l.V3ReadCount},
		{"svc_export", "ex_path", "svc_export.ex_path", &l.ExPath},
		{"path", "dentry", "path.dentry", &l.PathDentry},
		{"dentry", "d_name", "dentry.d_name", &l.DName},
		{"qstr", "name", "qstr.name", &l.QstrName},
	}
}
