// Package probe turns one intercepted NFS server call into at most one event
// record. Every step is synchronous, does not allocate once its scratch
// frames are warm and degrades instead of failing.
package probe

import (
	"fmt"

	"github.com/cen-ngc5139/nfsd-trace/internal/event"
)

// EntryPoint identifies one of the intercepted nfsd functions.
type EntryPoint uint8

const (
	NFSv4Write EntryPoint = iota
	NFSv4Read
	NFSv3Write
	NFSv3Read
)

// EntryPoints lists every entry point the probe binds to.
var EntryPoints = []EntryPoint{NFSv4Write, NFSv4Read, NFSv3Write, NFSv3Read}

var entryInfo = [...]struct {
	symbol  string
	program string
	op      event.Op
	version event.Version
}{
	NFSv4Write: {"nfsd4_write", "kprobe__nfsd4_write", event.OpWrite, event.NFSv4},
	NFSv4Read:  {"nfsd4_read", "kprobe__nfsd4_read", event.OpRead, event.NFSv4},
	NFSv3Write: {"nfsd3_proc_write", "kprobe__nfsd3_proc_write", event.OpWrite, event.NFSv3},
	NFSv3Read:  {"nfsd3_proc_read", "kprobe__nfsd3_proc_read", event.OpRead, event.NFSv3},
}

func (e EntryPoint) valid() bool { return int(e) < len(entryInfo) }

// Symbol is the kernel function name.
func (e EntryPoint) Symbol() string {
	if !e.valid() {
		return ""
	}
	return entryInfo[e].symbol
}

// Program is the name of the kernel program attached to the symbol.
func (e EntryPoint) Program() string {
	if !e.valid() {
		return ""
	}
	return entryInfo[e].program
}

func (e EntryPoint) Op() event.Op { return entryInfo[e].op }

func (e EntryPoint) Version() event.Version { return entryInfo[e].version }

func (e EntryPoint) String() string {
	if !e.valid() {
		return fmt.Sprintf("entry(%d)", uint8(e))
	}
	return e.Symbol()
}

// EntryPointBySymbol maps a kernel symbol back to its entry point.
func EntryPointBySymbol(symbol string) (EntryPoint, bool) {
	for _, e := range EntryPoints {
		if e.Symbol() == symbol {
			return e, true
		}
	}
	return 0, false
}

// CallContext holds the first three positional arguments of an intercepted
// call. It belongs to a single invocation and is never retained.
//
//	nfsd4_write/nfsd4_read:           (svc_rqst *, nfsd4_compound_state *, op args *)
//	nfsd3_proc_write/nfsd3_proc_read: (svc_rqst *, unused, unused)
type CallContext struct {
	Args [3]uint64
}

func (c CallContext) Rqstp() uint64 { return c.Args[0] }
