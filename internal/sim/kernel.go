// Package sim lays out synthetic nfsd call state in a kmem.Arena and drives
// it through an attach.SimHost.
package sim

import (
	"net/netip"

	"github.com/cen-ngc5139/nfsd-trace/internal/kmem"
	"github.com/cen-ngc5139/nfsd-trace/internal/layout"
	"github.com/cen-ngc5139/nfsd-trace/internal/probe"
)

const (
	afInet6      = 10
	sin6AddrOff  = 8
	sockaddrSize = 128
)

// Link names one pointer hop the probe follows. Breaking a link unmaps the
// object it points to.
type Link uint8

const (
	LinkNone Link = iota
	LinkRqstp
	LinkCstate
	LinkOpArgs
	LinkV3Args
	LinkExport
	LinkDentry
	LinkName
)

var linkNames = [...]string{"none", "rqstp", "cstate", "op-args", "v3-args", "export", "dentry", "name"}

func (l Link) String() string {
	if int(l) < len(linkNames) {
		return linkNames[l]
	}
	return "unknown"
}

// ExportLinks are the hops of the export path chain.
var ExportLinks = []Link{LinkExport, LinkDentry, LinkName}

// Call describes one synthetic nfsd invocation.
type Call struct {
	Entry      probe.EntryPoint
	Size       uint32
	Client     netip.Addr
	ExportName string
	Break      Link
}

// Kernel owns the synthetic address space.
type Kernel struct {
	mem    *kmem.Arena
	layout *layout.Layout
}

func NewKernel(l *layout.Layout) *Kernel {
	if l == nil {
		l = layout.Default()
	}
	return &Kernel{mem: kmem.NewArena(), layout: l}
}

func (k *Kernel) Memory() *kmem.Arena { return k.mem }

func (k *Kernel) Layout() *layout.Layout { return k.layout }

// staged tracks the objects of one call so they can be unmapped.
type staged struct {
	mem   *kmem.Arena
	addrs map[Link]uint64
}

func (s *staged) alloc(link Link, size uint64) uint64 {
	addr := s.mem.Alloc(int(size))
	s.addrs[link] = addr
	return addr
}

func (s *staged) release() {
	for _, a := range s.addrs {
		s.mem.Free(a)
	}
}

// Stage maps every object c touches and returns the call's arguments and a
// release function that unmaps them.
func (k *Kernel) Stage(c Call) (probe.CallContext, func()) {
	l := k.layout
	s := &staged{mem: k.mem, addrs: make(map[Link]uint64, 8)}

	export := k.stageExport(s, c.ExportName)

	rqstp := s.alloc(LinkRqstp, max(l.RqAddr+sockaddrSize, l.RqArgp+8))
	k.stageClient(rqstp+l.RqAddr, c.Client)

	var call probe.CallContext
	call.Args[0] = rqstp

	switch c.Entry {
	case probe.NFSv4Write, probe.NFSv4Read:
		cstate := s.alloc(LinkCstate, l.CurrentFh+l.FhExport+8)
		_ = k.mem.PutPtr(cstate+l.CurrentFh+l.FhExport, export)

		args := s.alloc(LinkOpArgs, max(l.WrBuflen, l.RdLength)+4)
		sizeOff := l.WrBuflen
		if c.Entry == probe.NFSv4Read {
			sizeOff = l.RdLength
		}
		_ = k.mem.PutU32(args+sizeOff, c.Size)

		call.Args[1], call.Args[2] = cstate, args

	case probe.NFSv3Write, probe.NFSv3Read:
		fh, count := l.V3WriteFh, l.V3WriteCount
		if c.Entry == probe.NFSv3Read {
			fh, count = l.V3ReadFh, l.V3ReadCount
		}
		argp := s.alloc(LinkV3Args, max(fh+l.FhExport+8, count+4))
		_ = k.mem.PutU32(argp+count, c.Size)
		_ = k.mem.PutPtr(argp+fh+l.FhExport, export)
		_ = k.mem.PutPtr(rqstp+l.RqArgp, argp)
	}

	if addr, ok := s.addrs[c.Break]; ok {
		k.mem.Free(addr)
	}
	return call, s.release
}

func (k *Kernel) stageExport(s *staged, name string) uint64 {
	l := k.layout

	nameAddr := k.mem.PutString(name)
	s.addrs[LinkName] = nameAddr

	dentry := s.alloc(LinkDentry, l.DName+l.QstrName+8)
	_ = k.mem.PutPtr(dentry+l.DName+l.QstrName, nameAddr)

	export := s.alloc(LinkExport, l.ExPath+l.PathDentry+8)
	_ = k.mem.PutPtr(export+l.ExPath+l.PathDentry, dentry)
	return export
}

func (k *Kernel) stageClient(sa uint64, client netip.Addr) {
	l := k.layout
	switch {
	case client.Is4():
		a := client.As4()
		_ = k.mem.PutU16(sa+l.SsFamily, layout.AFInet)
		_ = k.mem.Write(sa+l.SinAddr, a[:])
	case client.Is6():
		a := client.As16()
		_ = k.mem.PutU16(sa+l.SsFamily, afInet6)
		_ = k.mem.Write(sa+sin6AddrOff, a[:])
	}
}
