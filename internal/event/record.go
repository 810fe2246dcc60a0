package event

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

const (
	// PathLen is the size of the export path buffer, terminator included.
	PathLen = 64
	// Size is the encoded size of a Record. It never varies.
	Size = 16 + PathLen
)

// Op is the direction of the intercepted I/O.
type Op uint32

const (
	OpRead  Op = 0
	OpWrite Op = 1
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	default:
		return fmt.Sprintf("OP(%d)", uint32(o))
	}
}

// Version is the NFS protocol major version.
type Version uint32

const (
	NFSv3 Version = 3
	NFSv4 Version = 4
)

// Record is the fixed-size event emitted once per observed call.
//
// Layout on the wire (80 bytes):
//
//	0  op       u32, host order
//	4  size     u32, host order
//	8  addr     4 raw sin_addr bytes (network order)
//	12 version  u32, host order
//	16 path     [64]byte, NUL terminated or zero
type Record struct {
	Op      Op
	Size    uint32
	Addr    uint32
	Version Version
	Path    [PathLen]byte
}

// MarshalTo encodes r into b, which must hold at least Size bytes.
func (r *Record) MarshalTo(b []byte) {
	_ = b[Size-1]
	binary.LittleEndian.PutUint32(b[0:4], uint32(r.Op))
	binary.LittleEndian.PutUint32(b[4:8], r.Size)
	binary.BigEndian.PutUint32(b[8:12], r.Addr)
	binary.LittleEndian.PutUint32(b[12:16], uint32(r.Version))
	copy(b[16:Size], r.Path[:])
}

// Unmarshal decodes a record produced by MarshalTo or by the kernel program.
func (r *Record) Unmarshal(b []byte) error {
	if len(b) < Size {
		return fmt.Errorf("short record: %d bytes, want %d", len(b), Size)
	}
	r.Op = Op(binary.LittleEndian.Uint32(b[0:4]))
	r.Size = binary.LittleEndian.Uint32(b[4:8])
	r.Addr = binary.BigEndian.Uint32(b[8:12])
	r.Version = Version(binary.LittleEndian.Uint32(b[12:16]))
	copy(r.Path[:], b[16:Size])
	return nil
}

// ClientIP returns the client address. Zero address when the field was not populated.
func (r *Record) ClientIP() net.IP {
	return net.IPv4(byte(r.Addr>>24), byte(r.Addr>>16), byte(r.Addr>>8), byte(r.Addr))
}

// ExportPath returns the export path up to its terminator.
func (r *Record) ExportPath() string {
	return unix.ByteSliceToString(r.Path[:])
}

// SetExportPath copies name into the path buffer, truncating so that the
// terminator always fits.
func (r *Record) SetExportPath(name string) {
	r.Path = [PathLen]byte{}
	copy(r.Path[:PathLen-1], name)
}
