// Package kmem is the only way the probe pipeline touches kernel memory.
//
// Every access is a bounded copy into caller-owned storage that reports
// success or ErrFault. Nothing in this package dereferences a kernel address
// directly, so an invalid, unmapped or misaligned source can never crash the
// caller.
package kmem

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFault is returned when any byte of the requested range is unreadable.
var ErrFault = errors.New("kmem: bad address")

// Reader copies len(dst) bytes starting at addr into dst.
//
// On failure dst content is unspecified and the error wraps ErrFault.
type Reader interface {
	Read(addr uint64, dst []byte) error
}

// StringReader is implemented by readers that can copy a C string in one step.
type StringReader interface {
	ReadString(addr uint64, dst []byte) (int, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(addr uint64, dst []byte) error

func (f ReaderFunc) Read(addr uint64, dst []byte) error { return f(addr, dst) }

// Safe wraps r so that a panicking implementation degrades into ErrFault.
func Safe(r Reader) Reader {
	if _, ok := r.(safeReader); ok {
		return r
	}
	return safeReader{r: r}
}

type safeReader struct {
	r Reader
}

func (s safeReader) Read(addr uint64, dst []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: read 0x%x: %v", ErrFault, addr, p)
		}
	}()
	return s.r.Read(addr, dst)
}

func (s safeReader) ReadString(addr uint64, dst []byte) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			clear(dst)
			n, err = 0, fmt.Errorf("%w: read string 0x%x: %v", ErrFault, addr, p)
		}
	}()
	return ReadString(s.r, addr, dst)
}

// Word is caller-owned storage for scalar reads. A slice handed to a Reader
// escapes to the heap, so hot paths keep one Word per call frame and reuse it.
type Word [8]byte

// U16 reads a native-endian u16.
func (w *Word) U16(r Reader, addr uint64) (uint16, error) {
	if err := r.Read(addr, w[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(w[:2]), nil
}

// U32 reads a native-endian u32.
func (w *Word) U32(r Reader, addr uint64) (uint32, error) {
	if err := r.Read(addr, w[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(w[:4]), nil
}

// BE32 reads 4 bytes stored in network order, e.g. sin_addr.
func (w *Word) BE32(r Reader, addr uint64) (uint32, error) {
	if err := r.Read(addr, w[:4]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(w[:4]), nil
}

// Ptr reads a 64-bit kernel pointer.
func (w *Word) Ptr(r Reader, addr uint64) (uint64, error) {
	if err := r.Read(addr, w[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(w[:]), nil
}

// ReadU16 reads a native-endian u16 using a temporary Word.
func ReadU16(r Reader, addr uint64) (uint16, error) {
	var w Word
	return w.U16(r, addr)
}

// ReadU32 reads a native-endian u32 using a temporary Word.
func ReadU32(r Reader, addr uint64) (uint32, error) {
	var w Word
	return w.U32(r, addr)
}

// ReadBE32 reads a network-order u32 using a temporary Word.
func ReadBE32(r Reader, addr uint64) (uint32, error) {
	var w Word
	return w.BE32(r, addr)
}

// ReadPtr reads a kernel pointer using a temporary Word.
func ReadPtr(r Reader, addr uint64) (uint64, error) {
	var w Word
	return w.Ptr(r, addr)
}

// ReadString copies a NUL-terminated string at addr into dst and returns the
// number of bytes copied, terminator excluded. At most len(dst)-1 bytes are
// copied and dst is always terminated. On failure dst is zeroed.
func ReadString(r Reader, addr uint64, dst []byte) (int, error) {
	if sr, ok := r.(StringReader); ok {
		return sr.ReadString(addr, dst)
	}

	clear(dst)
	if len(dst) == 0 {
		return 0, nil
	}

	for i := 0; i < len(dst)-1; i++ {
		if err := r.Read(addr+uint64(i), dst[i:i+1]); err != nil {
			clear(dst)
			return 0, err
		}
		if dst[i] == 0 {
			return i, nil
		}
	}
	return len(dst) - 1, nil
}
