package kmem

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
)

const (
	arenaBase  = 0xffff888000000000
	arenaGuard = 4096
	arenaAlign = 8
)

type region struct {
	base uint64
	buf  []byte
}

// Arena is a sparse, bounds-checked address space standing in for kernel
// memory. Objects are allocated at kernel-looking addresses separated by
// unmapped guard gaps, so reads past an object fault like they would in the
// kernel.
type Arena struct {
	mu      sync.RWMutex
	next    uint64
	regions []region
}

func NewArena() *Arena {
	return &Arena{next: arenaBase}
}

// Alloc maps size zeroed bytes and returns their address.
func (a *Arena) Alloc(size int) uint64 {
	if size <= 0 {
		size = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	addr := a.next
	a.regions = append(a.regions, region{base: addr, buf: make([]byte, size)})
	a.next += (uint64(size)+arenaAlign-1)&^(arenaAlign-1) + arenaGuard
	return addr
}

// Free unmaps the object at addr. Later reads of it fault.
func (a *Arena) Free(addr uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := sort.Search(len(a.regions), func(i int) bool { return a.regions[i].base >= addr })
	if i < len(a.regions) && a.regions[i].base == addr {
		a.regions = append(a.regions[:i], a.regions[i+1:]...)
	}
}

// Mapped reports the number of live objects.
func (a *Arena) Mapped() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.regions)
}

// lookup returns the bytes backing [addr, addr+n) or nil. Callers hold mu.
func (a *Arena) lookup(addr uint64, n int) []byte {
	i := sort.Search(len(a.regions), func(i int) bool { return a.regions[i].base > addr }) - 1
	if i < 0 {
		return nil
	}
	r := a.regions[i]
	off := addr - r.base
	if off >= uint64(len(r.buf)) || uint64(n) > uint64(len(r.buf))-off {
		return nil
	}
	return r.buf[off : off+uint64(n)]
}

func (a *Arena) Read(addr uint64, dst []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	src := a.lookup(addr, len(dst))
	if src == nil {
		return fmt.Errorf("%w: 0x%x+%d", ErrFault, addr, len(dst))
	}
	copy(dst, src)
	return nil
}

func (a *Arena) ReadString(addr uint64, dst []byte) (int, error) {
	clear(dst)
	if len(dst) == 0 {
		return 0, nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	src := a.lookup(addr, 1)
	if src == nil {
		return 0, fmt.Errorf("%w: string at 0x%x", ErrFault, addr)
	}
	// extend to the end of the region
	i := sort.Search(len(a.regions), func(i int) bool { return a.regions[i].base > addr }) - 1
	r := a.regions[i]
	src = r.buf[addr-r.base:]

	limit := len(dst) - 1
	for n := 0; n < limit; n++ {
		if n == len(src) {
			clear(dst)
			return 0, fmt.Errorf("%w: unterminated string at 0x%x", ErrFault, addr)
		}
		if src[n] == 0 {
			return n, nil
		}
		dst[n] = src[n]
	}
	return limit, nil
}

// Write copies b into mapped memory at addr.
func (a *Arena) Write(addr uint64, b []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	dst := a.lookup(addr, len(b))
	if dst == nil {
		return fmt.Errorf("%w: write 0x%x+%d", ErrFault, addr, len(b))
	}
	copy(dst, b)
	return nil
}

func (a *Arena) PutU16(addr uint64, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return a.Write(addr, b[:])
}

func (a *Arena) PutU32(addr uint64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return a.Write(addr, b[:])
}

func (a *Arena) PutBE32(addr uint64, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return a.Write(addr, b[:])
}

func (a *Arena) PutPtr(addr uint64, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return a.Write(addr, b[:])
}

// PutString allocates a NUL-terminated copy of s and returns its address.
func (a *Arena) PutString(s string) uint64 {
	addr := a.Alloc(len(s) + 1)
	_ = a.Write(addr, []byte(s))
	return addr
}
