package kmem

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaReadBounds(t *testing.T) {
	a := NewArena()
	addr := a.Alloc(16)
	require.NoError(t, a.PutU32(addr+12, 0xdeadbeef))

	tests := []struct {
		name    string
		addr    uint64
		n       int
		wantErr bool
	}{
		{name: "whole object", addr: addr, n: 16},
		{name: "tail", addr: addr + 12, n: 4},
		{name: "straddles end", addr: addr + 12, n: 8, wantErr: true},
		{name: "guard gap", addr: addr + 64, n: 1, wantErr: true},
		{name: "null", addr: 0, n: 8, wantErr: true},
		{name: "below arena", addr: arenaBase - 1, n: 1, wantErr: true},
		{name: "max address", addr: ^uint64(0), n: 8, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Read(tt.addr, make([]byte, tt.n))
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrFault), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}

	v, err := ReadU32(a, addr+12)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v)
}

func TestArenaFree(t *testing.T) {
	a := NewArena()
	p := a.Alloc(8)
	q := a.Alloc(8)
	require.NoError(t, a.PutPtr(q, p))
	a.Free(p)

	_, err := ReadPtr(a, p)
	assert.ErrorIs(t, err, ErrFault)

	got, err := ReadPtr(a, q)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Equal(t, 1, a.Mapped())
}

func TestWordReads(t *testing.T) {
	a := NewArena()
	addr := a.Alloc(16)
	require.NoError(t, a.PutU16(addr, 2))
	require.NoError(t, a.PutBE32(addr+4, 0xCB007107))
	require.NoError(t, a.PutPtr(addr+8, 0xffff888000001000))

	var w Word
	family, err := w.U16(a, addr)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), family)

	sin, err := w.BE32(a, addr+4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCB007107), sin)

	ptr, err := w.Ptr(a, addr+8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xffff888000001000), ptr)

	_, err = w.U32(a, addr+14)
	assert.ErrorIs(t, err, ErrFault)
}

func TestReadString(t *testing.T) {
	a := NewArena()
	short := a.PutString("exports")
	long := a.PutString(strings.Repeat("a", 100))
	unterminated := a.Alloc(4)
	require.NoError(t, a.Write(unterminated, []byte("abcd")))

	readers := map[string]Reader{
		"arena":   a,
		"generic": ReaderFunc(a.Read),
	}
	for name, r := range readers {
		t.Run(name, func(t *testing.T) {
			dst := make([]byte, 64)
			n, err := ReadString(r, short, dst)
			require.NoError(t, err)
			assert.Equal(t, 7, n)
			assert.Equal(t, "exports", string(dst[:n]))
			assert.Zero(t, dst[n])

			n, err = ReadString(r, long, dst)
			require.NoError(t, err)
			assert.Equal(t, 63, n)
			assert.Zero(t, dst[63])

			n, err = ReadString(r, unterminated, dst)
			assert.ErrorIs(t, err, ErrFault)
			assert.Zero(t, n)
			assert.Equal(t, make([]byte, 64), dst)

			_, err = ReadString(r, 0, dst)
			assert.ErrorIs(t, err, ErrFault)
			assert.Equal(t, make([]byte, 64), dst)
		})
	}
}

func TestSafeRecoversPanics(t *testing.T) {
	r := Safe(ReaderFunc(func(addr uint64, dst []byte) error {
		var p *[8]byte
		copy(dst, p[:])
		return nil
	}))

	_, err := ReadPtr(r, 0x1000)
	assert.ErrorIs(t, err, ErrFault)

	dst := make([]byte, 8)
	dst[0] = 'x'
	_, err = ReadString(r, 0x1000, dst)
	assert.ErrorIs(t, err, ErrFault)
	assert.Equal(t, make([]byte, 8), dst)

	assert.Equal(t, r, Safe(r))
}
