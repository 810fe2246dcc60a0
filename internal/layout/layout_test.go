package layout

import (
	"strings"
	"testing"

	"github.com/cilium/ebpf/btf"
	"github.com/stretchr/testify/assert"
)

func TestFindMember(t *testing.T) {
	u16 := &btf.Int{Name: "u16", Size: 2}
	ptr := &btf.Pointer{Target: &btf.Void{}}

	// sockaddr_storage keeps ss_family inside an anonymous union of an
	// anonymous struct.
	inner := &btf.Struct{Size: 128, Members: []btf.Member{
		{Name: "ss_family", Type: u16, Offset: 0},
		{Name: "__data", Type: ptr, Offset: btf.Bits(2 * 8)},
	}}
	union := &btf.Union{Size: 128, Members: []btf.Member{
		{Name: "", Type: inner, Offset: 0},
		{Name: "__align", Type: ptr, Offset: 0},
	}}
	members := []btf.Member{
		{Name: "pad", Type: ptr, Offset: 0},
		{Name: "", Type: &btf.Typedef{Name: "anon_t", Type: union}, Offset: btf.Bits(16 * 8)},
		{Name: "rq_argp", Type: ptr, Offset: btf.Bits(0x2a8 * 8)},
	}

	tests := []struct {
		name   string
		member string
		want   uint64
		found  bool
	}{
		{name: "direct", member: "rq_argp", want: 0x2a8, found: true},
		{name: "nested anonymous", member: "ss_family", want: 16, found: true},
		{name: "nested anonymous second field", member: "__data", want: 18, found: true},
		{name: "missing", member: "rq_addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := findMember(members, tt.member)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromBTFWithoutSpecsKeepsDefaults(t *testing.T) {
	l, missing := FromBTF()

	want := Default()
	want.Source = "btf+default"
	assert.Equal(t, want, l)
	assert.Len(t, missing, len(Default().fields()))
}

func TestLayoutString(t *testing.T) {
	s := Default().String()
	assert.True(t, strings.HasPrefix(s, "source: default\n"))
	assert.Contains(t, s, "svc_fh.fh_export")
	assert.Contains(t, s, "0x90")
}
