package bpf

import (
	"strings"
	"testing"

	"github.com/cilium/ebpf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cen-ngc5139/nfsd-trace/internal/config"
	"github.com/cen-ngc5139/nfsd-trace/internal/probe"
)

func TestGetConfig(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, Cfg{EnableDebug: 0}, GetConfig(cfg))

	cfg.Features.Debug = true
	assert.Equal(t, Cfg{EnableDebug: 1}, GetConfig(cfg))
}

func fullSpec() *ebpf.CollectionSpec {
	spec := &ebpf.CollectionSpec{
		Programs: map[string]*ebpf.ProgramSpec{},
		Maps: map[string]*ebpf.MapSpec{
			EventsMap: {Name: EventsMap, Type: ebpf.PerfEventArray},
		},
	}
	for _, e := range probe.EntryPoints {
		spec.Programs[e.Program()] = &ebpf.ProgramSpec{Name: e.Program(), Type: ebpf.Kprobe}
	}
	return spec
}

func TestCheckSpec(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ebpf.CollectionSpec)
		wantErr string
	}{
		{name: "complete", mutate: func(*ebpf.CollectionSpec) {}},
		{
			name:    "missing program",
			mutate:  func(s *ebpf.CollectionSpec) { delete(s.Programs, probe.NFSv3Read.Program()) },
			wantErr: "kprobe__nfsd3_proc_read",
		},
		{
			name:    "wrong program type",
			mutate:  func(s *ebpf.CollectionSpec) { s.Programs[probe.NFSv4Write.Program()].Type = ebpf.TracePoint },
			wantErr: "kprobe__nfsd4_write",
		},
		{
			name:    "missing map",
			mutate:  func(s *ebpf.CollectionSpec) { delete(s.Maps, EventsMap) },
			wantErr: "map events",
		},
		{
			name:    "wrong map type",
			mutate:  func(s *ebpf.CollectionSpec) { s.Maps[EventsMap].Type = ebpf.RingBuf },
			wantErr: "map events",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := fullSpec()
			tt.mutate(spec)
			err := checkSpec(spec)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseAvailableFilterFunctions(t *testing.T) {
	in := strings.Join([]string{
		"vprintk",
		"nfsd4_write [nfsd]",
		"nfsd4_read [nfsd]",
		"",
		"nfsd3_proc_write [nfsd]",
	}, "\n")

	funcs, err := parseAvailableFilterFunctions(strings.NewReader(in))
	require.NoError(t, err)
	assert.Len(t, funcs, 4)
	assert.Contains(t, funcs, "nfsd4_write")
	assert.Contains(t, funcs, "vprintk")
}

func TestCheckSymbols(t *testing.T) {
	available := map[string]struct{}{
		"nfsd4_write":      {},
		"nfsd4_read":       {},
		"nfsd3_proc_write": {},
	}

	err := CheckSymbols(probe.EntryPoints, available, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nfsd3_proc_read")
	assert.NotContains(t, err.Error(), "nfsd4_write")

	available["nfsd3_proc_read"] = struct{}{}
	assert.NoError(t, CheckSymbols(probe.EntryPoints, available, nil))

	// nothing to check against
	assert.NoError(t, CheckSymbols(probe.EntryPoints, nil, nil))
}

func TestKprobesDetachEmpty(t *testing.T) {
	k := &Kprobes{}
	assert.False(t, k.HaveTracing())
	k.Detach()
	k.Detach()
	assert.False(t, k.Attached(probe.NFSv4Write))
}
