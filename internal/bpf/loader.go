package bpf

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/btf"
	"k8s.io/klog/v2"

	"github.com/cen-ngc5139/nfsd-trace/internal/probe"
)

const (
	// EventsMap is the perf event array the programs emit records into.
	EventsMap = "events"
	cfgConst  = "CFG"
)

// LoadSpec reads the compiled object and writes cfg into its CFG constant.
func LoadSpec(path string, cfg Cfg) (*ebpf.CollectionSpec, error) {
	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load bpf object %s: %w", path, err)
	}
	if err := checkSpec(spec); err != nil {
		return nil, err
	}
	if err := spec.RewriteConstants(map[string]interface{}{cfgConst: cfg}); err != nil {
		return nil, fmt.Errorf("failed to rewrite %s: %w", cfgConst, err)
	}
	return spec, nil
}

// checkSpec makes sure the object carries one kprobe program per entry
// point and the events map.
func checkSpec(spec *ebpf.CollectionSpec) error {
	for _, e := range probe.EntryPoints {
		prog, ok := spec.Programs[e.Program()]
		if !ok {
			return fmt.Errorf("program %s not found in bpf object", e.Program())
		}
		if prog.Type != ebpf.Kprobe {
			return fmt.Errorf("program %s has type %s, want %s", e.Program(), prog.Type, ebpf.Kprobe)
		}
	}

	m, ok := spec.Maps[EventsMap]
	if !ok {
		return fmt.Errorf("map %s not found in bpf object", EventsMap)
	}
	if m.Type != ebpf.PerfEventArray {
		return fmt.Errorf("map %s has type %s, want %s", EventsMap, m.Type, ebpf.PerfEventArray)
	}
	return nil
}

// Objects holds the loaded programs and maps.
type Objects struct {
	coll *ebpf.Collection
}

// Load creates the programs and maps in the kernel. kernelTypes may be nil,
// in which case the running kernel's BTF is used for relocations.
func Load(spec *ebpf.CollectionSpec, kernelTypes *btf.Spec) (*Objects, error) {
	coll, err := ebpf.NewCollectionWithOptions(spec, ebpf.CollectionOptions{
		Programs: ebpf.ProgramOptions{
			KernelTypes: kernelTypes,
		},
	})
	if err != nil {
		var (
			ve          *ebpf.VerifierError
			verifierLog string
		)
		if errors.As(err, &ve) {
			verifierLog = fmt.Sprintf("Verifier error: %+v\n", ve)
		}
		klog.Errorf("Failed to load objects: %s\n%+v", verifierLog, err)
		return nil, fmt.Errorf("failed to load bpf objects: %w", err)
	}
	return &Objects{coll: coll}, nil
}

func (o *Objects) Program(e probe.EntryPoint) *ebpf.Program {
	return o.coll.Programs[e.Program()]
}

func (o *Objects) Events() *ebpf.Map {
	return o.coll.Maps[EventsMap]
}

func (o *Objects) Close() {
	o.coll.Close()
}
