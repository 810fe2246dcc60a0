package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cilium/ebpf/btf"
	"k8s.io/klog/v2"
)

// NFSDModule is the kernel module carrying the nfsd types.
const NFSDModule = "nfsd"

// LoadSpecs loads vmlinux BTF (or kernelBTF when set) and the split BTF of
// the given modules from modelDir.
func LoadSpecs(kernelBTF, modelDir string, modules ...string) ([]*btf.Spec, error) {
	var (
		base *btf.Spec
		err  error
	)
	if kernelBTF != "" {
		base, err = btf.LoadSpec(kernelBTF)
	} else {
		base, err = btf.LoadKernelSpec()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load BTF spec: %w", err)
	}

	specs := []*btf.Spec{base}
	for _, module := range modules {
		path := filepath.Join(modelDir, module)
		f, err := os.Open(path)
		if err != nil {
			klog.Warningf("module BTF %s unavailable: %v", path, err)
			continue
		}
		modSpec, err := btf.LoadSplitSpecFromReader(f, base)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to load %s btf: %w", module, err)
		}
		// split specs also resolve base types
		specs = append([]*btf.Spec{modSpec}, specs...)
	}
	return specs, nil
}

// FromBTF resolves every offset from the given specs, searched in order. Any
// member that cannot be found keeps its Default value; the names of those
// members are returned.
func FromBTF(specs ...*btf.Spec) (*Layout, []string) {
	l := Default()
	l.Source = "btf"

	var missing []string
	for _, f := range l.fields() {
		off, err := memberOffset(specs, f.strct, f.member)
		if err != nil {
			klog.V(2).Infof("layout: %s: %v, keeping 0x%x", f.name, err, *f.off)
			missing = append(missing, f.name)
			continue
		}
		*f.off = off
	}

	if len(missing) > 0 {
		l.Source = "btf+default"
	}
	return l, missing
}

var errNoMember = errors.New("member not found")

func memberOffset(specs []*btf.Spec, strct, member string) (uint64, error) {
	var lastErr error
	for _, spec := range specs {
		var s *btf.Struct
		if err := spec.TypeByName(strct, &s); err != nil {
			lastErr = err
			continue
		}
		off, ok := findMember(s.Members, member)
		if !ok {
			return 0, fmt.Errorf("%s.%s: %w", strct, member, errNoMember)
		}
		return off, nil
	}
	return 0, fmt.Errorf("struct %s: %w", strct, lastErr)
}

// findMember looks through anonymous struct and union members as well.
func findMember(members []btf.Member, name string) (uint64, bool) {
	for _, m := range members {
		if m.Name == name {
			return uint64(m.Offset.Bytes()), true
		}
		if m.Name != "" {
			continue
		}

		var nested []btf.Member
		switch t := btf.UnderlyingType(m.Type).(type) {
		case *btf.Struct:
			nested = t.Members
		case *btf.Union:
			nested = t.Members
		default:
			continue
		}
		if off, ok := findMember(nested, name); ok {
			return uint64(m.Offset.Bytes()) + off, true
		}
	}
	return 0, false
}
