package bpf

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cilium/ebpf/btf"

	"github.com/cen-ngc5139/nfsd-trace/internal/probe"
)

var availableFilterFunctionsPaths = []string{
	"/sys/kernel/tracing/available_filter_functions",
	"/sys/kernel/debug/tracing/available_filter_functions",
}

// getAvailableFilterFunctions return list of functions to which it is possible
// to attach kprobes.
func getAvailableFilterFunctions() (map[string]struct{}, error) {
	var lastErr error
	for _, path := range availableFilterFunctionsPaths {
		f, err := os.Open(path)
		if err != nil {
			lastErr = err
			continue
		}
		defer f.Close()
		return parseAvailableFilterFunctions(f)
	}
	return nil, fmt.Errorf("failed to open: %v", lastErr)
}

// parseAvailableFilterFunctions keeps the bare function name; module symbols
// are listed as "name [module]".
func parseAvailableFilterFunctions(r io.Reader) (map[string]struct{}, error) {
	availableFuncs := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanLines)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		availableFuncs[fields[0]] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return availableFuncs, nil
}

// hasFunc reports whether any spec describes a function called name.
func hasFunc(specs []*btf.Spec, name string) bool {
	for _, spec := range specs {
		var fn *btf.Func
		if err := spec.TypeByName(name, &fn); err == nil {
			return true
		}
	}
	return false
}

// CheckSymbols verifies every entry point can be probed. A nil available set
// or empty specs skips that source.
func CheckSymbols(entries []probe.EntryPoint, available map[string]struct{}, specs []*btf.Spec) error {
	var missing []string
	for _, e := range entries {
		sym := e.Symbol()
		if available != nil {
			if _, ok := available[sym]; !ok {
				missing = append(missing, sym)
				continue
			}
		}
		if len(specs) > 0 && !hasFunc(specs, sym) {
			missing = append(missing, sym)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("symbols not traceable (is nfsd loaded?): %s", strings.Join(missing, ", "))
	}
	return nil
}

// TraceableSymbols checks the entry points against the running kernel.
func TraceableSymbols(entries []probe.EntryPoint, specs []*btf.Spec) error {
	available, err := getAvailableFilterFunctions()
	if err != nil {
		// tracefs 未挂载时仅依赖 BTF
		available = nil
	}
	return CheckSymbols(entries, available, specs)
}
