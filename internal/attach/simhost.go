package attach

import (
	"fmt"
	"io"
	"sync"

	"github.com/cen-ngc5139/nfsd-trace/internal/probe"
)

// SimHost is an in-process Host. Fire plays the role of the kernel calling an
// instrumented function.
type SimHost struct {
	mu     sync.RWMutex
	known  map[string]bool
	nextID uint64
	probes map[string]map[uint64]Callback
}

// NewSimHost returns a host that accepts the given symbols, or any symbol
// when none are given.
func NewSimHost(symbols ...string) *SimHost {
	h := &SimHost{probes: make(map[string]map[uint64]Callback)}
	if len(symbols) > 0 {
		h.known = make(map[string]bool, len(symbols))
		for _, s := range symbols {
			h.known[s] = true
		}
	}
	return h
}

func (h *SimHost) Attach(symbol string, cb Callback) (io.Closer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.known != nil && !h.known[symbol] {
		return nil, fmt.Errorf("symbol %s not found", symbol)
	}

	if h.probes[symbol] == nil {
		h.probes[symbol] = make(map[uint64]Callback)
	}
	h.nextID++
	id := h.nextID
	h.probes[symbol][id] = cb

	return closerFunc(func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.probes[symbol], id)
		return nil
	}), nil
}

// Fire invokes every callback registered on symbol, synchronously, and
// reports whether any was registered.
func (h *SimHost) Fire(symbol string, cpu int, call probe.CallContext) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cbs := h.probes[symbol]
	for _, cb := range cbs {
		cb(cpu, call)
	}
	return len(cbs) > 0
}

// Registered returns the number of callbacks on symbol.
func (h *SimHost) Registered(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.probes[symbol])
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
