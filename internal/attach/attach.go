// Package attach binds the probe pipeline to the four nfsd entry points
// through whatever runtime hosts the callbacks.
package attach

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/cen-ngc5139/nfsd-trace/internal/probe"
)

// Callback runs synchronously at function entry with the call's first three
// arguments, which are valid only for the duration of the call.
type Callback func(cpu int, call probe.CallContext)

// Host registers callbacks against named kernel functions.
type Host interface {
	Attach(symbol string, cb Callback) (io.Closer, error)
}

// Handler is the pipeline as seen by the attachment layer.
type Handler interface {
	Handle(cpu int, entry probe.EntryPoint, call probe.CallContext) probe.Outcome
}

// Attachment holds the registrations of one Attach call.
type Attachment struct {
	sync.Mutex
	links map[probe.EntryPoint]io.Closer
}

// Attach registers h on every entry point. Either all four are attached or
// none is.
func Attach(host Host, h Handler) (*Attachment, error) {
	a := &Attachment{links: make(map[probe.EntryPoint]io.Closer, len(probe.EntryPoints))}

	for _, entry := range probe.EntryPoints {
		entry := entry
		l, err := host.Attach(entry.Symbol(), func(cpu int, call probe.CallContext) {
			h.Handle(cpu, entry, call)
		})
		if err != nil {
			a.Detach()
			return nil, fmt.Errorf("failed to attach %s: %w", entry.Symbol(), err)
		}
		a.addLink(entry, l)
		klog.Infof("Attached probe to %s", entry.Symbol())
	}

	return a, nil
}

func (a *Attachment) addLink(entry probe.EntryPoint, l io.Closer) {
	a.Lock()
	defer a.Unlock()

	a.links[entry] = l
}

// Attached reports whether entry currently has a registration.
func (a *Attachment) Attached(entry probe.EntryPoint) bool {
	a.Lock()
	defer a.Unlock()

	_, ok := a.links[entry]
	return ok
}

// Detach removes every registration. It is idempotent.
func (a *Attachment) Detach() {
	a.Lock()
	defer a.Unlock()

	var errg errgroup.Group
	for entry, l := range a.links {
		entry, l := entry, l
		errg.Go(func() error {
			if err := l.Close(); err != nil {
				klog.Warningf("detach %s: %v", entry.Symbol(), err)
			}
			return nil
		})
	}
	_ = errg.Wait()

	a.links = make(map[probe.EntryPoint]io.Closer)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(cpu int, entry probe.EntryPoint, call probe.CallContext) probe.Outcome

func (f HandlerFunc) Handle(cpu int, entry probe.EntryPoint, call probe.CallContext) probe.Outcome {
	return f(cpu, entry, call)
}
