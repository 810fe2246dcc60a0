package probe

import (
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"github.com/cen-ngc5139/nfsd-trace/internal/event"
)

// Tracer receives every built record before it is published. It is a
// diagnostic side channel, lossy and never on the data path. rec is only
// valid for the duration of the call.
type Tracer interface {
	Trace(cpu int, rec *event.Record)
}

type nopTracer struct{}

func (nopTracer) Trace(int, *event.Record) {}

// KlogTracer writes one verbosity-4 line per call, at most limit lines per
// second. Lines over the limit are discarded.
type KlogTracer struct {
	limiter *rate.Limiter
}

func NewKlogTracer(limit rate.Limit, burst int) *KlogTracer {
	return &KlogTracer{limiter: rate.NewLimiter(limit, burst)}
}

func (t *KlogTracer) Trace(cpu int, rec *event.Record) {
	if !klog.V(4).Enabled() || !t.limiter.Allow() {
		return
	}
	klog.V(4).Infof("cpu %d NFS OP %d size: %d version: %d", cpu, rec.Op, rec.Size, rec.Version)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(cpu int, rec *event.Record)

func (f TracerFunc) Trace(cpu int, rec *event.Record) { f(cpu, rec) }
