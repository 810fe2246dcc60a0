package probe

import (
	"sync"

	"github.com/cen-ngc5139/nfsd-trace/internal/event"
	"github.com/cen-ngc5139/nfsd-trace/internal/kmem"
	"github.com/cen-ngc5139/nfsd-trace/internal/layout"
)

// Publisher is the output channel. Publish must not block; it returns false
// when the record was dropped. rec is only valid for the duration of the call.
type Publisher interface {
	Publish(cpu int, rec *event.Record) bool
}

// Outcome is what happened to one intercepted call.
type Outcome uint8

const (
	Published Outcome = iota
	Filtered
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Published:
		return "published"
	case Filtered:
		return "filtered"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Pipeline runs decode, enrich, build and publish for a single call. It is
// safe for concurrent use.
type Pipeline struct {
	mem    kmem.Reader
	layout *layout.Layout
	sink   Publisher
	tracer Tracer

	// frames hold the per-call scratch, like the per-cpu array map a bpf
	// program uses instead of its stack.
	frames sync.Pool
}

// frame is everything a call needs to address while it runs. Buffers handed
// to kmem.Reader or Publisher escape, so they live here instead of on the
// stack.
type frame struct {
	word kmem.Word
	path [event.PathLen]byte
	rec  event.Record
}

type Option func(*Pipeline)

// WithTracer enables the per-call debug trace line.
func WithTracer(t Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

func New(mem kmem.Reader, l *layout.Layout, sink Publisher, opts ...Option) *Pipeline {
	if l == nil {
		l = layout.Default()
	}
	p := &Pipeline{
		mem:    kmem.Safe(mem),
		layout: l,
		sink:   sink,
		tracer: nopTracer{},
	}
	p.frames.New = func() any { return new(frame) }
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Layout() *layout.Layout { return p.layout }

// Handle processes one call observed on cpu. Unknown entry points produce
// no record.
func (p *Pipeline) Handle(cpu int, entry EntryPoint, call CallContext) Outcome {
	if !entry.valid() {
		return Filtered
	}

	f := p.frames.Get().(*frame)
	defer p.frames.Put(f)

	d := decode(p.mem, p.layout, entry, call, &f.word)

	client, ok := resolveClient(p.mem, p.layout, call.Rqstp(), &f.word)
	if !ok {
		return Filtered
	}

	// v3 skips the dereference chain to bound per-call cost.
	if d.Version == event.NFSv4 {
		resolveExportPath(p.mem, p.layout, d.Export, &f.word, &f.path)
	} else {
		clear(f.path[:])
	}

	f.rec = Build(d, client, &f.path)
	p.tracer.Trace(cpu, &f.rec)

	if !p.sink.Publish(cpu, &f.rec) {
		return Dropped
	}
	return Published
}
