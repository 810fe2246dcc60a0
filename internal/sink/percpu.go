// Package sink is the probe's output channel: one bounded lock-free ring per
// CPU, fixed-size binary records, drop on full.
package sink

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cen-ngc5139/nfsd-trace/internal/event"
)

// ErrClosed is returned by Reader.Read once the sink is closed and drained.
var ErrClosed = errors.New("sink closed")

const pollInterval = 100 * time.Microsecond

// minSegment is the smallest ring that can tell a published slot from a free
// one.
const minSegment = 2

type slot struct {
	seq  atomic.Uint64
	data [event.Size]byte
}

// segment is a bounded multi-producer single-consumer ring. Producers claim
// a slot with one CAS; a full ring drops.
type segment struct {
	head atomic.Uint64
	_    [56]byte
	tail atomic.Uint64
	_    [56]byte

	published atomic.Uint64
	lost      atomic.Uint64
	// inflight counts producers between the closed check and the end of push.
	inflight atomic.Int64
	mask     uint64
	slots    []slot
}

func newSegment(size int) *segment {
	s := &segment{
		mask:  uint64(size - 1),
		slots: make([]slot, size),
	}
	for i := range s.slots {
		s.slots[i].seq.Store(uint64(i))
	}
	return s
}

func (s *segment) push(rec *event.Record) bool {
	pos := s.head.Load()
	for {
		sl := &s.slots[pos&s.mask]
		diff := int64(sl.seq.Load()) - int64(pos)
		switch {
		case diff == 0:
			if s.head.CompareAndSwap(pos, pos+1) {
				rec.MarshalTo(sl.data[:])
				sl.seq.Store(pos + 1)
				s.published.Add(1)
				return true
			}
			pos = s.head.Load()
		case diff < 0:
			s.lost.Add(1)
			return false
		default:
			pos = s.head.Load()
		}
	}
}

func (s *segment) pop(dst *[event.Size]byte) bool {
	pos := s.tail.Load()
	sl := &s.slots[pos&s.mask]
	if int64(sl.seq.Load())-int64(pos+1) < 0 {
		return false
	}
	*dst = sl.data
	s.tail.Store(pos + 1)
	sl.seq.Store(pos + s.mask + 1)
	return true
}

// PerCPU is the bounded output channel shared with the consumer. Publish is
// safe from any goroutine; there must be a single Reader.
type PerCPU struct {
	segments []*segment
	closed   atomic.Bool
}

// New creates one segment per cpu, each holding perCPU records. perCPU is
// rounded up to a power of two of at least 2.
func New(cpus, perCPU int) (*PerCPU, error) {
	if cpus <= 0 {
		return nil, fmt.Errorf("invalid cpu count %d", cpus)
	}
	if perCPU <= 0 {
		return nil, fmt.Errorf("invalid segment size %d", perCPU)
	}

	size := minSegment
	for size < perCPU {
		size <<= 1
	}

	p := &PerCPU{segments: make([]*segment, cpus)}
	for i := range p.segments {
		p.segments[i] = newSegment(size)
	}
	return p, nil
}

// NewForHost sizes the sink to the machine's CPU count.
func NewForHost(perCPU int) (*PerCPU, error) {
	return New(runtime.NumCPU(), perCPU)
}

func (p *PerCPU) CPUs() int { return len(p.segments) }

// Publish appends rec to cpu's segment. It never blocks: it returns false
// and counts a loss when the segment is full or the sink is closed.
func (p *PerCPU) Publish(cpu int, rec *event.Record) bool {
	s := p.segments[uint(cpu)%uint(len(p.segments))]
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	if p.closed.Load() {
		s.lost.Add(1)
		return false
	}
	return s.push(rec)
}

// settled reports whether no Publish is between its closed check and the end
// of its push. Once the sink is closed and settled, nothing more can arrive.
func (p *PerCPU) settled() bool {
	for _, s := range p.segments {
		if s.inflight.Load() != 0 {
			return false
		}
	}
	return true
}

// Close stops accepting records. Records already published, including those
// from Publish calls racing with Close, can still be read.
func (p *PerCPU) Close() error {
	p.closed.Store(true)
	return nil
}

// Stats is a snapshot of one segment's counters.
type Stats struct {
	CPU       int
	Published uint64
	Lost      uint64
}

func (p *PerCPU) Stats() []Stats {
	out := make([]Stats, len(p.segments))
	for i, s := range p.segments {
		out[i] = Stats{CPU: i, Published: s.published.Load(), Lost: s.lost.Load()}
	}
	return out
}

// Sample is one record or one loss notification read from the sink,
// mirroring perf.Record.
type Sample struct {
	CPU         int
	RawSample   [event.Size]byte
	LostSamples uint64
}

// Reader drains the segments round robin.
type Reader struct {
	p        *PerCPU
	next     int
	reported []uint64
}

func (p *PerCPU) Reader() *Reader {
	return &Reader{p: p, reported: make([]uint64, len(p.segments))}
}

// TryRead fills s with the next record or loss notification without
// blocking. It returns false when every segment is empty.
func (r *Reader) TryRead(s *Sample) bool {
	n := len(r.p.segments)
	for i := 0; i < n; i++ {
		cpu := (r.next + i) % n
		seg := r.p.segments[cpu]

		if lost := seg.lost.Load(); lost != r.reported[cpu] {
			s.CPU, s.LostSamples = cpu, lost-r.reported[cpu]
			r.reported[cpu] = lost
			r.next = cpu
			return true
		}

		if seg.pop(&s.RawSample) {
			s.CPU, s.LostSamples = cpu, 0
			r.next = (cpu + 1) % n
			return true
		}
	}
	return false
}

// Read blocks until a sample is available, ctx is done, or the sink is
// closed and empty.
func (r *Reader) Read(ctx context.Context, s *Sample) error {
	for {
		if r.TryRead(s) {
			return nil
		}
		if r.p.closed.Load() && r.p.settled() {
			// a publish may have finished between the first TryRead and settled
			if r.TryRead(s) {
				return nil
			}
			return ErrClosed
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
