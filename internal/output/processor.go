package output

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"github.com/cen-ngc5139/nfsd-trace/internal/event"
	"github.com/cen-ngc5139/nfsd-trace/internal/metadata"
)

// Processor turns raw samples into operations, metrics and output lines.
type Processor struct {
	src     Source
	metrics *NFSMetrics
	writer  Writer

	processed atomic.Uint64
	lost      atomic.Uint64
	failed    atomic.Uint64

	// 写出失败的日志限速, 避免输出端故障时刷屏
	warn *rate.Limiter
}

func NewProcessor(src Source, metrics *NFSMetrics, writer Writer) *Processor {
	if writer == nil {
		writer = Discard
	}
	return &Processor{
		src:     src,
		metrics: metrics,
		writer:  writer,
		warn:    rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Run consumes the source until ctx is done or the source is closed and
// drained.
func (p *Processor) Run(ctx context.Context) error {
	var rec event.Record
	for {
		s, err := p.src.Read(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		if s.Lost > 0 {
			p.lost.Add(s.Lost)
			if p.metrics != nil {
				p.metrics.Lost(s.CPU, s.Lost)
			}
			klog.V(2).Infof("lost %d samples on cpu %d", s.Lost, s.CPU)
			continue
		}

		if err := rec.Unmarshal(s.Raw); err != nil {
			p.failed.Add(1)
			if p.metrics != nil {
				p.metrics.DecodeErrors.Inc()
			}
			klog.Warningf("parsing event: %v", err)
			continue
		}

		op := metadata.NewNFSOperation(s.CPU, &rec)
		if p.metrics != nil {
			p.metrics.Observe(op)
		}
		if err := p.writer.Write(op); err != nil && p.warn.Allow() {
			klog.Warningf("writing event: %v", err)
		}
		p.processed.Add(1)
	}
}

// Processed is the number of records decoded so far.
func (p *Processor) Processed() uint64 { return p.processed.Load() }

// Lost is the number of records reported lost by the source.
func (p *Processor) Lost() uint64 { return p.lost.Load() }

// Failed is the number of samples that could not be decoded.
func (p *Processor) Failed() uint64 { return p.failed.Load() }

func (p *Processor) Close() error {
	return errors.Join(p.src.Close(), p.writer.Close())
}
