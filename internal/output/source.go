package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/perf"

	"github.com/cen-ngc5139/nfsd-trace/internal/sink"
)

// ErrClosed is returned by Source.Read once the source is closed and drained.
var ErrClosed = errors.New("source closed")

// pollInterval bounds how long a Read may wait before looking at ctx.
const pollInterval = 100 * time.Millisecond

// Sample is one raw record, or a lost-samples report when Lost is non-zero.
type Sample struct {
	CPU  int
	Raw  []byte
	Lost uint64
}

// Source is a stream of raw records.
type Source interface {
	Read(ctx context.Context) (Sample, error)
	Close() error
}

type perfSource struct {
	rd *perf.Reader
}

// NewPerfSource reads the kernel program's perf event array. pages is the
// per-CPU buffer size in pages.
func NewPerfSource(events *ebpf.Map, pages int) (Source, error) {
	if pages <= 0 {
		pages = 1
	}
	rd, err := perf.NewReader(events, pages*os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("creating perf reader failed: %w", err)
	}
	return &perfSource{rd: rd}, nil
}

func (s *perfSource) Read(ctx context.Context) (Sample, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Sample{}, err
		}

		s.rd.SetDeadline(time.Now().Add(pollInterval))
		record, err := s.rd.Read()
		switch {
		case err == nil:
			return Sample{CPU: record.CPU, Raw: record.RawSample, Lost: record.LostSamples}, nil
		case errors.Is(err, os.ErrDeadlineExceeded):
			continue
		case errors.Is(err, perf.ErrClosed):
			return Sample{}, ErrClosed
		default:
			return Sample{}, err
		}
	}
}

func (s *perfSource) Close() error {
	return s.rd.Close()
}

type ringSource struct {
	sink *sink.PerCPU
	rd   *sink.Reader
	buf  sink.Sample
}

// NewRingSource reads the in-process per-CPU sink. Closing the source
// closes the sink; buffered records are still returned.
func NewRingSource(s *sink.PerCPU) Source {
	return &ringSource{sink: s, rd: s.Reader()}
}

func (s *ringSource) Read(ctx context.Context) (Sample, error) {
	if err := s.rd.Read(ctx, &s.buf); err != nil {
		if errors.Is(err, sink.ErrClosed) {
			return Sample{}, ErrClosed
		}
		return Sample{}, err
	}
	if s.buf.LostSamples > 0 {
		return Sample{CPU: s.buf.CPU, Lost: s.buf.LostSamples}, nil
	}
	return Sample{CPU: s.buf.CPU, Raw: s.buf.RawSample[:]}, nil
}

func (s *ringSource) Close() error {
	return s.sink.Close()
}
