package run

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync/atomic"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cen-ngc5139/nfsd-trace/internal/attach"
	"github.com/cen-ngc5139/nfsd-trace/internal/config"
	"github.com/cen-ngc5139/nfsd-trace/internal/layout"
	"github.com/cen-ngc5139/nfsd-trace/internal/log"
	"github.com/cen-ngc5139/nfsd-trace/internal/metadata"
	"github.com/cen-ngc5139/nfsd-trace/internal/output"
	"github.com/cen-ngc5139/nfsd-trace/internal/probe"
	"github.com/cen-ngc5139/nfsd-trace/internal/sim"
	"github.com/cen-ngc5139/nfsd-trace/internal/sink"
)

// simExportRoot is where the simulated exports pretend to live.
const simExportRoot = "/srv/nfs"

// Report summarizes one simulation.
type Report struct {
	Workload  sim.Stats
	Published uint64
	Filtered  uint64
	Dropped   uint64
	Processed uint64
	Lost      uint64
	Sink      []sink.Stats
}

// Check verifies the accounting identities of a finished run: every fired
// call has exactly one outcome, every published record is read once, and
// every drop is reported as a loss.
func (r Report) Check() error {
	if got := r.Published + r.Filtered + r.Dropped; got != r.Workload.Fired-r.Workload.Missed {
		return fmt.Errorf("outcomes %d != handled calls %d", got, r.Workload.Fired-r.Workload.Missed)
	}
	if r.Filtered != r.Workload.NonIPv4 {
		return fmt.Errorf("filtered %d != non-IPv4 calls %d", r.Filtered, r.Workload.NonIPv4)
	}
	if r.Processed != r.Published {
		return fmt.Errorf("processed %d != published %d", r.Processed, r.Published)
	}
	if r.Lost != r.Dropped {
		return fmt.Errorf("lost %d != dropped %d", r.Lost, r.Dropped)
	}
	return nil
}

func (r Report) String() string {
	return fmt.Sprintf("fired=%d non_ipv4=%d broken=%d published=%d filtered=%d dropped=%d processed=%d lost=%d",
		r.Workload.Fired, r.Workload.NonIPv4, r.Workload.Broken,
		r.Published, r.Filtered, r.Dropped, r.Processed, r.Lost)
}

// Simulate drives the probe pipeline against a synthetic kernel and drains
// the per-CPU sink through the same consumer the kernel mode uses. When
// progress is non-nil a progress bar is written to it.
func Simulate(ctx context.Context, cfg config.Configuration, progress io.Writer) (Report, error) {
	sc := cfg.Simulate

	s, err := sink.New(sc.CPUs, sc.SegmentSize)
	if err != nil {
		return Report{}, err
	}

	k := sim.NewKernel(layout.Default())

	var opts []probe.Option
	if cfg.Features.Debug {
		opts = append(opts, probe.WithTracer(probe.NewKlogTracer(rate.Limit(100), 10)))
	}
	pipeline := probe.New(k.Memory(), k.Layout(), s, opts...)

	var published, filtered, dropped atomic.Uint64
	handler := attach.HandlerFunc(func(cpu int, entry probe.EntryPoint, call probe.CallContext) probe.Outcome {
		o := pipeline.Handle(cpu, entry, call)
		switch o {
		case probe.Published:
			published.Add(1)
		case probe.Filtered:
			filtered.Add(1)
		case probe.Dropped:
			dropped.Add(1)
		}
		return o
	})

	symbols := make([]string, 0, len(probe.EntryPoints))
	for _, e := range probe.EntryPoints {
		symbols = append(symbols, e.Symbol())
	}
	host := attach.NewSimHost(symbols...)
	a, err := attach.Attach(host, handler)
	if err != nil {
		return Report{}, err
	}
	defer a.Detach()

	wl := sim.DefaultWorkload()
	wl.CPUs = sc.CPUs
	wl.CallsPerCPU = sc.CallsPerCPU
	wl.NonIPv4Ratio = sc.NonIPv4Ratio
	wl.BrokenRatio = sc.BrokenRatio
	wl.Seed = sc.Seed

	if cfg.Features.ExportPaths {
		exports := make([]metadata.Export, 0, len(wl.Exports))
		for _, name := range wl.Exports {
			exports = append(exports, metadata.Export{Path: path.Join(simExportRoot, name)})
		}
		metadata.UpdateExportCache(exports)
	}

	writer := output.Discard
	if sc.Emit {
		writer, err = output.NewWriter(cfg, uuid.NewString())
		if err != nil {
			return Report{}, err
		}
	}
	proc, _, err := consumer(cfg, output.NewRingSource(s), writer)
	if err != nil {
		return Report{}, err
	}
	defer proc.Close()

	if progress != nil {
		bar := pb.Full.New(sc.CPUs * sc.CallsPerCPU)
		bar.SetWriter(progress)
		bar.Start()
		defer bar.Finish()
		wl.OnCall = func() { bar.Increment() }
	}

	// 消费端独立于 ctx, 保证关闭 sink 后能读完剩余记录
	done := make(chan error, 1)
	go func() { done <- proc.Run(context.Background()) }()

	stats, runErr := wl.Run(ctx, k, host)
	a.Detach()
	_ = s.Close()
	procErr := <-done

	report := Report{
		Workload:  stats,
		Published: published.Load(),
		Filtered:  filtered.Load(),
		Dropped:   dropped.Load(),
		Processed: proc.Processed(),
		Lost:      proc.Lost(),
		Sink:      s.Stats(),
	}
	log.Infof("simulation finished: %s", report)

	if runErr != nil {
		return report, runErr
	}
	return report, procErr
}
