package sim

import (
	"context"
	"fmt"
	"math/rand"
	"net/netip"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cen-ngc5139/nfsd-trace/internal/probe"
)

// Firer invokes the callbacks registered on a kernel symbol.
type Firer interface {
	Fire(symbol string, cpu int, call probe.CallContext) bool
}

// Workload is a randomized mix of nfsd calls spread over simulated CPUs.
type Workload struct {
	CPUs        int
	CallsPerCPU int
	Exports     []string
	Clients     []netip.Addr
	// NonIPv4Ratio of calls come from IPv6 clients and must be filtered.
	NonIPv4Ratio float64
	// BrokenRatio of calls have one export chain link unmapped.
	BrokenRatio float64
	MaxSize     uint32
	Seed        int64
	// OnCall, when set, is invoked after every fired call.
	OnCall func()
}

// Stats counts what the workload generated.
type Stats struct {
	Fired   uint64
	NonIPv4 uint64
	Broken  uint64
	Missed  uint64
}

// DefaultWorkload returns a small mixed workload.
func DefaultWorkload() Workload {
	return Workload{
		CPUs:        4,
		CallsPerCPU: 1000,
		Exports:     []string{"exports", "home", "scratch", "backup"},
		Clients: []netip.Addr{
			netip.MustParseAddr("203.0.113.7"),
			netip.MustParseAddr("198.51.100.20"),
			netip.MustParseAddr("192.0.2.33"),
		},
		NonIPv4Ratio: 0.05,
		BrokenRatio:  0.02,
		MaxSize:      1 << 20,
		Seed:         1,
	}
}

var ipv6Client = netip.MustParseAddr("2001:db8::7")

// Run fires the workload at host from w.CPUs goroutines. Each goroutine
// stands for one CPU: it stages a call, fires it and releases it before
// moving on, so a call's state never outlives the invocation.
func (w Workload) Run(ctx context.Context, k *Kernel, host Firer) (Stats, error) {
	if w.CPUs <= 0 || w.CallsPerCPU < 0 {
		return Stats{}, fmt.Errorf("invalid workload: %d cpus, %d calls", w.CPUs, w.CallsPerCPU)
	}
	if len(w.Exports) == 0 || len(w.Clients) == 0 {
		return Stats{}, fmt.Errorf("workload needs at least one export and one client")
	}
	if w.MaxSize == 0 {
		w.MaxSize = 1 << 20
	}

	var fired, nonIPv4, broken, missed atomic.Uint64

	g, ctx := errgroup.WithContext(ctx)
	for cpu := 0; cpu < w.CPUs; cpu++ {
		cpu := cpu
		g.Go(func() error {
			rnd := rand.New(rand.NewSource(w.Seed + int64(cpu)))
			for i := 0; i < w.CallsPerCPU; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				c := w.next(rnd)
				if !c.Client.Is4() {
					nonIPv4.Add(1)
				}
				if c.Break != LinkNone {
					broken.Add(1)
				}

				call, release := k.Stage(c)
				if !host.Fire(c.Entry.Symbol(), cpu, call) {
					missed.Add(1)
				}
				release()
				fired.Add(1)

				if w.OnCall != nil {
					w.OnCall()
				}
			}
			return nil
		})
	}

	err := g.Wait()
	return Stats{
		Fired:   fired.Load(),
		NonIPv4: nonIPv4.Load(),
		Broken:  broken.Load(),
		Missed:  missed.Load(),
	}, err
}

func (w Workload) next(rnd *rand.Rand) Call {
	c := Call{
		Entry:      probe.EntryPoints[rnd.Intn(len(probe.EntryPoints))],
		Size:       uint32(rnd.Int63n(int64(w.MaxSize))) + 1,
		Client:     w.Clients[rnd.Intn(len(w.Clients))],
		ExportName: w.Exports[rnd.Intn(len(w.Exports))],
	}
	if rnd.Float64() < w.NonIPv4Ratio {
		c.Client = ipv6Client
	}
	if rnd.Float64() < w.BrokenRatio {
		c.Break = ExportLinks[rnd.Intn(len(ExportLinks))]
	}
	return c
}
