// SPDX-License-Identifier: Apache-2.0
/* Copyright 2024 Authors of Cilium */

package bpf

import (
	"fmt"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/cen-ngc5139/nfsd-trace/internal/probe"
)

// Kprobes holds the kprobe links of the loaded programs.
type Kprobes struct {
	sync.Mutex
	links map[probe.EntryPoint]link.Link
}

func (t *Kprobes) HaveTracing() bool {
	t.Lock()
	defer t.Unlock()

	return len(t.links) > 0
}

func (t *Kprobes) Attached(e probe.EntryPoint) bool {
	t.Lock()
	defer t.Unlock()

	_, ok := t.links[e]
	return ok
}

// Detach closes every link. Safe to call more than once.
func (t *Kprobes) Detach() {
	t.Lock()
	defer t.Unlock()

	var errg errgroup.Group
	for e, l := range t.links {
		e, l := e, l
		errg.Go(func() error {
			if err := l.Close(); err != nil {
				klog.Warningf("关闭 kprobe %s 失败: %v", e.Symbol(), err)
			}
			return nil
		})
	}
	_ = errg.Wait()

	t.links = nil
}

func (t *Kprobes) kprobe(e probe.EntryPoint, prog *ebpf.Program) error {
	if prog == nil {
		return fmt.Errorf("program %s not loaded", e.Program())
	}

	kp, err := link.Kprobe(e.Symbol(), prog, nil)
	if err != nil {
		return fmt.Errorf("opening kprobe %s: %w", e.Symbol(), err)
	}

	t.Lock()
	t.links[e] = kp
	t.Unlock()

	return nil
}

// Kprobe attaches every entry point or none of them.
func Kprobe(objs *Objects, entries []probe.EntryPoint) (*Kprobes, error) {
	klog.Infof("正在附加 %d 个 kprobe 程序...", len(entries))

	t := &Kprobes{links: make(map[probe.EntryPoint]link.Link, len(entries))}
	for _, e := range entries {
		if err := t.kprobe(e, objs.Program(e)); err != nil {
			t.Detach()
			return nil, err
		}
		klog.Infof("Attached kprobe to %s", e.Symbol())
	}

	return t, nil
}
