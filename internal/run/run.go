package run

import (
	"context"
	"fmt"

	"github.com/cilium/ebpf/btf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	"github.com/cen-ngc5139/nfsd-trace/internal/bpf"
	"github.com/cen-ngc5139/nfsd-trace/internal/config"
	"github.com/cen-ngc5139/nfsd-trace/internal/layout"
	"github.com/cen-ngc5139/nfsd-trace/internal/log"
	"github.com/cen-ngc5139/nfsd-trace/internal/metadata"
	"github.com/cen-ngc5139/nfsd-trace/internal/output"
	"github.com/cen-ngc5139/nfsd-trace/internal/probe"
	"github.com/cen-ngc5139/nfsd-trace/internal/server"
	"github.com/cen-ngc5139/nfsd-trace/internal/watch"
	k8sclient "github.com/cen-ngc5139/nfsd-trace/pkg/client"
)

// Run loads the kernel program, attaches it to the nfsd entry points and
// consumes its events until ctx is done.
func Run(ctx context.Context, cfg config.Configuration) error {
	// Remove memory limit for eBPF programs
	if err := rlimit.RemoveMemlock(); err != nil {
		return fmt.Errorf("failed to remove memlock limit: %w", err)
	}

	// Set the rlimit for the number of open file descriptors to 8192.
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{
		Cur: 8192,
		Max: 8192,
	}); err != nil {
		log.Warningf("failed to set temporary rlimit: %s", err)
	}

	specs, err := layout.LoadSpecs(cfg.BTF.Kernel, cfg.BTF.ModelDir, layout.NFSDModule)
	if err != nil {
		return err
	}
	l, missing := layout.FromBTF(specs...)
	if len(missing) > 0 {
		log.Warningf("BTF 中缺少 %v, 使用默认偏移", missing)
	}
	log.Infof("kernel layout:\n%s", l)

	if err := bpf.TraceableSymbols(probe.EntryPoints, specs); err != nil {
		return err
	}

	if cfg.Probing.SkipAttach {
		log.Info("Skipping attaching kprobes")
		return nil
	}

	spec, err := bpf.LoadSpec(cfg.Probing.Object, bpf.GetConfig(cfg))
	if err != nil {
		return err
	}

	// 显式指定 kernel BTF 时用它做 CO-RE 重定位, base spec 位于最后
	var kernelTypes *btf.Spec
	if cfg.BTF.Kernel != "" {
		kernelTypes = specs[len(specs)-1]
	}
	objs, err := bpf.Load(spec, kernelTypes)
	if err != nil {
		return err
	}
	defer objs.Close()

	kp, err := bpf.Kprobe(objs, probe.EntryPoints)
	if err != nil {
		return err
	}
	defer kp.Detach()

	src, err := output.NewPerfSource(objs.Events(), cfg.Probing.PerfBufferPages)
	if err != nil {
		return err
	}

	ready := func() error {
		if !kp.HaveTracing() {
			return fmt.Errorf("kprobes not attached")
		}
		return nil
	}

	log.Info("Listening for NFS events..")
	defer func() {
		select {
		case <-ctx.Done():
			log.Info("Received signal, exiting program..")
		default:
			log.Info("exiting program..")
		}
	}()

	return serve(ctx, cfg, src, ready)
}

// consumer wires the source to metrics and the configured writer.
func consumer(cfg config.Configuration, src output.Source, writer output.Writer) (*output.Processor, *prometheus.Registry, error) {
	reg := server.NewRegistry()
	metrics := output.NewNFSMetrics(reg)

	if writer == nil {
		var err error
		writer, err = output.NewWriter(cfg, uuid.NewString())
		if err != nil {
			return nil, nil, err
		}
	}
	return output.NewProcessor(src, metrics, writer), reg, nil
}

// serve runs the consumer and the optional side tasks until ctx is done.
func serve(ctx context.Context, cfg config.Configuration, src output.Source, ready server.ReadyFunc) error {
	proc, reg, err := consumer(cfg, src, nil)
	if err != nil {
		_ = src.Close()
		return err
	}
	defer proc.Close()

	tm := NewTaskManager()
	tm.Add("处理事件", proc.Run)

	if cfg.Server.Enabled {
		s := server.NewServer(cfg.Server.Addr, reg, ready)
		tm.Add("服务器", s.Start)
	}

	if cfg.Features.ExportPaths {
		tm.Add("导出表", func(ctx context.Context) error {
			monitor := metadata.NewExportMonitor(cfg.ExportTables(), metadata.UpdateExportCache, cfg.Exports.PollInterval)
			monitor.Start()
			<-ctx.Done()
			monitor.Stop()
			return nil
		})
	}

	if cfg.Features.K8sNodes {
		mgr := k8sclient.NewK8sManager("")
		if err := mgr.CreateClient(); err != nil {
			return fmt.Errorf("create k8s client failed: %w", err)
		}
		w, err := watch.NewNodeWatcher(mgr.GetK8sClientSet())
		if err != nil {
			return err
		}
		tm.Add("节点同步", w.Run)
	}

	return tm.Run(ctx)
}
