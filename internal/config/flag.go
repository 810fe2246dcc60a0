package config

import (
	"flag"

	"github.com/spf13/pflag"
)

// bindings maps configuration keys to their command line flags.
var bindings = map[string]string{
	"btf.kernel":                "kernel-btf",
	"btf.model_dir":             "model-btf-dir",
	"probing.object":            "bpf-object",
	"probing.skip_attach":       "skip-attach",
	"probing.perf_buffer_pages": "perf-buffer-pages",
	"features.debug":            "enable-debug",
	"features.export_paths":     "enable-export-paths",
	"features.k8s_nodes":        "enable-k8s-nodes",
	"output.type":               "output-type",
	"output.file.path":          "output-file",
	"output.nats.url":           "nats-url",
	"output.nats.subject":       "nats-subject",
	"logging.dir":               "log-dir",
	"logging.to_stderr":         "log-to-stderr",
	"server.enabled":            "enable-server",
	"server.addr":               "server-addr",
	"exports.etab":              "etab",
	"exports.poll_interval":     "exports-poll-interval",
	"simulate.cpus":             "sim-cpus",
	"simulate.calls_per_cpu":    "sim-calls",
	"simulate.segment_size":     "sim-segment-size",
	"simulate.non_ipv4_ratio":   "sim-non-ipv4-ratio",
	"simulate.broken_ratio":     "sim-broken-ratio",
	"simulate.seed":             "sim-seed",
	"simulate.emit":             "sim-emit",
}

// SetFlags registers every option on fs with cfg's values as defaults and
// writes parsed values into cfg.
func SetFlags(fs *pflag.FlagSet, cfg *Configuration) {
	fs.AddGoFlagSet(flag.CommandLine)

	fs.StringVar(&cfg.BTF.Kernel, "kernel-btf", cfg.BTF.Kernel, "specify kernel BTF file")
	fs.StringVar(&cfg.BTF.ModelDir, "model-btf-dir", cfg.BTF.ModelDir, "specify kernel model BTF dir")

	fs.StringVar(&cfg.Probing.Object, "bpf-object", cfg.Probing.Object, "compiled nfsd_trace BPF object")
	fs.BoolVar(&cfg.Probing.SkipAttach, "skip-attach", cfg.Probing.SkipAttach, "load and verify the probes but skip attaching kprobes")
	fs.IntVar(&cfg.Probing.PerfBufferPages, "perf-buffer-pages", cfg.Probing.PerfBufferPages, "per-cpu perf buffer size in pages")

	fs.BoolVar(&cfg.Features.Debug, "enable-debug", cfg.Features.Debug, "enable the per-call debug trace line")
	fs.BoolVar(&cfg.Features.ExportPaths, "enable-export-paths", cfg.Features.ExportPaths, "expand export names to full paths from etab")
	fs.BoolVar(&cfg.Features.K8sNodes, "enable-k8s-nodes", cfg.Features.K8sNodes, "resolve client addresses to kubernetes node names")

	fs.StringVar(&cfg.Output.Type, "output-type", cfg.Output.Type, "output type(ex. stdout, file, nats)")
	fs.StringVar(&cfg.Output.File.Path, "output-file", cfg.Output.File.Path, "event file for output type file")
	fs.StringVar(&cfg.Output.NATS.URL, "nats-url", cfg.Output.NATS.URL, "nats server url")
	fs.StringVar(&cfg.Output.NATS.Subject, "nats-subject", cfg.Output.NATS.Subject, "nats subject events are published to")

	fs.StringVar(&cfg.Logging.Dir, "log-dir", cfg.Logging.Dir, "directory for rotated info/warn/error logs")
	fs.BoolVar(&cfg.Logging.ToStderr, "log-to-stderr", cfg.Logging.ToStderr, "log to stderr instead of files")

	fs.BoolVar(&cfg.Server.Enabled, "enable-server", cfg.Server.Enabled, "serve /metrics, /healthz and pprof")
	fs.StringVar(&cfg.Server.Addr, "server-addr", cfg.Server.Addr, "http listen address")

	fs.StringVar(&cfg.Exports.Etab, "etab", cfg.Exports.Etab, "nfs export table (default: /var/lib/nfs/etab, then /proc/fs/nfsd/exports)")
	fs.DurationVar(&cfg.Exports.PollInterval, "exports-poll-interval", cfg.Exports.PollInterval, "export table poll interval")

	fs.IntVar(&cfg.Simulate.CPUs, "sim-cpus", cfg.Simulate.CPUs, "simulated cpus")
	fs.IntVar(&cfg.Simulate.CallsPerCPU, "sim-calls", cfg.Simulate.CallsPerCPU, "simulated calls per cpu")
	fs.IntVar(&cfg.Simulate.SegmentSize, "sim-segment-size", cfg.Simulate.SegmentSize, "records per sink segment")
	fs.Float64Var(&cfg.Simulate.NonIPv4Ratio, "sim-non-ipv4-ratio", cfg.Simulate.NonIPv4Ratio, "share of simulated calls from IPv6 clients")
	fs.Float64Var(&cfg.Simulate.BrokenRatio, "sim-broken-ratio", cfg.Simulate.BrokenRatio, "share of simulated calls with a broken export chain")
	fs.Int64Var(&cfg.Simulate.Seed, "sim-seed", cfg.Simulate.Seed, "simulation random seed")
	fs.BoolVar(&cfg.Simulate.Emit, "sim-emit", cfg.Simulate.Emit, "write simulated events to the configured output")

	fs.StringVar(&cfg.ConfigPath, "config-path", cfg.ConfigPath, "specify config file path")

	fs.Set("logtostderr", "false")
	fs.Set("alsologtostderr", "false")
	fs.Set("log_file", "")
}
