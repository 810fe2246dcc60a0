package config

import "time"

type Configuration struct {
	BTF        BTFConfig      `yaml:"btf"`
	Probing    ProbingConfig  `yaml:"probing"`
	Features   FeaturesConfig `yaml:"features"`
	Output     OutputConfig   `yaml:"output"`
	Logging    LoggingConfig  `yaml:"logging"`
	Server     ServerConfig   `yaml:"server"`
	Exports    ExportsConfig  `yaml:"exports"`
	Simulate   SimulateConfig `yaml:"simulate"`
	ConfigPath string         `yaml:"-"`
}

type BTFConfig struct {
	Kernel   string `yaml:"kernel"`
	ModelDir string `yaml:"model_dir"`
}

type ProbingConfig struct {
	Object          string `yaml:"object"`
	SkipAttach      bool   `yaml:"skip_attach"`
	PerfBufferPages int    `yaml:"perf_buffer_pages"`
}

type FeaturesConfig struct {
	Debug       bool `yaml:"debug"`
	ExportPaths bool `yaml:"export_paths"`
	K8sNodes    bool `yaml:"k8s_nodes"`
}

type OutputConfig struct {
	Type string           `yaml:"type"` // enum: stdout, file, nats
	File FileOutputConfig `yaml:"file"`
	NATS NATSOutputConfig `yaml:"nats"`
}

type FileOutputConfig struct {
	Path string `yaml:"path"`
}

type NATSOutputConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type LoggingConfig struct {
	Dir        string `yaml:"dir"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	ToStderr   bool   `yaml:"to_stderr"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type ExportsConfig struct {
	Etab         string        `yaml:"etab"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type SimulateConfig struct {
	CPUs         int     `yaml:"cpus"`
	CallsPerCPU  int     `yaml:"calls_per_cpu"`
	SegmentSize  int     `yaml:"segment_size"`
	NonIPv4Ratio float64 `yaml:"non_ipv4_ratio"`
	BrokenRatio  float64 `yaml:"broken_ratio"`
	Seed         int64   `yaml:"seed"`
	Emit         bool    `yaml:"emit"`
}

const (
	OutputStdout = "stdout"
	OutputFile   = "file"
	OutputNATS   = "nats"
)

// Default returns the configuration used when nothing overrides it.
func Default() Configuration {
	return Configuration{
		BTF: BTFConfig{
			ModelDir: "/sys/kernel/btf",
		},
		Probing: ProbingConfig{
			Object:          "bpf/nfsd_trace.bpf.o",
			PerfBufferPages: 1,
		},
		Features: FeaturesConfig{
			ExportPaths: true,
		},
		Output: OutputConfig{
			Type: OutputStdout,
			NATS: NATSOutputConfig{
				URL:     "nats://127.0.0.1:4222",
				Subject: "nfsd.events",
			},
		},
		Logging: LoggingConfig{
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     7,
			ToStderr:   true,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":2112",
		},
		Exports: ExportsConfig{
			Etab:         "",
			PollInterval: 5 * time.Second,
		},
		Simulate: SimulateConfig{
			CPUs:         4,
			CallsPerCPU:  10000,
			SegmentSize:  4096,
			NonIPv4Ratio: 0.05,
			BrokenRatio:  0.01,
			Seed:         1,
		},
	}
}
