package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. NFSD_TRACE_OUTPUT_TYPE.
const EnvPrefix = "NFSD_TRACE"

// Load layers, from lowest to highest precedence: the values already in cfg,
// the YAML file named by cfg.ConfigPath, NFSD_TRACE_* environment variables
// and flags explicitly set on fs.
func Load(fs *pflag.FlagSet, cfg *Configuration) error {
	v := viper.New()

	for key, name := range bindings {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "bind flag %s", name)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfg.ConfigPath != "" {
		v.SetConfigFile(cfg.ConfigPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config %s", cfg.ConfigPath)
		}
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return errors.Wrap(err, "decode config")
	}

	return cfg.Validate()
}

// Validate rejects configurations the tracer cannot run with.
func (c *Configuration) Validate() error {
	switch c.Output.Type {
	case OutputStdout, OutputFile:
	case OutputNATS:
		if c.Output.NATS.URL == "" || c.Output.NATS.Subject == "" {
			return fmt.Errorf("output type nats needs a url and a subject")
		}
	default:
		return fmt.Errorf("unsupported output type %q", c.Output.Type)
	}

	if c.Probing.PerfBufferPages <= 0 {
		return fmt.Errorf("perf buffer pages must be positive, got %d", c.Probing.PerfBufferPages)
	}
	if c.Simulate.CPUs <= 0 || c.Simulate.SegmentSize <= 0 {
		return fmt.Errorf("simulation needs positive cpus and segment size")
	}
	if c.Simulate.NonIPv4Ratio < 0 || c.Simulate.NonIPv4Ratio > 1 ||
		c.Simulate.BrokenRatio < 0 || c.Simulate.BrokenRatio > 1 {
		return fmt.Errorf("simulation ratios must be within [0, 1]")
	}
	return nil
}

// Dump renders the configuration as YAML.
func Dump(cfg Configuration) (string, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return "", errors.Wrap(err, "encode config")
	}
	return string(raw), nil
}
