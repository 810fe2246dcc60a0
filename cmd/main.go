package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/cen-ngc5139/nfsd-trace/internal/config"
	"github.com/cen-ngc5139/nfsd-trace/internal/layout"
	"github.com/cen-ngc5139/nfsd-trace/internal/log"
	"github.com/cen-ngc5139/nfsd-trace/internal/run"
)

var cfg = config.Default()

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "nfsd-trace",
		Short:         "Trace NFS server reads and writes per client and export",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(cmd.Root().PersistentFlags(), &cfg); err != nil {
				return err
			}
			return log.InitLogger(cfg.Logging)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Close()
		},
	}
	config.SetFlags(root.PersistentFlags(), &cfg)

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Attach the kernel probes and export NFS operations",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return run.Run(ctx, cfg)
			},
		},
		&cobra.Command{
			Use:   "simulate",
			Short: "Drive the probe pipeline against a synthetic kernel",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				report, err := run.Simulate(ctx, cfg, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report)
				for _, s := range report.Sink {
					fmt.Fprintf(cmd.OutOrStdout(), "cpu %d: published=%d lost=%d\n", s.CPU, s.Published, s.Lost)
				}
				return report.Check()
			},
		},
		&cobra.Command{
			Use:   "layout",
			Short: "Print the kernel structure offsets the probes use",
			RunE: func(cmd *cobra.Command, args []string) error {
				specs, err := layout.LoadSpecs(cfg.BTF.Kernel, cfg.BTF.ModelDir, layout.NFSDModule)
				if err != nil {
					klog.Warningf("%v, using default layout", err)
					fmt.Fprint(cmd.OutOrStdout(), layout.Default())
					return nil
				}
				l, missing := layout.FromBTF(specs...)
				fmt.Fprint(cmd.OutOrStdout(), l)
				for _, m := range missing {
					fmt.Fprintf(cmd.OutOrStdout(), "missing: %s\n", m)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				out, err := config.Dump(cfg)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			},
		},
	)

	return root
}
