package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/csb/phasebench/internal/scheduler"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts runOptions

	root := &cobra.Command{
		Use:   "phasebench",
		Short: "Phase-driven load-injection benchmark runner",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark definition to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := runBenchmark(ctx, opts)
			if err != nil {
				return err
			}
			if result.Outcome == scheduler.Failed {
				return fmt.Errorf("benchmark failed: %w", result.Err)
			}
			return nil
		},
	}
	runCmd.Flags().StringVarP(&opts.definitionPath, "definition", "d", "", "path to the benchmark definition YAML file (required)")
	runCmd.Flags().StringVarP(&opts.executionPath, "execution", "e", "", "path to the execution config YAML file (optional)")
	runCmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "override the execution config's metrics listen address")
	runCmd.Flags().StringVar(&opts.logLevel, "log-level", "", "override the execution config's log level")
	_ = runCmd.MarkFlagRequired("definition")

	root.AddCommand(runCmd)
	return root
}
