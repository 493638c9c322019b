// abvalid validates experiment submissions by delegating to independent
// evaluator agents and combining their scores into a single pass/fail
// decision.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger

	// exitCode is set by commands that finish cleanly but want a non-zero
	// exit (--strict on a BAD decision). Applied after Execute returns so
	// PersistentPostRun has already synced the logger.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "abvalid",
	Short: "abvalid - multi-agent experiment validation",
	Long: `abvalid validates an experiment submission (dataset, analysis code,
report, statistical design) by dispatching specialized evaluator agents
concurrently and synthesizing their scores into a weighted final score.

Missing evaluators never abort a run: weights are re-normalized over the
evaluators that responded, preserving their relative influence.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
