// Package main implements the polish CLI: a thin cobra command tree over
// internal/pipeline. It owns flag parsing, config loading, and logger
// bring-up; none of the six phases live here.
//
// # File Index
//
//   - main.go      - entry point, rootCmd, global flags, init()
//   - run.go       - runCmd (the default pipeline invocation)
//   - resume.go    - resumeCmd (force-resume an interrupted run)
//   - report.go    - reportCmd (render a .polish-reports/*.md file)
//   - workspace.go - workspace root resolution (spec §6)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clawseedd/memory-polisher/internal/logging"
)

var (
	flagWorkspace       string
	flagVerbose         bool
	flagDryRun          bool
	flagArchive         string
	flagLookbackDays    int
	flagNoResume        bool
	flagClearCheckpoint bool
	flagForceFromPhase  int

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "polish",
	Short: "Curate dated daily logs into per-topic markdown files",
	Long: `polish runs the memory-polisher pipeline: it discovers hashtags across
your dated daily logs, extracts tagged sections into per-topic markdown
files under Topics/, replaces the originals with stub pointers, and
archives logs past their grace period.

Run without a subcommand to execute the full pipeline once.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if flagVerbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws, err := resolveWorkspace(flagWorkspace)
		if err != nil {
			return fmt.Errorf("failed to resolve workspace: %w", err)
		}
		flagWorkspace = ws

		if err := logging.Initialize(ws, flagVerbose); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", "", "workspace root (default: auto-detected)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "run discover/extract only, make no modifications")
	rootCmd.PersistentFlags().StringVar(&flagArchive, "archive", "", "override archive.enabled: \"true\" or \"false\"")
	rootCmd.PersistentFlags().IntVar(&flagLookbackDays, "lookback-days", 0, "override advanced.lookback_days (0 = use config)")
	rootCmd.PersistentFlags().BoolVar(&flagNoResume, "no-resume", false, "ignore any existing checkpoint and start fresh")
	rootCmd.PersistentFlags().BoolVar(&flagClearCheckpoint, "clear-checkpoint", false, "delete any existing checkpoint before running")
	rootCmd.PersistentFlags().IntVar(&flagForceFromPhase, "force-from-phase", -1, "override the phase to resume from (-1 = unset)")

	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(reportCmd)
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
