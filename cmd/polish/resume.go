package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawseedd/memory-polisher/internal/pipeline"
)

// resumeCmd forces resumption of an interrupted run, equivalent to running
// the root command with checkpoints honored and --no-resume absent, but
// fails loudly if there is nothing to resume from.
var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume an interrupted polish run from its last checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadAndApplyOverrides(flagWorkspace)
		if err != nil {
			return err
		}

		deps, err := buildDeps(flagWorkspace, cfg)
		if err != nil {
			return err
		}
		defer deps.Close()

		if !deps.Checkpoints.Exists() {
			return fmt.Errorf("no checkpoint found at %s, nothing to resume", flagWorkspace)
		}

		decision, err := pipeline.RunPhase6(deps, time.Now())
		if err != nil {
			return err
		}
		if !decision.ShouldResume {
			fmt.Println("the checkpoint is already complete; run `polish` to start a fresh session")
			return nil
		}
		fmt.Printf("resuming session %s: %s\n", decision.Checkpoint.SessionID, decision.Summary)

		return runPipeline(cmd.Context())
	},
}
