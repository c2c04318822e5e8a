package pipeline

import (
	"fmt"
	"time"

	"github.com/clawseedd/memory-polisher/internal/checkpoint"
	"github.com/clawseedd/memory-polisher/internal/logging"
	"github.com/clawseedd/memory-polisher/internal/model"
)

// ResumeDecision is Phase 6's result (spec §4.16): whether the Orchestrator
// should rehydrate state from Checkpoint and skip phases already completed,
// or start a fresh run.
type ResumeDecision struct {
	ShouldResume bool
	Checkpoint   *model.Checkpoint
	Summary      string
}

// RunPhase6 decides resume-vs-fresh (spec §4.16). If checkpoints are
// disabled or none exists, it returns ShouldResume=false. A checkpoint with
// Status "completed" is archived and treated as fresh. Otherwise it is a
// genuine interrupted run: the Orchestrator should resume from
// checkpoint.CurrentPhase+1 using the accumulated state.
func RunPhase6(deps *Deps, now time.Time) (*ResumeDecision, error) {
	log := logging.Get(logging.CategoryPhase6)

	if !deps.Config.Recovery.EnableCheckpoints || !deps.Checkpoints.Exists() {
		return &ResumeDecision{ShouldResume: false}, nil
	}

	cp, err := deps.Checkpoints.Load()
	if err != nil {
		return nil, NewPhaseError(6, ClassIOTransient, err)
	}
	if cp == nil {
		return &ResumeDecision{ShouldResume: false}, nil
	}

	if cp.Status == "completed" {
		if err := deps.Checkpoints.Archive(cp.StartedAt); err != nil {
			return nil, NewPhaseError(6, ClassIOTransient, err)
		}
		log.Info("found completed checkpoint for session %s, archiving and starting fresh", cp.SessionID)
		return &ResumeDecision{ShouldResume: false}, nil
	}

	summary := summarizeCheckpoint(cp)
	log.Info("resuming interrupted session %s: %s", cp.SessionID, summary)

	return &ResumeDecision{ShouldResume: true, Checkpoint: cp, Summary: summary}, nil
}

// ClearCheckpoint discards any existing checkpoint, forcing the next
// Orchestrator run to start fresh regardless of RunPhase6's decision
// (supports the --clear-checkpoint CLI flag).
func ClearCheckpoint(deps *Deps) error {
	return deps.Checkpoints.Delete()
}

func summarizeCheckpoint(cp *model.Checkpoint) string {
	progress := checkpoint.CalculateProgress(cp.CurrentPhase)
	return fmt.Sprintf(
		"started %s, last completed phase %d (%d%%), completed steps %v, status %q",
		cp.StartedAt.Format(time.RFC3339), cp.CurrentPhase, progress, cp.CompletedSteps, cp.Status,
	)
}
