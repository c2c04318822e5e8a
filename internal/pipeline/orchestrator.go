package pipeline

import (
	"context"
	"time"

	"github.com/clawseedd/memory-polisher/internal/checkpoint"
	"github.com/clawseedd/memory-polisher/internal/logging"
)

// Options carries the CLI's parsed flags into the Orchestrator (spec §6).
// ForceFromPhase is a pointer so the zero Options value ({}) means "no
// override" rather than accidentally forcing every run to start at phase 0.
type Options struct {
	DryRun          bool
	NoResume        bool
	ClearCheckpoint bool
	ForceFromPhase  *int
}

// Run executes Phase 6 (resume decision) followed by Phases 0-5 in order,
// persisting a checkpoint after each phase and routing any phase error into
// rollback (spec §4.17). It returns the final RunState regardless of
// whether the run completed, rolled back, or stopped early for --dry-run.
func Run(ctx context.Context, deps *Deps, opts Options, now time.Time) (*RunState, error) {
	log := logging.Get(logging.CategoryOrchestrator)

	if opts.ClearCheckpoint {
		if err := ClearCheckpoint(deps); err != nil {
			return nil, err
		}
	}

	state, startPhase, err := resolveStartingState(deps, opts, now)
	if err != nil {
		return nil, err
	}

	if opts.ForceFromPhase != nil {
		startPhase = *opts.ForceFromPhase
	}

	log.Info("starting run session=%s from_phase=%d dry_run=%v", state.SessionID, startPhase, opts.DryRun)

	phases := []struct {
		id int
		run func() error
	}{
		{0, func() error { return RunPhase0(deps, state, now) }},
		{1, func() error { return RunPhase1(ctx, deps, state, now) }},
		{2, func() error { return RunPhase2(ctx, deps, state, now) }},
		{3, func() error { return RunPhase3(deps, state, now) }},
		{4, func() error { return RunPhase4(deps, state, now) }},
	}

	for _, p := range phases {
		if p.id < startPhase {
			continue
		}
		if opts.DryRun && p.id > 2 {
			log.Info("dry run: stopping after phase 2, no modifications made")
			return state, nil
		}

		if err := p.run(); err != nil {
			log.Error("phase %d failed: %v", p.id, err)
			if rbErr := handlePhaseFailure(deps, state, err, now); rbErr != nil {
				return state, rbErr
			}
			return state, err
		}

		if saveErr := deps.Checkpoints.Save(state.ToCheckpoint()); saveErr != nil {
			return state, saveErr
		}
	}

	if opts.DryRun {
		return state, nil
	}

	if err := RunPhase5(deps, state, now); err != nil {
		return state, err
	}

	return state, nil
}

// resolveStartingState runs Phase 6 and returns the RunState to continue
// with and the phase id to resume from (0 for a fresh run).
func resolveStartingState(deps *Deps, opts Options, now time.Time) (*RunState, int, error) {
	if opts.NoResume {
		return NewRunState(checkpoint.GenerateSessionID(), deps.BasePath, now), 0, nil
	}

	decision, err := RunPhase6(deps, now)
	if err != nil {
		return nil, 0, err
	}
	if !decision.ShouldResume {
		return NewRunState(checkpoint.GenerateSessionID(), deps.BasePath, now), 0, nil
	}

	return FromCheckpoint(decision.Checkpoint), decision.Checkpoint.CurrentPhase + 1, nil
}

// handlePhaseFailure runs the same rollback path Phase 5 uses on a
// validation failure, for an error raised directly by an earlier phase
// (spec §4.17 "on any uncaught error inside a phase, calls Phase 5's
// rollback").
func handlePhaseFailure(deps *Deps, state *RunState, cause error, now time.Time) error {
	return runRollback(deps, state, []string{cause.Error()}, state.Warnings, now)
}
