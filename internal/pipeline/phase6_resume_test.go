package pipeline

import (
	"testing"

	"github.com/clawseedd/memory-polisher/internal/model"
)

func TestRunPhase6NoResumeWhenNoCheckpoint(t *testing.T) {
	deps := newTestDeps(t)
	decision, err := RunPhase6(deps, fixedNow())
	if err != nil {
		t.Fatalf("RunPhase6: %v", err)
	}
	if decision.ShouldResume {
		t.Errorf("expected ShouldResume=false with no checkpoint present")
	}
}

func TestRunPhase6ResumesFromInterruptedCheckpoint(t *testing.T) {
	deps := newTestDeps(t)
	now := fixedNow()

	cp := &model.Checkpoint{SessionID: "sess-1", StartedAt: now, CurrentPhase: 2, Status: "running"}
	if err := deps.Checkpoints.Save(cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	decision, err := RunPhase6(deps, now)
	if err != nil {
		t.Fatalf("RunPhase6: %v", err)
	}
	if !decision.ShouldResume {
		t.Fatalf("expected ShouldResume=true for an interrupted checkpoint")
	}
	if decision.Checkpoint.CurrentPhase != 2 {
		t.Errorf("expected resumed checkpoint phase 2, got %d", decision.Checkpoint.CurrentPhase)
	}
}

func TestRunPhase6ArchivesCompletedCheckpointAndStartsFresh(t *testing.T) {
	deps := newTestDeps(t)
	now := fixedNow()

	cp := &model.Checkpoint{SessionID: "sess-1", StartedAt: now, CurrentPhase: 5, Status: "completed"}
	if err := deps.Checkpoints.Save(cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	decision, err := RunPhase6(deps, now)
	if err != nil {
		t.Fatalf("RunPhase6: %v", err)
	}
	if decision.ShouldResume {
		t.Errorf("expected ShouldResume=false for a completed checkpoint")
	}
	if deps.Checkpoints.Exists() {
		t.Errorf("expected completed checkpoint to be archived away")
	}
}

func TestRunPhase6SkipsWhenCheckpointsDisabled(t *testing.T) {
	deps := newTestDeps(t)
	now := fixedNow()
	deps.Config.Recovery.EnableCheckpoints = false

	cp := &model.Checkpoint{SessionID: "sess-1", StartedAt: now, CurrentPhase: 2, Status: "running"}
	if err := deps.Checkpoints.Save(cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	decision, err := RunPhase6(deps, now)
	if err != nil {
		t.Fatalf("RunPhase6: %v", err)
	}
	if decision.ShouldResume {
		t.Errorf("expected ShouldResume=false when checkpoints are disabled")
	}
}
