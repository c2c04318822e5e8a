// Package pipeline implements the six-phase crash-safe pipeline from spec
// §4.10-4.17: Phase 0 (init/backup) through Phase 5 (validate/rollback),
// Phase 6 (resume), and the Orchestrator that wires them together.
package pipeline

import (
	"fmt"
	"time"

	"github.com/clawseedd/memory-polisher/internal/model"
)

// ErrorClass is the error taxonomy from spec §7, used by the Orchestrator
// to decide rollback-vs-fatal without string matching.
type ErrorClass string

const (
	ClassPreflight   ErrorClass = "preflight"
	ClassProvider    ErrorClass = "provider"
	ClassIOTransient ErrorClass = "io_transient"
	ClassSecurity    ErrorClass = "security"
	ClassValidation  ErrorClass = "validation"
	ClassIntegrity   ErrorClass = "integrity"
)

// PhaseError tags an error with the phase it occurred in and its taxonomy
// class, so the Orchestrator can branch on Class instead of matching error
// text (teacher's AuditEvent/ExecutionResult classification shape).
type PhaseError struct {
	Phase int
	Class ErrorClass
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %d (%s): %v", e.Phase, e.Class, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// NewPhaseError wraps err with phase and class context.
func NewPhaseError(phase int, class ErrorClass, err error) *PhaseError {
	return &PhaseError{Phase: phase, Class: class, Err: err}
}

// RunState is the accumulated state threaded through every phase. Spec
// §4.17 describes the Orchestrator folding each phase's result into the
// running state via a "safe merge" that rejects reserved prototype-pollution
// keys; that concern is specific to dynamic-map runtimes. Here state is a
// named, statically-typed record, so each phase mutates its own named
// fields directly — there is no dynamic key space for a malicious key to
// enter through, which is exactly what the safe-merge requirement reduces
// to in a typed target.
type RunState struct {
	SessionID        string
	StartedAt        time.Time
	CurrentPhase     int
	CompletedSteps   []int
	Status           string
	Stats            map[string]int
	DiscoveredTopics model.DiscoveredTopics
	MergeProposals   []model.MergeProposal
	CanonicalMap     *model.CanonicalMap
	Extractions      []model.Extraction
	FilesProcessed   []string
	SimilarityMethod string
	BasePath         string
	Warnings         []string

	// Phase 0 outputs.
	CacheDir       string
	BackupsCreated int
	BackupSize     int64

	// Phase 3 outputs.
	EntriesWritten    int
	CrossRefsCreated  int
	MergesCompleted   int
	TopicFilesCreated int
}

// NewRunState seeds a fresh state for a new session.
func NewRunState(sessionID, basePath string, startedAt time.Time) *RunState {
	return &RunState{
		SessionID: sessionID,
		StartedAt: startedAt,
		BasePath:  basePath,
		Status:    "running",
		Stats:     make(map[string]int),
	}
}

// FromCheckpoint rehydrates a RunState from a loaded checkpoint, for
// resuming an interrupted run (Phase 6).
func FromCheckpoint(cp *model.Checkpoint) *RunState {
	return &RunState{
		SessionID:        cp.SessionID,
		StartedAt:        cp.StartedAt,
		CurrentPhase:     cp.CurrentPhase,
		CompletedSteps:   cp.CompletedSteps,
		Status:           cp.Status,
		Stats:            cp.Stats,
		DiscoveredTopics: cp.DiscoveredTopics,
		MergeProposals:   cp.MergeProposals,
		CanonicalMap:     cp.CanonicalMap,
		Extractions:      cp.Extractions,
		FilesProcessed:   cp.FilesProcessed,
		SimilarityMethod: cp.SimilarityMethod,
		BasePath:         cp.BasePath,
	}
}

// ToCheckpoint projects the run state into the persisted Checkpoint shape.
func (s *RunState) ToCheckpoint() *model.Checkpoint {
	return &model.Checkpoint{
		Version:          1,
		SessionID:        s.SessionID,
		StartedAt:        s.StartedAt,
		CurrentPhase:     s.CurrentPhase,
		CompletedSteps:   s.CompletedSteps,
		Status:           s.Status,
		Stats:            s.Stats,
		DiscoveredTopics: s.DiscoveredTopics,
		MergeProposals:   s.MergeProposals,
		CanonicalMap:     s.CanonicalMap,
		Extractions:      s.Extractions,
		FilesProcessed:   s.FilesProcessed,
		SimilarityMethod: s.SimilarityMethod,
		BasePath:         s.BasePath,
	}
}

// advance records phase as completed: sets CurrentPhase and appends to the
// completed_steps prefix (spec invariant I5).
func (s *RunState) advance(phase int) {
	s.CurrentPhase = phase
	s.CompletedSteps = append(s.CompletedSteps, phase)
}
