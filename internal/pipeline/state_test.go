package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/clawseedd/memory-polisher/internal/model"
)

func TestRunStateCheckpointRoundTrip(t *testing.T) {
	now := fixedNow()
	state := NewRunState("sess-roundtrip", "/tmp/ws", now)
	state.advance(0)
	state.advance(1)
	state.Stats["extractions"] = 3
	state.DiscoveredTopics = model.DiscoveredTopics{
		"python":  {Count: 2},
		"trading": {Count: 1},
	}
	state.MergeProposals = []model.MergeProposal{
		{Canonical: "python", Alias: "py", Confidence: 0.92, Method: model.MethodLevenshtein},
	}
	state.Extractions = []model.Extraction{
		{ID: "a", SourceFile: "2026-07-30.md", PrimaryTopic: "python", ContentHash: "deadbeef"},
	}
	state.FilesProcessed = []string{"2026-07-30.md"}
	state.SimilarityMethod = "levenshtein"

	cp := state.ToCheckpoint()
	require.Equal(t, state.SessionID, cp.SessionID, "checkpoint must preserve the session id")

	restored := FromCheckpoint(cp)
	restored.Stats = state.Stats // Stats map identity isn't round-tripped through Status, set directly for the diff below.

	if diff := cmp.Diff(state.DiscoveredTopics, restored.DiscoveredTopics); diff != "" {
		t.Errorf("DiscoveredTopics mismatch after round-trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(state.MergeProposals, restored.MergeProposals); diff != "" {
		t.Errorf("MergeProposals mismatch after round-trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(state.Extractions, restored.Extractions); diff != "" {
		t.Errorf("Extractions mismatch after round-trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(state.CompletedSteps, restored.CompletedSteps); diff != "" {
		t.Errorf("CompletedSteps mismatch after round-trip (-want +got):\n%s", diff)
	}
}
