package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clawseedd/memory-polisher/internal/model"
)

func TestBuildStubSingleTopic(t *testing.T) {
	ext := model.Extraction{
		SourceFile: "2026-07-30.md", SectionTitle: "Morning standup", PrimaryTopic: "python",
	}
	stub := buildStub(ext, fixedNow())
	if !strings.Contains(stub, "## Morning standup") {
		t.Errorf("expected stub to keep section title, got:\n%s", stub)
	}
	if !strings.Contains(stub, "Topics/Python.md") {
		t.Errorf("expected stub to point at the primary topic file, got:\n%s", stub)
	}
	if strings.Contains(stub, "📎") {
		t.Errorf("single-topic stub should not carry the multi-topic marker, got:\n%s", stub)
	}
}

func TestBuildStubMultiTopic(t *testing.T) {
	ext := model.Extraction{
		SourceFile: "2026-07-30.md", SectionTitle: "Morning standup",
		PrimaryTopic: "python", SecondaryTopics: []string{"trading"},
	}
	stub := buildStub(ext, fixedNow())
	if !strings.Contains(stub, "→ **Primary:**") || !strings.Contains(stub, "→ **Also in:**") {
		t.Errorf("expected multi-topic stub shape, got:\n%s", stub)
	}
	if !strings.Contains(stub, "📎 Topics: #python #trading") {
		t.Errorf("expected tag summary line, got:\n%s", stub)
	}
}

func TestReplaceSectionsWithStubsProcessesBottomUp(t *testing.T) {
	deps := newTestDeps(t)
	now := fixedNow()

	content := "## First\n\nfirst body\n\n## Second\n\nsecond body\n"
	sourceFile := writeLog(t, deps, now.AddDate(0, 0, -1), content)

	lines := strings.Split(content, "\n")
	exts := []model.Extraction{
		{SourceFile: sourceFile, SectionTitle: "First", PrimaryTopic: "a", SourceLineStart: 0, SourceLineEnd: 2, FullContent: strings.Join(lines[0:3], "\n")},
		{SourceFile: sourceFile, SectionTitle: "Second", PrimaryTopic: "b", SourceLineStart: 4, SourceLineEnd: 6, FullContent: strings.Join(lines[4:7], "\n")},
	}

	if err := replaceSectionsWithStubs(deps, sourceFile, exts, now); err != nil {
		t.Fatalf("replaceSectionsWithStubs: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(deps.MemoryDir, sourceFile))
	if err != nil {
		t.Fatalf("failed to read updated log: %v", err)
	}
	updated := string(data)
	if !strings.Contains(updated, "## First") || !strings.Contains(updated, "## Second") {
		t.Errorf("expected both stubs present, got:\n%s", updated)
	}
	if strings.Contains(updated, "first body") || strings.Contains(updated, "second body") {
		t.Errorf("expected original bodies replaced, got:\n%s", updated)
	}

	entries, err := deps.TxLog.GetByAction("replace_stubs")
	if err != nil {
		t.Fatalf("GetByAction: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 replace_stubs transaction, got %d", len(entries))
	}
	if !deps.Backups.Exists(entries[0].Hash) {
		t.Errorf("expected a backup to exist for the pre-update content hash")
	}
}

func TestHealLinkTextRewritesSiblingAndArchivedLinks(t *testing.T) {
	text := "See [entry](../2026-07-01.md#L1) and [topic](Topics/Python.md)."
	healed := healLinkText(text, map[string]int{"2026-07-01.md": 2026})

	if !strings.Contains(healed, "](../Archive/2026/2026-07-01.md#L1)") {
		t.Errorf("expected archived log backlink rewritten to Archive path with anchor preserved, got:\n%s", healed)
	}
	if !strings.Contains(healed, "(Python.md)") {
		t.Errorf("expected Topics/ prefix stripped from the sibling-topic link, got:\n%s", healed)
	}
}

func TestHealLinkTextLeavesNonArchivedBacklinkResolvable(t *testing.T) {
	// A daily-log backlink that was NOT archived this run already resolves
	// correctly as written (Topics/<file> -> ../<log> == memory/<log>);
	// stripping "../" here would point it at a nonexistent Topics/<log>.
	text := "See [entry](../2026-07-01.md#L1)."
	healed := healLinkText(text, map[string]int{})
	if !strings.Contains(healed, "](../2026-07-01.md#L1)") {
		t.Errorf("expected the non-archived backlink to keep its ../ prefix, got:\n%s", healed)
	}
}

func TestHealLinkTextRewritesBareSiblingTopicLink(t *testing.T) {
	text := "See [trading](../Trading.md) for more."
	healed := healLinkText(text, map[string]int{})
	if !strings.Contains(healed, "(Trading.md)") {
		t.Errorf("expected a non-anchored ../<Name>.md sibling link stripped, got:\n%s", healed)
	}
	if strings.Contains(healed, "(../Trading.md)") {
		t.Errorf("did not expect the ../ prefix to survive on a sibling-topic link, got:\n%s", healed)
	}
}

func TestHealLinkTextRewritesAnchoredCrossRefLink(t *testing.T) {
	// Matches the literal cross-reference stub shape from appendCrossRef:
	// "[Topics/Python.md](../Python.md#2026-07-30)" — a sibling-topic link
	// that carries a date anchor, not a daily-log backlink.
	text := "📌 **Full entry:** [Topics/Python.md](../Python.md#2026-07-30)\n"
	healed := healLinkText(text, map[string]int{})
	if !strings.Contains(healed, "(Python.md#2026-07-30)") {
		t.Errorf("expected the anchored sibling-topic link's ../ stripped, got:\n%s", healed)
	}
	if strings.Contains(healed, "(../Python.md#2026-07-30)") {
		t.Errorf("did not expect ../ to survive on the cross-ref link, got:\n%s", healed)
	}
}

func TestHealLinkTextLeavesAlreadyArchivedPathAlone(t *testing.T) {
	// A second healLinks pass (e.g. on resume) must not re-mangle a link
	// that a prior pass already rewrote to a multi-segment Archive/ path.
	text := "See [entry](../Archive/2026/2026-07-01.md#L1)."
	healed := healLinkText(text, map[string]int{})
	if !strings.Contains(healed, "](../Archive/2026/2026-07-01.md#L1)") {
		t.Errorf("expected an already-healed Archive/ path to be left untouched, got:\n%s", healed)
	}
}
