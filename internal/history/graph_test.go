package history

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"inkwell/api/internal/textdiff"
)

func newTestGraph() *Graph {
	return NewGraph(textdiff.NewEngine(textdiff.Options{}))
}

func TestInitializeAndCommitLifecycle(t *testing.T) {
	g := newTestGraph()

	v1, err := g.Initialize("doc1", "Hello", VersionMeta{Author: "ada"})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if v1.Sequence != 1 {
		t.Fatalf("Sequence = %d, want 1", v1.Sequence)
	}
	if v1.Branch != "main" {
		t.Fatalf("Branch = %q, want main", v1.Branch)
	}
	wantHash := sha256.Sum256([]byte("Hello"))
	if v1.ContentHash != hex.EncodeToString(wantHash[:]) {
		t.Fatalf("ContentHash = %q, want sha256 of content", v1.ContentHash)
	}

	if _, err := g.Initialize("doc1", "again", VersionMeta{}); !errors.Is(err, ErrDocumentExists) {
		t.Fatalf("second Initialize() error = %v, want ErrDocumentExists", err)
	}

	v2, err := g.CreateVersion("doc1", "Hello World", VersionMeta{Author: "ada"})
	if err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}
	if v2.Sequence != 2 {
		t.Fatalf("Sequence = %d, want 2", v2.Sequence)
	}
	if v2.ParentVersionID != v1.ID {
		t.Fatalf("ParentVersionID = %q, want %q", v2.ParentVersionID, v1.ID)
	}
	if v2.Stats.Additions != 6 {
		t.Fatalf("Stats.Additions = %d, want 6", v2.Stats.Additions)
	}

	branch, err := g.CreateBranch("doc1", "feature", v1.ID)
	if err != nil {
		t.Fatalf("CreateBranch() error = %v", err)
	}
	if branch.Head != v1.ID {
		t.Fatalf("branch head = %q, want %q", branch.Head, v1.ID)
	}

	merge, err := g.MergeBranches("doc1", "feature", "main", VersionMeta{Author: "ada"})
	if err != nil {
		t.Fatalf("MergeBranches() error = %v", err)
	}
	if !merge.Success {
		t.Fatal("merge.Success = false")
	}
	if len(merge.Conflicts) != 0 {
		t.Fatalf("merge.Conflicts = %v, want empty", merge.Conflicts)
	}
	if merge.MergeVersion.Sequence != 3 {
		t.Fatalf("merge version sequence = %d, want 3", merge.MergeVersion.Sequence)
	}
	if merge.MergeVersion.Branch != "main" {
		t.Fatalf("merge version branch = %q, want main", merge.MergeVersion.Branch)
	}
	if merge.MergeVersion.Content != "Hello" {
		t.Fatalf("merge version content = %q, want feature head content", merge.MergeVersion.Content)
	}
}

func TestCreateVersionOnMissingBranch(t *testing.T) {
	g := newTestGraph()
	if _, err := g.CreateVersion("doc1", "x", VersionMeta{}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("CreateVersion() error = %v, want ErrNotInitialized", err)
	}

	if _, err := g.Initialize("doc1", "x", VersionMeta{}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if _, err := g.CreateVersion("doc1", "y", VersionMeta{Branch: "ghost"}); !errors.Is(err, ErrBranchNotFound) {
		t.Fatalf("CreateVersion() error = %v, want ErrBranchNotFound", err)
	}
}

func TestSequencesPerBranch(t *testing.T) {
	g := newTestGraph()
	v1, _ := g.Initialize("doc1", "one", VersionMeta{})
	v2, _ := g.CreateVersion("doc1", "two", VersionMeta{})

	if _, err := g.CreateBranch("doc1", "feature", v1.ID); err != nil {
		t.Fatalf("CreateBranch() error = %v", err)
	}
	fv, err := g.CreateVersion("doc1", "one plus", VersionMeta{Branch: "feature"})
	if err != nil {
		t.Fatalf("CreateVersion(feature) error = %v", err)
	}
	if fv.Sequence != v1.Sequence+1 {
		t.Fatalf("feature sequence = %d, want %d", fv.Sequence, v1.Sequence+1)
	}
	if fv.ParentVersionID != v1.ID {
		t.Fatalf("feature parent = %q, want %q", fv.ParentVersionID, v1.ID)
	}

	mv, err := g.CreateVersion("doc1", "three", VersionMeta{Branch: "main"})
	if err != nil {
		t.Fatalf("CreateVersion(main) error = %v", err)
	}
	if mv.Sequence != v2.Sequence+1 {
		t.Fatalf("main sequence = %d, want %d", mv.Sequence, v2.Sequence+1)
	}

	latest, err := g.GetLatestVersion("doc1", "feature")
	if err != nil {
		t.Fatalf("GetLatestVersion() error = %v", err)
	}
	if latest.ID != fv.ID {
		t.Fatalf("feature head = %q, want %q", latest.ID, fv.ID)
	}
}

func TestRevertIsAppendOnly(t *testing.T) {
	g := newTestGraph()
	v1, _ := g.Initialize("doc1", "original", VersionMeta{Author: "ada"})
	if _, err := g.CreateVersion("doc1", "changed", VersionMeta{Author: "ada"}); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	rv, err := g.RevertToVersion("doc1", v1.ID, VersionMeta{Author: "grace"})
	if err != nil {
		t.Fatalf("RevertToVersion() error = %v", err)
	}
	if rv.Content != "original" {
		t.Fatalf("revert content = %q, want %q", rv.Content, "original")
	}
	if rv.RevertOf != v1.ID {
		t.Fatalf("RevertOf = %q, want %q", rv.RevertOf, v1.ID)
	}
	if rv.Sequence != 3 {
		t.Fatalf("revert sequence = %d, want 3", rv.Sequence)
	}

	// The target stays untouched in history.
	again, err := g.GetVersion("doc1", v1.ID)
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if again.Content != "original" || again.Sequence != 1 {
		t.Fatalf("target mutated: %+v", again)
	}
}

func TestReturnedVersionsAreCopies(t *testing.T) {
	g := newTestGraph()
	v1, _ := g.Initialize("doc1", "original", VersionMeta{})
	v1.Content = "tampered"
	v1.Diff.Patches = "tampered"

	stored, err := g.GetVersion("doc1", v1.ID)
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if stored.Content != "original" {
		t.Fatalf("stored content = %q, caller mutation leaked", stored.Content)
	}
}

func TestDuplicateBranchAndTag(t *testing.T) {
	g := newTestGraph()
	v1, _ := g.Initialize("doc1", "x", VersionMeta{})

	if _, err := g.CreateBranch("doc1", "feature", v1.ID); err != nil {
		t.Fatalf("CreateBranch() error = %v", err)
	}
	if _, err := g.CreateBranch("doc1", "feature", v1.ID); !errors.Is(err, ErrBranchExists) {
		t.Fatalf("duplicate CreateBranch() error = %v, want ErrBranchExists", err)
	}
	if _, err := g.CreateBranch("doc1", "other", "ver_missing"); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("CreateBranch() error = %v, want ErrVersionNotFound", err)
	}

	if _, err := g.CreateTag("doc1", v1.ID, "v1.0", "ada"); err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}
	if _, err := g.CreateTag("doc1", v1.ID, "v1.0", "ada"); !errors.Is(err, ErrTagExists) {
		t.Fatalf("duplicate CreateTag() error = %v, want ErrTagExists", err)
	}
	if _, err := g.CreateTag("doc1", "ver_missing", "v2.0", "ada"); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("CreateTag() error = %v, want ErrVersionNotFound", err)
	}
}

func TestGetHistoryFiltersAndPagination(t *testing.T) {
	g := newTestGraph()
	v1, _ := g.Initialize("doc1", "a", VersionMeta{Author: "ada"})
	g.CreateVersion("doc1", "ab", VersionMeta{Author: "grace"})
	g.CreateVersion("doc1", "abc", VersionMeta{Author: "ada"})
	g.CreateBranch("doc1", "feature", v1.ID)
	g.CreateVersion("doc1", "a!", VersionMeta{Author: "ada", Branch: "feature"})

	all, err := g.GetHistory("doc1", Filter{})
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len(history) = %d, want 4", len(all))
	}
	// Newest first.
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Fatal("history not newest first")
		}
	}
	// Content/diff stripped by default.
	if all[0].Content != "" || all[0].Diff != nil {
		t.Fatalf("expected stripped payloads, got %+v", all[0])
	}

	mainOnly, err := g.GetHistory("doc1", Filter{Branch: "main", Author: "ada"})
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(mainOnly) != 2 {
		t.Fatalf("len(main+ada) = %d, want 2", len(mainOnly))
	}

	paged, err := g.GetHistory("doc1", Filter{Limit: 2, Offset: 1, IncludeContent: true})
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(paged) != 2 {
		t.Fatalf("len(paged) = %d, want 2", len(paged))
	}
	if paged[0].Content == "" {
		t.Fatal("IncludeContent did not keep content")
	}

	if _, err := g.GetHistory("doc1", Filter{Branch: "ghost"}); !errors.Is(err, ErrBranchNotFound) {
		t.Fatalf("GetHistory(ghost) error = %v, want ErrBranchNotFound", err)
	}

	since, err := g.GetHistory("doc1", Filter{Since: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("GetHistory(since) error = %v", err)
	}
	if len(since) != 0 {
		t.Fatalf("len(since future) = %d, want 0", len(since))
	}
}

func TestCompareVersions(t *testing.T) {
	g := newTestGraph()
	v1, _ := g.Initialize("doc1", "Hello", VersionMeta{})
	g.CreateVersion("doc1", "Hello there", VersionMeta{})
	v3, _ := g.CreateVersion("doc1", "Hello there, world", VersionMeta{})

	cmp, err := g.CompareVersions("doc1", v1.ID, v3.ID)
	if err != nil {
		t.Fatalf("CompareVersions() error = %v", err)
	}
	if cmp.Summary.VersionsApart != 2 {
		t.Fatalf("VersionsApart = %d, want 2", cmp.Summary.VersionsApart)
	}
	if cmp.Summary.SizeChange != len("Hello there, world")-len("Hello") {
		t.Fatalf("SizeChange = %d", cmp.Summary.SizeChange)
	}
	if cmp.Stats.Additions == 0 {
		t.Fatal("expected additions in comparison stats")
	}

	if _, err := g.CompareVersions("doc1", v1.ID, "ver_missing"); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("CompareVersions() error = %v, want ErrVersionNotFound", err)
	}
}

func TestStats(t *testing.T) {
	g := newTestGraph()
	if s := g.Stats("ghost"); s != nil {
		t.Fatalf("Stats(ghost) = %+v, want nil", s)
	}

	v1, _ := g.Initialize("doc1", "Hello", VersionMeta{Author: "ada"})
	g.CreateVersion("doc1", "Hello World", VersionMeta{Author: "grace"})
	g.CreateBranch("doc1", "feature", v1.ID)
	g.CreateTag("doc1", v1.ID, "v1.0", "ada")

	s := g.Stats("doc1")
	if s == nil {
		t.Fatal("Stats() = nil")
	}
	if s.TotalVersions != 2 || s.TotalBranches != 2 || s.TotalTags != 1 {
		t.Fatalf("Stats() = %+v", s)
	}
	if s.DistinctAuthors != 2 {
		t.Fatalf("DistinctAuthors = %d, want 2", s.DistinctAuthors)
	}
	if s.FirstVersion.ID != v1.ID {
		t.Fatalf("FirstVersion = %+v", s.FirstVersion)
	}
}
