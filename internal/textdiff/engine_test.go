package textdiff

import (
	"strings"
	"testing"
	"time"
)

func newTestEngine() *Engine {
	return NewEngine(Options{DiffTimeout: time.Second, MatchThreshold: 0.5})
}

func TestDiffIdenticalContent(t *testing.T) {
	e := newTestEngine()
	edits := e.Diff("The quick brown fox", "The quick brown fox")
	for _, ed := range edits {
		if ed.Kind != EditEqual {
			t.Fatalf("Diff() produced non-equal edit %+v for identical input", ed)
		}
	}
	stats := Stats(edits)
	if stats.Additions != 0 || stats.Deletions != 0 || stats.Modifications != 0 {
		t.Fatalf("Stats() = %+v, want all zero", stats)
	}
}

func TestDiffPureInsertion(t *testing.T) {
	e := newTestEngine()
	edits := e.Diff("Hello", "Hello World")
	stats := Stats(edits)
	if stats.Additions != 6 {
		t.Fatalf("Stats().Additions = %d, want 6", stats.Additions)
	}
	if stats.Deletions != 0 || stats.Modifications != 0 {
		t.Fatalf("Stats() = %+v, want only additions", stats)
	}
}

func TestStatsModificationBucketing(t *testing.T) {
	stats := Stats([]Edit{
		{Kind: EditDelete, Text: "cat"},
		{Kind: EditInsert, Text: "horse"},
	})
	if stats.Modifications != 3 {
		t.Fatalf("Stats().Modifications = %d, want 3", stats.Modifications)
	}
	if stats.Additions != 2 {
		t.Fatalf("Stats().Additions = %d, want 2", stats.Additions)
	}
	if stats.Deletions != 0 {
		t.Fatalf("Stats().Deletions = %d, want 0", stats.Deletions)
	}
}

func TestPatchRoundTrip(t *testing.T) {
	e := newTestEngine()
	cases := []struct {
		name     string
		old, new string
	}{
		{"append", "Hello", "Hello World"},
		{"rewrite", "The slow red fox", "The quick brown fox jumps"},
		{"delete all", "some content", ""},
		{"from empty", "", "fresh content"},
		{"multiline", "line one\nline two\nline three\n", "line one\nline 2\nline three\nline four\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			patches := e.ToPatches(tc.old, tc.new)
			got, ok, err := e.ApplyPatches(tc.old, patches)
			if err != nil {
				t.Fatalf("ApplyPatches() error = %v", err)
			}
			if !ok {
				t.Fatal("ApplyPatches() ok = false")
			}
			if got != tc.new {
				t.Fatalf("ApplyPatches() = %q, want %q", got, tc.new)
			}
		})
	}
}

func TestApplyPatchesFuzzyContext(t *testing.T) {
	e := newTestEngine()
	old := "The quick brown fox jumps over the lazy dog"
	new := "The quick brown fox leaps over the lazy dog"
	patches := e.ToPatches(old, new)

	// Same edit applied to drifted but similar text.
	drifted := "A quick brown fox jumps over the lazy dog"
	got, ok, err := e.ApplyPatches(drifted, patches)
	if err != nil {
		t.Fatalf("ApplyPatches() error = %v", err)
	}
	if !ok {
		t.Fatal("ApplyPatches() ok = false, want fuzzy match")
	}
	if !strings.Contains(got, "leaps") {
		t.Fatalf("ApplyPatches() = %q, want edit applied", got)
	}
}

func TestApplyPatchesUnmatchedHunk(t *testing.T) {
	e := newTestEngine()
	patches := e.ToPatches(
		"The quick brown fox jumps over the lazy dog",
		"The quick brown fox leaps over the lazy dog",
	)
	_, ok, err := e.ApplyPatches("completely unrelated text about databases", patches)
	if err != nil {
		t.Fatalf("ApplyPatches() error = %v", err)
	}
	if ok {
		t.Fatal("ApplyPatches() ok = true, want false for unrelated text")
	}
}

func TestApplyPatchesBadInput(t *testing.T) {
	e := newTestEngine()
	if _, _, err := e.ApplyPatches("text", "not a patch blob"); err == nil {
		t.Fatal("ApplyPatches() error = nil, want parse error")
	}
}

func TestDisplayHTML(t *testing.T) {
	e := newTestEngine()
	html := e.DisplayHTML(e.Diff("Hello", "Hello World"))
	if !strings.Contains(html, "<ins") {
		t.Fatalf("DisplayHTML() = %q, want insert markup", html)
	}
}
