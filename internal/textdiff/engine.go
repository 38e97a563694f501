// Package textdiff wraps diff-match-patch for version diffing: structural
// diffs between content snapshots, reversible fuzzy patches, change
// accounting and display markup.
package textdiff

import (
	"fmt"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type EditKind string

const (
	EditEqual  EditKind = "equal"
	EditInsert EditKind = "insert"
	EditDelete EditKind = "delete"
)

// Edit is one span of a computed diff.
type Edit struct {
	Kind EditKind `json:"kind"`
	Text string   `json:"text"`
}

// ChangeStats buckets a diff into added/deleted/modified character counts.
// Overlapping insert+delete volume is reported as modifications.
type ChangeStats struct {
	Additions     int `json:"additions"`
	Deletions     int `json:"deletions"`
	Modifications int `json:"modifications"`
}

// Options bound diff cost and patch fuzziness.
type Options struct {
	// DiffTimeout caps wall-clock diff time; on expiry diff-match-patch
	// falls back to a coarser but still applicable diff. Zero means the
	// library default.
	DiffTimeout time.Duration
	// MatchThreshold controls how far a patch context may drift before a
	// hunk is declared unmatched (0 exact .. 1 anything).
	MatchThreshold float64
}

type Engine struct {
	opts Options
}

func NewEngine(opts Options) *Engine {
	if opts.DiffTimeout <= 0 {
		opts.DiffTimeout = time.Second
	}
	if opts.MatchThreshold <= 0 {
		opts.MatchThreshold = 0.5
	}
	return &Engine{opts: opts}
}

// dmp returns a configured diff-match-patch instance. The library instance
// carries mutable tuning fields, so each call gets its own.
func (e *Engine) dmp() *diffmatchpatch.DiffMatchPatch {
	d := diffmatchpatch.New()
	d.DiffTimeout = e.opts.DiffTimeout
	d.MatchThreshold = e.opts.MatchThreshold
	return d
}

// Diff computes a semantically cleaned edit sequence turning oldText into
// newText. Deterministic for a given input pair and timeout budget.
func (e *Engine) Diff(oldText, newText string) []Edit {
	d := e.dmp()
	diffs := d.DiffMain(oldText, newText, true)
	diffs = d.DiffCleanupSemantic(diffs)
	edits := make([]Edit, 0, len(diffs))
	for _, df := range diffs {
		edits = append(edits, Edit{Kind: kindOf(df.Type), Text: df.Text})
	}
	return edits
}

// ToPatches derives a serialized patch set that can be fuzzily applied to
// any text close enough to oldText.
func (e *Engine) ToPatches(oldText, newText string) string {
	d := e.dmp()
	return d.PatchToText(d.PatchMake(oldText, newText))
}

// ApplyPatches applies a serialized patch set to text. ok is false when any
// hunk could not be located within the match threshold; the returned text
// may then be partially patched and must not be assumed correct.
func (e *Engine) ApplyPatches(text, patchText string) (string, bool, error) {
	d := e.dmp()
	patches, err := d.PatchFromText(patchText)
	if err != nil {
		return text, false, fmt.Errorf("parse patches: %w", err)
	}
	patched, applied := d.PatchApply(patches, text)
	ok := true
	for _, a := range applied {
		if !a {
			ok = false
			break
		}
	}
	return patched, ok, nil
}

// DisplayHTML renders a diff as inline highlighted markup for presentation.
func (e *Engine) DisplayHTML(edits []Edit) string {
	diffs := make([]diffmatchpatch.Diff, 0, len(edits))
	for _, ed := range edits {
		diffs = append(diffs, diffmatchpatch.Diff{Type: typeOf(ed.Kind), Text: ed.Text})
	}
	return e.dmp().DiffPrettyHtml(diffs)
}

// Stats accounts a diff: raw inserted/deleted characters, with the
// overlapping volume reclassified as modifications.
func Stats(edits []Edit) ChangeStats {
	var added, deleted int
	for _, ed := range edits {
		switch ed.Kind {
		case EditInsert:
			added += len([]rune(ed.Text))
		case EditDelete:
			deleted += len([]rune(ed.Text))
		}
	}
	mods := added
	if deleted < mods {
		mods = deleted
	}
	return ChangeStats{
		Additions:     added - mods,
		Deletions:     deleted - mods,
		Modifications: mods,
	}
}

func kindOf(t diffmatchpatch.Operation) EditKind {
	switch t {
	case diffmatchpatch.DiffInsert:
		return EditInsert
	case diffmatchpatch.DiffDelete:
		return EditDelete
	default:
		return EditEqual
	}
}

func typeOf(k EditKind) diffmatchpatch.Operation {
	switch k {
	case EditInsert:
		return diffmatchpatch.DiffInsert
	case EditDelete:
		return diffmatchpatch.DiffDelete
	default:
		return diffmatchpatch.DiffEqual
	}
}
