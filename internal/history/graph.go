// Package history keeps the append-only per-document version graph:
// immutable versions organized into named branches with movable heads, plus
// fixed tags. The graph is the in-memory authority; durable mirrors hang off
// the app service.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"inkwell/api/internal/textdiff"
	"inkwell/api/internal/util"
)

const DefaultBranch = "main"

// Graph owns the version registries for all documents in the process. It is
// constructed once and injected; all methods are safe for concurrent use.
type Graph struct {
	mu     sync.RWMutex
	differ *textdiff.Engine
	docs   map[string]*document
}

type document struct {
	versions      []*Version
	byID          map[string]*Version
	branches      map[string]*Branch
	tags          map[string]*Tag
	currentBranch string
}

func NewGraph(differ *textdiff.Engine) *Graph {
	return &Graph{
		differ: differ,
		docs:   make(map[string]*document),
	}
}

// Initialize creates the sequence-1 version on a protected "main" branch.
// Fails if the document already has history.
func (g *Graph) Initialize(documentID, initialContent string, meta VersionMeta) (*Version, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.docs[documentID]; ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrDocumentExists)
	}

	now := time.Now()
	edits := g.differ.Diff("", initialContent)
	version := &Version{
		ID:          util.NewID("ver"),
		Sequence:    1,
		Content:     initialContent,
		ContentHash: hashContent(initialContent),
		Author:      meta.Author,
		Message:     defaultMessage(meta.Message, "Initialize document"),
		Timestamp:   now,
		Branch:      DefaultBranch,
		Stats:       textdiff.Stats(edits),
		Diff: &DiffRecord{
			Edits:   edits,
			Patches: g.differ.ToPatches("", initialContent),
		},
	}

	doc := &document{
		byID:          make(map[string]*Version),
		branches:      make(map[string]*Branch),
		tags:          make(map[string]*Tag),
		currentBranch: DefaultBranch,
	}
	doc.versions = append(doc.versions, version)
	doc.byID[version.ID] = version
	doc.branches[DefaultBranch] = &Branch{
		Name:      DefaultBranch,
		Head:      version.ID,
		Protected: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	g.docs[documentID] = doc

	return cloneVersion(version), nil
}

// CreateVersion appends a new version on the target branch (the current
// branch when meta.Branch is empty), diffing against the branch head.
func (g *Graph) CreateVersion(documentID, newContent string, meta VersionMeta) (*Version, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc, ok := g.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotInitialized)
	}
	version, err := g.commit(doc, newContent, meta, "", "")
	if err != nil {
		return nil, err
	}
	return cloneVersion(version), nil
}

// commit appends a version onto the resolved branch. Callers hold g.mu.
func (g *Graph) commit(doc *document, newContent string, meta VersionMeta, revertOf, mergedFrom string) (*Version, error) {
	branchName := meta.Branch
	if branchName == "" {
		branchName = doc.currentBranch
	}
	branch, ok := doc.branches[branchName]
	if !ok {
		return nil, fmt.Errorf("branch %s: %w", branchName, ErrBranchNotFound)
	}
	parent := doc.byID[branch.Head]

	now := time.Now()
	edits := g.differ.Diff(parent.Content, newContent)
	version := &Version{
		ID:              util.NewID("ver"),
		Sequence:        parent.Sequence + 1,
		Content:         newContent,
		ContentHash:     hashContent(newContent),
		Author:          meta.Author,
		Message:         defaultMessage(meta.Message, "Update document"),
		Timestamp:       now,
		ParentVersionID: parent.ID,
		Branch:          branchName,
		Stats:           textdiff.Stats(edits),
		Diff: &DiffRecord{
			Edits:   edits,
			Patches: g.differ.ToPatches(parent.Content, newContent),
		},
		RevertOf:   revertOf,
		MergedFrom: mergedFrom,
	}

	doc.versions = append(doc.versions, version)
	doc.byID[version.ID] = version
	branch.Head = version.ID
	branch.UpdatedAt = now
	doc.currentBranch = branchName
	return version, nil
}

func (g *Graph) GetVersion(documentID, versionID string) (*Version, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc, ok := g.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotInitialized)
	}
	version, ok := doc.byID[versionID]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", versionID, ErrVersionNotFound)
	}
	return cloneVersion(version), nil
}

func (g *Graph) GetLatestVersion(documentID, branchName string) (*Version, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc, ok := g.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotInitialized)
	}
	if branchName == "" {
		branchName = DefaultBranch
	}
	branch, ok := doc.branches[branchName]
	if !ok {
		return nil, fmt.Errorf("branch %s: %w", branchName, ErrBranchNotFound)
	}
	return cloneVersion(doc.byID[branch.Head]), nil
}

// GetHistory lists versions newest first. Filters are conjunctive and
// pagination applies after filtering. Content and diff payloads are stripped
// unless requested.
func (g *Graph) GetHistory(documentID string, f Filter) ([]*Version, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc, ok := g.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotInitialized)
	}
	if f.Branch != "" {
		if _, ok := doc.branches[f.Branch]; !ok {
			return nil, fmt.Errorf("branch %s: %w", f.Branch, ErrBranchNotFound)
		}
	}

	matched := make([]*Version, 0, len(doc.versions))
	for i := len(doc.versions) - 1; i >= 0; i-- {
		v := doc.versions[i]
		if f.Branch != "" && v.Branch != f.Branch {
			continue
		}
		if f.Author != "" && v.Author != f.Author {
			continue
		}
		if !f.Since.IsZero() && v.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && v.Timestamp.After(f.Until) {
			continue
		}
		matched = append(matched, v)
	}

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[f.Offset:]
		}
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]*Version, 0, len(matched))
	for _, v := range matched {
		c := cloneVersion(v)
		if !f.IncludeContent {
			c.Content = ""
		}
		if !f.IncludeDiff {
			c.Diff = nil
		}
		out = append(out, c)
	}
	return out, nil
}

// CompareVersions diffs two committed versions, which may sit on different
// branches.
func (g *Graph) CompareVersions(documentID, fromID, toID string) (*Comparison, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc, ok := g.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotInitialized)
	}
	from, ok := doc.byID[fromID]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", fromID, ErrVersionNotFound)
	}
	to, ok := doc.byID[toID]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", toID, ErrVersionNotFound)
	}

	edits := g.differ.Diff(from.Content, to.Content)
	apart := versionIndex(doc, toID) - versionIndex(doc, fromID)
	if apart < 0 {
		apart = -apart
	}
	return &Comparison{
		FromID: fromID,
		ToID:   toID,
		Edits:  edits,
		Stats:  textdiff.Stats(edits),
		Summary: ComparisonSummary{
			VersionsApart: apart,
			Timespan:      to.Timestamp.Sub(from.Timestamp),
			SizeChange:    len([]rune(to.Content)) - len([]rune(from.Content)),
		},
	}, nil
}

// RevertToVersion appends a new version whose content equals the target's.
// History is never rewritten; the revert carries a provenance marker.
func (g *Graph) RevertToVersion(documentID, targetID string, meta VersionMeta) (*Version, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc, ok := g.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotInitialized)
	}
	target, ok := doc.byID[targetID]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", targetID, ErrVersionNotFound)
	}

	message := defaultMessage(meta.Message, fmt.Sprintf("Revert to version %d", target.Sequence))
	meta.Message = fmt.Sprintf("%s\n\nrevert: target=%s actor=%s", message, targetID, meta.Author)
	version, err := g.commit(doc, target.Content, meta, targetID, "")
	if err != nil {
		return nil, err
	}
	return cloneVersion(version), nil
}

// CreateBranch points a new branch at an existing version. No version is
// created; the head moves on the first commit to the branch.
func (g *Graph) CreateBranch(documentID, name, fromVersionID string) (*Branch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc, ok := g.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotInitialized)
	}
	if _, ok := doc.branches[name]; ok {
		return nil, fmt.Errorf("branch %s: %w", name, ErrBranchExists)
	}
	if _, ok := doc.byID[fromVersionID]; !ok {
		return nil, fmt.Errorf("version %s: %w", fromVersionID, ErrVersionNotFound)
	}

	now := time.Now()
	branch := &Branch{
		Name:        name,
		Head:        fromVersionID,
		CreatedFrom: fromVersionID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	doc.branches[name] = branch
	c := *branch
	return &c, nil
}

// MergeBranches commits the source head's content onto the target branch as
// a new version. Last writer wins; no three-way merge is attempted, so the
// conflict list is always empty.
func (g *Graph) MergeBranches(documentID, source, target string, meta VersionMeta) (*MergeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc, ok := g.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotInitialized)
	}
	sourceBranch, ok := doc.branches[source]
	if !ok {
		return nil, fmt.Errorf("branch %s: %w", source, ErrBranchNotFound)
	}
	if _, ok := doc.branches[target]; !ok {
		return nil, fmt.Errorf("branch %s: %w", target, ErrBranchNotFound)
	}

	sourceHead := doc.byID[sourceBranch.Head]
	message := defaultMessage(meta.Message, fmt.Sprintf("Merge %s into %s", source, target))
	meta.Message = fmt.Sprintf("%s\n\nmerge: source=%s target=%s actor=%s mode=copy-commit", message, source, target, meta.Author)
	meta.Branch = target
	version, err := g.commit(doc, sourceHead.Content, meta, "", source)
	if err != nil {
		return nil, err
	}
	return &MergeResult{
		MergeVersion: cloneVersion(version),
		Conflicts:    []string{},
		Success:      true,
	}, nil
}

// CreateTag labels an existing version. Tag names are immutable once taken.
func (g *Graph) CreateTag(documentID, versionID, name, createdBy string) (*Tag, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc, ok := g.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotInitialized)
	}
	if _, ok := doc.tags[name]; ok {
		return nil, fmt.Errorf("tag %s: %w", name, ErrTagExists)
	}
	if _, ok := doc.byID[versionID]; !ok {
		return nil, fmt.Errorf("version %s: %w", versionID, ErrVersionNotFound)
	}

	tag := &Tag{
		Name:      name,
		VersionID: versionID,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	}
	doc.tags[name] = tag
	c := *tag
	return &c, nil
}

// ListBranches returns all branch records for a document.
func (g *Graph) ListBranches(documentID string) ([]*Branch, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc, ok := g.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotInitialized)
	}
	out := make([]*Branch, 0, len(doc.branches))
	for _, b := range doc.branches {
		c := *b
		out = append(out, &c)
	}
	return out, nil
}

// ListTags returns all tag records for a document.
func (g *Graph) ListTags(documentID string) ([]*Tag, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc, ok := g.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotInitialized)
	}
	out := make([]*Tag, 0, len(doc.tags))
	for _, t := range doc.tags {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

// Stats summarizes a document's history, or nil if uninitialized.
func (g *Graph) Stats(documentID string) *DocumentStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc, ok := g.docs[documentID]
	if !ok {
		return nil
	}

	authors := make(map[string]struct{})
	totalChanges := 0
	totalSize := 0
	for _, v := range doc.versions {
		if v.Author != "" {
			authors[v.Author] = struct{}{}
		}
		totalChanges += v.Stats.Additions + v.Stats.Deletions + v.Stats.Modifications
		totalSize += len([]rune(v.Content))
	}

	first := doc.versions[0]
	latest := doc.versions[len(doc.versions)-1]
	return &DocumentStats{
		TotalVersions:      len(doc.versions),
		TotalBranches:      len(doc.branches),
		TotalTags:          len(doc.tags),
		DistinctAuthors:    len(authors),
		TotalChanges:       totalChanges,
		AverageVersionSize: totalSize / len(doc.versions),
		FirstVersion:       VersionRef{ID: first.ID, Branch: first.Branch, Timestamp: first.Timestamp},
		LatestVersion:      VersionRef{ID: latest.ID, Branch: latest.Branch, Timestamp: latest.Timestamp},
	}
}

// Initialized reports whether a document has history.
func (g *Graph) Initialized(documentID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.docs[documentID]
	return ok
}

func versionIndex(doc *document, versionID string) int {
	for i, v := range doc.versions {
		if v.ID == versionID {
			return i
		}
	}
	return -1
}

func cloneVersion(v *Version) *Version {
	c := *v
	if v.Diff != nil {
		d := *v.Diff
		d.Edits = append([]textdiff.Edit(nil), v.Diff.Edits...)
		c.Diff = &d
	}
	return &c
}

func defaultMessage(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
