package history

import (
	"errors"
	"time"

	"inkwell/api/internal/textdiff"
)

var (
	ErrDocumentExists  = errors.New("document history already initialized")
	ErrNotInitialized  = errors.New("document history not initialized")
	ErrVersionNotFound = errors.New("version not found")
	ErrBranchNotFound  = errors.New("branch not found")
	ErrBranchExists    = errors.New("branch already exists")
	ErrTagExists       = errors.New("tag already exists")
)

// DiffRecord embeds the raw diff and the derived patch set computed against
// the parent version.
type DiffRecord struct {
	Edits   []textdiff.Edit `json:"edits"`
	Patches string          `json:"patches"`
}

// Version is an immutable history entry. Content and Diff may be stripped
// from listing responses; the stored record always carries both.
type Version struct {
	ID              string               `json:"id"`
	Sequence        int                  `json:"sequence"`
	Content         string               `json:"content,omitempty"`
	ContentHash     string               `json:"contentHash"`
	Author          string               `json:"author"`
	Message         string               `json:"message"`
	Timestamp       time.Time            `json:"timestamp"`
	ParentVersionID string               `json:"parentVersionId,omitempty"`
	Branch          string               `json:"branch"`
	Stats           textdiff.ChangeStats `json:"changeStats"`
	Diff            *DiffRecord          `json:"diff,omitempty"`
	// RevertOf marks a version created by reverting to the named version.
	RevertOf string `json:"revertOf,omitempty"`
	// MergedFrom names the source branch for copy-commit merges.
	MergedFrom string `json:"mergedFrom,omitempty"`
}

// Branch is a movable pointer to the latest version in one line of history.
type Branch struct {
	Name        string    `json:"name"`
	Head        string    `json:"head"`
	CreatedFrom string    `json:"createdFrom,omitempty"`
	Protected   bool      `json:"protected"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Tag is an immutable named pointer to one version.
type Tag struct {
	Name      string    `json:"name"`
	VersionID string    `json:"versionId"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// VersionMeta carries the optional commit metadata accepted at the boundary.
type VersionMeta struct {
	Author  string
	Message string
	Branch  string
}

// Filter narrows and pages a history listing. Conditions are conjunctive;
// pagination applies after filtering and sorting.
type Filter struct {
	Branch         string
	Author         string
	Since          time.Time
	Until          time.Time
	Limit          int
	Offset         int
	IncludeContent bool
	IncludeDiff    bool
}

type ComparisonSummary struct {
	VersionsApart int           `json:"versionsApart"`
	Timespan      time.Duration `json:"timespan"`
	SizeChange    int           `json:"sizeChange"`
}

// Comparison is the result of diffing two committed versions.
type Comparison struct {
	FromID  string               `json:"fromId"`
	ToID    string               `json:"toId"`
	Edits   []textdiff.Edit      `json:"diff"`
	Stats   textdiff.ChangeStats `json:"changeStats"`
	Summary ComparisonSummary    `json:"summary"`
}

// MergeResult reports a branch merge. Merges are copy-commits of the source
// head, so Conflicts is always empty until a real three-way merge exists.
type MergeResult struct {
	MergeVersion *Version `json:"mergeVersion"`
	Conflicts    []string `json:"conflicts"`
	Success      bool     `json:"success"`
}

// VersionRef is a lightweight pointer into history used by stats summaries.
type VersionRef struct {
	ID        string    `json:"id"`
	Branch    string    `json:"branch"`
	Timestamp time.Time `json:"timestamp"`
}

// DocumentStats summarizes one document's history.
type DocumentStats struct {
	TotalVersions      int        `json:"totalVersions"`
	TotalBranches      int        `json:"totalBranches"`
	TotalTags          int        `json:"totalTags"`
	DistinctAuthors    int        `json:"distinctAuthors"`
	TotalChanges       int        `json:"totalChanges"`
	AverageVersionSize int        `json:"averageVersionSize"`
	FirstVersion       VersionRef `json:"firstVersion"`
	LatestVersion      VersionRef `json:"latestVersion"`
}
