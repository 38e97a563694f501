package export

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"inkwell/api/internal/annotations"
	"inkwell/api/internal/history"
	"inkwell/api/internal/textdiff"
)

// HistorySource is the slice of the version graph the exporter reads.
type HistorySource interface {
	GetVersion(documentID, versionID string) (*history.Version, error)
	GetLatestVersion(documentID, branchName string) (*history.Version, error)
	CompareVersions(documentID, fromID, toID string) (*history.Comparison, error)
}

// CommentSource lists a document's annotations for the comments section.
type CommentSource interface {
	List(documentID string) []annotations.Comment
}

// Service renders versions and comparisons into PDF or DOCX.
type Service struct {
	graph    HistorySource
	differ   *textdiff.Engine
	comments CommentSource
}

// NewService creates an export service. comments may be nil.
func NewService(graph HistorySource, differ *textdiff.Engine, comments CommentSource) *Service {
	return &Service{graph: graph, differ: differ, comments: comments}
}

// Export renders the requested version, or a comparison when CompareWith is
// set, in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	_ = ctx

	var html, title string
	var err error
	if req.CompareWith != "" {
		html, title, err = s.renderComparison(req)
	} else {
		html, title, err = s.renderVersion(req)
	}
	if err != nil {
		return nil, err
	}

	switch req.Format {
	case FormatPDF:
		return renderPDF(html, title)
	case FormatDOCX:
		return renderDOCX(html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func (s *Service) renderVersion(req Request) (string, string, error) {
	version, err := s.resolveVersion(req.DocumentID, req.VersionID, req.Branch)
	if err != nil {
		return "", "", err
	}

	data := TemplateData{
		Title:       fmt.Sprintf("%s v%d", req.DocumentID, version.Sequence),
		DocumentID:  req.DocumentID,
		Branch:      version.Branch,
		Sequence:    version.Sequence,
		Author:      version.Author,
		Message:     version.Message,
		CreatedAt:   version.Timestamp,
		ContentHTML: escapeContent(version.Content),
	}

	if req.IncludeComments && s.comments != nil {
		for _, c := range s.comments.List(req.DocumentID) {
			data.Comments = append(data.Comments, TemplateComment{
				Author:    c.Author,
				Body:      c.Body,
				Resolved:  c.Resolved,
				CreatedAt: c.CreatedAt,
			})
		}
	}

	html, err := RenderVersionHTML(data)
	if err != nil {
		return "", "", fmt.Errorf("render version template: %w", err)
	}
	return html, data.Title, nil
}

func (s *Service) renderComparison(req Request) (string, string, error) {
	from, err := s.resolveVersion(req.DocumentID, req.VersionID, req.Branch)
	if err != nil {
		return "", "", err
	}
	comparison, err := s.graph.CompareVersions(req.DocumentID, from.ID, req.CompareWith)
	if err != nil {
		return "", "", fmt.Errorf("compare versions: %w", err)
	}

	data := ComparisonData{
		Title:         fmt.Sprintf("%s changes", req.DocumentID),
		DocumentID:    req.DocumentID,
		FromID:        comparison.FromID,
		ToID:          comparison.ToID,
		Additions:     comparison.Stats.Additions,
		Deletions:     comparison.Stats.Deletions,
		Modified:      comparison.Stats.Modifications,
		VersionsApart: comparison.Summary.VersionsApart,
		DiffHTML:      template.HTML(s.differ.DisplayHTML(comparison.Edits)),
	}

	html, err := RenderComparisonHTML(data)
	if err != nil {
		return "", "", fmt.Errorf("render comparison template: %w", err)
	}
	return html, data.Title, nil
}

func (s *Service) resolveVersion(documentID, versionID, branch string) (*history.Version, error) {
	if versionID == "" || versionID == "latest" {
		if branch == "" {
			branch = history.DefaultBranch
		}
		version, err := s.graph.GetLatestVersion(documentID, branch)
		if err != nil {
			return nil, fmt.Errorf("resolve latest version: %w", err)
		}
		return version, nil
	}
	version, err := s.graph.GetVersion(documentID, versionID)
	if err != nil {
		return nil, fmt.Errorf("resolve version %s: %w", versionID, err)
	}
	return version, nil
}

// escapeContent renders plain text as HTML, preserving line breaks via the
// template's pre-wrap styling.
func escapeContent(content string) template.HTML {
	escaped := template.HTMLEscapeString(content)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return template.HTML(escaped)
}
