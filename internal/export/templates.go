package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var funcMap = template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}

var (
	versionTemplate    = template.Must(template.New("version").Funcs(funcMap).Parse(versionHTML))
	comparisonTemplate = template.Must(template.New("comparison").Funcs(funcMap).Parse(comparisonHTML))
)

// TemplateData holds the data rendered into the version template.
type TemplateData struct {
	Title       string
	DocumentID  string
	Branch      string
	Sequence    int
	Author      string
	Message     string
	CreatedAt   time.Time
	ContentHTML template.HTML
	Comments    []TemplateComment
}

// TemplateComment holds one annotation for the rendered comments section.
type TemplateComment struct {
	Author    string
	Body      string
	Resolved  bool
	CreatedAt time.Time
}

// ComparisonData holds the data rendered into the comparison template.
type ComparisonData struct {
	Title        string
	DocumentID   string
	FromID       string
	ToID         string
	Additions    int
	Deletions    int
	Modified     int
	VersionsApart int
	DiffHTML     template.HTML
}

// RenderVersionHTML renders a single version view.
func RenderVersionHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := versionTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderComparisonHTML renders a two-version comparison view.
func RenderComparisonHTML(data ComparisonData) (string, error) {
	var buf bytes.Buffer
	if err := comparisonTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const versionHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .content { white-space: pre-wrap; }
    .comment { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
    .comment.resolved { border-left-color: #999; color: #777; }
    .comment .author { font-weight: bold; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">
    version {{.Sequence}} on {{.Branch}} | {{.Author}} | {{formatDate .CreatedAt "Jan 2, 2006 15:04"}}
    {{if .Message}}<br>{{.Message}}{{end}}
  </div>
  <div class="content">{{.ContentHTML}}</div>
  {{if .Comments}}
  <h2>Comments</h2>
  {{range .Comments}}
  <div class="comment{{if .Resolved}} resolved{{end}}">
    <span class="author">{{.Author}}</span> &middot; {{formatDate .CreatedAt "Jan 2, 2006"}}
    <p>{{.Body}}</p>
  </div>
  {{end}}
  {{end}}
</body>
</html>`

const comparisonHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .diff { white-space: pre-wrap; font-family: "Courier New", monospace; font-size: 0.95em; }
    ins { background: #d4f7d4; text-decoration: none; }
    del { background: #f7d4d4; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">
    {{.FromID}} &rarr; {{.ToID}} ({{.VersionsApart}} versions apart)<br>
    +{{.Additions}} / -{{.Deletions}} / ~{{.Modified}}
  </div>
  <div class="diff">{{.DiffHTML}}</div>
</body>
</html>`
