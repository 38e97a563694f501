// Package export renders committed versions as PDF or DOCX files.
package export

import "errors"

// Format is the export output format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request describes one export operation. VersionID may be "latest", in
// which case Branch selects the head to render. CompareWith, when set,
// switches to a comparison export showing the changes between the two
// versions.
type Request struct {
	DocumentID      string
	VersionID       string
	Branch          string
	Format          Format
	CompareWith     string
	IncludeComments bool
}

// Result is the rendered export.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates headless Chrome is unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates pandoc is unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
