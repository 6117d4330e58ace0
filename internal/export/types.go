// Package export renders an explore's comment threads to PDF or CSV.
package export

import "errors"

// Format represents the export output format
type Format string

const (
	FormatPDF Format = "pdf"
	FormatCSV Format = "csv"
)

// FieldThread is one field's comment thread prepared for rendering.
type FieldThread struct {
	Field    string
	Comments []ThreadComment
}

// ThreadComment is a single comment with its author already resolved to a
// display name.
type ThreadComment struct {
	Author      string
	Content     string
	Edited      bool
	TimestampMS int64
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are
// unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
